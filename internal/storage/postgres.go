package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	intrnl "relaychat/internal"
)

// ConnectPostgres opens a pgx pool and verifies it answers within five seconds.
func ConnectPostgres(ctx context.Context, databaseURL string, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("database connected", "dsn", MaskDSN(databaseURL))
	return pool, nil
}

// MaskDSN hides the credentials of a postgres URL for logging.
func MaskDSN(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}

// PostgresLog is the message log on a shared PostgreSQL database.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (p *PostgresLog) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at, id)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresLog) Append(ctx context.Context, msg *intrnl.Message) error {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO messages (kind, body, media_url, sender, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, string(msg.Kind), msg.Body, msg.MediaURL, msg.Sender, msg.CreatedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = strconv.FormatInt(id, 10)
	return nil
}

// QueryRecent returns the first limit messages in ascending created_at order.
func (p *PostgresLog) QueryRecent(ctx context.Context, limit int) ([]intrnl.Message, error) {
	if limit <= 0 {
		return []intrnl.Message{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, kind, body, media_url, sender, created_at
		FROM messages
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (intrnl.Message, error) {
		var r messageRow
		if err := row.Scan(&r.ID, &r.Kind, &r.Body, &r.MediaURL, &r.Sender, &r.CreatedAt); err != nil {
			return intrnl.Message{}, err
		}
		return r.toMessage(), nil
	})
}

func (p *PostgresLog) Close() error {
	p.pool.Close()
	return nil
}
