package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Durability decides whether a failed append still lets the message out.
type Durability string

const (
	// BestEffortDurable broadcasts even when the append failed.
	BestEffortDurable Durability = "best-effort"
	// PersistBeforeBroadcast only broadcasts messages the log acknowledged.
	PersistBeforeBroadcast Durability = "strict"
)

func ParseDurability(s string) (Durability, error) {
	switch Durability(s) {
	case BestEffortDurable, PersistBeforeBroadcast:
		return Durability(s), nil
	case "":
		return BestEffortDurable, nil
	}
	return "", fmt.Errorf("unknown durability policy %q", s)
}

type RelayOptions struct {
	Durability     Durability
	PersistTimeout time.Duration
	Now            func() time.Time
}

// Relay stamps, persists and broadcasts chat messages.
type Relay struct {
	log      MessageLog
	registry *Registry
	stamper  *Stamper
	opts     RelayOptions
	metrics  *Metrics
	logger   *slog.Logger
}

func NewRelay(messageLog MessageLog, registry *Registry, metrics *Metrics, logger *slog.Logger, opts RelayOptions) *Relay {
	if opts.Durability == "" {
		opts.Durability = BestEffortDurable
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Relay{
		log:      messageLog,
		registry: registry,
		stamper:  NewStamper(opts.Now),
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleIncoming is the single entry point for a client-submitted message.
// Append always completes before the broadcast starts.
func (r *Relay) HandleIncoming(ctx context.Context, from Conn, raw []byte) error {
	msg, err := decodeMessage(raw)
	if err != nil {
		return err
	}
	msg.CreatedAt = r.stamper.Stamp()

	if err := r.persist(ctx, &msg); err != nil {
		r.metrics.IncPersistFailure()
		if r.opts.Durability == PersistBeforeBroadcast {
			return err
		}
		r.logger.Error("message not persisted, broadcasting anyway",
			"conn_id", from.ID(), "sender", msg.Sender, "error", err)
	}

	payload, err := encodeEvent(EventReceiveMessage, msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", EventReceiveMessage, err)
	}
	delivered := r.registry.Broadcast(payload)
	r.metrics.IncRelayed()
	r.logger.Debug("message relayed", "conn_id", from.ID(), "kind", msg.Kind, "delivered", delivered)
	return nil
}

func (r *Relay) persist(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PersistTimeout)
	defer cancel()
	if err := r.log.Append(ctx, msg); err != nil {
		var perr *PersistenceError
		if errors.As(err, &perr) {
			return err
		}
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// History returns the bounded, oldest-first slice of the log.
func (r *Relay) History(ctx context.Context, limit int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.PersistTimeout)
	defer cancel()
	messages, err := r.log.QueryRecent(ctx, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "query", Err: err}
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}
