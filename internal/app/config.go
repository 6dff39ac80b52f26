package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"

	intrnl "relaychat/internal"
)

const envPrefix = "RELAYCHAT"

// ServerConfig defines how the relay backend should run. Every field can be
// set as RELAYCHAT_<NAME> or, failing that, plain <NAME>.
type ServerConfig struct {
	Addr             string        `envconfig:"ADDR"`
	Port             string        `envconfig:"PORT" default:"10000"`
	Path             string        `envconfig:"WS_PATH" default:"/socket"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"INFO"`
	StoreDriver      string        `envconfig:"STORE_DRIVER" default:"sqlite"`
	DBPath           string        `envconfig:"DB_PATH"`
	DatabaseURL      string        `envconfig:"DATABASE_URL"`
	BlobDriver       string        `envconfig:"BLOB_DRIVER" default:"badger"`
	BlobPath         string        `envconfig:"BLOB_PATH"`
	PublicBaseURL    string        `envconfig:"PUBLIC_BASE_URL"`
	HistoryLimit     int           `envconfig:"HISTORY_LIMIT" default:"100"`
	ImageMaxBytes    int64         `envconfig:"IMAGE_MAX_BYTES" default:"5242880"`
	VideoMaxBytes    int64         `envconfig:"VIDEO_MAX_BYTES" default:"31457280"`
	PersistTimeout   time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s"`
	UploadTimeout    time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"30s"`
	Durability       string        `envconfig:"DURABILITY" default:"best-effort"`
	UploadRateLimit  int           `envconfig:"UPLOAD_RATE_LIMIT" default:"20"`
	UploadRateWindow time.Duration `envconfig:"UPLOAD_RATE_WINDOW" default:"1m"`
	SendBuffer       int           `envconfig:"SEND_BUFFER" default:"256"`
	TrustProxy       bool          `envconfig:"TRUST_PROXY" default:"false"`
}

var (
	storeDrivers = []string{"sqlite", "postgres"}
	blobDrivers  = []string{"badger", "disk"}
)

// LoadServerConfig reads an optional .env file, then the environment.
func LoadServerConfig() (ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ServerConfig{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg ServerConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return ServerConfig{}, err
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

func (cfg ServerConfig) withDefaults() ServerConfig {
	cfg.Path = NormalizeJoinPath(cfg.Path)
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.BlobPath == "" {
		cfg.BlobPath = filepath.Join(DefaultDataDir(), "media")
	}
	return cfg
}

// Validate rejects settings the server cannot start with.
func (cfg ServerConfig) Validate() error {
	if !lo.Contains(storeDrivers, cfg.StoreDriver) {
		return fmt.Errorf("STORE_DRIVER must be one of %s, got %q", strings.Join(storeDrivers, ", "), cfg.StoreDriver)
	}
	if !lo.Contains(blobDrivers, cfg.BlobDriver) {
		return fmt.Errorf("BLOB_DRIVER must be one of %s, got %q", strings.Join(blobDrivers, ", "), cfg.BlobDriver)
	}
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required with STORE_DRIVER=postgres")
	}
	if _, err := intrnl.ParseDurability(cfg.Durability); err != nil {
		return err
	}
	if cfg.ImageMaxBytes <= 0 || cfg.VideoMaxBytes <= 0 {
		return errors.New("media ceilings must be positive")
	}
	return nil
}

// ListenAddr prefers an explicit ADDR over PORT.
func (cfg ServerConfig) ListenAddr() string {
	if cfg.Addr != "" {
		return cfg.Addr
	}
	return ":" + cfg.Port
}

// DefaultDataDir returns the per-user directory for the bundled SQLite file
// and local media.
func DefaultDataDir() string {
	if env := os.Getenv("RELAYCHAT_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "relaychat")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Relaychat")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Relaychat")
		}
		return filepath.Join(home, ".local", "share", "relaychat")
	}
	return filepath.Join(".", ".relaychat")
}

func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "relaychat.db")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and falls
// back to /socket when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/socket"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
