package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	intrnl "relaychat/internal"
	"relaychat/internal/storage"
)

// messageStore is a message log the server owns and must migrate and close.
type messageStore interface {
	intrnl.MessageLog
	Migrate(ctx context.Context) error
	Close() error
}

// blobBackend is a blob store that also serves its objects back.
type blobBackend interface {
	intrnl.BlobStore
	intrnl.BlobReader
}

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr    string
	server  *http.Server
	api     *intrnl.Server
	closers []func() error
	log     *slog.Logger
	done    chan struct{}
	err     error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
// Hijacked websocket connections are closed as well.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	err := h.server.Shutdown(ctx)
	h.api.Shutdown()
	return err
}

// Wait blocks until the server exits and its stores are closed.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the message log and blob store, wires the relay and starts
// serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, log *slog.Logger) (*ServerHandle, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	durability, _ := intrnl.ParseDurability(cfg.Durability)

	handle := &ServerHandle{log: log, done: make(chan struct{})}

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	handle.addr = listener.Addr().String()
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = mediaBaseURL(handle.addr)
	}

	messages, err := openMessageStore(ctx, cfg, log)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	handle.closers = append(handle.closers, messages.Close)

	blobs, closeBlobs, err := openBlobStore(cfg, log)
	if err != nil {
		_ = listener.Close()
		handle.close()
		return nil, err
	}
	if closeBlobs != nil {
		handle.closers = append(handle.closers, closeBlobs)
	}

	// connections outlive the request that upgraded them
	serverCtx, cancel := context.WithCancel(context.Background())
	handle.closers = append(handle.closers, func() error {
		cancel()
		return nil
	})

	metrics := intrnl.NewMetrics()
	registry := intrnl.NewRegistry(log)
	relay := intrnl.NewRelay(messages, registry, metrics, log, intrnl.RelayOptions{
		Durability:     durability,
		PersistTimeout: cfg.PersistTimeout,
	})
	ingestor := intrnl.NewIngestor(blobs, log, intrnl.IngestOptions{
		Ceilings: intrnl.Ceilings{
			intrnl.MediaImage: cfg.ImageMaxBytes,
			intrnl.MediaVideo: cfg.VideoMaxBytes,
		},
		UploadTimeout: cfg.UploadTimeout,
	})
	handle.api = intrnl.NewServer(serverCtx, registry, relay, ingestor, blobs, metrics, log, intrnl.ServerOptions{
		HistoryLimit:     cfg.HistoryLimit,
		SendBuffer:       cfg.SendBuffer,
		UploadRateLimit:  cfg.UploadRateLimit,
		UploadRateWindow: cfg.UploadRateWindow,
		TrustProxy:       cfg.TrustProxy,
	})

	handle.server = &http.Server{
		Handler:           NewRouter(cfg.Path, handle.api),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server shutdown error", "error", err)
		}
	}()

	go handle.serve(listener)

	log.Info("relay configured",
		"store", cfg.StoreDriver, "blobs", cfg.BlobDriver,
		"durability", durability, "media_base_url", cfg.PublicBaseURL)
	return handle, nil
}

// NewRouter maps every public route of the relay.
func NewRouter(wsPath string, server *intrnl.Server) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", server.HandleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc(NormalizeJoinPath(wsPath), server.ServeWS).Methods(http.MethodGet)
	router.HandleFunc("/messages", server.HandleMessages).Methods(http.MethodGet)
	router.HandleFunc("/upload/image", server.HandleUpload(intrnl.MediaImage)).Methods(http.MethodPost)
	router.HandleFunc("/upload/video", server.HandleUpload(intrnl.MediaVideo)).Methods(http.MethodPost)
	router.HandleFunc("/media/{key:.+}", server.HandleMedia).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", server.MetricsHandler()).Methods(http.MethodGet)
	return intrnl.CORS(router)
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.api.Shutdown()
	h.close()
	h.err = err
}

// close releases stores in reverse order of opening.
func (h *ServerHandle) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			h.log.Error("close error", "error", err)
		}
	}
	h.closers = nil
}

func openMessageStore(ctx context.Context, cfg ServerConfig, log *slog.Logger) (messageStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var store messageStore
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := storage.ConnectPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store = storage.NewPostgresLog(pool)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		sqlite, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		log.Info("database opened", "driver", "sqlite", "path", cfg.DBPath)
		store = sqlite
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func openBlobStore(cfg ServerConfig, log *slog.Logger) (blobBackend, func() error, error) {
	switch cfg.BlobDriver {
	case "disk":
		store, err := storage.NewDiskBlobStore(cfg.BlobPath, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("blob store opened", "driver", "disk", "path", cfg.BlobPath)
		return store, nil, nil
	default:
		db, err := storage.OpenBadger(cfg.BlobPath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		return storage.NewBadgerBlobStore(db, cfg.PublicBaseURL), db.Close, nil
	}
}

// mediaBaseURL points media URLs at this relay's own /media route.
func mediaBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/media"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/media"
}
