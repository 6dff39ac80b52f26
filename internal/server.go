package internal

import (
	"context"
	"log/slog"
	"time"
)

// ServerOptions tunes the HTTP and socket surface.
type ServerOptions struct {
	HistoryLimit     int
	SendBuffer       int
	UploadRateLimit  int
	UploadRateWindow time.Duration
	// TrustProxy takes the client address from X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustProxy bool
}

// Server exposes the relay, history and upload pipeline over HTTP and
// websockets.
type Server struct {
	ctx           context.Context
	registry      *Registry
	relay         *Relay
	ingestor      *Ingestor
	blobs         BlobReader
	metrics       *Metrics
	uploadLimiter *RateLimiter
	log           *slog.Logger
	opts          ServerOptions
}

// NewServer wires the core components. blobs may be nil when the blob store
// serves its own URLs.
func NewServer(ctx context.Context, registry *Registry, relay *Relay, ingestor *Ingestor, blobs BlobReader,
	metrics *Metrics, log *slog.Logger, opts ServerOptions) *Server {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.UploadRateLimit <= 0 {
		opts.UploadRateLimit = 10
	}
	if opts.UploadRateWindow <= 0 {
		opts.UploadRateWindow = time.Minute
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		ctx:           ctx,
		registry:      registry,
		relay:         relay,
		ingestor:      ingestor,
		blobs:         blobs,
		metrics:       metrics,
		uploadLimiter: NewRateLimiter(opts.UploadRateLimit, opts.UploadRateWindow),
		log:           log,
		opts:          opts,
	}
}

// Shutdown closes every live connection.
func (s *Server) Shutdown() {
	s.registry.CloseAll()
}
