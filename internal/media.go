package internal

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	KB = 1024
	MB = KB * KB
)

// MediaClass is the kind of blob an upload carries.
type MediaClass string

const (
	MediaImage MediaClass = "image"
	MediaVideo MediaClass = "video"
)

// Prefix is the blob namespace of the class, e.g. "images".
func (c MediaClass) Prefix() string { return string(c) + "s" }

// Label is the capitalised class name used in client-facing errors.
func (c MediaClass) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Ceilings holds the inclusive byte limit of every media class.
type Ceilings map[MediaClass]int64

func DefaultCeilings() Ceilings {
	return Ceilings{
		MediaImage: 5 * MB,
		MediaVideo: 30 * MB,
	}
}

type IngestOptions struct {
	Ceilings      Ceilings
	UploadTimeout time.Duration
	Now           func() time.Time
}

// Ingestor validates uploads and writes them through the blob store.
type Ingestor struct {
	store BlobStore
	opts  IngestOptions
	log   *slog.Logger
}

func NewIngestor(store BlobStore, log *slog.Logger, opts IngestOptions) *Ingestor {
	if opts.Ceilings == nil {
		opts.Ceilings = DefaultCeilings()
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ingestor{store: store, opts: opts, log: log}
}

// Ceiling returns the byte limit for class, 0 when the class is unknown.
func (in *Ingestor) Ceiling(class MediaClass) int64 {
	return in.opts.Ceilings[class]
}

// Ingest stores data under "{class}s/{millis}_{name}" and returns its URL.
// Size is checked before any store I/O.
func (in *Ingestor) Ingest(ctx context.Context, class MediaClass, data []byte, originalName, contentType string) (string, error) {
	ceiling, ok := in.opts.Ceilings[class]
	if !ok {
		return "", &ValidationError{Reason: ReasonMalformed, Detail: fmt.Sprintf("unknown media class %q", class)}
	}
	if len(data) == 0 {
		return "", &ValidationError{Reason: ReasonMissing, Detail: "No " + string(class)}
	}
	if int64(len(data)) > ceiling {
		return "", &ValidationError{Reason: ReasonTooLarge, Detail: class.Label() + " too large"}
	}
	name := sanitizeFilename(originalName)
	if name == "" {
		return "", &ValidationError{Reason: ReasonInvalidName, Detail: "file name is empty"}
	}

	key := fmt.Sprintf("%s/%d_%s", class.Prefix(), in.opts.Now().UnixMilli(), name)
	contentType = resolveContentType(contentType, data)

	ctx, cancel := context.WithTimeout(ctx, in.opts.UploadTimeout)
	defer cancel()
	url, err := in.store.Put(ctx, key, contentType, data)
	if err != nil {
		return "", &UploadError{Key: key, Err: err}
	}
	in.log.Info("media stored", "key", key, "size", len(data), "content_type", contentType)
	return url, nil
}

// sanitizeFilename keeps only the base name and strips separators and NUL
// bytes; an unusable name comes back empty.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

func resolveContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}
