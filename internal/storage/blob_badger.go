package storage

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"

	intrnl "relaychat/internal"
)

const (
	blobDataPrefix = "blob:data:"
	blobTypePrefix = "blob:type:"
)

// OpenBadger opens (or creates) the badger directory used for media blobs.
// An empty path opens an in-memory instance; the server always passes a
// directory, tests rely on the in-memory form.
func OpenBadger(path string, log *slog.Logger) (*badger.DB, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, err
	}
	log.Info("blob store opened", "driver", "badger", "path", path)
	return db, nil
}

// BadgerBlobStore keeps media objects inside badger. Objects are served back
// by the relay itself under baseURL.
type BadgerBlobStore struct {
	db      *badger.DB
	baseURL string
}

func NewBadgerBlobStore(db *badger.DB, baseURL string) *BadgerBlobStore {
	return &BadgerBlobStore{db: db, baseURL: baseURL}
}

// Put writes the bytes and their content type in one transaction, so a reader
// never sees half an object.
func (b *BadgerBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(blobDataPrefix+key), data); err != nil {
			return err
		}
		return txn.Set([]byte(blobTypePrefix+key), []byte(contentType))
	})
	if err != nil {
		return "", err
	}
	return objectURL(b.baseURL, key), nil
}

func (b *BadgerBlobStore) Open(ctx context.Context, key string) (*intrnl.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob := &intrnl.Blob{Key: key}
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobDataPrefix + key))
		if err != nil {
			return err
		}
		if blob.Data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get([]byte(blobTypePrefix + key))
		if err != nil {
			return err
		}
		contentType, err := item.ValueCopy(nil)
		blob.ContentType = string(contentType)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, intrnl.ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// objectURL joins baseURL and key, escaping each key segment.
func objectURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(segments, "/")
}
