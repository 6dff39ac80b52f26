package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	intrnl "relaychat/internal"
)

// metaDir holds one content-type file per key, mirroring the data layout.
const metaDir = ".meta"

// DiskBlobStore writes media objects below a root directory, one file per key.
type DiskBlobStore struct {
	root    string
	baseURL string
}

func NewDiskBlobStore(root, baseURL string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &DiskBlobStore{root: abs, baseURL: baseURL}, nil
}

// Put writes the content type, then the bytes, each through a temporary file
// renamed into place. A key is visible only once both are complete.
func (d *DiskBlobStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, meta, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(meta, []byte(contentType)); err != nil {
		return "", fmt.Errorf("write content type: %w", err)
	}
	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	return objectURL(d.baseURL, key), nil
}

func (d *DiskBlobStore) Open(_ context.Context, key string) (*intrnl.Blob, error) {
	target, meta, err := d.resolve(key)
	if err != nil {
		return nil, intrnl.ErrBlobNotFound
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, intrnl.ErrBlobNotFound
		}
		return nil, err
	}
	contentType := ""
	if raw, err := os.ReadFile(meta); err == nil {
		contentType = strings.TrimSpace(string(raw))
	}
	// objects written before the type was recorded
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	return &intrnl.Blob{Key: key, ContentType: contentType, Data: data}, nil
}

// resolve maps key to its data and metadata paths and refuses anything
// escaping the root or reaching into the metadata tree.
func (d *DiskBlobStore) resolve(key string) (string, string, error) {
	target := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(target, d.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("key %q escapes blob root", key)
	}
	rel, err := filepath.Rel(d.root, target)
	if err != nil {
		return "", "", err
	}
	if rel == metaDir || strings.HasPrefix(rel, metaDir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("key %q is reserved", key)
	}
	return target, filepath.Join(d.root, metaDir, rel), nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
