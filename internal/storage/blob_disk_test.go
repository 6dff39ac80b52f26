package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	intrnl "relaychat/internal"
)

func TestDiskBlobRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskBlobStore(root, "http://localhost:10000/media")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Put(ctx, "images/1700000000000_cat.png", "image/png", []byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:10000/media/images/1700000000000_cat.png", url)

	_, err = os.Stat(filepath.Join(root, "images", "1700000000000_cat.png"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, "images/1700000000000_cat.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", blob.ContentType)
}

func TestDiskBlobRejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", "text/plain", []byte("x"))
	require.Error(t, err)

	_, err = store.Open(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, intrnl.ErrBlobNotFound)
}

func TestDiskBlobMissing(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "videos/none.mp4")
	require.ErrorIs(t, err, intrnl.ErrBlobNotFound)
}

// The declared type is served back even when neither the name nor the bytes
// would reveal it.
func TestDiskBlobKeepsDeclaredContentType(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "videos/1_clip", "video/mp4", []byte("plain looking bytes"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, "videos/1_clip")
	require.NoError(t, err)
	require.Equal(t, "video/mp4", blob.ContentType)
	require.Equal(t, []byte("plain looking bytes"), blob.Data)
}

func TestDiskBlobSniffsWhenTypeUnrecorded(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskBlobStore(root, "http://localhost/media")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "old.png"), []byte("\x89PNG\r\n\x1a\n"), 0o644))

	blob, err := store.Open(context.Background(), "images/old.png")
	require.NoError(t, err)
	require.Equal(t, "image/png", blob.ContentType)
}

func TestDiskBlobRejectsMetadataKeys(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), ".meta/videos/1_clip", "text/html", []byte("x"))
	require.Error(t, err)
}
