package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	intrnl "relaychat/internal"
)

func newBadgerBlobStore(t *testing.T) *BadgerBlobStore {
	t.Helper()
	db, err := OpenBadger("", logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerBlobStore(db, "http://localhost:10000/media/")
}

func TestBadgerBlobRoundTrip(t *testing.T) {
	store := newBadgerBlobStore(t)
	ctx := context.Background()

	url, err := store.Put(ctx, "videos/1712345678901_clip.mp4", "video/mp4", []byte("frames"))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:10000/media/videos/1712345678901_clip.mp4", url)

	blob, err := store.Open(ctx, "videos/1712345678901_clip.mp4")
	require.NoError(t, err)
	require.Equal(t, "video/mp4", blob.ContentType)
	require.Equal(t, []byte("frames"), blob.Data)
}

func TestBadgerBlobMissing(t *testing.T) {
	store := newBadgerBlobStore(t)

	_, err := store.Open(context.Background(), "images/none.png")
	require.True(t, errors.Is(err, intrnl.ErrBlobNotFound))
}

func TestBadgerBlobHonoursCancelledContext(t *testing.T) {
	store := newBadgerBlobStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "images/1_a.png", "image/png", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestObjectURLEscapesSegments(t *testing.T) {
	require.Equal(t,
		"https://cdn.test/media/images/1_my%20cat.png",
		objectURL("https://cdn.test/media", "images/1_my cat.png"))
}
