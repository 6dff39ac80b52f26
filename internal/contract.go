package internal

import "context"

//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=mock_contract_test.go -package=internal

// Conn is one live duplex channel as seen by the registry.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// MessageLog is the durable, append-only chat history.
type MessageLog interface {
	// Append persists msg and fills in its store-assigned ID.
	Append(ctx context.Context, msg *Message) error
	// QueryRecent returns up to limit messages, oldest first.
	QueryRecent(ctx context.Context, limit int) ([]Message, error)
}

// BlobStore writes media objects and returns the URL they resolve at.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Blob is a stored media object read back for serving.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
}

// BlobReader is implemented by blob stores that can serve their own objects.
type BlobReader interface {
	Open(ctx context.Context, key string) (*Blob, error)
}
