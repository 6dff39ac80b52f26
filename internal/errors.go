package internal

import (
	"errors"
	"fmt"
)

// Validation reasons surfaced to clients.
const (
	ReasonMissing     = "missing"
	ReasonTooLarge    = "tooLarge"
	ReasonInvalidName = "invalidName"
	ReasonMalformed   = "malformed"
)

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSlowConsumer      = errors.New("send queue full")
	ErrAlreadyRegistered = errors.New("connection already registered")
)

// ValidationError reports input the caller can fix. Reason is one of the
// Reason* constants, Detail is a human readable explanation.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
}

// PersistenceError wraps a durable log failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UploadError wraps a blob store write failure.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func isValidation(err error, reason string) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Reason == reason
}
