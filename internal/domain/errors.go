package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidInput = errors.New("invalid input")

	// Chat taxonomy. The first three are rejected synchronously, before any
	// store interaction, and always surfaced to the caller.
	ErrInvalidParticipants = errors.New("invalid participants")
	ErrEmptyMessage        = errors.New("message text is empty")
	ErrRoomNotFound        = errors.New("room not found")
	ErrForbidden           = errors.New("forbidden")

	// ErrStoreUnavailable marks transient record-store failures. Subscribers
	// retry with backoff; senders surface it so the client can retry.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
