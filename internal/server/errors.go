package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed        = errors.New("server is closed")
	ErrMaxClientsReached   = errors.New("maximum clients reached")
	ErrClientNotFound      = errors.New("client not found")
	ErrUnhandledMessage    = errors.New("no handler for message")
	ErrHandshake           = errors.New("handshake failed")
	ErrInvalidPosition     = errors.New("invalid position")
	ErrInvalidViewDistance = errors.New("invalid view distance")
)
