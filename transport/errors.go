package transport

import "errors"

// Every failure a caller of Request can see maps to one of these, possibly wrapped.
var (
	// ErrInvalidAddress is returned by NewChannel for anything that is not host:port.
	ErrInvalidAddress = errors.New("transport: invalid address")
	// ErrQueueFull means the submission queue is saturated. Nothing was sent.
	ErrQueueFull = errors.New("transport: request queue is full")
	// ErrUnavailable means no connection could be established. Nothing was sent.
	ErrUnavailable = errors.New("transport: remote unavailable")
	// ErrTimeout means the write acknowledgement or the response did not arrive in time.
	ErrTimeout = errors.New("transport: request timed out")
	// ErrConnectionClosed means the connection carrying the request went away before a reply.
	ErrConnectionClosed = errors.New("transport: connection closed")
	// ErrDuplicateOpaque means a request with the same opaque is still awaiting its reply. Nothing was sent.
	ErrDuplicateOpaque = errors.New("transport: opaque already in flight")
	// ErrChannelClosed means Close was called on the channel.
	ErrChannelClosed = errors.New("transport: channel closed")
)
