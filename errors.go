package client

import "errors"

// Error kinds from §7. CONNECTION_LOST and PROTOCOL_ERROR surface from
// internal/wire as wire.ErrConnectionLost; this package adds the two
// that only make sense at the client façade.
var (
	// ErrTimeout is returned when a Wait (or an operation that waits
	// internally, like Get) exceeds its deadline. Per §5, a client
	// that observes this must treat its request socket as poisoned:
	// there may still be an in-flight STOP_WAITING byte en route that
	// would desynchronize the next request's framing.
	ErrTimeout = errors.New("client: wait timed out")

	// ErrClientClosed is returned by any operation issued after Close.
	ErrClientClosed = errors.New("client: closed")
)
