package connection

import "context"

// Conn is one live link to the push backend.
type Conn interface {
	// Read blocks until a frame arrives, the link fails, or ctx ends.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Transport opens links. Authentication failures must be returned as
// errors of kind authentication so they are not retried.
type Transport interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// ActivityNotifier is implemented by links that observe keepalive traffic
// that never surfaces through Read, such as websocket pongs.
type ActivityNotifier interface {
	SetActivityHandler(fn func())
}
