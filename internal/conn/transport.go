package conn

import (
	"context"
	"errors"
)

// ErrBenignClose marks a transport close that is expected rather than
// exceptional, e.g. the mobile OS suspending the socket while backgrounded
// or the peer shutting down gracefully. It maps to the disconnected state
// and does not burn reconnection attempts.
var ErrBenignClose = errors.New("conn: transport closed normally")

// Conn is one live bidirectional message channel.
type Conn interface {
	// Send writes one frame. Safe for concurrent use.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for one frame. Single reader only.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens connections to the authoritative peer. The production
// binding speaks websocket; tests and the ad-hoc peer-to-peer variant plug in
// their own.
type Transport interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
