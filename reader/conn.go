package reader

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the minimal surface the transport needs from a live socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a socket to the event stream. The production implementation
// wraps the gorilla dialer; tests substitute an in-process fake.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

// NewWebsocketDialer returns the gorilla-backed production dialer.
func NewWebsocketDialer() Dialer {
	return wsDialer{}
}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
