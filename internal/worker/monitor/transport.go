package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrDisconnected is returned by Stream.Receive when the connection is lost.
var ErrDisconnected = stderrors.New("stream disconnected")

// Stream is an open notification stream.
type Stream interface {
	// Receive blocks until the next text frame arrives, ctx is done or the
	// connection drops.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens notification streams.
type Dialer interface {
	Dial(ctx context.Context, url string) (Stream, error)
}

// WebsocketDialer is the production Dialer.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a Dialer whose handshakes give up after
// handshakeTimeout (10s when zero).
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   16 << 10,
		},
	}
}

// Dial opens a websocket to url.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Stream, error) {
	conn, res, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("websocket handshake failed with http %d: %w", res.StatusCode, err)
		}
		return nil, err
	}
	return &websocketStream{conn: conn}, nil
}

type websocketStream struct {
	conn *websocket.Conn
	once sync.Once
	err  error
}

func (s *websocketStream) Receive(ctx context.Context) ([]byte, error) {
	// Unblock ReadMessage when ctx ends. The conn is unusable afterwards,
	// which is fine: a done ctx ends the wait.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		// Binary frames carry progress previews.
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (s *websocketStream) Close() error {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.err = s.conn.Close()
	})
	return s.err
}
