package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-1", r.URL.Query().Get("clientId"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?clientId=sess-1"
}

func TestWebsocketStreamReceive(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frameNodeStart))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x89, 0x50, 0x4e, 0x47})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(frameDone))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"))
	})

	s, err := NewWebsocketDialer(time.Second).Dial(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	got, err := s.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, frameNodeStart, string(got))

	got, err = s.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, frameDone, string(got), "binary frames are skipped")

	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestWebsocketStreamReceiveHonorsContext(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer close(release)

	s, err := NewWebsocketDialer(time.Second).Dial(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = s.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebsocketDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebsocketDialer(time.Second).Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWebsocketStreamCloseIsIdempotent(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	s, err := NewWebsocketDialer(0).Dial(context.Background(), url)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
