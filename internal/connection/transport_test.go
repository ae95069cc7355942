package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsync/fleetsync/pkg/core"
	"github.com/fleetsync/fleetsync/pkg/wire"
)

// newWSServer pushes the given frames to every client and forwards the
// first binary message it receives on the returned channel.
func newWSServer(t *testing.T, frames [][]byte) (string, <-chan []byte) {
	t.Helper()
	upgrader := ws.Upgrader{}
	fromClient := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := conn.WriteMessage(ws.BinaryMessage, f); err != nil {
				return
			}
		}

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == ws.BinaryMessage {
				fromClient <- data
			}
		}
	}))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://"), fromClient
}

func TestWebSocketDialer_StreamAcrossMessages(t *testing.T) {
	state, err := wire.Marshal(core.VehicleState{ID: 4})
	require.NoError(t, err)
	status, err := wire.Marshal(core.SessionStatus{State: core.SessionPaused})
	require.NoError(t, err)

	// one envelope split over two frames
	frames := [][]byte{state[:3], state[3:], status}
	addr, _ := newWSServer(t, frames)

	m, err := New(Config{Address: addr}, WebSocketDialer{Path: "/"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	c := newCollector()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx, c.handle))

	msgs := c.wait(t, 2)
	st, ok := msgs[0].(*core.VehicleState)
	require.True(t, ok, "got %T", msgs[0])
	assert.Equal(t, int64(4), st.ID)
	assert.IsType(t, &core.SessionStatus{}, msgs[1])
}

func TestWebSocketDialer_SendIsOneBinaryMessage(t *testing.T) {
	addr, fromClient := newWSServer(t, nil)

	m, err := New(Config{Address: addr}, WebSocketDialer{Path: "/"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Connect(context.Background(), func(any) {}))

	m.Send(&core.VehicleActionCommand{CommandID: 1, VehicleID: 77})

	select {
	case data := <-fromClient:
		msg, err := wire.Unmarshal(data)
		require.NoError(t, err)
		cmd, ok := msg.(*core.VehicleActionCommand)
		require.True(t, ok)
		assert.Equal(t, int64(77), cmd.VehicleID)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive command")
	}
}

func TestTCPDialer_Refused(t *testing.T) {
	// grab a free port and close it so nothing is listening
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	_, err := TCPDialer{Timeout: time.Second}.Dial(context.Background(), addr)
	assert.Error(t, err)
}
