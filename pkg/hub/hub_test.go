package hub

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

// serve runs h behind a gorilla websocket endpoint.
func serve(t *testing.T, h *Hub, initial ...Message) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn, initial...)
		if client == nil {
			conn.Close()
			return
		}
		client.Run()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	return h, cancel
}

func TestHub_BroadcastJSONAndBinary(t *testing.T) {
	h, _ := startHub(t)
	url := serve(t, h)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"status": "ok"}))
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for _, c := range []*websocket.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))

		typ, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, typ)
		assert.JSONEq(t, `{"status":"ok"}`, string(data))

		typ, data, err = c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, typ)
		assert.Equal(t, []byte{0xff, 0xd8}, data)
	}
}

func TestHub_InitialMessages(t *testing.T) {
	h, _ := startHub(t)
	url := serve(t, h, NewJSONMessage([]byte(`{"hello":1}`)))

	c := dial(t, url)
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":1}`, string(data))
}

func TestHub_Disconnect(t *testing.T) {
	h, _ := startHub(t)
	url := serve(t, h)

	c := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, time.Millisecond)
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)
	url := serve(t, h)

	c := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, h.IsRunning())
	assert.Zero(t, h.ClientCount())

	// The client receives a close frame.
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)

	// Registration after shutdown does not block.
	assert.Nil(t, NewClient(h, nil))
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil)
	for i := 0; i < 300; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
	}
	assert.Equal(t, uint64(300-256), h.Dropped())
}
