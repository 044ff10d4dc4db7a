package dash

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestNewClientGetsSnapshot(t *testing.T) {
	h := NewHub(2)
	h.Line("KITT: one")
	h.Line("KITT: two")
	h.Line("You: three")
	h.State("listening", "turn-1")

	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dial(t, srv)

	assert.Equal(t, Event{Kind: "state", State: "listening", Turn: "turn-1"}, next(t, conn))
	assert.Equal(t, Event{Kind: "log", Line: "KITT: two"}, next(t, conn))
	assert.Equal(t, Event{Kind: "log", Line: "You: three"}, next(t, conn))
}

func TestBroadcast(t *testing.T) {
	h := NewHub(10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	h.Levels([3]float64{0.3, 0.6, 0.3})
	h.State("speaking", "t")

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, Event{Kind: "levels", Levels: []float64{0.3, 0.6, 0.3}}, next(t, conn))
		assert.Equal(t, Event{Kind: "state", State: "speaking", Turn: "t"}, next(t, conn))
	}
}

func TestClientLeaves(t *testing.T) {
	h := NewHub(10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)

	h.Line("nobody listening")
}

func TestLongSnapshotDoesNotBlock(t *testing.T) {
	h := NewHub(40)
	for i := range 40 {
		h.Line(fmt.Sprintf("KITT: line %d", i))
	}
	h.State("idle", "")

	srv := httptest.NewServer(h)
	defer srv.Close()
	conn := dial(t, srv)

	assert.Equal(t, "state", next(t, conn).Kind)
	for i := range 40 {
		assert.Equal(t, fmt.Sprintf("KITT: line %d", i), next(t, conn).Line)
	}

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	h.Line("KITT: live")
	assert.Equal(t, "KITT: live", next(t, conn).Line)
}
