package dash

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	clientSend = 32
)

// Event is one frame on the display feed.
type Event struct {
	Kind   string    `json:"kind"` // state, levels, log
	State  string    `json:"state,omitempty"`
	Turn   string    `json:"turn,omitempty"`
	Levels []float64 `json:"levels,omitempty"`
	Line   string    `json:"line,omitempty"`
}

type client struct {
	send chan []byte
}

// Hub fans display events out to every connected scanner. A client that
// cannot keep up is dropped rather than slowing the others.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	state   *Event
	lines   []string
	limit   int
}

func NewHub(lines int) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		limit:   lines,
	}
}

func (h *Hub) State(state, turn string) {
	ev := Event{Kind: "state", State: state, Turn: turn}
	h.mu.Lock()
	h.state = &ev
	h.mu.Unlock()
	h.broadcast(ev)
}

func (h *Hub) Levels(l [3]float64) {
	h.broadcast(Event{Kind: "levels", Levels: l[:]})
}

func (h *Hub) Line(line string) {
	h.mu.Lock()
	h.lines = append(h.lines, line)
	if over := len(h.lines) - h.limit; over > 0 {
		h.lines = append(h.lines[:0:0], h.lines[over:]...)
	}
	h.mu.Unlock()
	h.broadcast(Event{Kind: "log", Line: line})
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error("Failed to encode display event", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warn("Display client too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// join registers a client primed with what a new client sees first:
// the current state and the recent transcript. Its buffer holds the
// whole snapshot plus room for live events.
func (h *Hub) join() *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	evs := make([]Event, 0, len(h.lines)+1)
	if h.state != nil {
		evs = append(evs, *h.state)
	}
	for _, l := range h.lines {
		evs = append(evs, Event{Kind: "log", Line: l})
	}

	c := &client{send: make(chan []byte, len(evs)+clientSend)}
	for _, ev := range evs {
		if data, err := json.Marshal(ev); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Display upgrade failed", "err", err)
		return
	}

	c := h.join()
	log.Debug("Display client connected", "remote", r.RemoteAddr)

	go h.write(conn, c)
	h.read(conn, c)
}

// read drains the connection so close frames are handled; clients send
// nothing meaningful.
func (h *Hub) read(conn *websocket.Conn, c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, c *client) {
	defer conn.Close()

	for data := range c.send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("Display write failed", "err", err)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Serve runs the display feed on addr at /ws until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info("Display feed listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
