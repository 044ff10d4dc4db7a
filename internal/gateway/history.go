package gateway

import "sync"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// History keeps the most recent limit messages, evicting the oldest first.
type History struct {
	mu    sync.Mutex
	limit int
	msgs  []Message
}

func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit}
}

func (h *History) Append(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.msgs = append(h.msgs, msgs...)
	if over := len(h.msgs) - h.limit; over > 0 {
		h.msgs = append([]Message(nil), h.msgs[over:]...)
	}
}

func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.msgs...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
