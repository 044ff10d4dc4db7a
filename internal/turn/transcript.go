package turn

import "sync"

// Transcript keeps the most recent visible lines, both what the user said
// and what KITT answered.
type Transcript struct {
	mu     sync.Mutex
	lines  []string
	limit  int
	onLine func(string)
}

func NewTranscript(limit int, onLine func(string)) *Transcript {
	if limit < 1 {
		limit = 1
	}
	return &Transcript{limit: limit, onLine: onLine}
}

func (t *Transcript) Add(line string) {
	t.mu.Lock()
	t.lines = append(t.lines, line)
	if over := len(t.lines) - t.limit; over > 0 {
		t.lines = append(t.lines[:0:0], t.lines[over:]...)
	}
	t.mu.Unlock()

	if t.onLine != nil {
		t.onLine(line)
	}
}

func (t *Transcript) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
