package wake

import (
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"sync"
	"time"
)

var ErrUnavailable = errors.New("speech recognition unavailable")

// Result is one recognition hypothesis. Text is the accumulated text of
// the current segment; Final marks the segment boundary.
type Result struct {
	Text  string
	Final bool
}

// Recognizer turns ambient audio into a stream of results. The channel
// is closed when the stream ends, either on its own or because ctx was
// cancelled; the underlying device must be released by then.
type Recognizer interface {
	Listen(ctx context.Context) (<-chan Result, error)
}

// Monitor listens for the wake phrase and calls onWake once per match,
// staying quiet until the next segment boundary. It restarts the
// recognizer whenever the stream ends while enabled.
type Monitor struct {
	rec          Recognizer
	pattern      *regexp.Regexp
	onWake       func()
	restartDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	missingOnce sync.Once
}

// NewMonitor accepts a nil recognizer; the monitor then never fires.
func NewMonitor(rec Recognizer, pattern *regexp.Regexp, onWake func(), restartDelay time.Duration) *Monitor {
	return &Monitor{
		rec:          rec,
		pattern:      pattern,
		onWake:       onWake,
		restartDelay: restartDelay,
	}
}

func (m *Monitor) Enable(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	if m.rec == nil {
		m.missing()
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	go m.run(ctx, done)
	log.Debug("Wake monitor enabled")
}

// Disable stops listening and waits until the recognizer let go of the
// microphone.
func (m *Monitor) Disable() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Debug("Wake monitor disabled")
}

func (m *Monitor) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) missing() {
	m.missingOnce.Do(func() {
		log.Warn("Speech recognition not available, wake phrase disabled")
	})
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		results, err := m.rec.Listen(ctx)
		switch {
		case ctx.Err() != nil:
			if err == nil {
				for range results {
				}
			}
			return
		case errors.Is(err, ErrUnavailable):
			m.missing()
			return
		case err != nil:
			log.Warn("Wake listening failed", "err", err)
		default:
			m.consume(results)
			if ctx.Err() != nil {
				return
			}
			log.Debug("Wake stream ended, restarting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.restartDelay):
		}
	}
}

func (m *Monitor) consume(results <-chan Result) {
	fired := false
	for r := range results {
		log.Debug("Heard", "text", r.Text, "final", r.Final)

		if !fired && m.pattern.MatchString(r.Text) {
			fired = true
			log.Info("Wake phrase matched", "text", r.Text)
			m.onWake()
		}
		if r.Final {
			fired = false
		}
	}
}
