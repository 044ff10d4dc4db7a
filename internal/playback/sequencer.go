package playback

import (
	"context"
	log "log/slog"
	"sync"
	"sync/atomic"
)

type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

// Sequencer plays clips strictly one after another. A clip leaves the
// queue only once its playback returned; a clip that fails to play is
// logged and skipped so the queue keeps moving.
type Sequencer struct {
	player     Player
	ducker     Ducker
	onSpeaking func(bool)

	playMu sync.Mutex // one drain at a time

	mu    sync.Mutex
	queue []Clip

	speaking atomic.Bool
}

type Option func(*Sequencer)

func WithDucker(d Ducker) Option {
	return func(s *Sequencer) { s.ducker = d }
}

// WithSpeakingHook is called on every speaking on/off edge.
func WithSpeakingHook(f func(bool)) Option {
	return func(s *Sequencer) { s.onSpeaking = f }
}

func NewSequencer(p Player, opts ...Option) *Sequencer {
	s := &Sequencer{player: p}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sequencer) Speaking() bool { return s.speaking.Load() }

func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Play enqueues clips and returns once every one of them has finished.
// Concurrent callers are served in the order they acquire the queue.
func (s *Sequencer) Play(ctx context.Context, clips ...Clip) {
	if len(clips) == 0 {
		return
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()

	s.mu.Lock()
	s.queue = append(s.queue, clips...)
	s.mu.Unlock()

	s.setSpeaking(ctx, true)
	defer s.setSpeaking(context.WithoutCancel(ctx), false)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		clip := s.queue[0]
		s.mu.Unlock()

		if err := s.player.Play(ctx, clip); err != nil {
			log.Warn("Clip did not play", "text", clip.Text, "err", err)
		}

		s.mu.Lock()
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.mu.Lock()
			s.queue = nil
			s.mu.Unlock()
			return
		}
	}
}

func (s *Sequencer) setSpeaking(ctx context.Context, on bool) {
	if s.speaking.Swap(on) == on {
		return
	}

	if s.ducker != nil {
		var err error
		if on {
			err = s.ducker.Duck(ctx)
		} else {
			err = s.ducker.Restore(ctx)
		}
		if err != nil {
			log.Warn("Ducking failed", "speaking", on, "err", err)
		}
	}

	if s.onSpeaking != nil {
		s.onSpeaking(on)
	}
}
