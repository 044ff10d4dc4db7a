package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedPlayer records start/end events and holds each clip open until
// the test releases it.
type gatedPlayer struct {
	mu      sync.Mutex
	events  []string
	release chan struct{}
	started chan string
	fail    map[string]error
	active  atomic.Int32
	overlap atomic.Bool
}

func newGatedPlayer() *gatedPlayer {
	return &gatedPlayer{release: make(chan struct{}), started: make(chan string, 16), fail: map[string]error{}}
}

func (p *gatedPlayer) Play(ctx context.Context, c Clip) error {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)

	p.log("start " + c.Text)
	p.started <- c.Text
	if err := p.fail[c.Text]; err != nil {
		return err
	}

	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log("end " + c.Text)
	return nil
}

func (p *gatedPlayer) log(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, s)
}

func (p *gatedPlayer) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func clips(n int) []Clip {
	out := make([]Clip, n)
	for i := range out {
		out[i] = Clip{Text: fmt.Sprint(i), Data: []byte{1}}
	}
	return out
}

func TestSequencerPlaysInOrderWithoutOverlap(t *testing.T) {
	p := newGatedPlayer()
	s := NewSequencer(p)

	done := make(chan struct{})
	go func() {
		s.Play(context.Background(), clips(3)...)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		assert.Equal(t, fmt.Sprint(i), <-p.started)
		assert.True(t, s.Speaking())
		assert.Equal(t, 3-i, s.Pending())

		// The next clip must not start while this one is held.
		select {
		case txt := <-p.started:
			t.Fatalf("clip %s started before %d finished", txt, i)
		case <-time.After(10 * time.Millisecond):
		}
		p.release <- struct{}{}
	}
	<-done

	assert.False(t, p.overlap.Load())
	assert.False(t, s.Speaking())
	assert.Zero(t, s.Pending())
	assert.Equal(t, []string{"start 0", "end 0", "start 1", "end 1", "start 2", "end 2"}, p.Events())
}

func TestSequencerSkipsFailedClip(t *testing.T) {
	p := newGatedPlayer()
	p.fail["1"] = errors.New("cannot start")
	s := NewSequencer(p)

	done := make(chan struct{})
	go func() {
		s.Play(context.Background(), clips(3)...)
		close(done)
	}()

	<-p.started
	p.release <- struct{}{}
	<-p.started // failing clip resolves on its own
	<-p.started
	p.release <- struct{}{}
	<-done

	assert.Equal(t, []string{"start 0", "end 0", "start 1", "start 2", "end 2"}, p.Events())
}

func TestSequencerConcurrentCallersDoNotInterleave(t *testing.T) {
	p := newGatedPlayer()
	s := NewSequencer(p)

	first := make(chan struct{})
	go func() {
		s.Play(context.Background(), Clip{Text: "a1"}, Clip{Text: "a2"})
		close(first)
	}()
	require.Equal(t, "a1", <-p.started)

	second := make(chan struct{})
	go func() {
		s.Play(context.Background(), Clip{Text: "b1"})
		close(second)
	}()

	p.release <- struct{}{}
	assert.Equal(t, "a2", <-p.started)
	p.release <- struct{}{}
	<-first
	assert.Equal(t, "b1", <-p.started)
	p.release <- struct{}{}
	<-second

	assert.False(t, p.overlap.Load())
}

type recordingDucker struct{ calls []string }

func (d *recordingDucker) Duck(context.Context) error {
	d.calls = append(d.calls, "duck")
	return nil
}

func (d *recordingDucker) Restore(context.Context) error {
	d.calls = append(d.calls, "restore")
	return nil
}

func TestSequencerSpeakingEdges(t *testing.T) {
	p := newGatedPlayer()
	d := &recordingDucker{}
	var edges []bool
	s := NewSequencer(p, WithDucker(d), WithSpeakingHook(func(on bool) { edges = append(edges, on) }))

	done := make(chan struct{})
	go func() {
		s.Play(context.Background(), clips(2)...)
		close(done)
	}()
	<-p.started
	p.release <- struct{}{}
	<-p.started
	p.release <- struct{}{}
	<-done

	assert.Equal(t, []bool{true, false}, edges)
	assert.Equal(t, []string{"duck", "restore"}, d.calls)
}

func TestSequencerCancelDropsQueue(t *testing.T) {
	p := newGatedPlayer()
	s := NewSequencer(p)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Play(ctx, clips(3)...)
		close(done)
	}()
	<-p.started
	cancel()
	<-done

	assert.Zero(t, s.Pending())
	assert.False(t, s.Speaking())
}
