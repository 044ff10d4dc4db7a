package wake

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wakeRe = regexp.MustCompile(`(?i)\bhey kitt\b|\bhey kit\b|\byo kitt\b`)

// scriptedRecognizer plays one scripted session per Listen call and then
// ends the stream. Once the script is exhausted, Listen holds the stream
// open until the context is cancelled.
type scriptedRecognizer struct {
	mu       sync.Mutex
	sessions [][]Result
	err      error
	calls    int
	released atomic.Int32
}

func (r *scriptedRecognizer) Listen(ctx context.Context) (<-chan Result, error) {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		defer r.released.Add(1)
		if i < len(r.sessions) {
			for _, res := range r.sessions[i] {
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
			return
		}
		<-ctx.Done()
	}()
	return out, nil
}

func (r *scriptedRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestMonitorFiresOncePerSegment(t *testing.T) {
	rec := &scriptedRecognizer{sessions: [][]Result{{
		{Text: "hey"},
		{Text: "Hey KITT"},
		{Text: "Hey KITT how"},
		{Text: "Hey KITT how are you", Final: true},
		{Text: "yo kitt", Final: true},
		{Text: "hey kitten"},
	}}}

	var wakes atomic.Int32
	m := NewMonitor(rec, wakeRe, func() { wakes.Add(1) }, time.Millisecond)
	m.Enable(context.Background())
	require.True(t, m.Enabled())

	// The scripted session ends and the monitor listens again.
	require.Eventually(t, func() bool { return rec.callCount() == 2 }, time.Second, time.Millisecond)

	m.Disable()
	assert.False(t, m.Enabled())
	assert.Equal(t, int32(2), wakes.Load())
	assert.Equal(t, int32(2), rec.released.Load())
}

func TestMonitorRestartsAfterStreamEnds(t *testing.T) {
	rec := &scriptedRecognizer{sessions: [][]Result{
		{{Text: "music playing"}},
		{},
		{{Text: "hey kit", Final: true}},
	}}

	var wakes atomic.Int32
	m := NewMonitor(rec, wakeRe, func() { wakes.Add(1) }, time.Millisecond)
	m.Enable(context.Background())
	defer m.Disable()

	require.Eventually(t, func() bool { return wakes.Load() == 1 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, rec.callCount(), 3)
}

func TestMonitorWithoutRecognizerIsNoop(t *testing.T) {
	m := NewMonitor(nil, wakeRe, func() { t.Fatal("must not fire") }, time.Millisecond)
	m.Enable(context.Background())
	assert.False(t, m.Enabled())
	m.Disable()
}

func TestMonitorStopsWhenUnavailable(t *testing.T) {
	rec := &scriptedRecognizer{err: ErrUnavailable}
	m := NewMonitor(rec, wakeRe, func() {}, time.Millisecond)
	m.Enable(context.Background())

	time.Sleep(20 * time.Millisecond)
	m.Disable()
	assert.Equal(t, 1, rec.callCount())
}

func TestMonitorRetriesOnListenError(t *testing.T) {
	rec := &scriptedRecognizer{err: errors.New("device busy")}
	m := NewMonitor(rec, wakeRe, func() {}, time.Millisecond)
	m.Enable(context.Background())

	require.Eventually(t, func() bool { return rec.callCount() >= 3 }, time.Second, time.Millisecond)
	m.Disable()
}

func TestMonitorReenable(t *testing.T) {
	rec := &scriptedRecognizer{}
	m := NewMonitor(rec, wakeRe, func() {}, time.Millisecond)

	m.Enable(context.Background())
	m.Enable(context.Background())
	require.Eventually(t, func() bool { return rec.callCount() == 1 }, time.Second, time.Millisecond)
	m.Disable()
	assert.Equal(t, int32(1), rec.released.Load())

	m.Enable(context.Background())
	require.Eventually(t, func() bool { return rec.callCount() == 2 }, time.Second, time.Millisecond)
	m.Disable()
	assert.Equal(t, int32(2), rec.released.Load())
}
