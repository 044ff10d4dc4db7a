package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeakingLevelsShape(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
		l := SpeakingLevels(r)
		assert.Equal(t, l[0], l[2], "symmetric")
		assert.Greater(t, l[1], l[0], "middle dominates")
		for _, v := range l {
			assert.GreaterOrEqual(t, v, 0.05)
			assert.LessOrEqual(t, v, 1.1)
		}
	}
	assert.Equal(t, Levels{0.3, 0.6, 0.3}, SpeakingLevels(0.5))
}

func TestDecayReachesZero(t *testing.T) {
	l := SpeakingLevels(0.9)
	for i := 0; i < 10 && !l.IsZero(); i++ {
		next := l.Decay()
		assert.LessOrEqual(t, next[1], l[1])
		l = next
	}
	assert.True(t, l.IsZero())
}

func TestMeterRun(t *testing.T) {
	var speaking atomic.Bool
	var mu sync.Mutex
	var got []Levels

	m := NewMeter(time.Millisecond, 2*time.Millisecond, speaking.Load, func(l Levels) {
		mu.Lock()
		got = append(got, l)
		mu.Unlock()
	})
	m.rand = func() float64 { return 0.9 }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	speaking.Store(true)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, time.Second, time.Millisecond)

	speaking.Store(false)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].IsZero()
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Contains(t, got, Levels{0.5, 1.0, 0.5})
	mu.Unlock()
}
