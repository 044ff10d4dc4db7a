package playback

import (
	"context"
	"math/rand/v2"
	"time"
)

// Levels is a left, center, right VU reading for the scanner display.
// It is synthetic: symmetric and weighted to the middle.
type Levels [3]float64

// SpeakingLevels maps r in [0,1) to a reading with the middle in
// [0.1, 1.1) and both sides at half of it.
func SpeakingLevels(r float64) Levels {
	mid := 0.1 + r
	return Levels{mid * 0.5, mid, mid * 0.5}
}

// Decay halves every value and snaps to zero once the middle falls
// under 0.05.
func (l Levels) Decay() Levels {
	if l[1]*0.5 < 0.05 {
		return Levels{}
	}
	return Levels{l[0] * 0.5, l[1] * 0.5, l[2] * 0.5}
}

func (l Levels) IsZero() bool { return l == Levels{} }

type Meter struct {
	interval time.Duration
	decay    time.Duration
	speaking func() bool
	emit     func(Levels)
	rand     func() float64
}

func NewMeter(interval, decay time.Duration, speaking func() bool, emit func(Levels)) *Meter {
	return &Meter{
		interval: interval,
		decay:    decay,
		speaking: speaking,
		emit:     emit,
		rand:     rand.Float64,
	}
}

// Run ticks every interval while speaking and every decay interval
// otherwise, until ctx is done. Idle zero readings are emitted once.
func (m *Meter) Run(ctx context.Context) {
	var cur Levels
	timer := time.NewTimer(m.decay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := m.decay
		if m.speaking() {
			cur = SpeakingLevels(m.rand())
			m.emit(cur)
			next = m.interval
		} else if !cur.IsZero() {
			cur = cur.Decay()
			m.emit(cur)
		}

		timer.Reset(next)
	}
}
