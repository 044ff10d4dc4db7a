package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	loud  = 0.5
	quiet = 0.001
)

// fakeCapture serves frames whose amplitude is chosen per frame index.
type fakeCapture struct {
	amplitude func(i int) (float32, error)
	openErr   error

	stream *fakeStream
}

func (c *fakeCapture) Open(_, _ int) (Stream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.stream = &fakeStream{amplitude: c.amplitude}
	return c.stream, nil
}

type fakeStream struct {
	amplitude func(i int) (float32, error)
	reads     int
	closed    bool
}

func (s *fakeStream) Read(frame []float32) error {
	a, err := s.amplitude(s.reads)
	if err != nil {
		return err
	}
	s.reads++
	for i := range frame {
		frame[i] = a
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

var testOpts = Options{
	MaxDuration:     5 * time.Second,
	SilenceDuration: 600 * time.Millisecond,
	VolumeThreshold: 0.02,
}

func newTestRecorder(c Capture) *Recorder {
	return NewRecorder(c, 16000, 320) // 20ms frames
}

func TestRecordStopsAtSilenceBoundary(t *testing.T) {
	c := &fakeCapture{amplitude: func(i int) (float32, error) {
		if i < 10 {
			return loud, nil
		}
		return quiet, nil
	}}

	u, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	require.NoError(t, err)

	assert.Equal(t, StopSilence, u.Reason)
	assert.Equal(t, 800*time.Millisecond, u.Duration)
	assert.Equal(t, 40, c.stream.reads)
	assert.True(t, c.stream.closed)
}

func TestRecordSilenceTimerResetsOnSpeech(t *testing.T) {
	c := &fakeCapture{amplitude: func(i int) (float32, error) {
		if i == 20 {
			return loud, nil
		}
		return quiet, nil
	}}

	u, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	require.NoError(t, err)

	// 20 silent frames, one loud, then a full 600ms run.
	assert.Equal(t, StopSilence, u.Reason)
	assert.Equal(t, 1020*time.Millisecond, u.Duration)
}

func TestRecordStopsAtMaxDuration(t *testing.T) {
	c := &fakeCapture{amplitude: func(int) (float32, error) { return loud, nil }}

	u, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	require.NoError(t, err)

	assert.Equal(t, StopMaxDuration, u.Reason)
	assert.Equal(t, testOpts.MaxDuration, u.Duration)
	assert.Equal(t, 250, c.stream.reads)
	assert.True(t, c.stream.closed)
}

func TestRecordEncodesAllChunks(t *testing.T) {
	c := &fakeCapture{amplitude: func(i int) (float32, error) {
		if i < 5 {
			return loud, nil
		}
		return 0, io.EOF
	}}

	u, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	require.NoError(t, err)
	assert.Equal(t, StopEnded, u.Reason)
	assert.Equal(t, "audio/wav", u.MIME)

	dec := wav.NewDecoder(bytes.NewReader(u.Data))
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 5*320)
	assert.Equal(t, 16000, buf.Format.SampleRate)
}

func TestRecordEmptySourceStillResolves(t *testing.T) {
	c := &fakeCapture{amplitude: func(int) (float32, error) { return 0, io.EOF }}

	u, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	require.NoError(t, err)

	assert.Equal(t, StopEnded, u.Reason)
	assert.Zero(t, u.Duration)
	require.GreaterOrEqual(t, len(u.Data), 12)
	assert.Equal(t, "RIFF", string(u.Data[:4]))
	assert.Equal(t, "WAVE", string(u.Data[8:12]))
	assert.True(t, c.stream.closed)
}

func TestRecordReleasesOnReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	c := &fakeCapture{amplitude: func(i int) (float32, error) {
		if i == 3 {
			return 0, boom
		}
		return loud, nil
	}}

	_, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.stream.closed)
}

func TestRecordOpenFailure(t *testing.T) {
	c := &fakeCapture{openErr: ErrNoDevice}

	_, err := newTestRecorder(c).RecordUtterance(context.Background(), testOpts)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestRecordCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &fakeCapture{amplitude: func(i int) (float32, error) {
		if i == 2 {
			cancel()
		}
		return loud, nil
	}}

	_, err := newTestRecorder(c).RecordUtterance(ctx, testOpts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.stream.closed)
}

func TestSilenceWindow(t *testing.T) {
	var w SilenceWindow
	span := 20 * time.Millisecond

	assert.Zero(t, w.Observe(0.5, 0.1, 0, span))
	_, silent := w.SilenceStart()
	assert.False(t, silent)

	assert.Equal(t, span, w.Observe(0.01, 0.1, span, span))
	assert.Equal(t, 2*span, w.Observe(0.01, 0.1, 2*span, span))
	start, silent := w.SilenceStart()
	assert.True(t, silent)
	assert.Equal(t, span, start)
	assert.Equal(t, 0.01, w.Average)

	assert.Zero(t, w.Observe(0.2, 0.1, 3*span, span))
	_, silent = w.SilenceStart()
	assert.False(t, silent)
}

func TestEnergy(t *testing.T) {
	assert.Zero(t, Energy(nil))
	assert.InDelta(t, 0.5, Energy([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
	assert.Equal(t, 1.0, Energy([]float32{3, 3}))
}
