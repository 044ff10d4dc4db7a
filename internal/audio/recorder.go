package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"time"
)

type StopReason int

const (
	StopSilence StopReason = iota
	StopMaxDuration
	// StopEnded means the capture source ran dry before either gate fired.
	StopEnded
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max_duration"
	case StopEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type Options struct {
	MaxDuration     time.Duration
	SilenceDuration time.Duration
	VolumeThreshold float64
}

// Utterance is one finalized recording, encoded and tagged with its MIME type.
type Utterance struct {
	Data     []byte
	MIME     string
	Name     string
	Duration time.Duration
	Reason   StopReason
}

// SilenceWindow tracks the running energy and when the current run of
// below-threshold samples began. Timestamps are offsets from the start
// of the recording.
type SilenceWindow struct {
	Average float64

	silent bool
	start  time.Duration
}

// Observe records one energy sample covering [at, at+span) and returns
// how long the signal has been continuously silent at the end of it.
func (w *SilenceWindow) Observe(energy, threshold float64, at, span time.Duration) time.Duration {
	w.Average = energy
	if energy >= threshold {
		w.silent = false
		w.start = 0
		return 0
	}
	if !w.silent {
		w.silent = true
		w.start = at
	}
	return at + span - w.start
}

func (w *SilenceWindow) SilenceStart() (time.Duration, bool) {
	return w.start, w.silent
}

type Recorder struct {
	capture    Capture
	sampleRate int
	frameSize  int
}

func NewRecorder(c Capture, sampleRate, frameSize int) *Recorder {
	return &Recorder{capture: c, sampleRate: sampleRate, frameSize: frameSize}
}

func (r *Recorder) frameDuration() time.Duration {
	return time.Duration(r.frameSize) * time.Second / time.Duration(r.sampleRate)
}

// RecordUtterance captures until opt.SilenceDuration of continuous
// below-threshold energy or until opt.MaxDuration, whichever comes first.
// The cadence is the device frame clock: one energy sample per frame.
func (r *Recorder) RecordUtterance(ctx context.Context, opt Options) (Utterance, error) {
	stream, err := r.capture.Open(r.sampleRate, r.frameSize)
	if err != nil {
		return Utterance{}, fmt.Errorf("open capture: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn("Failed to release capture", "err", err)
		}
	}()

	var (
		chunks  [][]float32
		window  SilenceWindow
		elapsed time.Duration
		reason  = StopMaxDuration
		span    = r.frameDuration()
		frame   = make([]float32, r.frameSize)
	)

	for {
		if err := ctx.Err(); err != nil {
			return Utterance{}, err
		}

		if err := stream.Read(frame); err != nil {
			if errors.Is(err, io.EOF) {
				reason = StopEnded
				break
			}
			return Utterance{}, fmt.Errorf("read capture: %w", err)
		}

		chunks = append(chunks, append([]float32(nil), frame...))

		silent := window.Observe(Energy(frame), opt.VolumeThreshold, elapsed, span)
		elapsed += span

		if silent >= opt.SilenceDuration {
			reason = StopSilence
			break
		}
		if elapsed >= opt.MaxDuration {
			break
		}
	}

	pcm := make([]float32, 0, len(chunks)*r.frameSize)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	data, err := EncodeWAV(pcm, r.sampleRate)
	if err != nil {
		return Utterance{}, fmt.Errorf("encode utterance: %w", err)
	}

	log.Debug("Recorded utterance", "duration", elapsed, "reason", reason, "bytes", len(data))

	return Utterance{
		Data:     data,
		MIME:     "audio/wav",
		Name:     "utterance.wav",
		Duration: elapsed,
		Reason:   reason,
	}, nil
}
