package wake

import (
	"context"
	log "log/slog"
	"time"

	"kitt/internal/audio"
	"kitt/pkg/stt"
)

// segmentGap is the pause that closes a recognition segment.
const segmentGap = 700 * time.Millisecond

type PCMTranscriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

// WhisperRecognizer listens on its own capture stream and re-transcribes
// the voiced segment every hop, emitting interim results, and a final one
// once the speaker pauses or the segment grows too long.
type WhisperRecognizer struct {
	Capture    audio.Capture
	STT        PCMTranscriber
	SampleRate int
	FrameSize  int
	Threshold  float64
	Hop        time.Duration
	MaxSegment time.Duration
	Language   string
	Prompt     string
}

func (w *WhisperRecognizer) Listen(ctx context.Context) (<-chan Result, error) {
	stream, err := w.Capture.Open(w.SampleRate, w.FrameSize)
	if err != nil {
		return nil, err
	}

	out := make(chan Result, 4)
	go func() {
		defer close(out)
		defer stream.Close()
		if err := w.loop(ctx, stream, out); err != nil && ctx.Err() == nil {
			log.Warn("Wake stream stopped", "err", err)
		}
	}()

	return out, nil
}

func (w *WhisperRecognizer) loop(ctx context.Context, stream audio.Stream, out chan<- Result) error {
	var (
		span     = time.Duration(w.FrameSize) * time.Second / time.Duration(w.SampleRate)
		frame    = make([]float32, w.FrameSize)
		segment  []float32
		window   audio.SilenceWindow
		segDur   time.Duration
		sinceHop time.Duration
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(frame); err != nil {
			return err
		}

		energy := audio.Energy(frame)
		if len(segment) == 0 && energy < w.Threshold {
			continue
		}

		segment = append(segment, frame...)
		silent := window.Observe(energy, w.Threshold, segDur, span)
		segDur += span
		sinceHop += span

		final := silent >= segmentGap || segDur >= w.MaxSegment
		if !final && sinceHop < w.Hop {
			continue
		}

		res, err := w.STT.TranscribePCM(ctx, segment, stt.Options{Language: w.Language, Prompt: w.Prompt})
		if err != nil {
			return err
		}

		select {
		case out <- Result{Text: res.Text, Final: final}:
		case <-ctx.Done():
			return ctx.Err()
		}

		sinceHop = 0
		if final {
			segment = segment[:0]
			segDur = 0
			window = audio.SilenceWindow{}
		}
	}
}
