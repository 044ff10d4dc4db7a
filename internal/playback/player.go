package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Clip is one synthesized sentence ready to play.
type Clip struct {
	Text string
	Data []byte
	MIME string
}

type Player interface {
	Play(ctx context.Context, c Clip) error
}

var ErrEmptyClip = errors.New("empty clip")

// SpeakerPlayer plays clips on the default output through beep. The
// speaker runs at one fixed rate; clips are resampled to it.
type SpeakerPlayer struct {
	rate beep.SampleRate

	initOnce sync.Once
	initErr  error
}

func NewSpeakerPlayer(rate int) *SpeakerPlayer {
	return &SpeakerPlayer{rate: beep.SampleRate(rate)}
}

func (p *SpeakerPlayer) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	return p.initErr
}

func (p *SpeakerPlayer) Play(ctx context.Context, c Clip) error {
	if len(c.Data) == 0 {
		return ErrEmptyClip
	}
	if err := p.init(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	streamer, format, err := decode(c)
	if err != nil {
		return fmt.Errorf("decode %s: %w", c.MIME, err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func decode(c Clip) (beep.StreamSeekCloser, beep.Format, error) {
	rc := io.NopCloser(bytes.NewReader(c.Data))
	switch {
	case strings.Contains(c.MIME, "wav"):
		return wav.Decode(rc)
	default:
		return mp3.Decode(rc)
	}
}
