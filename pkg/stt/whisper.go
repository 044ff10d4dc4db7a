package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var ErrNoModel = errors.New("whisper model not loaded")

type Options struct {
	Language string // empty means auto-detect
	Threads  int    // <=0 uses every CPU
	// Prompt biases decoding toward expected words, e.g. the wake phrase.
	Prompt string
}

type Segment struct {
	Text       string
	Start, End time.Duration
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber runs a local whisper.cpp model. Calls are serialized; the
// ambient wake listener and turn transcription may share one instance.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, ErrNoModel
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", modelPath, err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// TranscribePCM transcribes mono 16 kHz samples in [-1, 1]. Silence in,
// empty text out.
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return Result{}, ErrNoModel
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}
	if err := configure(wctx, opt); err != nil {
		return Result{}, err
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	res, err := collect(ctx, wctx)
	if err != nil {
		return Result{}, err
	}
	if res.Language = wctx.DetectedLanguage(); res.Language == "" {
		res.Language = wctx.Language()
	}
	return res, nil
}

func configure(wctx whisper.Context, opt Options) error {
	lang := opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return fmt.Errorf("language %q: %w", lang, err)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.Prompt != "" {
		wctx.SetInitialPrompt(opt.Prompt)
	}
	return nil
}

func collect(ctx context.Context, wctx whisper.Context) (Result, error) {
	var (
		res   Result
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}

		res.Segments = append(res.Segments, Segment{Text: s.Text, Start: s.Start, End: s.End})
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}

	res.Text = strings.Join(parts, " ")
	return res, nil
}
