package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"kitt/internal/audio"
	"kitt/pkg/audioconv"
	"kitt/pkg/stt"
)

// OpenAITranscriber sends utterances to the remote transcription endpoint.
// A rejected or malformed answer counts as an empty transcript; only a
// transport failure is an error.
type OpenAITranscriber struct {
	client *goopenai.Client
	model  string
}

func NewOpenAITranscriber(client *goopenai.Client, model string) *OpenAITranscriber {
	return &OpenAITranscriber{client: client, model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	name := u.Name
	if name == "" {
		name = "utterance.wav"
	}

	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.model,
		FilePath: name,
		Reader:   bytes.NewReader(u.Data),
	})
	if err != nil {
		if isTransport(ctx, err) {
			return "", fmt.Errorf("%w: transcription: %v", ErrTransport, err)
		}
		log.Warn("Transcription rejected, treating as empty", "err", err)
		return "", nil
	}

	return strings.TrimSpace(resp.Text), nil
}

func isTransport(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type PCMTranscriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

// WhisperTranscriber transcribes utterances locally with whisper.cpp.
type WhisperTranscriber struct {
	stt      PCMTranscriber
	language string
}

func NewWhisperTranscriber(t PCMTranscriber, language string) *WhisperTranscriber {
	return &WhisperTranscriber{stt: t, language: language}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	pcm, err := audioconv.DecodeToPCM16k(ctx, u.Data, u.MIME, audioconv.Options{})
	if err != nil {
		log.Warn("Utterance not decodable, treating as empty", "mime", u.MIME, "err", err)
		return "", nil
	}

	res, err := w.stt.TranscribePCM(ctx, pcm, stt.Options{Language: w.language})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	return strings.TrimSpace(res.Text), nil
}
