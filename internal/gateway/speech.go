package gateway

import (
	"context"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"kitt/internal/playback"
)

// OpenAISynthesizer turns text into an mpeg clip with a fixed voice.
type OpenAISynthesizer struct {
	client *goopenai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(client *goopenai.Client, model, voice string) *OpenAISynthesizer {
	return &OpenAISynthesizer{client: client, model: model, voice: voice}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (playback.Clip, error) {
	resp, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(s.voice),
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return playback.Clip{}, fmt.Errorf("%w: speech: %v", ErrTransport, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return playback.Clip{}, fmt.Errorf("%w: read speech: %v", ErrTransport, err)
	}

	return playback.Clip{Text: text, Data: data, MIME: "audio/mpeg"}, nil
}
