package gateway

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

var (
	ErrTransport  = errors.New("remote call failed")
	ErrEmptyReply = errors.New("empty reply")
)

// ChatSession is one conversation with the chat service. The persona is
// sent first on every request and is not part of the history.
type ChatSession struct {
	client  openai.Client
	model   string
	persona string
	history *History
}

func NewChatSession(client openai.Client, model, persona string, history *History) *ChatSession {
	return &ChatSession{client: client, model: model, persona: persona, history: history}
}

func (s *ChatSession) History() *History { return s.history }

// Ask sends text with the prior turns and returns the reply. The user
// message and the reply are recorded together only on success, so a
// failed call leaves the history untouched.
func (s *ChatSession) Ask(ctx context.Context, text string) (string, error) {
	prior := s.history.Messages()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(prior)+2)
	msgs = append(msgs, openai.SystemMessage(s.persona))
	for _, m := range prior {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(text))

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(s.model),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrEmptyReply)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}

	s.history.Append(
		Message{Role: RoleUser, Content: text},
		Message{Role: RoleAssistant, Content: reply},
	)
	log.Debug("Chat reply", "history", s.history.Len())

	return reply, nil
}
