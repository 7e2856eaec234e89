package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"vesper/internal/engine"
	"vesper/internal/models"
)

const (
	baseURL = "https://openrouter.ai/api/v1"

	titleModel  = "google/gemini-3-flash-preview"
	titlePrompt = "Generate a very short title (at most five words, no quotes, no trailing punctuation) for a conversation that starts with the following message. Reply with the title only."

	maxTitleLen = 40
)

// Client talks to OpenRouter through the OpenAI-compatible API and
// implements engine.Gateway.
type Client struct {
	api openai.Client
}

// FromEnv builds a client from OPENROUTER_API_KEY.
func FromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY environment variable not set")
	}
	return New(apiKey), nil
}

func New(apiKey string) *Client {
	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHeader("X-Title", "Vesper"),
		),
	}
}

// StreamCompletion opens a streaming chat completion over the ordered
// message history.
func (c *Client) StreamCompletion(ctx context.Context, model string, msgs []models.Message) (engine.Stream, error) {
	history := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			history = append(history, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			history = append(history, openai.AssistantMessage(m.Content))
		}
	}
	raw := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: history,
	})
	if err := raw.Err(); err != nil {
		return nil, err
	}
	return &completionStream{raw: raw}, nil
}

// GenerateTitle asks a fast model for a short session title.
func (c *Client) GenerateTitle(ctx context.Context, seed string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: titleModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(titlePrompt),
			openai.UserMessage(seed),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, `"'`)
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title, nil
}

// completionStream adapts the SSE chunk stream to the engine's delta
// sequence, skipping chunks that carry no content.
type completionStream struct {
	raw  *ssestream.Stream[openai.ChatCompletionChunk]
	text string
}

func (s *completionStream) Next() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.text = delta
			return true
		}
	}
	return false
}

func (s *completionStream) Text() string { return s.text }
func (s *completionStream) Err() error   { return s.raw.Err() }
func (s *completionStream) Close() error { return s.raw.Close() }
