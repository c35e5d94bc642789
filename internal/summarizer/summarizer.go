// Package summarizer turns a call transcript into a short structured
// summary. It is optional enrichment and never gates reconciliation.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type Summary struct {
	Brief       string   `json:"brief"`
	KeyPoints   []string `json:"key_points"`
	Sentiment   string   `json:"sentiment"`
	ActionItems []string `json:"action_items"`
	Outcome     string   `json:"outcome"`
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (*Summary, error)
}

// ErrDisabled is returned when no summarizer backend is configured.
var ErrDisabled = errors.New("summarizer disabled")

type Disabled struct{}

func (Disabled) Summarize(context.Context, string) (*Summary, error) {
	return nil, ErrDisabled
}

const systemPrompt = `You summarize outbound service calls between an AI agent and a customer.
Reply with a single JSON object with keys: brief (one sentence), key_points (array of strings),
sentiment (positive, neutral or negative), action_items (array of strings),
outcome (booked, callback, voicemail, not_interested, wrong_number, busy, no_answer or unknown).`

type OpenAISummarizer struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewOpenAI(apiKey, model string, log *zap.Logger) *OpenAISummarizer {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model, log)
}

func NewOpenAIWithConfig(cfg openai.ClientConfig, model string, log *zap.Logger) *OpenAISummarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log,
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (*Summary, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("empty transcript")
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai summarize failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	var out Summary
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("openai summary was not valid json: %w", err)
	}

	s.log.Debug("summarized transcript",
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &out, nil
}
