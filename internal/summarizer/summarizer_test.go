package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAISummarizer_ParsesJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		content, _ := json.Marshal(Summary{
			Brief:     "Customer booked a pickup for Friday.",
			KeyPoints: []string{"pickup friday 10:00"},
			Sentiment: "positive",
			Outcome:   "booked",
		})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": string(content)}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	s := NewOpenAIWithConfig(cfg, "", zap.NewNop())

	out, err := s.Summarize(context.Background(), "agent: hi\ncustomer: friday works")
	require.NoError(t, err)
	assert.Equal(t, "booked", out.Outcome)
	assert.Equal(t, []string{"pickup friday 10:00"}, out.KeyPoints)
}

func TestOpenAISummarizer_RejectsEmptyTranscript(t *testing.T) {
	s := NewOpenAI("k", "", zap.NewNop())
	_, err := s.Summarize(context.Background(), "  ")
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDisabled)
}
