// Package provider talks to the voice provider's batch-calling API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unclebandit/voiceops-backend/internal/config"
	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
)

// Recipient is one number to dial. Metadata is echoed back on the webhook.
type Recipient struct {
	PhoneNumber string         `json:"phone_number"`
	Metadata    map[string]any `json:"dynamic_variables"`
}

type BatchRequest struct {
	CampaignID    string      `json:"campaign_id"`
	Name          string      `json:"call_name,omitempty"`
	AgentID       string      `json:"agent_id,omitempty"`
	PhoneNumberID string      `json:"agent_phone_number_id,omitempty"`
	Recipients    []Recipient `json:"recipients"`
}

type BatchResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
}

// Client is what the campaign starter needs from the provider.
type Client interface {
	CreateBatchCall(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	CancelBatch(ctx context.Context, batchID string) error
}

type HTTPClient struct {
	cfg     config.ProviderConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewHTTPClient(cfg config.ProviderConfig, log *zap.Logger) *HTTPClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// CreateBatchCall fills in the configured agent and phone number ids when
// the request leaves them empty.
func (c *HTTPClient) CreateBatchCall(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	if req.AgentID == "" {
		req.AgentID = c.cfg.AgentID
	}
	if req.PhoneNumberID == "" {
		req.PhoneNumberID = c.cfg.PhoneNumberID
	}

	var out BatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/convai/batch-calling/submit", req, &out); err != nil {
		return nil, err
	}
	if out.BatchID == "" {
		return nil, fmt.Errorf("%w: response carried no batch id", appErrors.ErrProviderUnavailable)
	}
	c.log.Info("created batch call",
		zap.String("batch_id", out.BatchID),
		zap.Int("recipients", len(req.Recipients)),
	)
	return &out, nil
}

func (c *HTTPClient) CancelBatch(ctx context.Context, batchID string) error {
	return c.do(ctx, http.MethodPost, "/v1/convai/batch-calling/"+batchID+"/cancel", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.cfg.APIKey == "" {
		return appErrors.ErrProviderNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrProviderUnavailable, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", appErrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error("voice provider error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("%w: status %d: %s", appErrors.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", appErrors.ErrProviderUnavailable, err)
	}
	return nil
}
