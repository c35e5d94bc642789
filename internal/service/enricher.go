package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/voiceops-backend/internal/metrics"
	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/queue"
	"github.com/unclebandit/voiceops-backend/internal/summarizer"
)

// Enricher consumes CallReconciled events and fills in a summary for calls
// that arrived without one. An existing summary is never overwritten.
type Enricher struct {
	*Stores
	Summarizer summarizer.Summarizer
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	Timeout    time.Duration
}

// Handle is a queue.Handler. Malformed events are dropped; summarizer and
// storage failures are returned so the queue redelivers.
func (e *Enricher) Handle(body []byte) error {
	var ev queue.CallReconciled
	if err := json.Unmarshal(body, &ev); err != nil {
		e.Log.Error("dropping malformed enrichment event", zap.Error(err), zap.ByteString("body", body))
		e.Metrics.EnrichmentsTotal.WithLabelValues("malformed").Inc()
		return nil
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := e.Enrich(ctx, ev.CallID)
	e.Metrics.EnrichmentsTotal.WithLabelValues(result).Inc()
	return err
}

// Enrich summarises one call and reports what happened: "written",
// "skipped", "disabled" or "error".
func (e *Enricher) Enrich(ctx context.Context, callID int64) (string, error) {
	log := e.Log.With(zap.Int64("call_id", callID))

	call, err := e.Calls.GetByID(ctx, callID)
	if err != nil {
		return "error", fmt.Errorf("failed to load call %d: %w", callID, err)
	}
	if call.Summary != nil && *call.Summary != "" {
		log.Debug("call already summarised")
		return "skipped", nil
	}
	if call.Transcript == nil || *call.Transcript == "" {
		log.Debug("call has no transcript")
		return "skipped", nil
	}

	sum, err := e.Summarizer.Summarize(ctx, *call.Transcript)
	if errors.Is(err, summarizer.ErrDisabled) {
		return "disabled", nil
	}
	if err != nil {
		log.Warn("summarizer failed", zap.Error(err))
		return "error", err
	}

	enrichment := &model.Enrichment{
		KeyPoints:   sum.KeyPoints,
		ActionItems: sum.ActionItems,
		Outcome:     sum.Outcome,
	}
	written, err := e.Calls.SetEnrichment(ctx, callID, sum.Brief, enrichment)
	if err != nil {
		return "error", fmt.Errorf("failed to store summary for call %d: %w", callID, err)
	}
	if !written {
		return "skipped", nil
	}
	log.Info("call summary written")
	return "written", nil
}
