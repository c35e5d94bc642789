// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
	"github.com/unclebandit/voiceops-backend/internal/service"
	"github.com/unclebandit/voiceops-backend/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives post-call webhooks from the voice provider.
type WebhookHandler struct {
	Reconciler *service.Reconciler
	Log        *zap.Logger
}

func NewWebhookHandler(r *service.Reconciler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Reconciler: r, Log: log}
}

// PostCall answers 200 for processed, duplicate and ignored deliveries so the
// provider stops retrying, 401 for a bad signature, 400 for a body that is
// not JSON, and 503 when nothing could be committed and a redelivery should
// be attempted.
func (h *WebhookHandler) PostCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	res, err := h.Reconciler.Reconcile(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, appErrors.ErrInvalidSignature), errors.Is(err, appErrors.ErrMissingSignature):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, appErrors.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.Log.Error("webhook not processed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "temporarily unable to process webhook")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
