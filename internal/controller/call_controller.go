package controller

import (
	"net/http"
	"strconv"

	"github.com/unclebandit/voiceops-backend/internal/service"
)

type CallController struct {
	CallService      *service.CallService
	AttentionService *service.AttentionService
}

func (c *CallController) GetCall(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := c.CallService.GetCall(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (c *CallController) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	calls, pagination, err := c.CallService.ReviewQueue(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       calls,
		"pagination": pagination,
	})
}

// NeedsAttention accepts optional campaign_id and limit query parameters.
func (c *CallController) NeedsAttention(w http.ResponseWriter, r *http.Request) {
	var campaignID *int64
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid campaign_id")
			return
		}
		campaignID = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := c.AttentionService.List(r.Context(), campaignID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": items})
}

func (c *CallController) ResolveCall(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body service.ResolveInput
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := c.CallService.Resolve(r.Context(), id, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
