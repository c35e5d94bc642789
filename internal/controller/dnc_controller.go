package controller

import (
	"net/http"
	"strconv"

	"github.com/unclebandit/voiceops-backend/internal/service"
)

type DncController struct {
	DncService *service.DncService
}

// AddEntry answers 201 for a new entry and 200 when the number was
// already blocked.
func (c *DncController) AddEntry(w http.ResponseWriter, r *http.Request) {
	var body service.AddDncInput
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, created, err := c.DncService.Add(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"data":    entry,
		"created": created,
	})
}

func (c *DncController) ListEntries(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("org_id"), 10, 64)
	if err != nil || orgID <= 0 {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	page, pageSize := pageParams(r)

	entries, pagination, err := c.DncService.List(r.Context(), orgID, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       entries,
		"pagination": pagination,
	})
}
