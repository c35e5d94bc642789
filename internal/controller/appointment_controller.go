package controller

import (
	"fmt"
	"io"
	"net/http"

	"github.com/unclebandit/voiceops-backend/internal/service"
)

type AppointmentController struct {
	AppointmentService *service.AppointmentService
}

func (c *AppointmentController) ICS(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ics, err := c.AppointmentService.ICS(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="appointment-%d.ics"`, id))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ics)
}
