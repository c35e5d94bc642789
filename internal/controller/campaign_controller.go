// internal/controller/campaign_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/unclebandit/voiceops-backend/internal/model"
	"github.com/unclebandit/voiceops-backend/internal/service"
	"github.com/unclebandit/voiceops-backend/internal/sheet"
)

const maxWorkbookBytes = 10 << 20

type CampaignController struct {
	CampaignService   *service.CampaignService
	EnrollmentService *service.EnrollmentService
	Starter           *service.Starter
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

type uploadTargetsBody struct {
	Targets []model.TargetInput `json:"targets" validate:"required,min=1,max=5000,dive"`
}

// UploadTargets enrolls recipients. Rows rejected for DNC, duplication or a
// malformed phone are reported in the body; only a bad request as a whole
// is an error.
func (c *CampaignController) UploadTargets(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body uploadTargetsBody
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.EnrollmentService.Enroll(r.Context(), id, body.Targets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImportTargets enrolls the rows of an .xlsx workbook sent as the raw
// request body.
func (c *CampaignController) ImportTargets(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	targets, err := sheet.ReadTargets(http.MaxBytesReader(w, r.Body, maxWorkbookBytes))
	if err != nil {
		if errors.Is(err, sheet.ErrNoPhoneColumn) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body := uploadTargetsBody{Targets: targets}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err).Error())
		return
	}

	result, err := c.EnrollmentService.Enroll(r.Context(), id, body.Targets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) ListTargets(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, pageSize := pageParams(r)

	targets, pagination, err := c.CampaignService.ListTargets(r.Context(), id, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       targets,
		"pagination": pagination,
	})
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.Starter.StartCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.Starter.ResumeCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := c.CampaignService.PauseCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) ResetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := c.CampaignService.ResetCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}
