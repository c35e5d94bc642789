package controller

import "github.com/go-chi/chi/v5"

// Controllers groups the operator API.
type Controllers struct {
	Campaigns    *CampaignController
	Calls        *CallController
	Dnc          *DncController
	Appointments *AppointmentController
}

// Mount registers the operator routes on r.
func (c *Controllers) Mount(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.Campaigns.CreateCampaign)
		r.Get("/", c.Campaigns.ListCampaigns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", c.Campaigns.GetCampaign)
			r.Post("/targets", c.Campaigns.UploadTargets)
			r.Get("/targets", c.Campaigns.ListTargets)
			r.Post("/targets/import", c.Campaigns.ImportTargets)
			r.Post("/start", c.Campaigns.StartCampaign)
			r.Post("/pause", c.Campaigns.PauseCampaign)
			r.Post("/resume", c.Campaigns.ResumeCampaign)
			r.Post("/reset", c.Campaigns.ResetCampaign)
		})
	})

	r.Route("/calls", func(r chi.Router) {
		r.Get("/review", c.Calls.ReviewQueue)
		r.Get("/attention", c.Calls.NeedsAttention)
		r.Get("/{id}", c.Calls.GetCall)
		r.Post("/{id}/resolve", c.Calls.ResolveCall)
	})

	r.Post("/dnc", c.Dnc.AddEntry)
	r.Get("/dnc", c.Dnc.ListEntries)

	r.Get("/appointments/{id}/ics", c.Appointments.ICS)
}
