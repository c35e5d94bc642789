package service

import (
	"context"

	"github.com/unclebandit/voiceops-backend/internal/calendar"
	"github.com/unclebandit/voiceops-backend/internal/model"
)

type AppointmentService struct {
	*Stores
	Now Clock
}

func (s *AppointmentService) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.Appointments.GetByID(ctx, id)
}

// ICS renders the appointment as an iCalendar document.
func (s *AppointmentService) ICS(ctx context.Context, id int64) (string, error) {
	a, err := s.Appointments.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	name := ""
	c, err := s.Customers.GetByID(ctx, a.CustomerID)
	if err != nil {
		return "", err
	}
	if c != nil {
		name = c.FullName
	}
	return calendar.Render(a, name, s.Now.now()), nil
}
