package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

// DefaultSlot is the event length when an appointment has no end time.
const DefaultSlot = 30 * time.Minute

const productID = "-//voiceops//appointments//EN"

// Render returns a VCALENDAR with one VEVENT for the appointment.
func Render(a *model.Appointment, customerName string, now time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	end := a.ScheduledStart.Add(DefaultSlot)
	if a.ScheduledEnd != nil && a.ScheduledEnd.After(a.ScheduledStart) {
		end = *a.ScheduledEnd
	}

	ev := cal.AddEvent(fmt.Sprintf("appointment-%d@voiceops", a.ID))
	ev.SetDtStampTime(now.UTC())
	ev.SetCreatedTime(a.CreatedAt.UTC())
	ev.SetStartAt(a.ScheduledStart.UTC())
	ev.SetEndAt(end.UTC())
	ev.SetSummary(summary(a, customerName))

	var desc []string
	if a.Notes != nil && *a.Notes != "" {
		desc = append(desc, *a.Notes)
	}
	if a.CallID != nil {
		desc = append(desc, fmt.Sprintf("Booked on call %d", *a.CallID))
	}
	if len(desc) > 0 {
		ev.SetDescription(strings.Join(desc, "\n"))
	}
	if a.Status == model.AppointmentCanceled {
		ev.SetStatus(ics.ObjectStatusCancelled)
	} else {
		ev.SetStatus(ics.ObjectStatusConfirmed)
	}

	return cal.Serialize()
}

func summary(a *model.Appointment, customerName string) string {
	kind := "Service"
	if a.Type == model.AppointmentPickup {
		kind = "Pickup"
	}
	if customerName == "" {
		return kind + " appointment"
	}
	return fmt.Sprintf("%s appointment: %s", kind, customerName)
}
