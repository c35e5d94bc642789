package service

import (
	"strings"
	"time"
)

var (
	bookingDateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "Jan 2 2006", "January 2 2006", "Jan 2, 2006", "January 2, 2006"}
	bookingTimeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3 PM", "3PM"}
)

const fallbackBookingHour = 9

// scheduledStart turns the extracted pickup date and time into an instant
// in loc. A missing time means 09:00. When the date is missing or cannot
// be parsed the result is today at 09:00 and ok is false; the caller flags
// the call for review instead of rejecting the booking.
func scheduledStart(date, clock string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	fallback := func() (time.Time, bool) {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), fallbackBookingHour, 0, 0, 0, loc), false
	}

	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return fallback()
	}

	// a full timestamp in the date field wins
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t, true
	}

	var day time.Time
	parsed := false
	for _, layout := range bookingDateLayouts {
		if t, err := time.ParseInLocation(layout, date, loc); err == nil {
			day, parsed = t, true
			break
		}
	}
	if !parsed {
		return fallback()
	}

	hour, minute, sec := fallbackBookingHour, 0, 0
	if clock != "" {
		matched := false
		for _, layout := range bookingTimeLayouts {
			if t, err := time.Parse(layout, strings.ToUpper(clock)); err == nil {
				hour, minute, sec = t.Hour(), t.Minute(), t.Second()
				matched = true
				break
			}
		}
		if !matched {
			return fallback()
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, sec, 0, loc), true
}
