package availability

import (
	"fmt"
	"time"

	"carebridge/internal/models"
)

// Window is the range of dates that may be booked: today through today
// plus MaxAdvanceDays, in the scheduling location.
type Window struct {
	Location       *time.Location
	MaxAdvanceDays int
	Now            func() time.Time
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Instant returns the current time in the scheduling location.
func (w Window) Instant() time.Time {
	return w.now().In(w.location())
}

// Today returns the current calendar date.
func (w Window) Today() time.Time {
	return models.DateOf(w.Instant())
}

// Last returns the last bookable date.
func (w Window) Last() time.Time {
	return w.Today().AddDate(0, 0, w.MaxAdvanceDays)
}

// Check returns models.ErrOutOfRange for dates before today or after Last.
func (w Window) Check(date time.Time) error {
	date = models.DateOf(date)
	if date.Before(w.Today()) {
		return fmt.Errorf("%w: %s is in the past", models.ErrOutOfRange, date.Format(models.DateLayout))
	}
	if date.After(w.Last()) {
		return fmt.Errorf("%w: %s is more than %d days ahead", models.ErrOutOfRange,
			date.Format(models.DateLayout), w.MaxAdvanceDays)
	}
	return nil
}

// Dates returns every date of the window, optionally restricted to one
// weekday (0=Monday). Pass -1 for all days.
func (w Window) Dates(weekday int) []time.Time {
	var out []time.Time
	last := w.Last()
	for d := w.Today(); !d.After(last); d = d.AddDate(0, 0, 1) {
		if weekday < 0 || models.Weekday(d) == weekday {
			out = append(out, d)
		}
	}
	return out
}
