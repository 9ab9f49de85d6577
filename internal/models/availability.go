package models

import (
	"fmt"
	"time"
)

// AvailabilityRule is a provider's recurring weekly open window.
type AvailabilityRule struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id"`
	DayOfWeek  int       `json:"day_of_week"` // 0-6 (Monday-Sunday)
	StartTime  Clock     `json:"start_time"`
	EndTime    Clock     `json:"end_time"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the rule's own fields.
func (r *AvailabilityRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("%w: day of week %d", ErrValidation, r.DayOfWeek)
	}
	if r.StartTime < 0 || r.EndTime > 24*60 {
		return fmt.Errorf("%w: window %s-%s", ErrValidation, r.StartTime, r.EndTime)
	}
	if r.StartTime >= r.EndTime {
		return fmt.Errorf("%w: start %s must be before end %s", ErrValidation, r.StartTime, r.EndTime)
	}
	return nil
}

// Overlaps reports whether two rules of the same day share any minute.
func (r *AvailabilityRule) Overlaps(other *AvailabilityRule) bool {
	return r.DayOfWeek == other.DayOfWeek && r.StartTime < other.EndTime && other.StartTime < r.EndTime
}

// Provider is a care provider that publishes availability.
type Provider struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	IsAvailable        bool      `json:"is_available"`
	AcceptsNewPatients bool      `json:"accepts_new_patients"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// AcceptingBookings reports whether new appointments may be requested.
func (p *Provider) AcceptingBookings() bool {
	return p.IsAvailable && p.AcceptsNewPatients
}
