package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses are the statuses that occupy a timeslot.
var ActiveStatuses = []Status{StatusRequested, StatusConfirmed, StatusInProgress}

// IsActive reports whether the status occupies its timeslot.
func (s Status) IsActive() bool {
	return s == StatusRequested || s == StatusConfirmed || s == StatusInProgress
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusRequested, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("%w: status %q", ErrValidation, s)
}

// AppointmentType is the kind of visit.
type AppointmentType string

const (
	TypeConsultation    AppointmentType = "consultation"
	TypeFollowUp        AppointmentType = "follow_up"
	TypeCheckup         AppointmentType = "checkup"
	TypeEmergency       AppointmentType = "emergency"
	TypePhysicalTherapy AppointmentType = "physical_therapy"
	TypeLabWork         AppointmentType = "lab_work"
	TypeImaging         AppointmentType = "imaging"
)

// ParseAppointmentType validates a type string. Empty means consultation.
func ParseAppointmentType(s string) (AppointmentType, error) {
	if s == "" {
		return TypeConsultation, nil
	}
	switch t := AppointmentType(s); t {
	case TypeConsultation, TypeFollowUp, TypeCheckup, TypeEmergency,
		TypePhysicalTherapy, TypeLabWork, TypeImaging:
		return t, nil
	}
	return "", fmt.Errorf("%w: appointment type %q", ErrValidation, s)
}

// Appointment is a booked visit of a requester with a provider.
type Appointment struct {
	ID            int64           `json:"-"`
	PublicID      string          `json:"id"`
	ProviderID    int64           `json:"provider_id"`
	RequesterID   int64           `json:"requester_id"`
	Date          time.Time       `json:"-"`
	StartTime     Clock           `json:"start_time"`
	EndTime       Clock           `json:"end_time"`
	Type          AppointmentType `json:"type"`
	Status        Status          `json:"status"`
	RequesterNote string          `json:"requester_notes,omitempty"`
	ProviderNote  string          `json:"provider_notes,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	ReminderSent  bool            `json:"reminder_sent"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DateString returns the appointment date as YYYY-MM-DD.
func (a *Appointment) DateString() string {
	return a.Date.Format(DateLayout)
}

// Duration is derived from the stored interval.
func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// StartsAt returns the scheduled start as an instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.StartTime.On(a.Date, loc)
}

// Overlaps reports whether [start, end) intersects the appointment on the same date.
func (a *Appointment) Overlaps(start, end Clock) bool {
	return start < a.EndTime && a.StartTime < end
}

// WithinCutoff reports whether the start is cutoff or less away from now.
// Appointments that already started are always within it.
func (a *Appointment) WithinCutoff(now time.Time, loc *time.Location, cutoff time.Duration) bool {
	return a.StartsAt(loc).Sub(now) <= cutoff
}

// MarshalJSON adds the calendar date in YYYY-MM-DD form.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date     string `json:"date"`
		Duration int    `json:"duration_minutes"`
	}{alias(a), a.DateString(), int(a.Duration() / time.Minute)})
}
