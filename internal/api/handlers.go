package api

import (
	"context"
	"fmt"
	"net/http"

	"carebridge/internal/availability"
	"carebridge/internal/booking"
	"carebridge/internal/models"

	"github.com/go-chi/chi/v5"
)

// SetAvailabilityRequest is the body of PUT /providers/{providerID}/availability.
type SetAvailabilityRequest struct {
	DayOfWeek int    `json:"day_of_week"` // 0=Monday
	StartTime string `json:"start_time"`  // HH:MM
	EndTime   string `json:"end_time"`    // HH:MM
	Enabled   *bool  `json:"enabled,omitempty"`
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	ProviderID int64  `json:"provider_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM
	Type       string `json:"type,omitempty"`
	Notes      string `json:"notes,omitempty"`
	// RequesterID is required when a provider or the system books on
	// someone's behalf; requesters always book for themselves.
	RequesterID int64 `json:"requester_id,omitempty"`
}

// CancelRequest is the optional body of POST /appointments/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

type appointmentList struct {
	Appointments []models.Appointment `json:"appointments"`
}

func listOf(items []models.Appointment) appointmentList {
	if items == nil {
		items = []models.Appointment{}
	}
	return appointmentList{Appointments: items}
}

// GET /providers/{providerID}/slots?date=YYYY-MM-DD
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	providerID, err := idParam(r, "providerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := dateQuery(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if date == nil {
		s.writeError(w, r, fmt.Errorf("%w: date is required", models.ErrValidation))
		return
	}

	list, err := s.slots.ListAvailableSlots(r.Context(), providerID, *date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /providers/{providerID}/availability
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	providerID, err := idParam(r, "providerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rules, err := s.slots.ListRules(r.Context(), providerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []models.AvailabilityRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// PUT /providers/{providerID}/availability
func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, err := idParam(r, "providerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !availability.ManagesProvider(actor, providerID) {
		s.writeError(w, r, fmt.Errorf("%w: only provider %d may change this availability", models.ErrForbidden, providerID))
		return
	}

	var req SetAvailabilityRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := models.ParseClock(req.StartTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := models.ParseClock(req.EndTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	enabled := req.Enabled == nil || *req.Enabled

	rule, err := s.slots.SetAvailability(r.Context(), providerID, req.DayOfWeek, start, end, enabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// POST /availability/{ruleID}/toggle
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := idParam(r, "ruleID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := actorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.slots.ToggleRule(r.Context(), ruleID, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// GET /providers/{providerID}/appointments?date=
func (s *Server) handleProviderAppointments(w http.ResponseWriter, r *http.Request) {
	providerID, err := idParam(r, "providerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := dateQuery(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.booking.ForProvider(r.Context(), providerID, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

// GET /requesters/{requesterID}/appointments?status=
func (s *Server) handleRequesterAppointments(w http.ResponseWriter, r *http.Request) {
	requesterID, err := idParam(r, "requesterID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status = &st
	}
	items, err := s.booking.ForRequester(r.Context(), requesterID, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

// GET /requesters/{requesterID}/appointments/upcoming
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	requesterID, err := idParam(r, "requesterID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.booking.Upcoming(r.Context(), requesterID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

// GET /appointments?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleAppointmentsInRange(w http.ResponseWriter, r *http.Request) {
	from, err := dateQuery(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if from == nil || to == nil {
		s.writeError(w, r, fmt.Errorf("%w: from and to are required", models.ErrValidation))
		return
	}
	items, err := s.booking.InDateRange(r.Context(), *from, *to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listOf(items))
}

// POST /appointments
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body BookRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	req, err := bookingRequest(actor, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.booking.Book(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func bookingRequest(actor models.Actor, body BookRequest) (booking.Request, error) {
	date, err := models.ParseDate(body.Date)
	if err != nil {
		return booking.Request{}, err
	}
	start, err := models.ParseClock(body.StartTime)
	if err != nil {
		return booking.Request{}, err
	}

	requesterID := body.RequesterID
	switch actor.Role {
	case models.RoleRequester:
		if requesterID != 0 && requesterID != actor.ID {
			return booking.Request{}, fmt.Errorf("%w: requesters book for themselves", models.ErrForbidden)
		}
		requesterID = actor.ID
	case models.RoleProvider:
		if body.ProviderID != actor.ID {
			return booking.Request{}, fmt.Errorf("%w: providers book into their own calendar", models.ErrForbidden)
		}
	}

	return booking.Request{
		RequesterID: requesterID,
		ProviderID:  body.ProviderID,
		Date:        date,
		StartTime:   start,
		Type:        models.AppointmentType(body.Type),
		Notes:       body.Notes,
		Actor:       actor,
	}, nil
}

// GET /appointments/{id}
func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := s.booking.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type transitionFunc func(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error)

// transitionHandler serves the body-less status changes.
func (s *Server) transitionHandler(apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		a, err := apply(r.Context(), chi.URLParam(r, "id"), actor)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /appointments/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	a, err := s.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), actor, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
