package booking

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/models"
)

// Get returns an appointment by its public ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// ForProvider lists a provider's appointments, optionally for a single date.
func (s *Service) ForProvider(ctx context.Context, providerID int64, date *time.Time) ([]models.Appointment, error) {
	if date != nil {
		d := models.DateOf(*date)
		date = &d
	}
	return s.store.ListForProvider(ctx, providerID, date)
}

// ForRequester lists a requester's appointments, newest first.
func (s *Service) ForRequester(ctx context.Context, requesterID int64, status *models.Status) ([]models.Appointment, error) {
	return s.store.ListForRequester(ctx, requesterID, status)
}

// Upcoming lists the requester's pending and confirmed appointments that have
// not started yet.
func (s *Service) Upcoming(ctx context.Context, requesterID int64) ([]models.Appointment, error) {
	return s.store.Upcoming(ctx, requesterID, s.window.Instant())
}

func (s *Service) InDateRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s to %s is inverted", models.ErrValidation,
			from.Format(models.DateLayout), to.Format(models.DateLayout))
	}
	return s.store.InDateRange(ctx, from, to)
}
