// Package booking turns booking requests into exclusive appointments.
package booking

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/availability"
	"carebridge/internal/database"
	"carebridge/internal/events"
	"carebridge/internal/metrics"
	"carebridge/internal/models"
	"carebridge/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Request is a requester's ask for one slot.
type Request struct {
	RequesterID int64
	ProviderID  int64
	Date        time.Time
	StartTime   models.Clock
	Type        models.AppointmentType
	Notes       string
	// Actor is who places the booking; its ID is stored as created_by.
	// The zero value means the requester books for itself.
	Actor models.Actor
}

// Store is the persistence the booking service needs.
type Store interface {
	TxRunner
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	GetAppointment(ctx context.Context, publicID string) (*models.Appointment, error)
	ListForProvider(ctx context.Context, providerID int64, date *time.Time) ([]models.Appointment, error)
	ListForRequester(ctx context.Context, requesterID int64, status *models.Status) ([]models.Appointment, error)
	Upcoming(ctx context.Context, requesterID int64, now time.Time) ([]models.Appointment, error)
	InDateRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
}

// Invalidator evicts cached slot sequences.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID int64, dates ...time.Time)
}

type Service struct {
	store       Store
	guard       *Guard
	invalidator Invalidator
	emitter     events.Emitter
	generator   *slots.Generator
	window      availability.Window
	logger      zerolog.Logger
}

func NewService(store Store, invalidator Invalidator, emitter events.Emitter, gen *slots.Generator,
	window availability.Window, retries int, logger *zerolog.Logger) *Service {
	return &Service{
		store:       store,
		guard:       NewGuard(store, retries, logger),
		invalidator: invalidator,
		emitter:     emitter,
		generator:   gen,
		window:      window,
		logger:      logger.With().Str("component", "booking").Logger(),
	}
}

// Book validates the request and reserves the slot. Checks run in order:
// provider eligibility, date window, the requester's own overlaps, and slot
// membership; the last two and the insert share one write transaction.
func (s *Service) Book(ctx context.Context, req Request) (*models.Appointment, error) {
	started := time.Now()
	a, err := s.book(ctx, req)
	metrics.ObserveReservation(time.Since(started).Seconds())

	if err != nil {
		kind := models.KindOf(err)
		metrics.IncBookingAttempt(string(kind))
		ev := s.logger.Debug()
		if kind == models.KindInternal {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Int64("provider_id", req.ProviderID).
			Int64("requester_id", req.RequesterID).
			Str("date", req.Date.Format(models.DateLayout)).
			Str("start", req.StartTime.String()).
			Msg("Booking rejected")
		return nil, err
	}
	metrics.IncBookingAttempt("success")

	s.invalidator.Invalidate(ctx, a.ProviderID, a.Date)
	events.EmitBestEffort(ctx, s.emitter, events.New(events.AppointmentRequested, a, req.bookedBy()), &s.logger)

	s.logger.Info().
		Str("appointment_id", a.PublicID).
		Int64("provider_id", a.ProviderID).
		Int64("requester_id", a.RequesterID).
		Str("date", a.DateString()).
		Str("start", a.StartTime.String()).
		Msg("Appointment requested")
	return a, nil
}

func (s *Service) book(ctx context.Context, req Request) (*models.Appointment, error) {
	typ, err := validate(&req)
	if err != nil {
		return nil, err
	}
	date := models.DateOf(req.Date)
	start := req.StartTime
	end := start.Add(s.generator.Duration())

	provider, err := s.store.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.AcceptingBookings() {
		return nil, fmt.Errorf("provider %d: %w", provider.ID, models.ErrUnavailable)
	}
	if err := s.window.Check(date); err != nil {
		return nil, err
	}

	var a *models.Appointment
	err = s.guard.Reserve(ctx, func(tx *database.Tx) error {
		clash, err := tx.RequesterOverlaps(ctx, req.RequesterID, date, start, end)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return fmt.Errorf("%w: %s %s-%s with provider %d", models.ErrSelfConflict,
				clash[0].DateString(), clash[0].StartTime, clash[0].EndTime, clash[0].ProviderID)
		}

		live, err := availability.Compute(ctx, tx, s.generator, req.ProviderID, date)
		if err != nil {
			return err
		}
		if !slots.Contains(live, start) {
			return fmt.Errorf("%w: %s %s with provider %d", models.ErrSlotTaken,
				date.Format(models.DateLayout), start, req.ProviderID)
		}

		a = &models.Appointment{
			PublicID:      uuid.NewString(),
			ProviderID:    req.ProviderID,
			RequesterID:   req.RequesterID,
			Date:          date,
			StartTime:     start,
			EndTime:       end,
			Type:          typ,
			Status:        models.StatusRequested,
			RequesterNote: req.Notes,
			CreatedBy:     req.Actor.ID,
		}
		return tx.InsertAppointment(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r Request) bookedBy() models.Actor {
	if r.Actor.Role == "" {
		return models.Actor{ID: r.RequesterID, Role: models.RoleRequester}
	}
	return r.Actor
}

func validate(req *Request) (models.AppointmentType, error) {
	if req.RequesterID <= 0 {
		return "", fmt.Errorf("%w: requester id is required", models.ErrValidation)
	}
	if req.ProviderID <= 0 {
		return "", fmt.Errorf("%w: provider id is required", models.ErrValidation)
	}
	if req.Date.IsZero() {
		return "", fmt.Errorf("%w: date is required", models.ErrValidation)
	}
	if req.StartTime < 0 || req.StartTime >= 24*60 {
		return "", fmt.Errorf("%w: start time %d out of range", models.ErrValidation, int(req.StartTime))
	}
	req.Actor = req.bookedBy()
	return models.ParseAppointmentType(string(req.Type))
}
