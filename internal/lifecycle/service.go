package lifecycle

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/events"
	"carebridge/internal/metrics"
	"carebridge/internal/models"

	"github.com/rs/zerolog"
)

// Store reads appointments and applies compare-and-swap status updates.
type Store interface {
	GetAppointment(ctx context.Context, publicID string) (*models.Appointment, error)
	Transition(ctx context.Context, publicID string, from []models.Status, next models.Status, providerNote *string) (bool, error)
}

// Invalidator evicts cached slot sequences.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID int64, dates ...time.Time)
}

// Policy holds the time-based guards.
type Policy struct {
	Location           *time.Location
	CancellationCutoff time.Duration
	NoShowGrace        time.Duration
	Now                func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

type Service struct {
	store       Store
	invalidator Invalidator
	emitter     events.Emitter
	policy      Policy
	logger      zerolog.Logger
}

func NewService(store Store, invalidator Invalidator, emitter events.Emitter, policy Policy, logger *zerolog.Logger) *Service {
	return &Service{
		store:       store,
		invalidator: invalidator,
		emitter:     emitter,
		policy:      policy,
		logger:      logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Confirm accepts a requested appointment.
func (s *Service) Confirm(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error) {
	return s.apply(ctx, change{id: id, actor: actor, next: models.StatusConfirmed})
}

// Start marks a confirmed appointment as in progress.
func (s *Service) Start(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error) {
	return s.apply(ctx, change{id: id, actor: actor, next: models.StatusInProgress})
}

// Complete closes a confirmed or in-progress appointment.
func (s *Service) Complete(ctx context.Context, id string, actor models.Actor) (*models.Appointment, error) {
	return s.apply(ctx, change{id: id, actor: actor, next: models.StatusCompleted})
}

// Cancel cancels a requested or confirmed appointment while its start is
// further away than the cancellation cutoff. A non-empty reason is written
// to the provider notes.
func (s *Service) Cancel(ctx context.Context, id string, actor models.Actor, reason string) (*models.Appointment, error) {
	c := change{id: id, actor: actor, next: models.StatusCancelled, reason: reason}
	if reason != "" {
		note := "Cancelled: " + reason
		c.note = &note
	}
	c.guard = func(a *models.Appointment) error {
		now, loc := s.policy.now(), s.policy.location()
		if a.WithinCutoff(now, loc, s.policy.CancellationCutoff) {
			return fmt.Errorf("%w: starts in %s, cutoff is %s", models.ErrCancellationWindowPassed,
				a.StartsAt(loc).Sub(now).Truncate(time.Minute), s.policy.CancellationCutoff)
		}
		return nil
	}
	return s.apply(ctx, c)
}

// MarkNoShow records that the requester did not turn up. Only the system
// actor may do this, once the grace period after the start has passed.
func (s *Service) MarkNoShow(ctx context.Context, id string) (*models.Appointment, error) {
	c := change{id: id, actor: models.SystemActor, next: models.StatusNoShow}
	c.guard = func(a *models.Appointment) error {
		due := a.StartsAt(s.policy.location()).Add(s.policy.NoShowGrace)
		if s.policy.now().Before(due) {
			return fmt.Errorf("%w: no-show grace runs until %s", models.ErrIllegalTransition, due.Format(time.RFC3339))
		}
		return nil
	}
	return s.apply(ctx, c)
}

type change struct {
	id     string
	actor  models.Actor
	next   models.Status
	note   *string
	reason string
	guard  func(a *models.Appointment) error
}

func (s *Service) apply(ctx context.Context, c change) (*models.Appointment, error) {
	a, err := s.transition(ctx, c)
	if err != nil {
		metrics.IncTransition(string(c.next), string(models.KindOf(err)))
		ev := s.logger.Debug()
		if models.KindOf(err) == models.KindInternal {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Str("appointment_id", c.id).
			Str("to", string(c.next)).
			Str("actor_role", string(c.actor.Role)).
			Int64("actor_id", c.actor.ID).
			Msg("Transition rejected")
		return nil, err
	}
	metrics.IncTransition(string(c.next), "success")

	if !c.next.IsActive() {
		s.invalidator.Invalidate(ctx, a.ProviderID, a.Date)
	}
	event := events.New(events.TypeFor(c.next), a, c.actor)
	event.Reason = c.reason
	events.EmitBestEffort(ctx, s.emitter, event, &s.logger)

	s.logger.Info().
		Str("appointment_id", a.PublicID).
		Str("status", string(a.Status)).
		Str("actor_role", string(c.actor.Role)).
		Int64("actor_id", c.actor.ID).
		Msg("Appointment status changed")
	return a, nil
}

func (s *Service) transition(ctx context.Context, c change) (*models.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, c.id)
	if err != nil {
		return nil, err
	}
	if err := authorize(c.actor, a, c.next); err != nil {
		return nil, err
	}
	if c.guard != nil {
		if err := c.guard(a); err != nil {
			return nil, err
		}
	}
	if !CanTransition(a.Status, c.next) {
		return nil, fmt.Errorf("%w: %s to %s", models.ErrIllegalTransition, a.Status, c.next)
	}

	// Compare against the status the checks above ran on.
	ok, err := s.store.Transition(ctx, a.PublicID, []models.Status{a.Status}, c.next, c.note)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else moved it between the read and the update.
		return nil, fmt.Errorf("%w: %s changed concurrently", models.ErrIllegalTransition, a.PublicID)
	}

	a.Status = c.next
	if c.note != nil {
		a.ProviderNote = *c.note
	}
	a.UpdatedAt = time.Now()
	return a, nil
}

// authorize checks the actor's role and that it acts on its own appointment.
func authorize(actor models.Actor, a *models.Appointment, next models.Status) error {
	if !CanAct(actor.Role, next) {
		return fmt.Errorf("%w: role %q cannot move an appointment to %s", models.ErrForbidden, actor.Role, next)
	}
	switch actor.Role {
	case models.RoleProvider:
		if actor.ID != a.ProviderID {
			return fmt.Errorf("%w: provider %d does not own appointment %s", models.ErrForbidden, actor.ID, a.PublicID)
		}
	case models.RoleRequester:
		if actor.ID != a.RequesterID {
			return fmt.Errorf("%w: requester %d does not own appointment %s", models.ErrForbidden, actor.ID, a.PublicID)
		}
	}
	return nil
}
