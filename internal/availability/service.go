package availability

import (
	"context"
	"fmt"
	"time"

	"carebridge/internal/cache"
	"carebridge/internal/metrics"
	"carebridge/internal/models"
	"carebridge/internal/slots"

	"github.com/rs/zerolog"
)

// SlotSource is the live data a slot sequence is computed from.
// Both *database.DB and *database.Tx satisfy it.
type SlotSource interface {
	RulesForDay(ctx context.Context, providerID int64, day int) ([]models.AvailabilityRule, error)
	ActiveOnDate(ctx context.Context, providerID int64, date time.Time) ([]models.Appointment, error)
}

// Store provides provider and rule persistence.
type Store interface {
	SlotSource
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	UpsertProvider(ctx context.Context, p *models.Provider) error
	SetProviderAccepting(ctx context.Context, id int64, isAvailable, acceptsNewPatients bool) error
	ListRules(ctx context.Context, providerID int64) ([]models.AvailabilityRule, error)
	GetRule(ctx context.Context, id int64) (*models.AvailabilityRule, error)
	UpsertRule(ctx context.Context, r *models.AvailabilityRule) (*models.AvailabilityRule, error)
	SetRuleEnabled(ctx context.Context, id int64, enabled bool) (*models.AvailabilityRule, error)
}

// Compute derives the slot sequence for a provider and date from src.
func Compute(ctx context.Context, src SlotSource, gen *slots.Generator, providerID int64, date time.Time) ([]models.Clock, error) {
	rules, err := src.RulesForDay(ctx, providerID, models.Weekday(date))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	booked, err := src.ActiveOnDate(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	return gen.GenerateDay(rules, booked), nil
}

// SlotList is the answer to a slot listing.
type SlotList struct {
	ProviderID int64        `json:"provider_id"`
	Date       string       `json:"date"`
	Slots      []slots.Slot `json:"slots"`
	Reason     models.Kind  `json:"reason,omitempty"`
}

// Service manages weekly availability and serves cached slot listings.
type Service struct {
	store     Store
	cache     cache.SlotCache
	generator *slots.Generator
	window    Window
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

func NewService(store Store, slotCache cache.SlotCache, gen *slots.Generator, window Window, cacheTTL time.Duration, logger *zerolog.Logger) *Service {
	if slotCache == nil {
		slotCache = cache.Noop{}
	}
	return &Service{
		store:     store,
		cache:     slotCache,
		generator: gen,
		window:    window,
		cacheTTL:  cacheTTL,
		logger:    logger.With().Str("component", "availability").Logger(),
	}
}

// ListAvailableSlots returns the bookable slots of a provider on date.
// Dates outside the window and providers not accepting bookings give an
// empty list with a reason instead of an error.
func (s *Service) ListAvailableSlots(ctx context.Context, providerID int64, date time.Time) (*SlotList, error) {
	date = models.DateOf(date)
	list := &SlotList{ProviderID: providerID, Date: date.Format(models.DateLayout), Slots: []slots.Slot{}}

	if err := s.window.Check(date); err != nil {
		list.Reason = models.KindOutOfRange
		return list, nil
	}

	starts, ok, err := s.cache.Get(ctx, providerID, date)
	switch {
	case err != nil:
		metrics.IncSlotCache("error")
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Slot cache read failed")
	case ok:
		metrics.IncSlotCache("hit")
		list.Slots = s.generator.Slots(starts)
		return list, nil
	default:
		metrics.IncSlotCache("miss")
	}

	provider, err := s.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider.AcceptingBookings() {
		starts, err = Compute(ctx, s.store, s.generator, providerID, date)
		if err != nil {
			return nil, fmt.Errorf("compute slots: %w", err)
		}
	} else {
		starts = nil
	}

	if err := s.cache.Set(ctx, providerID, date, starts, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Slot cache write failed")
	}

	if !provider.AcceptingBookings() {
		list.Reason = models.KindUnavailable
	}
	list.Slots = s.generator.Slots(starts)
	return list, nil
}

// Invalidate evicts the cached sequences for the given dates. Failures are
// logged; the TTL bounds any staleness left behind.
func (s *Service) Invalidate(ctx context.Context, providerID int64, dates ...time.Time) {
	if err := s.cache.Invalidate(ctx, providerID, dates...); err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Int("keys", len(dates)).Msg("Slot cache invalidation failed")
	}
}

// SetAvailability creates or updates the weekly rule keyed by
// (provider, day, start).
func (s *Service) SetAvailability(ctx context.Context, providerID int64, day int, start, end models.Clock, enabled bool) (*models.AvailabilityRule, error) {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	rule, err := s.store.UpsertRule(ctx, &models.AvailabilityRule{
		ProviderID: providerID,
		DayOfWeek:  day,
		StartTime:  start,
		EndTime:    end,
		Enabled:    enabled,
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, providerID, s.window.Dates(day)...)
	s.logger.Info().
		Int64("provider_id", providerID).
		Int("day_of_week", day).
		Str("window", start.String()+"-"+end.String()).
		Bool("enabled", enabled).
		Msg("Availability updated")
	return rule, nil
}

// ToggleRule flips a rule's enabled flag. Only the owning provider or the
// system actor may do so.
func (s *Service) ToggleRule(ctx context.Context, ruleID int64, actor models.Actor) (*models.AvailabilityRule, error) {
	current, err := s.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !ManagesProvider(actor, current.ProviderID) {
		return nil, fmt.Errorf("%w: rule %d belongs to provider %d", models.ErrForbidden, ruleID, current.ProviderID)
	}
	rule, err := s.store.SetRuleEnabled(ctx, ruleID, !current.Enabled)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, rule.ProviderID, s.window.Dates(rule.DayOfWeek)...)
	return rule, nil
}

// ManagesProvider reports whether actor may edit the provider's availability.
func ManagesProvider(actor models.Actor, providerID int64) bool {
	switch actor.Role {
	case models.RoleSystem:
		return true
	case models.RoleProvider:
		return actor.ID == providerID
	}
	return false
}

// ListRules returns a provider's weekly rules.
func (s *Service) ListRules(ctx context.Context, providerID int64) ([]models.AvailabilityRule, error) {
	if _, err := s.store.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, providerID)
}

// SetAccepting updates a provider's booking flags and evicts every cached day.
func (s *Service) SetAccepting(ctx context.Context, providerID int64, isAvailable, acceptsNewPatients bool) error {
	if err := s.store.SetProviderAccepting(ctx, providerID, isAvailable, acceptsNewPatients); err != nil {
		return err
	}
	s.Invalidate(ctx, providerID, s.window.Dates(-1)...)
	return nil
}
