package availability

import (
	"context"
	"fmt"

	"carebridge/internal/config"
	"carebridge/internal/models"
)

// SyncFromConfig applies providers.yaml to the store. It upserts providers,
// disables rules that disappeared before writing the configured ones, and
// marks providers missing from the file as unavailable.
func (s *Service) SyncFromConfig(ctx context.Context, cfg *config.ProvidersConfig) error {
	if cfg == nil {
		return fmt.Errorf("providers config is nil")
	}

	seen := make(map[int64]struct{})
	for _, pc := range cfg.Providers {
		isAvailable, acceptsNew := pc.Accepting()
		if err := s.store.UpsertProvider(ctx, &models.Provider{
			ID:                 pc.ID,
			Name:               pc.Name,
			IsAvailable:        isAvailable,
			AcceptsNewPatients: acceptsNew,
		}); err != nil {
			return err
		}
		s.Invalidate(ctx, pc.ID, s.window.Dates(-1)...)
		seen[pc.ID] = struct{}{}

		if err := s.syncRules(ctx, pc); err != nil {
			return fmt.Errorf("sync provider %d availability: %w", pc.ID, err)
		}
	}

	providers, err := s.store.ListProviders(ctx)
	if err != nil {
		return err
	}
	for _, p := range providers {
		if _, ok := seen[p.ID]; ok || !p.IsAvailable {
			continue
		}
		if err := s.SetAccepting(ctx, p.ID, false, p.AcceptsNewPatients); err != nil {
			return fmt.Errorf("deactivate provider %d: %w", p.ID, err)
		}
	}

	s.logger.Info().Int("providers", len(cfg.Providers)).Msg("Providers synced from config")
	return nil
}

type ruleKey struct {
	day   int
	start models.Clock
}

func (s *Service) syncRules(ctx context.Context, pc config.ProviderConfig) error {
	wanted := make(map[ruleKey]struct{}, len(pc.Availability))
	for _, a := range pc.Availability {
		start, err := models.ParseClock(a.StartTime)
		if err != nil {
			return err
		}
		wanted[ruleKey{a.DayOfWeek, start}] = struct{}{}
	}

	existing, err := s.store.ListRules(ctx, pc.ID)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if _, ok := wanted[ruleKey{r.DayOfWeek, r.StartTime}]; ok || !r.Enabled {
			continue
		}
		if _, err := s.store.SetRuleEnabled(ctx, r.ID, false); err != nil {
			return err
		}
		s.Invalidate(ctx, pc.ID, s.window.Dates(r.DayOfWeek)...)
	}

	// Disabled windows go first so a reshaped day never overlaps itself.
	ordered := make([]config.AvailabilityConfig, 0, len(pc.Availability))
	for _, a := range pc.Availability {
		if !a.IsEnabled() {
			ordered = append(ordered, a)
		}
	}
	for _, a := range pc.Availability {
		if a.IsEnabled() {
			ordered = append(ordered, a)
		}
	}

	for _, a := range ordered {
		start, err := models.ParseClock(a.StartTime)
		if err != nil {
			return err
		}
		end, err := models.ParseClock(a.EndTime)
		if err != nil {
			return err
		}
		if _, err := s.SetAvailability(ctx, pc.ID, a.DayOfWeek, start, end, a.IsEnabled()); err != nil {
			return err
		}
	}
	return nil
}
