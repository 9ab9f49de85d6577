// Package scheduler runs the periodic appointment jobs: the no-show sweep
// and the daily reminder pass.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"carebridge/internal/events"
	"carebridge/internal/metrics"
	"carebridge/internal/models"

	"github.com/rs/zerolog"
)

// Config holds configuration for the scheduler.
type Config struct {
	// CheckInterval is how often the loop wakes up.
	CheckInterval time.Duration
	// ReminderHour is the hour (0-23) from which reminders for tomorrow go out.
	ReminderHour int
	// NoShowGrace is how long after the start a confirmed appointment waits.
	NoShowGrace time.Duration
	// BatchSize caps the appointments handled per sweep.
	BatchSize int
	// OutboxRetention is how long delivered events are kept.
	OutboxRetention time.Duration
	Location        *time.Location
	Now             func() time.Time
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if c.NoShowGrace <= 0 {
		c.NoShowGrace = 30 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.OutboxRetention <= 0 {
		c.OutboxRetention = 7 * 24 * time.Hour
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Store provides the appointment queries the jobs run on.
type Store interface {
	DueForNoShow(ctx context.Context, cutoff time.Time, limit int) ([]models.Appointment, error)
	DueForReminder(ctx context.Context, date time.Time) ([]models.Appointment, error)
	MarkReminderSent(ctx context.Context, id int64) error
	PurgeDeliveredEvents(ctx context.Context, before time.Time) (int64, error)
}

// NoShowMarker applies the no-show transition.
type NoShowMarker interface {
	MarkNoShow(ctx context.Context, id string) (*models.Appointment, error)
}

// Scheduler manages the background job schedule.
type Scheduler struct {
	config      Config
	store       Store
	lifecycle   NoShowMarker
	emitter     events.Emitter
	logger      zerolog.Logger
	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of the last reminder pass
	running     bool
	stopCh      chan struct{}
}

func New(cfg Config, store Store, lifecycle NoShowMarker, emitter events.Emitter, logger *zerolog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		config:    cfg,
		store:     store,
		lifecycle: lifecycle,
		emitter:   emitter,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.config.CheckInterval).
		Int("reminder_hour", s.config.ReminderHour).
		Msg("Scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.markStopped()
			s.logger.Info().Msg("Scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

func (s *Scheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs every job immediately, ignoring the reminder hour.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.logger.Info().Msg("Manual job run triggered")
	s.SweepNoShows(ctx)
	s.runDaily(ctx, s.now())
}

func (s *Scheduler) now() time.Time {
	return s.config.Now().In(s.config.Location)
}

func (s *Scheduler) tick(ctx context.Context) {
	s.SweepNoShows(ctx)

	now := s.now()
	if now.Hour() < s.config.ReminderHour {
		return
	}
	s.mu.Lock()
	alreadyRan := s.lastRunDate == now.Format(models.DateLayout)
	s.mu.Unlock()
	if !alreadyRan {
		s.runDaily(ctx, now)
	}
}

func (s *Scheduler) runDaily(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.lastRunDate = now.Format(models.DateLayout)
	s.mu.Unlock()

	s.SendReminders(ctx)
	s.purgeOutbox(ctx, now)
}

// SweepNoShows moves confirmed appointments whose grace period has passed
// to no_show. It returns how many were marked.
func (s *Scheduler) SweepNoShows(ctx context.Context) int {
	cutoff := s.now().Add(-s.config.NoShowGrace)
	due, err := s.store.DueForNoShow(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		metrics.IncJob("no_show", "error")
		s.logger.Error().Err(err).Msg("Failed to fetch appointments due for no-show")
		return 0
	}

	marked := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		a := &due[i]
		if _, err := s.lifecycle.MarkNoShow(ctx, a.PublicID); err != nil {
			if errors.Is(err, models.ErrIllegalTransition) {
				// Started or cancelled since the query ran.
				metrics.IncJob("no_show", "skipped")
				continue
			}
			metrics.IncJob("no_show", "error")
			s.logger.Error().Err(err).Str("appointment_id", a.PublicID).Msg("Failed to mark no-show")
			continue
		}
		metrics.IncJob("no_show", "success")
		marked++
	}

	if len(due) > 0 {
		s.logger.Info().Int("due", len(due)).Int("marked", marked).Msg("No-show sweep finished")
	}
	return marked
}

// SendReminders emits a reminder for each confirmed appointment tomorrow
// that has not had one. It returns how many were sent.
func (s *Scheduler) SendReminders(ctx context.Context) int {
	started := time.Now()
	tomorrow := models.DateOf(s.now()).AddDate(0, 0, 1)

	due, err := s.store.DueForReminder(ctx, tomorrow)
	if err != nil {
		metrics.IncJob("reminder", "error")
		s.logger.Error().Err(err).Msg("Failed to fetch appointments due for reminder")
		return 0
	}

	stats := struct{ sent, failed int }{}
	for i := range due {
		if ctx.Err() != nil {
			s.logger.Info().Int("processed", stats.sent+stats.failed).Int("remaining", len(due)-stats.sent-stats.failed).
				Msg("Reminder processing interrupted")
			break
		}
		a := &due[i]
		if err := s.remind(ctx, a); err != nil {
			stats.failed++
			metrics.IncJob("reminder", "error")
			s.logger.Error().Err(err).Str("appointment_id", a.PublicID).Msg("Failed to send reminder")
			continue
		}
		stats.sent++
		metrics.IncJob("reminder", "success")
	}

	s.logger.Info().
		Str("date", tomorrow.Format(models.DateLayout)).
		Int("total", len(due)).
		Int("sent", stats.sent).
		Int("failed", stats.failed).
		Dur("duration", time.Since(started)).
		Msg("Daily reminders processed")
	return stats.sent
}

func (s *Scheduler) remind(ctx context.Context, a *models.Appointment) error {
	if err := s.emitter.Emit(ctx, events.New(events.AppointmentReminder, a, models.SystemActor)); err != nil {
		return err
	}
	return s.store.MarkReminderSent(ctx, a.ID)
}

func (s *Scheduler) purgeOutbox(ctx context.Context, now time.Time) {
	deleted, err := s.store.PurgeDeliveredEvents(ctx, now.Add(-s.config.OutboxRetention).UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to clean up delivered events")
		return
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("Cleaned up delivered events")
	}
}
