package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carebridge/internal/database"
	"carebridge/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// OutboxStore persists events for reliable delivery.
type OutboxStore interface {
	InsertEvent(ctx context.Context, eventType, aggregateID string, payload []byte) (int64, error)
	PendingEvents(ctx context.Context, limit, maxAttempts int) ([]database.OutboxEntry, error)
	MarkEventDelivered(ctx context.Context, id int64) (bool, error)
	MarkEventFailed(ctx context.Context, id int64, cause string) error
}

// Outbox is an Emitter that appends events to the store.
type Outbox struct {
	store OutboxStore
}

func NewOutbox(store OutboxStore) *Outbox {
	return &Outbox{store: store}
}

func (o *Outbox) Emit(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := o.store.InsertEvent(ctx, string(event.Type), event.AppointmentID, data); err != nil {
		return err
	}
	return nil
}

// DispatcherConfig tunes the outbox delivery loop.
type DispatcherConfig struct {
	Interval      time.Duration
	BatchSize     int
	MaxAttempts   int
	RatePerSecond float64
	Burst         int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 30
	}
}

// Dispatcher polls the outbox and publishes entries on the bus.
type Dispatcher struct {
	store   OutboxStore
	bus     *Bus
	limiter *rate.Limiter
	config  DispatcherConfig
	logger  zerolog.Logger
}

func NewDispatcher(store OutboxStore, bus *Bus, cfg DispatcherConfig, logger *zerolog.Logger) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		store:   store,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		config:  cfg,
		logger:  logger.With().Str("component", "event_dispatcher").Logger(),
	}
}

// Start delivers pending events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Dur("interval", d.config.Interval).Msg("Event dispatcher started")

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Event dispatcher stopped")
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many entries were delivered.
func (d *Dispatcher) Drain(ctx context.Context) int {
	entries, err := d.store.PendingEvents(ctx, d.config.BatchSize, d.config.MaxAttempts)
	if err != nil {
		d.logger.Error().Err(err).Msg("Outbox fetch failed")
		return 0
	}

	delivered := 0
	for _, entry := range entries {
		if err := d.limiter.Wait(ctx); err != nil {
			return delivered
		}

		var event Event
		if err := json.Unmarshal(entry.Payload, &event); err != nil {
			d.fail(ctx, entry, fmt.Errorf("decode payload: %w", err))
			continue
		}
		event.ID = entry.ID

		if err := d.bus.Publish(ctx, event); err != nil {
			d.fail(ctx, entry, err)
			continue
		}

		if _, err := d.store.MarkEventDelivered(ctx, entry.ID); err != nil {
			d.logger.Error().Err(err).Int64("event_id", entry.ID).Msg("Failed to mark event delivered")
			continue
		}
		metrics.IncEvent(entry.Type, "delivered")
		delivered++
	}
	return delivered
}

func (d *Dispatcher) fail(ctx context.Context, entry database.OutboxEntry, cause error) {
	metrics.IncEvent(entry.Type, "delivery_failed")
	d.logger.Warn().Err(cause).
		Int64("event_id", entry.ID).
		Str("type", entry.Type).
		Int("attempt", entry.Attempts+1).
		Msg("Event delivery failed")
	if err := d.store.MarkEventFailed(ctx, entry.ID, cause.Error()); err != nil {
		d.logger.Error().Err(err).Int64("event_id", entry.ID).Msg("Failed to record delivery failure")
	}
}
