package events

import (
	"context"

	"carebridge/internal/metrics"

	"github.com/rs/zerolog"
)

// EmitBestEffort emits event and only logs failures. Lifecycle changes are
// committed before this runs and never depend on delivery.
func EmitBestEffort(ctx context.Context, emitter Emitter, event Event, logger *zerolog.Logger) {
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil {
		metrics.IncEvent(string(event.Type), "emit_failed")
		logger.Warn().Err(err).
			Str("type", string(event.Type)).
			Str("appointment_id", event.AppointmentID).
			Msg("Failed to emit lifecycle event")
		return
	}
	metrics.IncEvent(string(event.Type), "emitted")
}

// LogNotifier is the delivery subscriber used when no transport is wired.
// It records who would be notified.
func LogNotifier(logger *zerolog.Logger) Handler {
	l := logger.With().Str("component", "notifier").Logger()
	return func(_ context.Context, e Event) error {
		l.Info().
			Str("type", string(e.Type)).
			Str("appointment_id", e.AppointmentID).
			Ints64("recipients", e.Recipients).
			Str("date", e.Date).
			Str("start", e.StartTime.String()).
			Msg("Notification queued")
		return nil
	}
}
