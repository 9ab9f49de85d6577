package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carebridge/internal/database"
	"carebridge/internal/metrics"
	"carebridge/internal/models"

	"github.com/rs/zerolog"
)

// TxRunner runs a function inside a write transaction that holds the
// store's write lock from its first statement.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *database.Tx) error) error
}

// Guard turns a check-and-insert into an exclusive reservation. The
// transaction serializes competing bookings; the partial unique index on
// active slots catches anything that slips past the checks.
type Guard struct {
	store   TxRunner
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

// NewGuard returns a guard that retries lock contention up to retries times.
func NewGuard(store TxRunner, retries int, logger *zerolog.Logger) *Guard {
	if retries < 0 {
		retries = 0
	}
	return &Guard{
		store:   store,
		retries: retries,
		backoff: 25 * time.Millisecond,
		logger:  logger.With().Str("component", "conflict_guard").Logger(),
	}
}

// Reserve runs fn atomically. A unique violation and exhausted lock retries
// are both reported as models.ErrSlotTaken.
func (g *Guard) Reserve(ctx context.Context, fn func(tx *database.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := g.store.InTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, database.ErrConflict):
			return fmt.Errorf("%w: %v", models.ErrSlotTaken, err)
		case !errors.Is(err, database.ErrBusy):
			return err
		}

		if attempt >= g.retries {
			g.logger.Warn().Err(err).Int("attempts", attempt+1).Msg("Reservation gave up on lock contention")
			return fmt.Errorf("%w: store busy after %d attempts", models.ErrSlotTaken, attempt+1)
		}

		metrics.IncReservationRetry()
		g.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("Write lock busy, retrying reservation")

		timer := time.NewTimer(g.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
