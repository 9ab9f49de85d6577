package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"carebridge/internal/events"
	"carebridge/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) DueForNoShow(ctx context.Context, cutoff time.Time, limit int) ([]models.Appointment, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}

func (m *mockStore) DueForReminder(ctx context.Context, date time.Time) ([]models.Appointment, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}

func (m *mockStore) MarkReminderSent(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) PurgeDeliveredEvents(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockMarker struct {
	mock.Mock
}

func (m *mockMarker) MarkNoShow(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func newMocked(now time.Time) (*Scheduler, *mockStore, *mockMarker, *recorder) {
	logger := zerolog.Nop()
	store, marker, rec := &mockStore{}, &mockMarker{}, &recorder{}
	s := New(Config{
		NoShowGrace:  30 * time.Minute,
		BatchSize:    10,
		ReminderHour: 9,
		Now:          func() time.Time { return now },
	}, store, marker, rec, &logger)
	return s, store, marker, rec
}

func TestSweepNoShows_Mocked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("counts only successful marks", func(t *testing.T) {
		s, store, marker, _ := newMocked(now)
		store.On("DueForNoShow", ctx, now.Add(-30*time.Minute), 10).Return([]models.Appointment{
			{PublicID: "a"}, {PublicID: "b"}, {PublicID: "c"},
		}, nil)
		marker.On("MarkNoShow", ctx, "a").Return(&models.Appointment{PublicID: "a", Status: models.StatusNoShow}, nil)
		marker.On("MarkNoShow", ctx, "b").Return(nil, fmt.Errorf("%w: already started", models.ErrIllegalTransition))
		marker.On("MarkNoShow", ctx, "c").Return(nil, errors.New("disk I/O error"))

		assert.Equal(t, 1, s.SweepNoShows(ctx))
		store.AssertExpectations(t)
		marker.AssertExpectations(t)
	})

	t.Run("query failure", func(t *testing.T) {
		s, store, marker, _ := newMocked(now)
		store.On("DueForNoShow", ctx, mock.Anything, 10).Return(nil, errors.New("database is locked"))

		assert.Equal(t, 0, s.SweepNoShows(ctx))
		marker.AssertNotCalled(t, "MarkNoShow", mock.Anything, mock.Anything)
	})
}

func TestRunDaily_Mocked(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	s, store, marker, rec := newMocked(now)
	store.On("DueForNoShow", ctx, mock.Anything, 10).Return([]models.Appointment{}, nil)
	store.On("DueForReminder", ctx, tomorrow).Return([]models.Appointment{
		{ID: 7, PublicID: "x", ProviderID: 1, RequesterID: 100, Date: tomorrow, Status: models.StatusConfirmed},
		{ID: 8, PublicID: "y", ProviderID: 1, RequesterID: 101, Date: tomorrow, Status: models.StatusConfirmed},
	}, nil).Once()
	store.On("MarkReminderSent", ctx, int64(7)).Return(nil).Once()
	store.On("MarkReminderSent", ctx, int64(8)).Return(errors.New("readonly database")).Once()
	store.On("PurgeDeliveredEvents", ctx, now.Add(-7*24*time.Hour)).Return(int64(3), nil).Once()

	s.tick(ctx)
	// Second tick on the same day only sweeps.
	s.tick(ctx)

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "DueForNoShow", 2)
	store.AssertNumberOfCalls(t, "DueForReminder", 1)
	marker.AssertNotCalled(t, "MarkNoShow", mock.Anything, mock.Anything)
	assert.Equal(t, 2, rec.count(events.AppointmentReminder))
}
