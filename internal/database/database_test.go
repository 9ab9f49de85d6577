package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carebridge/internal/config"
	"carebridge/internal/models"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "store.db"), Options{}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpsertProvider(context.Background(), &models.Provider{
		ID: 1, Name: "Dr. Okafor", IsAvailable: true, AcceptsNewPatients: true,
	}))
	return db
}

func insert(t *testing.T, db *DB, requesterID int64, date time.Time, start, end string) (*models.Appointment, error) {
	t.Helper()
	a := &models.Appointment{
		PublicID:    uuid.NewString(),
		ProviderID:  1,
		RequesterID: requesterID,
		Date:        date,
		StartTime:   models.MustClock(start),
		EndTime:     models.MustClock(end),
		Type:        models.TypeConsultation,
		Status:      models.StatusRequested,
		CreatedBy:   requesterID,
	}
	err := db.InTx(context.Background(), func(tx *Tx) error {
		return tx.InsertAppointment(context.Background(), a)
	})
	return a, err
}

func TestProviders(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	p, err := db.GetProvider(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Okafor", p.Name)
	assert.True(t, p.AcceptingBookings())

	require.NoError(t, db.SetProviderAccepting(ctx, 1, true, false))
	p, err = db.GetProvider(ctx, 1)
	require.NoError(t, err)
	assert.False(t, p.AcceptingBookings())

	require.NoError(t, db.UpsertProvider(ctx, &models.Provider{ID: 1, Name: "Dr. A. Okafor", IsAvailable: true, AcceptsNewPatients: true}))
	list, err := db.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Dr. A. Okafor", list[0].Name)

	_, err = db.GetProvider(ctx, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, db.SetProviderAccepting(ctx, 7, false, false), models.ErrNotFound)
}

func TestAvailabilityRules(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	rule, err := db.UpsertRule(ctx, &models.AvailabilityRule{
		ProviderID: 1, DayOfWeek: 0, StartTime: models.MustClock("09:00"), EndTime: models.MustClock("12:00"), Enabled: true,
	})
	require.NoError(t, err)

	got, err := db.RulesForDay(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rule.ID, got[0].ID)

	none, err := db.RulesForDay(ctx, 1, 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	afternoon, err := db.UpsertRule(ctx, &models.AvailabilityRule{
		ProviderID: 1, DayOfWeek: 0, StartTime: models.MustClock("14:00"), EndTime: models.MustClock("16:00"), Enabled: true,
	})
	require.NoError(t, err)
	got, err = db.RulesForDay(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{rule.ID, afternoon.ID}, []int64{got[0].ID, got[1].ID})
	_, err = db.SetRuleEnabled(ctx, afternoon.ID, false)
	require.NoError(t, err)

	_, err = db.UpsertRule(ctx, &models.AvailabilityRule{
		ProviderID: 1, DayOfWeek: 0, StartTime: models.MustClock("11:00"), EndTime: models.MustClock("14:00"), Enabled: true,
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	disabled, err := db.SetRuleEnabled(ctx, rule.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	none, err = db.RulesForDay(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, none, "disabled rules are not served")

	_, err = db.SetRuleEnabled(ctx, 999, true)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = db.GetRule(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)

	rules, err := db.ListRules(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestActiveSlotIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first, err := insert(t, db, 10, monday, "09:00", "09:30")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = insert(t, db, 11, monday, "09:00", "09:30")
	assert.ErrorIs(t, err, ErrConflict)

	ok, err := db.Transition(ctx, first.PublicID, []models.Status{models.StatusRequested}, models.StatusCancelled, nil)
	require.NoError(t, err)
	require.True(t, ok)

	// A cancelled appointment frees the slot for a new booking.
	_, err = insert(t, db, 11, monday, "09:00", "09:30")
	assert.NoError(t, err)

	active, err := db.ActiveOnDate(ctx, 1, monday)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(11), active[0].RequesterID)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	a, err := insert(t, db, 10, monday, "10:00", "10:30")
	require.NoError(t, err)

	ok, err := db.Transition(ctx, a.PublicID, []models.Status{models.StatusConfirmed}, models.StatusInProgress, nil)
	require.NoError(t, err)
	assert.False(t, ok, "status did not match")

	note := "Cancelled: running late"
	ok, err = db.Transition(ctx, a.PublicID, []models.Status{models.StatusRequested, models.StatusConfirmed}, models.StatusCancelled, &note)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetAppointment(ctx, a.PublicID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, note, got.ProviderNote)
	assert.Equal(t, "10:00", got.StartTime.String())
	assert.True(t, got.Date.Equal(monday))

	ok, err = db.Transition(ctx, "missing", []models.Status{models.StatusRequested}, models.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.GetAppointment(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequesterOverlaps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := insert(t, db, 10, monday, "09:00", "09:30")
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx *Tx) error {
		hits, err := tx.RequesterOverlaps(ctx, 10, monday, models.MustClock("09:15"), models.MustClock("09:45"))
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		hits, err = tx.RequesterOverlaps(ctx, 10, monday, models.MustClock("09:30"), models.MustClock("10:00"))
		require.NoError(t, err)
		assert.Empty(t, hits, "adjacent slots do not overlap")

		hits, err = tx.RequesterOverlaps(ctx, 20, monday, models.MustClock("09:00"), models.MustClock("09:30"))
		require.NoError(t, err)
		assert.Empty(t, hits)
		return nil
	})
	require.NoError(t, err)
}

func TestAppointmentQueries(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tuesday := monday.AddDate(0, 0, 1)
	a1, err := insert(t, db, 10, monday, "09:00", "09:30")
	require.NoError(t, err)
	_, err = insert(t, db, 10, tuesday, "14:00", "14:30")
	require.NoError(t, err)
	_, err = insert(t, db, 20, monday, "10:00", "10:30")
	require.NoError(t, err)

	byDay, err := db.ListForProvider(ctx, 1, &monday)
	require.NoError(t, err)
	assert.Len(t, byDay, 2)

	all, err := db.ListForProvider(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := db.ListForRequester(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].Date.Equal(tuesday), "newest first")

	confirmed := models.StatusConfirmed
	_, err = db.Transition(ctx, a1.PublicID, []models.Status{models.StatusRequested}, confirmed, nil)
	require.NoError(t, err)
	filtered, err := db.ListForRequester(ctx, 10, &confirmed)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, a1.PublicID, filtered[0].PublicID)

	upcoming, err := db.Upcoming(ctx, 10, monday.Add(9*time.Hour+15*time.Minute))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.True(t, upcoming[0].Date.Equal(tuesday))

	ranged, err := db.InDateRange(ctx, monday, monday)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestDueForNoShowAndReminder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	early, err := insert(t, db, 10, monday, "09:00", "09:30")
	require.NoError(t, err)
	late, err := insert(t, db, 11, monday, "15:00", "15:30")
	require.NoError(t, err)
	_, err = insert(t, db, 12, monday, "08:00", "08:30") // still requested
	require.NoError(t, err)

	for _, a := range []*models.Appointment{early, late} {
		ok, err := db.Transition(ctx, a.PublicID, []models.Status{models.StatusRequested}, models.StatusConfirmed, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	due, err := db.DueForNoShow(ctx, monday.Add(9*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.PublicID, due[0].PublicID)

	due, err = db.DueForNoShow(ctx, monday.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	remind, err := db.DueForReminder(ctx, monday)
	require.NoError(t, err)
	require.Len(t, remind, 2)

	require.NoError(t, db.MarkReminderSent(ctx, remind[0].ID))
	remind, err = db.DueForReminder(ctx, monday)
	require.NoError(t, err)
	assert.Len(t, remind, 1)
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	id1, err := db.InsertEvent(ctx, "appointment_requested", "a-1", []byte(`{"id":"a-1"}`))
	require.NoError(t, err)
	id2, err := db.InsertEvent(ctx, "appointment_confirmed", "a-1", []byte(`{"id":"a-1"}`))
	require.NoError(t, err)

	pending, err := db.PendingEvents(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.JSONEq(t, `{"id":"a-1"}`, string(pending[0].Payload))

	ok, err := db.MarkEventDelivered(ctx, id1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.MarkEventDelivered(ctx, id1)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery is a no-op")

	require.NoError(t, db.MarkEventFailed(ctx, id2, "boom"))
	pending, err = db.PendingEvents(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	pending, err = db.PendingEvents(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, pending, "exhausted entries are parked")

	// Cutoffs in other zones compare by instant, not by their text.
	tokyo, newYork := time.FixedZone("JST", 9*3600), time.FixedZone("EST", -5*3600)
	n, err := db.PurgeDeliveredEvents(ctx, time.Now().Add(-time.Minute).In(tokyo))
	require.NoError(t, err)
	assert.Zero(t, n, "delivered a moment ago, newer than the cutoff")

	n, err = db.PurgeDeliveredEvents(ctx, time.Now().Add(time.Minute).In(newYork))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrBusy}), ErrBusy)
	assert.ErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrLocked}), ErrBusy)
	assert.ErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), ErrConflict)
	assert.NotErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}), ErrConflict)
	assert.EqualError(t, classify(io.EOF), io.EOF.Error())
}

func TestBackupService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)
	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	stale := filepath.Join(dir, "backup_20200101_000000.db")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	svc.CleanupOldBackups()
	assert.NoFileExists(t, stale)
	assert.FileExists(t, other)
	assert.FileExists(t, path)

	// The snapshot is a usable database.
	logger2 := zerolog.New(io.Discard)
	restored, err := NewDB(path, Options{}, &logger2)
	require.NoError(t, err)
	defer restored.Close()
	p, err := restored.GetProvider(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Okafor", p.Name)
}
