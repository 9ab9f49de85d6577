package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carebridge/internal/models"
)

const appointmentColumns = `id, public_id, provider_id, requester_id, appointment_date, start_time, end_time,
	appointment_type, status, requester_notes, provider_notes, created_by, reminder_sent, created_at, updated_at`

// activeStatusList is the SQL literal list of active statuses.
var activeStatusList = inList(models.ActiveStatuses)

func inList(statuses []models.Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = "'" + string(s) + "'"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                models.Appointment
		date, start, end string
		typ, status      string
	)
	err := row.Scan(&a.ID, &a.PublicID, &a.ProviderID, &a.RequesterID, &date, &start, &end,
		&typ, &status, &a.RequesterNote, &a.ProviderNote, &a.CreatedBy, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Date, err = models.ParseDate(date); err != nil {
		return nil, err
	}
	if a.StartTime, err = models.ParseClock(start); err != nil {
		return nil, err
	}
	if a.EndTime, err = models.ParseClock(end); err != nil {
		return nil, err
	}
	a.Type = models.AppointmentType(typ)
	a.Status = models.Status(status)
	return &a, nil
}

func queryAppointments(ctx context.Context, q querier, query string, args ...any) ([]models.Appointment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAppointment returns an appointment by its public ID.
func (db *DB) GetAppointment(ctx context.Context, publicID string) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE public_id = ?`, publicID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", publicID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", publicID, err)
	}
	return a, nil
}

func activeOnDate(ctx context.Context, q querier, providerID int64, date time.Time) ([]models.Appointment, error) {
	out, err := queryAppointments(ctx, q, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = ? AND appointment_date = ? AND status IN `+activeStatusList+`
		ORDER BY start_time`, providerID, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("active appointments for provider %d: %w", providerID, err)
	}
	return out, nil
}

// ActiveOnDate returns the provider's active appointments for a date.
func (db *DB) ActiveOnDate(ctx context.Context, providerID int64, date time.Time) ([]models.Appointment, error) {
	return activeOnDate(ctx, db, providerID, date)
}

// ActiveOnDate is the transactional variant of DB.ActiveOnDate.
func (t *Tx) ActiveOnDate(ctx context.Context, providerID int64, date time.Time) ([]models.Appointment, error) {
	return activeOnDate(ctx, t.tx, providerID, date)
}

// RequesterOverlaps returns the requester's active appointments on date that
// intersect [start, end), across all providers.
func (t *Tx) RequesterOverlaps(ctx context.Context, requesterID int64, date time.Time, start, end models.Clock) ([]models.Appointment, error) {
	out, err := queryAppointments(ctx, t.tx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = ? AND appointment_date = ?
		  AND start_time < ? AND end_time > ?
		  AND status IN `+activeStatusList,
		requesterID, date.Format(models.DateLayout), end.String(), start.String())
	if err != nil {
		return nil, fmt.Errorf("requester %d overlaps: %w", requesterID, err)
	}
	return out, nil
}

// InsertAppointment stores a new appointment and fills its row ID.
// A lost race on the active slot index is reported as ErrConflict.
func (t *Tx) InsertAppointment(ctx context.Context, a *models.Appointment) error {
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO appointments (public_id, provider_id, requester_id, appointment_date, start_time, end_time,
			appointment_type, status, requester_notes, provider_notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PublicID, a.ProviderID, a.RequesterID, a.DateString(), a.StartTime.String(), a.EndTime.String(),
		string(a.Type), string(a.Status), a.RequesterNote, a.ProviderNote, a.CreatedBy, now, now)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", classify(err))
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// Transition atomically moves an appointment from one of the expected
// statuses to next. It returns false when the current status did not match.
// A non-nil providerNote replaces the provider notes in the same update.
func (db *DB) Transition(ctx context.Context, publicID string, from []models.Status, next models.Status, providerNote *string) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{string(next), providerNote, time.Now(), publicID}
	res, err := db.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?, provider_notes = COALESCE(?, provider_notes), updated_at = ?
		WHERE public_id = ? AND status IN `+inList(from), args...)
	if err != nil {
		return false, fmt.Errorf("transition %s to %s: %w", publicID, next, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListForProvider returns a provider's appointments, optionally for one date.
func (db *DB) ListForProvider(ctx context.Context, providerID int64, date *time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE provider_id = ?`
	args := []any{providerID}
	if date != nil {
		query += ` AND appointment_date = ?`
		args = append(args, date.Format(models.DateLayout))
	}
	query += ` ORDER BY appointment_date, start_time`

	out, err := queryAppointments(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments for provider %d: %w", providerID, err)
	}
	return out, nil
}

// ListForRequester returns a requester's appointments, optionally filtered by status.
func (db *DB) ListForRequester(ctx context.Context, requesterID int64, status *models.Status) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE requester_id = ?`
	args := []any{requesterID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY appointment_date DESC, start_time DESC`

	out, err := queryAppointments(ctx, db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments for requester %d: %w", requesterID, err)
	}
	return out, nil
}

// Upcoming returns the requester's requested or confirmed appointments from now on.
func (db *DB) Upcoming(ctx context.Context, requesterID int64, now time.Time) ([]models.Appointment, error) {
	today := now.Format(models.DateLayout)
	out, err := queryAppointments(ctx, db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = ? AND status IN ('requested', 'confirmed')
		  AND (appointment_date > ? OR (appointment_date = ? AND start_time >= ?))
		ORDER BY appointment_date, start_time`,
		requesterID, today, today, now.Format("15:04"))
	if err != nil {
		return nil, fmt.Errorf("upcoming appointments for requester %d: %w", requesterID, err)
	}
	return out, nil
}

// InDateRange returns all appointments with from <= date <= to.
func (db *DB) InDateRange(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	out, err := queryAppointments(ctx, db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date BETWEEN ? AND ?
		ORDER BY appointment_date, start_time`,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("appointments in range: %w", err)
	}
	return out, nil
}

// DueForNoShow returns confirmed appointments that started at or before
// cutoff, given as wall-clock time in the scheduling location.
func (db *DB) DueForNoShow(ctx context.Context, cutoff time.Time, limit int) ([]models.Appointment, error) {
	day := cutoff.Format(models.DateLayout)
	out, err := queryAppointments(ctx, db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND (appointment_date < ? OR (appointment_date = ? AND start_time <= ?))
		ORDER BY appointment_date, start_time
		LIMIT ?`, day, day, cutoff.Format("15:04"), limit)
	if err != nil {
		return nil, fmt.Errorf("due for no-show: %w", err)
	}
	return out, nil
}

// DueForReminder returns confirmed appointments on date without a reminder.
func (db *DB) DueForReminder(ctx context.Context, date time.Time) ([]models.Appointment, error) {
	out, err := queryAppointments(ctx, db, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND appointment_date = ? AND reminder_sent = 0
		ORDER BY start_time`, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("due for reminder: %w", err)
	}
	return out, nil
}

// MarkReminderSent flags an appointment as reminded.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE appointments SET reminder_sent = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
