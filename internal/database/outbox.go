package database

import (
	"context"
	"fmt"
	"time"
)

// OutboxEntry is a persisted lifecycle event awaiting delivery.
type OutboxEntry struct {
	ID          int64
	Type        string
	AggregateID string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}

// InsertEvent appends an event to the outbox.
func (db *DB) InsertEvent(ctx context.Context, eventType, aggregateID string, payload []byte) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO event_outbox (event_type, aggregate_id, payload, created_at)
		VALUES (?, ?, ?, ?)`, eventType, aggregateID, string(payload), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert outbox event: %w", err)
	}
	return res.LastInsertId()
}

// PendingEvents returns undelivered events oldest first, skipping entries
// that exhausted maxAttempts.
func (db *DB) PendingEvents(ctx context.Context, limit, maxAttempts int) ([]OutboxEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload, attempts, created_at
		FROM event_outbox
		WHERE delivered_at IS NULL AND attempts < ?
		ORDER BY id
		LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending events: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkEventDelivered stamps delivered_at. It reports false if already delivered.
func (db *DB) MarkEventDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE event_outbox SET delivered_at = ? WHERE id = ? AND delivered_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark event delivered: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkEventFailed records a failed delivery attempt.
func (db *DB) MarkEventFailed(ctx context.Context, id int64, cause string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE event_outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, cause, id)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// PurgeDeliveredEvents deletes delivered events older than before. Timestamps
// are stored as UTC text, so before is converted before comparing.
func (db *DB) PurgeDeliveredEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM event_outbox WHERE delivered_at IS NOT NULL AND delivered_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge delivered events: %w", err)
	}
	return res.RowsAffected()
}
