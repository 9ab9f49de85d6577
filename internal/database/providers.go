package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carebridge/internal/models"
)

// UpsertProvider creates or updates a provider, preserving created_at.
func (db *DB) UpsertProvider(ctx context.Context, p *models.Provider) error {
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO providers (id, name, is_available, accepts_new_patients, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_available = excluded.is_available,
			accepts_new_patients = excluded.accepts_new_patients,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, boolToInt(p.IsAvailable), boolToInt(p.AcceptsNewPatients), now, now)
	if err != nil {
		return fmt.Errorf("upsert provider %d: %w", p.ID, err)
	}
	return nil
}

// GetProvider returns a provider by ID or models.ErrNotFound.
func (db *DB) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	var p models.Provider
	err := db.QueryRowContext(ctx, `
		SELECT id, name, is_available, accepts_new_patients, created_at, updated_at
		FROM providers WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.IsAvailable, &p.AcceptsNewPatients, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %d: %w", id, err)
	}
	return &p, nil
}

// ListProviders returns all providers ordered by ID.
func (db *DB) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, is_available, accepts_new_patients, created_at, updated_at
		FROM providers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.IsAvailable, &p.AcceptsNewPatients, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetProviderAccepting updates the booking eligibility flags.
func (db *DB) SetProviderAccepting(ctx context.Context, id int64, isAvailable, acceptsNewPatients bool) error {
	res, err := db.ExecContext(ctx, `
		UPDATE providers SET is_available = ?, accepts_new_patients = ?, updated_at = ?
		WHERE id = ?`,
		boolToInt(isAvailable), boolToInt(acceptsNewPatients), time.Now(), id)
	if err != nil {
		return fmt.Errorf("update provider %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("provider %d: %w", id, models.ErrNotFound)
	}
	return nil
}
