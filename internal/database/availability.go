package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carebridge/internal/models"
)

const ruleColumns = `id, provider_id, day_of_week, start_time, end_time, is_available, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AvailabilityRule, error) {
	var (
		r          models.AvailabilityRule
		start, end string
	)
	if err := row.Scan(&r.ID, &r.ProviderID, &r.DayOfWeek, &start, &end, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.StartTime, err = models.ParseClock(start); err != nil {
		return nil, fmt.Errorf("rule %d start: %w", r.ID, err)
	}
	if r.EndTime, err = models.ParseClock(end); err != nil {
		return nil, fmt.Errorf("rule %d end: %w", r.ID, err)
	}
	return &r, nil
}

func queryRules(ctx context.Context, q querier, query string, args ...any) ([]models.AvailabilityRule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// rulesForDay returns the enabled rules of a provider for a weekday ordered by start.
func rulesForDay(ctx context.Context, q querier, providerID int64, day int) ([]models.AvailabilityRule, error) {
	rules, err := queryRules(ctx, q, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = ? AND day_of_week = ? AND is_available = 1
		ORDER BY start_time`, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("get rules for provider %d day %d: %w", providerID, day, err)
	}
	return rules, nil
}

// RulesForDay returns the enabled windows of a provider for a weekday; none means closed.
func (db *DB) RulesForDay(ctx context.Context, providerID int64, day int) ([]models.AvailabilityRule, error) {
	return rulesForDay(ctx, db, providerID, day)
}

// RulesForDay is the transactional variant of DB.RulesForDay.
func (t *Tx) RulesForDay(ctx context.Context, providerID int64, day int) ([]models.AvailabilityRule, error) {
	return rulesForDay(ctx, t.tx, providerID, day)
}

// ListRules returns all rules of a provider ordered by day and start.
func (db *DB) ListRules(ctx context.Context, providerID int64) ([]models.AvailabilityRule, error) {
	rules, err := queryRules(ctx, db, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = ?
		ORDER BY day_of_week, start_time`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list rules for provider %d: %w", providerID, err)
	}
	return rules, nil
}

// GetRule returns a rule by ID or models.ErrNotFound.
func (db *DB) GetRule(ctx context.Context, id int64) (*models.AvailabilityRule, error) {
	r, err := scanRule(db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("availability rule %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return r, nil
}

// checkRuleOverlap rejects an enabled rule that would overlap another enabled
// rule of the same provider and day.
func checkRuleOverlap(ctx context.Context, q querier, r *models.AvailabilityRule) error {
	if !r.Enabled {
		return nil
	}
	others, err := queryRules(ctx, q, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE provider_id = ? AND day_of_week = ? AND is_available = 1 AND start_time <> ?`,
		r.ProviderID, r.DayOfWeek, r.StartTime.String())
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	for i := range others {
		if r.Overlaps(&others[i]) {
			return fmt.Errorf("%w: window %s-%s overlaps %s-%s", models.ErrValidation,
				r.StartTime, r.EndTime, others[i].StartTime, others[i].EndTime)
		}
	}
	return nil
}

// UpsertRule creates or updates the rule keyed by (provider, day, start).
// The overlap check and the write share one transaction.
func (db *DB) UpsertRule(ctx context.Context, r *models.AvailabilityRule) (*models.AvailabilityRule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var saved *models.AvailabilityRule
	err := db.InTx(ctx, func(tx *Tx) error {
		if err := checkRuleOverlap(ctx, tx.tx, r); err != nil {
			return err
		}

		now := time.Now()
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO availability_rules (provider_id, day_of_week, start_time, end_time, is_available, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(provider_id, day_of_week, start_time) DO UPDATE SET
				end_time = excluded.end_time,
				is_available = excluded.is_available,
				updated_at = excluded.updated_at`,
			r.ProviderID, r.DayOfWeek, r.StartTime.String(), r.EndTime.String(), boolToInt(r.Enabled), now, now)
		if err != nil {
			return fmt.Errorf("upsert rule: %w", classify(err))
		}

		saved, err = scanRule(tx.tx.QueryRowContext(ctx, `
			SELECT `+ruleColumns+`
			FROM availability_rules
			WHERE provider_id = ? AND day_of_week = ? AND start_time = ?`,
			r.ProviderID, r.DayOfWeek, r.StartTime.String()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SetRuleEnabled flips a rule on or off. Enabling re-runs the overlap check.
func (db *DB) SetRuleEnabled(ctx context.Context, id int64, enabled bool) (*models.AvailabilityRule, error) {
	var saved *models.AvailabilityRule
	err := db.InTx(ctx, func(tx *Tx) error {
		r, err := scanRule(tx.tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM availability_rules WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("availability rule %d: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get rule %d: %w", id, err)
		}

		r.Enabled = enabled
		if err := checkRuleOverlap(ctx, tx.tx, r); err != nil {
			return err
		}

		r.UpdatedAt = time.Now()
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE availability_rules SET is_available = ?, updated_at = ? WHERE id = ?`,
			boolToInt(enabled), r.UpdatedAt, id); err != nil {
			return fmt.Errorf("update rule %d: %w", id, err)
		}
		saved = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}
