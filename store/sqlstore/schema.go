package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/walk-engine/walks"
)

// schema is valid for both SQLite and PostgreSQL. Timestamps are TEXT in
// timeLayout, dates TEXT in YYYY-MM-DD, money TEXT decimals.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS dogs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size TEXT NOT NULL DEFAULT '',
		assessment_status TEXT NOT NULL CHECK (assessment_status IN
			('none', 'pending', 'scheduled', 'approved', 'denied', 'not_required')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dogs_owner ON dogs(owner_id)`,

	`CREATE TABLE IF NOT EXISTS walkers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		capacity_per_slot INTEGER NOT NULL CHECK (capacity_per_slot > 0),
		availability_json TEXT NOT NULL,
		preferred_sizes_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS subscription_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		walk_credits INTEGER NOT NULL CHECK (walk_credits > 0),
		walk_duration_seconds INTEGER NOT NULL,
		validity_days INTEGER NOT NULL,
		price TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		plan_id TEXT NOT NULL REFERENCES subscription_plans(id),
		total_credits INTEGER NOT NULL,
		credits_used INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active', 'expired', 'cancelled', 'pending')),
		purchase_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (credits_used >= 0 AND credits_used <= total_credits)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner ON user_subscriptions(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON user_subscriptions(status, expiry_date)`,

	// Append-only. walk_id is not a foreign key: the reservation is written
	// before its walk row.
	`CREATE TABLE IF NOT EXISTS credit_entries (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		subscription_id TEXT NOT NULL REFERENCES user_subscriptions(id),
		walk_id TEXT NOT NULL,
		entry_type TEXT NOT NULL CHECK (entry_type IN ('reserve', 'release', 'consume')),
		delta INTEGER NOT NULL,
		idempotency_key TEXT UNIQUE,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_subscription ON credit_entries(subscription_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_entries_walk ON credit_entries(walk_id)`,
	// CRITICAL: a reservation is settled at most once.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_entries_one_settlement
		ON credit_entries(walk_id) WHERE entry_type IN ('release', 'consume')`,

	`CREATE TABLE IF NOT EXISTS walks (
		id TEXT PRIMARY KEY,
		dog_id TEXT NOT NULL REFERENCES dogs(id),
		owner_id TEXT NOT NULL,
		walker_id TEXT NOT NULL REFERENCES walkers(id),
		subscription_id TEXT NOT NULL REFERENCES user_subscriptions(id),
		walk_date TEXT NOT NULL,
		time_slot TEXT NOT NULL CHECK (time_slot IN ('AM', 'PM')),
		duration_seconds INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('scheduled', 'in_progress', 'completed', 'cancelled')),
		pickup_status TEXT NOT NULL CHECK (pickup_status IN ('pending', 'picked_up', 'dropped_off', 'absent')),
		notes TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		metrics_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	// Hot path: occupancy count for one slot.
	`CREATE INDEX IF NOT EXISTS idx_walks_slot ON walks(walker_id, walk_date, time_slot, status)`,
	`CREATE INDEX IF NOT EXISTS idx_walks_dog ON walks(dog_id, walk_date)`,
	`CREATE INDEX IF NOT EXISTS idx_walks_owner ON walks(owner_id)`,

	`CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		dog_id TEXT NOT NULL REFERENCES dogs(id),
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'scheduled', 'completed', 'cancelled')),
		result TEXT CHECK (result IS NULL OR result IN ('approved', 'denied')),
		assigned_walker_id TEXT,
		requested_date TEXT,
		scheduled_date TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (result IS NULL OR status = 'completed')
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_dog ON assessments(dog_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_assessments_open ON assessments(dog_id)
		WHERE status IN ('pending', 'scheduled')`,
}

// tables lists every table, children first.
var tables = []string{"assessments", "walks", "credit_entries", "user_subscriptions", "subscription_plans", "walkers", "dogs"}

// serial is the auto-incrementing primary key type of each dialect.
var serial = map[Dialect]string{
	DialectSQLite:   "INTEGER PRIMARY KEY AUTOINCREMENT",
	DialectPostgres: "BIGSERIAL PRIMARY KEY",
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{serial}}", serial[s.dialect])
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Reset deletes every row. Used by demo scenarios and tests.
func (s *Store) Reset(ctx context.Context) error {
	err := s.WithTx(ctx, func(tx walks.Store) error {
		view := tx.(*Store)
		for _, t := range tables {
			if _, err := view.exec(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("failed to reset %s: %w", t, err)
			}
		}
		return nil
	})
	s.walkers.Clear()
	s.plans.Clear()
	return err
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(stmt), "\n")
	return line
}
