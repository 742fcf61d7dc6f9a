package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// DOGS
// =============================================================================

const dogColumns = `id, owner_id, name, size, assessment_status, created_at, updated_at`

func (s *Store) GetDog(ctx context.Context, id walks.DogID) (walks.Dog, error) {
	row := s.queryRow(ctx, `SELECT `+dogColumns+` FROM dogs WHERE id = ?`, string(id))
	dog, err := scanDog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.Dog{}, walks.NewNotFound("dog", id)
	}
	return dog, err
}

func (s *Store) SaveDog(ctx context.Context, dog walks.Dog) error {
	_, err := s.exec(ctx, `
		INSERT INTO dogs (`+dogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			size = excluded.size,
			assessment_status = excluded.assessment_status,
			updated_at = excluded.updated_at`,
		string(dog.ID), string(dog.OwnerID), dog.Name, string(dog.Size), string(dog.AssessmentStatus),
		formatTime(dog.CreatedAt), formatTime(dog.UpdatedAt),
	)
	return mapWriteErr("save dog", err)
}

func (s *Store) ListDogsByOwner(ctx context.Context, ownerID walks.OwnerID) ([]walks.Dog, error) {
	rows, err := s.query(ctx, `SELECT `+dogColumns+` FROM dogs WHERE owner_id = ? ORDER BY id`, string(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list dogs: %w", err)
	}
	defer rows.Close()

	var result []walks.Dog
	for rows.Next() {
		dog, err := scanDog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, dog)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDog(sc scanner) (walks.Dog, error) {
	var (
		d                    walks.Dog
		id, owner            string
		size, status         string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&id, &owner, &d.Name, &size, &status, &createdAt, &updatedAt); err != nil {
		return walks.Dog{}, err
	}
	d.ID, d.OwnerID = walks.DogID(id), walks.OwnerID(owner)
	d.Size, d.AssessmentStatus = walks.DogSize(size), walks.AssessmentStatus(status)
	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.Dog{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return walks.Dog{}, err
	}
	return d, nil
}

// =============================================================================
// WALKERS (cached)
// =============================================================================

const walkerColumns = `id, name, capacity_per_slot, availability_json, preferred_sizes_json, created_at`

func walkerKey(id walks.WalkerID) string { return "walker:" + string(id) }

func (s *Store) GetWalker(ctx context.Context, id walks.WalkerID) (walks.Walker, error) {
	gen := s.walkers.Generation()
	if !s.inTx() {
		if w, ok := s.walkers.Get(walkerKey(id)); ok {
			return w, nil
		}
	}
	row := s.queryRow(ctx, `SELECT `+walkerColumns+` FROM walkers WHERE id = ?`, string(id))
	w, err := scanWalker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.Walker{}, walks.NewNotFound("walker", id)
	}
	if err != nil {
		return walks.Walker{}, err
	}
	if !s.inTx() {
		s.walkers.SetIfFresh(walkerKey(id), w, gen)
	}
	return w, nil
}

func (s *Store) SaveWalker(ctx context.Context, w walks.Walker) error {
	availability, err := json.Marshal(w.Availability)
	if err != nil {
		return fmt.Errorf("failed to encode availability: %w", err)
	}
	sizes, err := json.Marshal(w.PreferredDogSizes)
	if err != nil {
		return fmt.Errorf("failed to encode preferred sizes: %w", err)
	}
	_, err = s.exec(ctx, `
		INSERT INTO walkers (`+walkerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			capacity_per_slot = excluded.capacity_per_slot,
			availability_json = excluded.availability_json,
			preferred_sizes_json = excluded.preferred_sizes_json`,
		string(w.ID), w.Name, w.CapacityPerSlot, string(availability), string(sizes), formatTime(w.CreatedAt),
	)
	s.walkers.Invalidate(walkerKey(w.ID))
	s.touch(walkerKey(w.ID))
	return mapWriteErr("save walker", err)
}

func (s *Store) ListWalkers(ctx context.Context) ([]walks.Walker, error) {
	rows, err := s.query(ctx, `SELECT `+walkerColumns+` FROM walkers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list walkers: %w", err)
	}
	defer rows.Close()

	var result []walks.Walker
	for rows.Next() {
		w, err := scanWalker(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func scanWalker(sc scanner) (walks.Walker, error) {
	var (
		w                   walks.Walker
		id                  string
		availability, sizes string
		createdAt           string
	)
	if err := sc.Scan(&id, &w.Name, &w.CapacityPerSlot, &availability, &sizes, &createdAt); err != nil {
		return walks.Walker{}, err
	}
	w.ID = walks.WalkerID(id)
	if err := json.Unmarshal([]byte(availability), &w.Availability); err != nil {
		return walks.Walker{}, fmt.Errorf("corrupt availability for walker %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(sizes), &w.PreferredDogSizes); err != nil {
		return walks.Walker{}, fmt.Errorf("corrupt preferred sizes for walker %s: %w", id, err)
	}
	var err error
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.Walker{}, err
	}
	return w, nil
}

// =============================================================================
// PLANS (cached)
// =============================================================================

const planColumns = `id, name, walk_credits, walk_duration_seconds, validity_days, price, created_at`

func planKey(id walks.PlanID) string { return "plan:" + string(id) }

func (s *Store) GetPlan(ctx context.Context, id walks.PlanID) (walks.SubscriptionPlan, error) {
	gen := s.plans.Generation()
	if !s.inTx() {
		if p, ok := s.plans.Get(planKey(id)); ok {
			return p, nil
		}
	}
	row := s.queryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = ?`, string(id))
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.SubscriptionPlan{}, walks.NewNotFound("subscription plan", id)
	}
	if err != nil {
		return walks.SubscriptionPlan{}, err
	}
	if !s.inTx() {
		s.plans.SetIfFresh(planKey(id), p, gen)
	}
	return p, nil
}

func (s *Store) SavePlan(ctx context.Context, p walks.SubscriptionPlan) error {
	_, err := s.exec(ctx, `
		INSERT INTO subscription_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			walk_credits = excluded.walk_credits,
			walk_duration_seconds = excluded.walk_duration_seconds,
			validity_days = excluded.validity_days,
			price = excluded.price`,
		string(p.ID), p.Name, p.WalkCredits, int64(p.WalkDuration/time.Second), p.ValidityPeriod,
		p.Price.String(), formatTime(p.CreatedAt),
	)
	s.plans.Invalidate(planKey(p.ID))
	s.touch(planKey(p.ID))
	return mapWriteErr("save plan", err)
}

func (s *Store) ListPlans(ctx context.Context) ([]walks.SubscriptionPlan, error) {
	rows, err := s.query(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var result []walks.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPlan(sc scanner) (walks.SubscriptionPlan, error) {
	var (
		p                walks.SubscriptionPlan
		id               string
		durationSeconds  int64
		price, createdAt string
	)
	if err := sc.Scan(&id, &p.Name, &p.WalkCredits, &durationSeconds, &p.ValidityPeriod, &price, &createdAt); err != nil {
		return walks.SubscriptionPlan{}, err
	}
	p.ID = walks.PlanID(id)
	p.WalkDuration = time.Duration(durationSeconds) * time.Second
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return walks.SubscriptionPlan{}, fmt.Errorf("corrupt price for plan %s: %w", id, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.SubscriptionPlan{}, err
	}
	return p, nil
}
