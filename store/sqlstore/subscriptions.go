package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

const subscriptionColumns = `id, owner_id, plan_id, total_credits, credits_used, status,
	purchase_date, expiry_date, created_at, updated_at`

func (s *Store) CreateSubscription(ctx context.Context, sub walks.UserSubscription) error {
	_, err := s.exec(ctx, `
		INSERT INTO user_subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(sub.ID), string(sub.OwnerID), string(sub.PlanID), sub.TotalCredits, sub.CreditsUsed,
		string(sub.Status), formatTime(sub.PurchaseDate), formatTime(sub.ExpiryDate),
		formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	return mapWriteErr("create subscription", err)
}

func (s *Store) GetSubscription(ctx context.Context, id walks.SubscriptionID) (walks.UserSubscription, error) {
	row := s.queryRow(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = ?`, string(id))
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return walks.UserSubscription{}, walks.NewNotFound("subscription", id)
	}
	return sub, err
}

func (s *Store) ListSubscriptions(ctx context.Context, f walks.SubscriptionFilter) ([]walks.UserSubscription, error) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, string(*f.OwnerID))
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var result []walks.UserSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, id walks.SubscriptionID, from, to walks.SubscriptionStatus) error {
	res, err := s.exec(ctx, `UPDATE user_subscriptions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(s.now()), string(id), string(from))
	if err != nil {
		return mapWriteErr("set subscription status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	current, err := s.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	return &walks.TransitionError{Entity: "subscription", ID: string(id),
		From: string(current.Status), To: string(to), Reason: "status changed concurrently"}
}

// AdjustCreditsUsed is a single conditional UPDATE: the bound check and the
// write happen atomically in the database.
func (s *Store) AdjustCreditsUsed(ctx context.Context, id walks.SubscriptionID, delta int) error {
	res, err := s.exec(ctx, `
		UPDATE user_subscriptions
		SET credits_used = credits_used + ?, updated_at = ?
		WHERE id = ? AND credits_used + ? >= 0 AND credits_used + ? <= total_credits`,
		delta, formatTime(s.now()), string(id), delta, delta,
	)
	if err != nil {
		return mapWriteErr("adjust credits", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either the row is missing or the bound refused it.
	if _, err := s.GetSubscription(ctx, id); err != nil {
		return err
	}
	if delta > 0 {
		return walks.ErrNoCreditsRemaining
	}
	return walks.ErrCreditUnderflow
}

func scanSubscription(sc scanner) (walks.UserSubscription, error) {
	var (
		sub                  walks.UserSubscription
		id, owner, plan      string
		status               string
		purchase, expiry     string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&id, &owner, &plan, &sub.TotalCredits, &sub.CreditsUsed, &status,
		&purchase, &expiry, &createdAt, &updatedAt); err != nil {
		return walks.UserSubscription{}, err
	}
	sub.ID, sub.OwnerID, sub.PlanID = walks.SubscriptionID(id), walks.OwnerID(owner), walks.PlanID(plan)
	sub.Status = walks.SubscriptionStatus(status)

	var err error
	if sub.PurchaseDate, err = parseTime(purchase); err != nil {
		return walks.UserSubscription{}, err
	}
	if sub.ExpiryDate, err = parseTime(expiry); err != nil {
		return walks.UserSubscription{}, err
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return walks.UserSubscription{}, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return walks.UserSubscription{}, err
	}
	return sub, nil
}

// =============================================================================
// CREDIT ENTRIES (append-only)
// =============================================================================

const creditEntryColumns = `id, subscription_id, walk_id, entry_type, delta, idempotency_key, reason, created_at`

func (s *Store) AppendCreditEntry(ctx context.Context, e walks.CreditEntry) error {
	_, err := s.exec(ctx, `
		INSERT INTO credit_entries (`+creditEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.SubscriptionID), string(e.WalkID), string(e.Type), e.Delta,
		nullString(e.IdempotencyKey), e.Reason, formatTime(e.CreatedAt),
	)
	return mapWriteErr("append credit entry", err)
}

func (s *Store) ListCreditEntries(ctx context.Context, f walks.CreditEntryFilter) ([]walks.CreditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.SubscriptionID != nil {
		where = append(where, "subscription_id = ?")
		args = append(args, string(*f.SubscriptionID))
	}
	if f.WalkID != nil {
		where = append(where, "walk_id = ?")
		args = append(args, string(*f.WalkID))
	}
	query := `SELECT ` + creditEntryColumns + ` FROM credit_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit entries: %w", err)
	}
	defer rows.Close()

	var result []walks.CreditEntry
	for rows.Next() {
		var (
			e                  walks.CreditEntry
			id, sub, walk, typ string
			key                sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&id, &sub, &walk, &typ, &e.Delta, &key, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		e.ID, e.SubscriptionID, e.WalkID = walks.CreditEntryID(id), walks.SubscriptionID(sub), walks.WalkID(walk)
		e.Type, e.IdempotencyKey = walks.CreditEntryType(typ), key.String
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
