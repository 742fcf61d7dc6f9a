/*
ledger.go - Subscription credit ledger

PURPOSE:
  The CreditLedger is the single authority for granting and reclaiming the
  one credit each walk costs. It is the only code that calls
  Store.AdjustCreditsUsed, and every mutation it makes is also recorded as an
  immutable CreditEntry so the balance can always be explained.

CRITICAL INVARIANTS:
  1. 0 <= CreditsUsed <= TotalCredits, enforced by a conditional write
  2. One settlement per walk: a reservation is either released (credit back)
     or consumed (credit spent), never both and never twice
  3. Entries are append-only; idempotency key is "<walkID>:<entry type>"

ENTRY FLOW:
  CreateWalk        ──▶ reserve  (+1 used)
  cancel scheduled  ──▶ release  (-1 used)
  complete          ──▶ consume  (balance unchanged, reservation final)
  cancel in_progress ─▶ consume, or release when refunds are enabled

SERIALIZATION:
  Two bookings against the same subscription race only on
  AdjustCreditsUsed; the store applies it atomically, so exactly one of them
  wins the last credit.

SEE ALSO:
  - store.go: AdjustCreditsUsed contract
  - booking.go: reserve + compensating release
  - lifecycle.go: release / consume on cancellation and completion
*/
package walks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type CreditLedger struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewCreditLedger(store Store, now func() time.Time, newID func() string) *CreditLedger {
	return &CreditLedger{store: store, now: now, newID: newID}
}

// WithStore returns a ledger bound to store, typically a transaction view.
func (l *CreditLedger) WithStore(store Store) *CreditLedger {
	return &CreditLedger{store: store, now: l.now, newID: l.newID}
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve takes one credit from the subscription for walkID.
func (l *CreditLedger) Reserve(ctx context.Context, subID SubscriptionID, walkID WalkID) (CreditReservation, error) {
	sub, err := l.store.GetSubscription(ctx, subID)
	if err != nil {
		return CreditReservation{}, err
	}

	now := l.now()
	if !sub.UsableAt(now) {
		return CreditReservation{}, fmt.Errorf("subscription %s is %s (expires %s): %w",
			sub.ID, sub.Status, sub.ExpiryDate.Format(time.RFC3339), ErrNoActiveSubscription)
	}
	if sub.CreditsRemaining() <= 0 {
		return CreditReservation{}, &NoCreditsError{
			SubscriptionID: sub.ID, TotalCredits: sub.TotalCredits, CreditsUsed: sub.CreditsUsed,
		}
	}

	// The read above is advisory; this conditional write is the real check.
	if err := l.store.AdjustCreditsUsed(ctx, subID, 1); err != nil {
		if errors.Is(err, ErrNoCreditsRemaining) {
			return CreditReservation{}, &NoCreditsError{
				SubscriptionID: sub.ID, TotalCredits: sub.TotalCredits, CreditsUsed: sub.TotalCredits,
			}
		}
		return CreditReservation{}, fmt.Errorf("failed to reserve credit: %w", err)
	}

	entry := CreditEntry{
		ID:             CreditEntryID(l.newID()),
		SubscriptionID: subID,
		WalkID:         walkID,
		Type:           CreditReserve,
		Delta:          1,
		IdempotencyKey: idempotencyKey(walkID, CreditReserve),
		Reason:         "walk booked",
		CreatedAt:      now,
	}
	if err := l.store.AppendCreditEntry(ctx, entry); err != nil {
		// Undo the counter so a store without transactions does not leak.
		if undoErr := l.store.AdjustCreditsUsed(ctx, subID, -1); undoErr != nil {
			return CreditReservation{}, errors.Join(err, undoErr)
		}
		return CreditReservation{}, fmt.Errorf("failed to record reservation: %w", err)
	}

	return CreditReservation{
		EntryID:        entry.ID,
		SubscriptionID: subID,
		WalkID:         walkID,
		ReservedAt:     now,
	}, nil
}

// =============================================================================
// RELEASE / CONSUME
// =============================================================================

// Release gives the reserved credit back. It fails with
// ErrCreditAlreadySettled when the reservation was already released or its
// walk already consumed the credit.
func (l *CreditLedger) Release(ctx context.Context, r CreditReservation, reason string) error {
	if err := l.checkOpen(ctx, r); err != nil {
		return err
	}

	entry := CreditEntry{
		ID:             CreditEntryID(l.newID()),
		SubscriptionID: r.SubscriptionID,
		WalkID:         r.WalkID,
		Type:           CreditRelease,
		Delta:          -1,
		IdempotencyKey: idempotencyKey(r.WalkID, CreditRelease),
		Reason:         reason,
		CreatedAt:      l.now(),
	}
	// The entry goes first: its unique settlement index is what rejects a
	// concurrent second release.
	if err := l.appendSettlement(ctx, entry); err != nil {
		return err
	}
	if err := l.store.AdjustCreditsUsed(ctx, r.SubscriptionID, -1); err != nil {
		return fmt.Errorf("failed to release credit: %w", err)
	}
	return nil
}

// Consume marks the reserved credit as permanently spent.
func (l *CreditLedger) Consume(ctx context.Context, r CreditReservation, reason string) error {
	if err := l.checkOpen(ctx, r); err != nil {
		return err
	}
	return l.appendSettlement(ctx, CreditEntry{
		ID:             CreditEntryID(l.newID()),
		SubscriptionID: r.SubscriptionID,
		WalkID:         r.WalkID,
		Type:           CreditConsume,
		Delta:          0,
		IdempotencyKey: idempotencyKey(r.WalkID, CreditConsume),
		Reason:         reason,
		CreatedAt:      l.now(),
	})
}

// ReservationFor rebuilds the reservation token of a walk from its entries.
func (l *CreditLedger) ReservationFor(ctx context.Context, walkID WalkID) (CreditReservation, error) {
	entries, err := l.store.ListCreditEntries(ctx, CreditEntryFilter{WalkID: &walkID})
	if err != nil {
		return CreditReservation{}, err
	}
	for _, e := range entries {
		if e.Type == CreditReserve {
			return CreditReservation{
				EntryID:        e.ID,
				SubscriptionID: e.SubscriptionID,
				WalkID:         e.WalkID,
				ReservedAt:     e.CreatedAt,
			}, nil
		}
	}
	return CreditReservation{}, NewNotFound("credit reservation for walk", walkID)
}

// History returns every entry recorded against a subscription.
func (l *CreditLedger) History(ctx context.Context, subID SubscriptionID) ([]CreditEntry, error) {
	return l.store.ListCreditEntries(ctx, CreditEntryFilter{SubscriptionID: &subID})
}

func (l *CreditLedger) checkOpen(ctx context.Context, r CreditReservation) error {
	entries, err := l.store.ListCreditEntries(ctx, CreditEntryFilter{WalkID: &r.WalkID})
	if err != nil {
		return err
	}
	reserved := false
	for _, e := range entries {
		switch e.Type {
		case CreditReserve:
			if e.ID == r.EntryID {
				reserved = true
			}
		case CreditRelease, CreditConsume:
			return fmt.Errorf("walk %s credit was already %sd: %w", r.WalkID, e.Type, ErrCreditAlreadySettled)
		}
	}
	if !reserved {
		return NewNotFound("credit reservation", r.EntryID)
	}
	return nil
}

func (l *CreditLedger) appendSettlement(ctx context.Context, entry CreditEntry) error {
	err := l.store.AppendCreditEntry(ctx, entry)
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return fmt.Errorf("walk %s credit already settled: %w", entry.WalkID, ErrCreditAlreadySettled)
	}
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", entry.Type, err)
	}
	return nil
}

func idempotencyKey(walkID WalkID, t CreditEntryType) string {
	return fmt.Sprintf("%s:%s", walkID, t)
}
