/*
store.go - Persistence interface for the engine

PURPOSE:
  Defines the boundary between engine logic and the database. Stores keep
  every entity as a row keyed by its id and enforce the data-model invariants
  at the storage boundary (CreditsUsed within [0, TotalCredits], one credit
  settlement per walk, result only on completed assessments).

KEY INTERFACES:
  Store:      Entity reads and writes
  TxStore:    Store plus WithTx for atomic multi-row writes
  KeyLocker:  Optional; lets a database serialize writers on one aggregate

CONDITIONAL WRITES:
  AdjustCreditsUsed must apply the delta only when the result stays inside
  [0, TotalCredits]. This single atomic write is what keeps concurrent
  bookings from overdrawing a subscription.

  SetSubscriptionStatus and UpdateAssessment are compare-and-set on the
  prior status: when the row no longer has it they write nothing and return
  ErrInvalidStateTransition. At most one pending or scheduled assessment may
  exist per dog; a second insert fails with ErrAssessmentOpen.

IMPLEMENTATIONS:
  - walks/store/memory.go: In-memory for testing
  - store/sqlstore: SQLite and PostgreSQL

SEE ALSO:
  - ledger.go: the only caller of AdjustCreditsUsed / AppendCreditEntry
*/
package walks

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	GetDog(ctx context.Context, id DogID) (Dog, error)
	SaveDog(ctx context.Context, dog Dog) error
	ListDogsByOwner(ctx context.Context, ownerID OwnerID) ([]Dog, error)

	GetWalker(ctx context.Context, id WalkerID) (Walker, error)
	SaveWalker(ctx context.Context, walker Walker) error
	ListWalkers(ctx context.Context) ([]Walker, error)

	GetPlan(ctx context.Context, id PlanID) (SubscriptionPlan, error)
	SavePlan(ctx context.Context, plan SubscriptionPlan) error
	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)

	// CreateSubscription inserts a new subscription. Existing rows are never
	// overwritten; status changes go through SetSubscriptionStatus and credit
	// changes through AdjustCreditsUsed.
	CreateSubscription(ctx context.Context, sub UserSubscription) error
	GetSubscription(ctx context.Context, id SubscriptionID) (UserSubscription, error)
	ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]UserSubscription, error)
	// SetSubscriptionStatus moves a subscription from one status to another.
	SetSubscriptionStatus(ctx context.Context, id SubscriptionID, from, to SubscriptionStatus) error

	// AdjustCreditsUsed atomically adds delta to CreditsUsed. It returns
	// ErrNoCreditsRemaining (delta > 0) or ErrCreditUnderflow (delta < 0) when
	// the result would leave [0, TotalCredits], and leaves the row unchanged.
	AdjustCreditsUsed(ctx context.Context, id SubscriptionID, delta int) error
	AppendCreditEntry(ctx context.Context, entry CreditEntry) error
	ListCreditEntries(ctx context.Context, filter CreditEntryFilter) ([]CreditEntry, error)

	InsertWalk(ctx context.Context, walk Walk) error
	UpdateWalk(ctx context.Context, walk Walk) error
	GetWalk(ctx context.Context, id WalkID) (Walk, error)
	ListWalks(ctx context.Context, filter WalkFilter) ([]Walk, error)

	InsertAssessment(ctx context.Context, a Assessment) error
	// UpdateAssessment rewrites a only if the stored row is still in status from.
	UpdateAssessment(ctx context.Context, a Assessment, from AssessmentState) error
	GetAssessment(ctx context.Context, id AssessmentID) (Assessment, error)
	ListAssessmentsByDog(ctx context.Context, dogID DogID) ([]Assessment, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// KeyLocker is implemented by transactional store views that can take a
// database-level lock on an aggregate key ("slot:...", "dog:..."), held
// until the transaction ends.
type KeyLocker interface {
	LockKey(ctx context.Context, key string) error
}

// =============================================================================
// FILTERS
// =============================================================================

type WalkFilter struct {
	DogID    *DogID
	WalkerID *WalkerID
	OwnerID  *OwnerID
	Date     *Date
	Slot     *TimeSlot
	Statuses []WalkStatus
}

// InSlot returns a filter for every walk sharing key.
func InSlot(key SlotKey, statuses ...WalkStatus) WalkFilter {
	return WalkFilter{WalkerID: &key.WalkerID, Date: &key.Date, Slot: &key.Slot, Statuses: statuses}
}

// Matches reports whether w passes the filter. Stores without a query
// language use it directly.
func (f WalkFilter) Matches(w Walk) bool {
	if f.DogID != nil && w.DogID != *f.DogID {
		return false
	}
	if f.WalkerID != nil && w.WalkerID != *f.WalkerID {
		return false
	}
	if f.OwnerID != nil && w.OwnerID != *f.OwnerID {
		return false
	}
	if f.Date != nil && !w.Date.Equal(*f.Date) {
		return false
	}
	if f.Slot != nil && w.TimeSlot != *f.Slot {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if w.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

type SubscriptionFilter struct {
	OwnerID *OwnerID
	Status  *SubscriptionStatus
}

func (f SubscriptionFilter) Matches(s UserSubscription) bool {
	if f.OwnerID != nil && s.OwnerID != *f.OwnerID {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	return true
}

type CreditEntryFilter struct {
	SubscriptionID *SubscriptionID
	WalkID         *WalkID
}

func (f CreditEntryFilter) Matches(e CreditEntry) bool {
	if f.SubscriptionID != nil && e.SubscriptionID != *f.SubscriptionID {
		return false
	}
	if f.WalkID != nil && e.WalkID != *f.WalkID {
		return false
	}
	return true
}

// =============================================================================
// TRANSACTION HELPER
// =============================================================================

// inTx runs fn inside a transaction when store supports one, and directly
// against the store otherwise.
func inTx(ctx context.Context, store Store, fn func(Store) error) error {
	if ts, ok := store.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(store)
}
