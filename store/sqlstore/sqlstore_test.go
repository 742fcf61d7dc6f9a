package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/store/sqlstore"
	"github.com/warp/walk-engine/walks"
)

var (
	now    = time.Date(2025, time.March, 3, 7, 0, 0, 0, time.UTC)
	monday = walks.NewDate(2025, time.March, 3)
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(context.Background(), sqlstore.Options{
		Dialect:  sqlstore.DialectSQLite,
		DSN:      ":memory:",
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type env struct {
	store  *sqlstore.Store
	engine *walks.Engine
	walker walks.Walker
	plan   walks.SubscriptionPlan
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := newStore(t)
	e := walks.NewEngine(s, walks.Options{Now: func() time.Time { return now }})

	walker, err := e.AddWalker(ctx, walks.Walker{
		ID: "walker-1", Name: "Sam", CapacityPerSlot: 6,
		Availability: []walks.AvailabilityWindow{
			{Weekday: time.Monday, Slots: []walks.TimeSlot{walks.SlotAM, walks.SlotPM}},
		},
		PreferredDogSizes: []walks.DogSize{walks.DogSmall},
	})
	require.NoError(t, err)
	plan, err := e.AddPlan(ctx, walks.SubscriptionPlan{
		ID: "plan-5", Name: "Five walks", WalkCredits: 5, WalkDuration: 45 * time.Minute,
		ValidityPeriod: 30, Price: decimal.RequireFromString("99.50"),
	})
	require.NoError(t, err)
	return &env{store: s, engine: e, walker: walker, plan: plan}
}

func (e *env) eligibleDog(t *testing.T, owner walks.OwnerID) walks.Dog {
	t.Helper()
	d, err := e.engine.AddDog(context.Background(), walks.Dog{
		OwnerID: owner, Name: "Rex", AssessmentStatus: walks.AssessmentNotRequired,
	})
	require.NoError(t, err)
	return d
}

func (e *env) purchase(t *testing.T, owner walks.OwnerID) walks.UserSubscription {
	t.Helper()
	sub, err := e.engine.PurchaseSubscription(context.Background(), owner, e.plan.ID)
	require.NoError(t, err)
	return sub
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestStore_EntitiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	w, err := e.store.GetWalker(ctx, "walker-1")
	require.NoError(t, err)
	assert.Equal(t, e.walker.Availability, w.Availability)
	assert.Equal(t, []walks.DogSize{walks.DogSmall}, w.PreferredDogSizes)

	p, err := e.store.GetPlan(ctx, "plan-5")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("99.50")))
	assert.Equal(t, 45*time.Minute, p.WalkDuration)

	dog := e.eligibleDog(t, "owner")
	sub := e.purchase(t, "owner")
	walk, err := e.engine.CreateWalk(ctx, walks.BookingRequest{
		DogID: dog.ID, WalkerID: "walker-1", SubscriptionID: sub.ID,
		Date: monday, TimeSlot: walks.SlotAM, Notes: "gate code 1234",
	})
	require.NoError(t, err)

	got, err := e.store.GetWalk(ctx, walk.ID)
	require.NoError(t, err)
	assert.Equal(t, walk.Date, got.Date)
	assert.Equal(t, walks.SlotAM, got.TimeSlot)
	assert.Equal(t, 45*time.Minute, got.Duration)
	assert.Equal(t, "gate code 1234", got.Notes)
	assert.Nil(t, got.Metrics)
	assert.True(t, walk.CreatedAt.Equal(got.CreatedAt))

	a, err := e.engine.RequestAssessment(ctx, walks.AssessmentRequest{DogID: e.newDog(t).ID, OwnerID: "owner", RequestedDate: monday})
	require.NoError(t, err)
	gotA, err := e.store.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, monday, gotA.RequestedDate)
	assert.Nil(t, gotA.ScheduledDate)
	assert.Nil(t, gotA.Result)

	_, err = e.store.GetDog(ctx, "missing")
	require.ErrorIs(t, err, walks.ErrNotFound)
}

func (e *env) newDog(t *testing.T) walks.Dog {
	t.Helper()
	d, err := e.engine.AddDog(context.Background(), walks.Dog{OwnerID: "owner", Name: "Newbie"})
	require.NoError(t, err)
	return d
}

// =============================================================================
// CREDIT INVARIANTS
// =============================================================================

func TestStore_AdjustCreditsUsedIsBounded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := e.purchase(t, "owner")

	for i := 0; i < 5; i++ {
		require.NoError(t, e.store.AdjustCreditsUsed(ctx, sub.ID, 1))
	}
	require.ErrorIs(t, e.store.AdjustCreditsUsed(ctx, sub.ID, 1), walks.ErrNoCreditsRemaining)
	require.NoError(t, e.store.AdjustCreditsUsed(ctx, sub.ID, -5))
	require.ErrorIs(t, e.store.AdjustCreditsUsed(ctx, sub.ID, -1), walks.ErrCreditUnderflow)
	require.ErrorIs(t, e.store.AdjustCreditsUsed(ctx, "missing", 1), walks.ErrNotFound)

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CreditsUsed)
}

func TestStore_OneSettlementPerWalk(t *testing.T) {
	// GIVEN: a walk whose credit was released
	// WHEN: a consume entry for the same walk is appended under another key
	// THEN: the partial unique index rejects it
	ctx := context.Background()
	e := newEnv(t)
	sub := e.purchase(t, "owner")

	entry := func(id string, typ walks.CreditEntryType, key string) walks.CreditEntry {
		return walks.CreditEntry{
			ID: walks.CreditEntryID(id), SubscriptionID: sub.ID, WalkID: "walk-1",
			Type: typ, IdempotencyKey: key, CreatedAt: now,
		}
	}
	require.NoError(t, e.store.AppendCreditEntry(ctx, entry("e1", walks.CreditReserve, "walk-1:reserve")))
	require.ErrorIs(t, e.store.AppendCreditEntry(ctx, entry("e2", walks.CreditReserve, "walk-1:reserve")),
		walks.ErrDuplicateIdempotencyKey)
	require.NoError(t, e.store.AppendCreditEntry(ctx, entry("e3", walks.CreditRelease, "walk-1:release")))
	require.ErrorIs(t, e.store.AppendCreditEntry(ctx, entry("e4", walks.CreditConsume, "other-key")),
		walks.ErrDuplicateIdempotencyKey)

	entries, err := e.store.ListCreditEntries(ctx, walks.CreditEntryFilter{SubscriptionID: &sub.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, walks.CreditReserve, entries[0].Type)
	assert.Equal(t, walks.CreditRelease, entries[1].Type)
}

func TestStore_CancelRefundsThroughLedger(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	dog := e.eligibleDog(t, "owner")
	sub := e.purchase(t, "owner")

	walk, err := e.engine.CreateWalk(ctx, walks.BookingRequest{
		DogID: dog.ID, WalkerID: "walker-1", SubscriptionID: sub.ID, Date: monday, TimeSlot: walks.SlotPM,
	})
	require.NoError(t, err)
	_, err = e.engine.TransitionWalk(ctx, walk.ID, walks.WalkCancelled)
	require.NoError(t, err)

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CreditsUsed)

	history, err := e.engine.CreditHistory(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -1, history[1].Delta)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := e.purchase(t, "owner")

	boom := errors.New("boom")
	err := e.store.WithTx(ctx, func(tx walks.Store) error {
		require.NoError(t, tx.AdjustCreditsUsed(ctx, sub.ID, 2))
		require.NoError(t, tx.SaveDog(ctx, walks.Dog{
			ID: "dog-tx", OwnerID: "owner", Name: "Ghost", AssessmentStatus: walks.AssessmentNone,
			CreatedAt: now, UpdatedAt: now,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CreditsUsed)
	_, err = e.store.GetDog(ctx, "dog-tx")
	require.ErrorIs(t, err, walks.ErrNotFound)
}

func TestStore_WalkerCacheInvalidatedOnCommit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// Warm the cache.
	_, err := e.store.GetWalker(ctx, "walker-1")
	require.NoError(t, err)

	updated := e.walker
	updated.CapacityPerSlot = 2
	require.NoError(t, e.store.WithTx(ctx, func(tx walks.Store) error {
		return tx.SaveWalker(ctx, updated)
	}))

	got, err := e.store.GetWalker(ctx, "walker-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CapacityPerSlot)
}

func TestStore_ConcurrentBookingsNeverOverbook(t *testing.T) {
	// GIVEN: a 6-seat slot and 9 owners racing for it
	// THEN: exactly 6 bookings land and the rest get SlotFull
	ctx := context.Background()
	e := newEnv(t)

	const racers = 9
	reqs := make([]walks.BookingRequest, racers)
	for i := range reqs {
		owner := walks.OwnerID(fmt.Sprintf("owner-%d", i))
		reqs[i] = walks.BookingRequest{
			DogID: e.eligibleDog(t, owner).ID, WalkerID: "walker-1",
			SubscriptionID: e.purchase(t, owner).ID, Date: monday, TimeSlot: walks.SlotAM,
		}
	}

	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.engine.CreateWalk(ctx, reqs[i])
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, walks.ErrSlotFull)
	}
	assert.Equal(t, 6, ok)

	states, err := e.engine.SlotStates(ctx, "walker-1", monday)
	require.NoError(t, err)
	assert.Equal(t, 6, states[0].Occupied)
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, e.store.Reset(ctx))

	_, err := e.store.GetWalker(ctx, "walker-1")
	require.ErrorIs(t, err, walks.ErrNotFound)
	plans, err := e.store.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestParseDialect(t *testing.T) {
	d, err := sqlstore.ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, sqlstore.DialectPostgres, d)

	_, err = sqlstore.ParseDialect("mysql")
	require.Error(t, err)
}

// =============================================================================
// CONDITIONAL STATUS WRITES
// =============================================================================

func TestStore_UpdateAssessmentIsConditional(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	dog := e.newDog(t)

	// GIVEN: a scheduled assessment
	a := walks.Assessment{
		ID: "a-1", DogID: dog.ID, OwnerID: dog.OwnerID, Status: walks.AssessmentStateScheduled,
		RequestedDate: monday, ScheduledDate: &monday, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, e.store.InsertAssessment(ctx, a))

	// WHEN: one writer completes it and another cancels from the same read
	approved := walks.ResultApproved
	completed := a
	completed.Status, completed.Result = walks.AssessmentStateCompleted, &approved
	require.NoError(t, e.store.UpdateAssessment(ctx, completed, walks.AssessmentStateScheduled))

	cancelled := a
	cancelled.Status = walks.AssessmentStateCancelled
	err := e.store.UpdateAssessment(ctx, cancelled, walks.AssessmentStateScheduled)

	// THEN: the second write is refused and the completion stands
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	got, err := e.store.GetAssessment(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, walks.AssessmentStateCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, walks.ResultApproved, *got.Result)

	missing := a
	missing.ID = "nope"
	require.ErrorIs(t, e.store.UpdateAssessment(ctx, missing, walks.AssessmentStateScheduled), walks.ErrNotFound)
}

func TestStore_OneOpenAssessmentPerDog(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	dog := e.newDog(t)
	open := func(id walks.AssessmentID, status walks.AssessmentState) walks.Assessment {
		return walks.Assessment{ID: id, DogID: dog.ID, OwnerID: dog.OwnerID, Status: status,
			RequestedDate: monday, CreatedAt: now, UpdatedAt: now}
	}

	require.NoError(t, e.store.InsertAssessment(ctx, open("a-1", walks.AssessmentStatePending)))
	err := e.store.InsertAssessment(ctx, open("a-2", walks.AssessmentStatePending))
	require.ErrorIs(t, err, walks.ErrAssessmentOpen)

	// Closed assessments do not count, and a duplicate id is not mistaken
	// for an open assessment.
	require.NoError(t, e.store.InsertAssessment(ctx, open("a-3", walks.AssessmentStateCancelled)))
	err = e.store.InsertAssessment(ctx, open("a-3", walks.AssessmentStateCancelled))
	require.ErrorIs(t, err, walks.ErrDuplicateIdempotencyKey)
}

func TestStore_SetSubscriptionStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sub := e.purchase(t, "owner")

	require.NoError(t, e.store.SetSubscriptionStatus(ctx, sub.ID, walks.SubscriptionActive, walks.SubscriptionCancelled))
	err := e.store.SetSubscriptionStatus(ctx, sub.ID, walks.SubscriptionActive, walks.SubscriptionExpired)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)

	got, err := e.store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, walks.SubscriptionCancelled, got.Status)

	err = e.store.SetSubscriptionStatus(ctx, "nope", walks.SubscriptionActive, walks.SubscriptionExpired)
	require.ErrorIs(t, err, walks.ErrNotFound)
}
