package walks_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/walks"
	"github.com/warp/walk-engine/walks/store"
)

func newLedger(t *testing.T, credits int) (*walks.CreditLedger, *store.Memory, walks.SubscriptionID) {
	t.Helper()
	f := newFixture(t)
	sub := f.subscription(t, "owner", credits)
	return walks.NewCreditLedger(f.store, f.clock.Now, uuid.NewString), f.store, sub.ID
}

func TestLedger_ReserveReleaseConsume(t *testing.T) {
	// GIVEN: a 2-credit subscription
	// WHEN: reserving for two walks, releasing one and consuming the other
	// THEN: balance follows each step and settled reservations stay settled
	ledger, st, subID := newLedger(t, 2)
	ctx := t.Context()

	r1, err := ledger.Reserve(ctx, subID, "walk-1")
	require.NoError(t, err)
	r2, err := ledger.Reserve(ctx, subID, "walk-2")
	require.NoError(t, err)

	sub, err := st.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.CreditsUsed)

	_, err = ledger.Reserve(ctx, subID, "walk-3")
	require.ErrorIs(t, err, walks.ErrNoCreditsRemaining)

	require.NoError(t, ledger.Release(ctx, r1, "cancelled"))
	require.NoError(t, ledger.Consume(ctx, r2, "completed"))

	sub, err = st.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.CreditsUsed)

	require.ErrorIs(t, ledger.Release(ctx, r1, "again"), walks.ErrCreditAlreadySettled)
	require.ErrorIs(t, ledger.Release(ctx, r2, "after consume"), walks.ErrCreditAlreadySettled)
	require.ErrorIs(t, ledger.Consume(ctx, r1, "after release"), walks.ErrCreditAlreadySettled)

	sub, err = st.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.CreditsUsed, "rejected settlements leave the balance alone")

	history, err := ledger.History(ctx, subID)
	require.NoError(t, err)
	var types []walks.CreditEntryType
	for _, e := range history {
		types = append(types, e.Type)
	}
	assert.Equal(t, []walks.CreditEntryType{
		walks.CreditReserve, walks.CreditReserve, walks.CreditRelease, walks.CreditConsume,
	}, types)
}

func TestLedger_ReservationFor(t *testing.T) {
	ledger, _, subID := newLedger(t, 1)
	ctx := t.Context()

	r, err := ledger.Reserve(ctx, subID, "walk-1")
	require.NoError(t, err)

	got, err := ledger.ReservationFor(ctx, "walk-1")
	require.NoError(t, err)
	assert.Equal(t, r.EntryID, got.EntryID)
	assert.Equal(t, subID, got.SubscriptionID)

	_, err = ledger.ReservationFor(ctx, "walk-unknown")
	require.ErrorIs(t, err, walks.ErrNotFound)
}

func TestLedger_ReserveTwiceForSameWalk(t *testing.T) {
	// The idempotency key rejects the second reservation and the balance is
	// put back.
	ledger, st, subID := newLedger(t, 3)
	ctx := t.Context()

	_, err := ledger.Reserve(ctx, subID, "walk-1")
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, subID, "walk-1")
	require.ErrorIs(t, err, walks.ErrDuplicateIdempotencyKey)

	sub, err := st.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.CreditsUsed)
}

func TestLedger_InactiveSubscription(t *testing.T) {
	ledger, st, subID := newLedger(t, 3)
	ctx := t.Context()
	require.NoError(t, st.SetSubscriptionStatus(ctx, subID, walks.SubscriptionActive, walks.SubscriptionExpired))

	_, err := ledger.Reserve(ctx, subID, "walk-1")
	require.ErrorIs(t, err, walks.ErrNoActiveSubscription)
}

func TestLedger_ForgedReservation(t *testing.T) {
	ledger, _, subID := newLedger(t, 1)
	err := ledger.Release(t.Context(), walks.CreditReservation{EntryID: "nope", SubscriptionID: subID, WalkID: "walk-x"}, "")
	require.ErrorIs(t, err, walks.ErrNotFound)
}
