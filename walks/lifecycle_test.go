package walks_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/walks"
)

func TestGroupSession_StartThenCompleteTooEarly(t *testing.T) {
	// GIVEN: a group session of 2 dogs, one absent and one picked up
	// WHEN: the session starts, then completes before the drop-off
	// THEN: start succeeds for both, complete fails with InvalidStateTransition
	f := newFixture(t)
	booked := f.fill(t, walks.SlotAM, 2)
	f.setPickup(t, booked[0].ID, walks.PickupAbsent)
	f.setPickup(t, booked[1].ID, walks.PickupPickedUp)

	started, err := f.engine.TransitionWalk(f.ctx, booked[1].ID, walks.WalkInProgress)
	require.NoError(t, err)
	require.Len(t, started, 2)
	for _, w := range started {
		assert.Equal(t, walks.WalkInProgress, w.Status)
	}

	_, err = f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkCompleted)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	assert.Equal(t, "InvalidStateTransition", walks.Kind(err))

	for _, b := range booked {
		w, err := f.engine.GetWalk(f.ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, walks.WalkInProgress, w.Status)
	}
}

func TestGroupSession_FullRunConsumesCredits(t *testing.T) {
	f := newFixture(t)
	booked := f.fill(t, walks.SlotPM, 3)
	f.setPickup(t, booked[0].ID, walks.PickupPickedUp)
	f.setPickup(t, booked[1].ID, walks.PickupPickedUp)
	f.setPickup(t, booked[2].ID, walks.PickupAbsent)

	// Drop-off is only possible once walking.
	_, err := f.engine.SetDogStatus(f.ctx, booked[0].ID, walks.PickupDroppedOff)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)

	_, err = f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkInProgress)
	require.NoError(t, err)
	f.setPickup(t, booked[0].ID, walks.PickupDroppedOff)
	f.setPickup(t, booked[1].ID, walks.PickupDroppedOff)

	completed, err := f.engine.TransitionWalk(f.ctx, booked[2].ID, walks.WalkCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 3)

	for _, b := range booked {
		sub := f.credits(t, b.SubscriptionID)
		assert.Equal(t, 1, sub.CreditsUsed, "completed walks keep their credit spent")

		history, err := f.engine.CreditHistory(f.ctx, b.SubscriptionID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, walks.CreditConsume, history[1].Type)
	}

	// Finished walks can be neither cancelled nor completed again.
	_, err = f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkCancelled)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	_, err = f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkCompleted)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
}

func TestCancelScheduledWalk_RefundsCredit(t *testing.T) {
	f := newFixture(t)
	dog := f.dog(t, "owner", walks.AssessmentApproved)
	sub := f.subscription(t, "owner", 2)
	walk := f.book(t, dog, sub, walks.SlotAM)
	assert.Equal(t, 1, f.credits(t, sub.ID).CreditsUsed)

	cancelled, err := f.engine.TransitionWalk(f.ctx, walk.ID, walks.WalkCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, walks.WalkCancelled, cancelled[0].Status)
	assert.Equal(t, 0, f.credits(t, sub.ID).CreditsUsed)

	// The seat is free again.
	slots, err := f.engine.AvailableSlots(f.ctx, f.walker.ID, monday)
	require.NoError(t, err)
	assert.Contains(t, slots, walks.SlotAM)

	// A second cancel is rejected and does not refund twice.
	_, err = f.engine.TransitionWalk(f.ctx, walk.ID, walks.WalkCancelled)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	assert.Equal(t, 0, f.credits(t, sub.ID).CreditsUsed)
}

func TestCancelInProgressWalk_RefundFlag(t *testing.T) {
	cases := []struct {
		name     string
		refund   bool
		wantUsed int
		wantLast walks.CreditEntryType
	}{
		{"default keeps credit spent", false, 1, walks.CreditConsume},
		{"refund enabled", true, 0, walks.CreditRelease},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(o *walks.Options) { o.RefundOnMidWalkCancellation = tc.refund })
			booked := f.fill(t, walks.SlotAM, 2)
			for _, b := range booked {
				f.setPickup(t, b.ID, walks.PickupPickedUp)
			}
			_, err := f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkInProgress)
			require.NoError(t, err)

			_, err = f.engine.TransitionWalk(f.ctx, booked[0].ID, walks.WalkCancelled)
			require.NoError(t, err)

			assert.Equal(t, tc.wantUsed, f.credits(t, booked[0].SubscriptionID).CreditsUsed)
			history, err := f.engine.CreditHistory(f.ctx, booked[0].SubscriptionID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantLast, history[len(history)-1].Type)

			// The other dog's walk is unaffected and the session can finish.
			f.setPickup(t, booked[1].ID, walks.PickupDroppedOff)
			completed, err := f.engine.TransitionWalk(f.ctx, booked[1].ID, walks.WalkCompleted)
			require.NoError(t, err)
			assert.Len(t, completed, 1)
		})
	}
}

func TestSession_ListsLiveMembers(t *testing.T) {
	f := newFixture(t)
	booked := f.fill(t, walks.SlotAM, 3)
	_, err := f.engine.TransitionWalk(f.ctx, booked[2].ID, walks.WalkCancelled)
	require.NoError(t, err)

	session, err := f.engine.Session(f.ctx, booked[0].SlotKey())
	require.NoError(t, err)
	assert.True(t, session.IsGroup())
	assert.Len(t, session.Members, 2)

	_, err = f.engine.Session(f.ctx, walks.SlotKey{WalkerID: "ghost", Date: monday, Slot: walks.SlotAM})
	require.ErrorIs(t, err, walks.ErrNotFound)
}

func TestRecordFeedback(t *testing.T) {
	f := newFixture(t)
	booked := f.fill(t, walks.SlotAM, 1)
	id := booked[0].ID

	_, err := f.engine.RecordFeedback(f.ctx, id, "good boy", nil)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition, "feedback before completion")

	f.setPickup(t, id, walks.PickupPickedUp)
	_, err = f.engine.TransitionWalk(f.ctx, id, walks.WalkInProgress)
	require.NoError(t, err)
	f.setPickup(t, id, walks.PickupDroppedOff)
	_, err = f.engine.TransitionWalk(f.ctx, id, walks.WalkCompleted)
	require.NoError(t, err)

	metrics := &walks.WalkMetrics{DistanceKm: decimal.RequireFromString("3.4"), DurationMinutes: 58, Pees: 3, Poops: 1}
	w, err := f.engine.RecordFeedback(f.ctx, id, "  good boy  ", metrics)
	require.NoError(t, err)
	assert.Equal(t, "good boy", w.Feedback)
	require.NotNil(t, w.Metrics)
	assert.True(t, w.Metrics.DistanceKm.Equal(decimal.RequireFromString("3.4")))
}

func TestListWalks_OrderedByDateAndSlot(t *testing.T) {
	f := newFixture(t)
	dog := f.dog(t, "owner", walks.AssessmentApproved)
	sub := f.subscription(t, "owner", 5)

	book := func(date walks.Date, slot walks.TimeSlot) {
		_, err := f.engine.CreateWalk(f.ctx, walks.BookingRequest{
			DogID: dog.ID, WalkerID: f.walker.ID, SubscriptionID: sub.ID, Date: date, TimeSlot: slot,
		})
		require.NoError(t, err)
	}
	wednesday := monday.AddDays(2)
	book(wednesday, walks.SlotAM)
	book(monday, walks.SlotPM)
	book(monday, walks.SlotAM)

	list, err := f.engine.ListWalks(f.ctx, walks.WalkFilter{DogID: &dog.ID})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, monday, list[0].Date)
	assert.Equal(t, walks.SlotAM, list[0].TimeSlot)
	assert.Equal(t, walks.SlotPM, list[1].TimeSlot)
	assert.Equal(t, wednesday, list[2].Date)
}
