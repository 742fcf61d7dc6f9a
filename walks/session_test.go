package walks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/walks"
)

var testKey = walks.SlotKey{WalkerID: "walker-1", Date: monday, Slot: walks.SlotAM}

func member(id string, status walks.WalkStatus, pickup walks.PickupStatus) walks.Walk {
	return walks.Walk{
		ID: walks.WalkID(id), DogID: walks.DogID("dog-" + id),
		WalkerID: testKey.WalkerID, Date: testKey.Date, TimeSlot: testKey.Slot,
		Status: status, PickupStatus: pickup,
	}
}

// =============================================================================
// SINGLE WALK
// =============================================================================

func TestCanTransitionWalk(t *testing.T) {
	allowed := map[[2]walks.WalkStatus]bool{
		{walks.WalkScheduled, walks.WalkInProgress}: true,
		{walks.WalkScheduled, walks.WalkCancelled}:  true,
		{walks.WalkInProgress, walks.WalkCompleted}: true,
		{walks.WalkInProgress, walks.WalkCancelled}: true,
	}
	all := []walks.WalkStatus{walks.WalkScheduled, walks.WalkInProgress, walks.WalkCompleted, walks.WalkCancelled}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]walks.WalkStatus{from, to}], walks.CanTransitionWalk(from, to),
				"%s -> %s", from, to)
		}
	}
}

func TestCancelWalk(t *testing.T) {
	for _, status := range []walks.WalkStatus{walks.WalkScheduled, walks.WalkInProgress} {
		w, err := walks.CancelWalk(member("a", status, walks.PickupPending), testNow)
		require.NoError(t, err)
		assert.Equal(t, walks.WalkCancelled, w.Status)
		assert.Equal(t, testNow, w.UpdatedAt)
	}
	for _, status := range []walks.WalkStatus{walks.WalkCompleted, walks.WalkCancelled} {
		in := member("a", status, walks.PickupDroppedOff)
		out, err := walks.CancelWalk(in, testNow)
		require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
		assert.Equal(t, in, out)
	}
}

func TestTransitionDog(t *testing.T) {
	cases := []struct {
		name   string
		walk   walks.WalkStatus
		from   walks.PickupStatus
		to     walks.PickupStatus
		wantOK bool
	}{
		{"pick up", walks.WalkScheduled, walks.PickupPending, walks.PickupPickedUp, true},
		{"mark absent", walks.WalkScheduled, walks.PickupPending, walks.PickupAbsent, true},
		{"absent after pickup", walks.WalkInProgress, walks.PickupPickedUp, walks.PickupAbsent, true},
		{"drop off during walk", walks.WalkInProgress, walks.PickupPickedUp, walks.PickupDroppedOff, true},
		{"drop off before start", walks.WalkScheduled, walks.PickupPickedUp, walks.PickupDroppedOff, false},
		{"drop off without pickup", walks.WalkInProgress, walks.PickupPending, walks.PickupDroppedOff, false},
		{"absent is terminal", walks.WalkScheduled, walks.PickupAbsent, walks.PickupPickedUp, false},
		{"dropped off is terminal", walks.WalkInProgress, walks.PickupDroppedOff, walks.PickupPickedUp, false},
		{"walk finished", walks.WalkCompleted, walks.PickupPickedUp, walks.PickupDroppedOff, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := member("a", tc.walk, tc.from)
			out, err := walks.TransitionDog(in, tc.to, testNow)
			if tc.wantOK {
				require.NoError(t, err)
				assert.Equal(t, tc.to, out.PickupStatus)
				return
			}
			require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
			assert.Equal(t, in, out)
		})
	}
}

// =============================================================================
// GROUP SESSION
// =============================================================================

func TestTransitionSession_StartWithAbsentDog(t *testing.T) {
	// GIVEN: a 2-dog session, one absent and one picked up
	// WHEN: the walker starts the session
	// THEN: both walks move to in_progress
	members := []walks.Walk{
		member("a", walks.WalkScheduled, walks.PickupAbsent),
		member("b", walks.WalkScheduled, walks.PickupPickedUp),
	}
	next, err := walks.TransitionSession(testKey, members, walks.WalkInProgress, testNow)
	require.NoError(t, err)
	require.Len(t, next, 2)
	for _, w := range next {
		assert.Equal(t, walks.WalkInProgress, w.Status)
	}
	// Input untouched.
	assert.Equal(t, walks.WalkScheduled, members[0].Status)
}

func TestTransitionSession_CompleteBeforeDropOff(t *testing.T) {
	// GIVEN: the started session, picked-up dog not yet dropped off
	// WHEN: the walker completes the session
	// THEN: InvalidStateTransition and no member changes
	members := []walks.Walk{
		member("a", walks.WalkInProgress, walks.PickupAbsent),
		member("b", walks.WalkInProgress, walks.PickupPickedUp),
	}
	next, err := walks.TransitionSession(testKey, members, walks.WalkCompleted, testNow)
	require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	assert.Nil(t, next)

	var te *walks.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "session", te.Entity)
	assert.Contains(t, te.Reason, "dog-b")

	members[1].PickupStatus = walks.PickupDroppedOff
	next, err = walks.TransitionSession(testKey, members, walks.WalkCompleted, testNow)
	require.NoError(t, err)
	assert.Equal(t, walks.WalkCompleted, next[1].Status)
}

func TestTransitionSession_Guards(t *testing.T) {
	t.Run("start needs every dog accounted for", func(t *testing.T) {
		members := []walks.Walk{
			member("a", walks.WalkScheduled, walks.PickupPickedUp),
			member("b", walks.WalkScheduled, walks.PickupPickedUp),
			member("c", walks.WalkScheduled, walks.PickupPending),
		}
		_, err := walks.TransitionSession(testKey, members, walks.WalkInProgress, testNow)
		require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	})

	t.Run("single dog session", func(t *testing.T) {
		members := []walks.Walk{member("a", walks.WalkScheduled, walks.PickupPickedUp)}
		next, err := walks.TransitionSession(testKey, members, walks.WalkInProgress, testNow)
		require.NoError(t, err)
		assert.Equal(t, walks.WalkInProgress, next[0].Status)
	})

	t.Run("mixed member states", func(t *testing.T) {
		members := []walks.Walk{
			member("a", walks.WalkInProgress, walks.PickupPickedUp),
			member("b", walks.WalkScheduled, walks.PickupPickedUp),
		}
		_, err := walks.TransitionSession(testKey, members, walks.WalkInProgress, testNow)
		require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	})

	t.Run("empty session", func(t *testing.T) {
		_, err := walks.TransitionSession(testKey, nil, walks.WalkInProgress, testNow)
		require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	})

	t.Run("cancel is not a session move", func(t *testing.T) {
		members := []walks.Walk{member("a", walks.WalkScheduled, walks.PickupPending)}
		_, err := walks.TransitionSession(testKey, members, walks.WalkCancelled, testNow)
		require.ErrorIs(t, err, walks.ErrInvalidStateTransition)
	})
}

func TestSession_Status(t *testing.T) {
	s := walks.Session{Key: testKey, Members: []walks.Walk{
		member("a", walks.WalkInProgress, walks.PickupPickedUp),
		member("b", walks.WalkInProgress, walks.PickupAbsent),
	}}
	assert.True(t, s.IsGroup())
	assert.Equal(t, walks.WalkInProgress, s.Status())

	assert.Empty(t, walks.Session{Key: testKey}.Status())
	assert.False(t, walks.Session{Key: testKey}.IsGroup())
}
