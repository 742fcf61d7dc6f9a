package walks_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/walks"
	"github.com/warp/walk-engine/walks/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// 2025-03-03 is a Monday. The test walker works Monday AM and PM.
var (
	testNow = time.Date(2025, time.March, 3, 7, 0, 0, 0, time.UTC)
	monday  = walks.NewDate(2025, time.March, 3)
	tuesday = walks.NewDate(2025, time.March, 4)
)

type fixture struct {
	ctx    context.Context
	store  *store.Memory
	engine *walks.Engine
	clock  *testClock
	walker walks.Walker
}

type testClock struct {
	now atomic.Pointer[time.Time]
}

func (c *testClock) Now() time.Time { return *c.now.Load() }
func (c *testClock) Set(t time.Time) { c.now.Store(&t) }

func newFixture(t *testing.T, opts ...func(*walks.Options)) *fixture {
	t.Helper()

	clock := &testClock{}
	clock.Set(testNow)

	var seq atomic.Int64
	o := walks.Options{
		Now:   clock.Now,
		NewID: func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) },
	}
	for _, opt := range opts {
		opt(&o)
	}

	mem := store.NewMemory()
	f := &fixture{
		ctx:    context.Background(),
		store:  mem,
		engine: walks.NewEngine(mem, o),
		clock:  clock,
	}
	f.walker = f.addWalker(t, "walker-1", 0)
	return f
}

func (f *fixture) addWalker(t *testing.T, id walks.WalkerID, capacity int) walks.Walker {
	t.Helper()
	w, err := f.engine.AddWalker(f.ctx, walks.Walker{
		ID:              id,
		Name:            "Walker " + string(id),
		CapacityPerSlot: capacity,
		Availability: []walks.AvailabilityWindow{
			{Weekday: time.Monday, Slots: []walks.TimeSlot{walks.SlotAM, walks.SlotPM}},
			{Weekday: time.Wednesday, Slots: []walks.TimeSlot{walks.SlotAM}},
		},
	})
	require.NoError(t, err)
	return w
}

// dog stores a dog with the given assessment status, bypassing the
// assessment workflow.
func (f *fixture) dog(t *testing.T, owner walks.OwnerID, status walks.AssessmentStatus) walks.Dog {
	t.Helper()
	d, err := f.engine.AddDog(f.ctx, walks.Dog{OwnerID: owner, Name: "Rex", Size: walks.DogMedium})
	require.NoError(t, err)
	d.AssessmentStatus = status
	require.NoError(t, f.store.SaveDog(f.ctx, d))
	return d
}

func (f *fixture) subscription(t *testing.T, owner walks.OwnerID, credits int) walks.UserSubscription {
	t.Helper()
	plan, err := f.engine.AddPlan(f.ctx, walks.SubscriptionPlan{
		Name:           fmt.Sprintf("%d walks", credits),
		WalkCredits:    credits,
		WalkDuration:   time.Hour,
		ValidityPeriod: 30,
		Price:          decimal.NewFromInt(int64(credits) * 20),
	})
	require.NoError(t, err)
	sub, err := f.engine.PurchaseSubscription(f.ctx, owner, plan.ID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) book(t *testing.T, dog walks.Dog, sub walks.UserSubscription, slot walks.TimeSlot) walks.Walk {
	t.Helper()
	w, err := f.engine.CreateWalk(f.ctx, walks.BookingRequest{
		DogID:          dog.ID,
		WalkerID:       f.walker.ID,
		SubscriptionID: sub.ID,
		Date:           monday,
		TimeSlot:       slot,
	})
	require.NoError(t, err)
	return w
}

// fill books n walks into the slot, one approved dog and one subscription
// per walk, each for a different owner.
func (f *fixture) fill(t *testing.T, slot walks.TimeSlot, n int) []walks.Walk {
	t.Helper()
	var booked []walks.Walk
	for i := 0; i < n; i++ {
		owner := walks.OwnerID(fmt.Sprintf("filler-%s-%d", slot, i))
		dog := f.dog(t, owner, walks.AssessmentApproved)
		sub := f.subscription(t, owner, 1)
		booked = append(booked, f.book(t, dog, sub, slot))
	}
	return booked
}

func (f *fixture) credits(t *testing.T, id walks.SubscriptionID) walks.UserSubscription {
	t.Helper()
	sub, err := f.engine.GetSubscription(f.ctx, id)
	require.NoError(t, err)
	return sub
}

func (f *fixture) setPickup(t *testing.T, walkID walks.WalkID, to walks.PickupStatus) {
	t.Helper()
	_, err := f.engine.SetDogStatus(f.ctx, walkID, to)
	require.NoError(t, err)
}
