/*
availability.go - Availability Resolver

PURPOSE:
  Derives from existing walks which slots a walker can still take on a date.
  Nothing is persisted here: occupancy is always recounted from the walks
  table, once when presenting choices and again inside CreateWalk right before
  commit.

RULE:
  A slot is available iff
    - it lies inside the walker's weekly availability for that weekday, and
    - fewer than CapacityPerSlot walks are scheduled or in progress, and
    - its session has not started yet (no member in progress).
*/
package walks

import "context"

// SlotAvailability is the resolved state of one slot.
type SlotAvailability struct {
	Slot           TimeSlot
	Capacity       int
	Occupied       int
	WorkingHours   bool // slot lies inside the walker's weekly windows
	SessionStarted bool
}

func (a SlotAvailability) Available() bool {
	return a.WorkingHours && !a.SessionStarted && a.Occupied < a.Capacity
}

func (a SlotAvailability) Remaining() int {
	if a.Occupied >= a.Capacity {
		return 0
	}
	return a.Capacity - a.Occupied
}

// AvailabilityResolver computes slot availability. DefaultCapacity applies to
// walkers stored without an explicit capacity.
type AvailabilityResolver struct {
	DefaultCapacity int
}

// Resolve returns the state of every slot of walker on date, in day order.
func (r AvailabilityResolver) Resolve(ctx context.Context, store Store, walker Walker, date Date) ([]SlotAvailability, error) {
	result := make([]SlotAvailability, 0, len(AllSlots))
	for _, slot := range AllSlots {
		a, err := r.ResolveSlot(ctx, store, walker, SlotKey{WalkerID: walker.ID, Date: date, Slot: slot})
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// ResolveSlot counts occupancy of a single slot.
func (r AvailabilityResolver) ResolveSlot(ctx context.Context, store Store, walker Walker, key SlotKey) (SlotAvailability, error) {
	occupying, err := store.ListWalks(ctx, InSlot(key, WalkScheduled, WalkInProgress))
	if err != nil {
		return SlotAvailability{}, err
	}
	a := SlotAvailability{
		Slot:         key.Slot,
		Capacity:     walker.Capacity(r.defaultCapacity()),
		Occupied:     len(occupying),
		WorkingHours: walker.WorksOn(key.Date.Weekday(), key.Slot),
	}
	for _, w := range occupying {
		if w.Status == WalkInProgress {
			a.SessionStarted = true
			break
		}
	}
	return a, nil
}

// AvailableSlots returns the set of slots that can still be booked.
func (r AvailabilityResolver) AvailableSlots(ctx context.Context, store Store, walker Walker, date Date) ([]TimeSlot, error) {
	states, err := r.Resolve(ctx, store, walker, date)
	if err != nil {
		return nil, err
	}
	var slots []TimeSlot
	for _, s := range states {
		if s.Available() {
			slots = append(slots, s.Slot)
		}
	}
	return slots, nil
}

func (r AvailabilityResolver) defaultCapacity() int {
	if r.DefaultCapacity > 0 {
		return r.DefaultCapacity
	}
	return DefaultCapacityPerSlot
}

// unavailable converts a rejected slot into the error CreateWalk returns.
func (a SlotAvailability) unavailable(key SlotKey) error {
	switch {
	case !a.WorkingHours:
		return &SlotFullError{Key: key, Capacity: a.Capacity, Occupied: a.Occupied,
			Reason: "outside walker availability"}
	case a.SessionStarted:
		return &SlotFullError{Key: key, Capacity: a.Capacity, Occupied: a.Occupied,
			Reason: "session already in progress"}
	default:
		return &SlotFullError{Key: key, Capacity: a.Capacity, Occupied: a.Occupied}
	}
}
