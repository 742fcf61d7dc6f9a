/*
booking.go - Booking Transaction

PURPOSE:
  CreateWalk is the write path that turns a booking request into a scheduled
  walk. Eligibility, subscription validity, slot occupancy and the credit
  reservation are all re-checked inside one transaction that is serialized on
  the (walker, date, slot) aggregate, so the read-then-write race of
  concurrent owners cannot overbook a walker or overdraw a subscription.

STEPS (inside the slot lock + transaction):
  1. Dog must pass CanBook                     -> ErrDogNotEligible
  2. Subscription active, unexpired, same owner -> ErrNoActiveSubscription
  3. Slot occupancy < capacity                 -> ErrSlotFull
  4. CreditLedger.Reserve                      -> ErrNoCreditsRemaining
  5. Insert walk (scheduled, plan duration)
  6. If 5 fails, release the reservation (compensating action) and fail

No partial state is observable: a failure anywhere rolls the transaction back.

SEE ALSO:
  - availability.go: occupancy rule
  - ledger.go: Reserve / Release
*/
package walks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// BookingRequest is the input of CreateWalk.
type BookingRequest struct {
	DogID          DogID
	WalkerID       WalkerID
	SubscriptionID SubscriptionID
	Date           Date
	TimeSlot       TimeSlot
	Notes          string
}

func (r BookingRequest) validate() error {
	var problems []string
	if strings.TrimSpace(string(r.DogID)) == "" {
		problems = append(problems, "dog_id is required")
	}
	if strings.TrimSpace(string(r.WalkerID)) == "" {
		problems = append(problems, "walker_id is required")
	}
	if strings.TrimSpace(string(r.SubscriptionID)) == "" {
		problems = append(problems, "subscription_id is required")
	}
	if r.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if !r.TimeSlot.Valid() {
		problems = append(problems, "time_slot must be AM or PM")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidInput)
	}
	return nil
}

// CreateWalk books a walk and returns it in the scheduled state.
func (e *Engine) CreateWalk(ctx context.Context, req BookingRequest) (Walk, error) {
	if err := req.validate(); err != nil {
		return Walk{}, err
	}
	now := e.opts.Now()
	if req.Date.Before(DateOf(now)) {
		return Walk{}, fmt.Errorf("date %s is in the past: %w", req.Date, ErrInvalidInput)
	}

	key := SlotKey{WalkerID: req.WalkerID, Date: req.Date, Slot: req.TimeSlot}
	var walk Walk

	err := e.withSlot(ctx, key, func(s Store) error {
		// 1. Eligibility
		dog, err := s.GetDog(ctx, req.DogID)
		if err != nil {
			return err
		}
		if !CanBook(dog) {
			return fmt.Errorf("dog %s assessment is %s: %w", dog.ID, dog.AssessmentStatus, ErrDogNotEligible)
		}

		// 2. Subscription
		sub, err := s.GetSubscription(ctx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub.OwnerID != dog.OwnerID {
			return fmt.Errorf("subscription %s does not belong to owner of dog %s: %w",
				sub.ID, dog.ID, ErrNoActiveSubscription)
		}
		if !sub.UsableAt(now) {
			return fmt.Errorf("subscription %s is %s: %w", sub.ID, sub.Status, ErrNoActiveSubscription)
		}
		plan, err := s.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		// 3. Occupancy, recounted under the lock
		walker, err := s.GetWalker(ctx, req.WalkerID)
		if err != nil {
			return err
		}
		slot, err := e.resolver.ResolveSlot(ctx, s, walker, key)
		if err != nil {
			return err
		}
		if !slot.Available() {
			return slot.unavailable(key)
		}
		if err := e.checkDogFree(ctx, s, dog.ID, key); err != nil {
			return err
		}

		// 4. Credit
		walkID := WalkID(e.opts.NewID())
		ledger := e.ledger.WithStore(s)
		reservation, err := ledger.Reserve(ctx, sub.ID, walkID)
		if err != nil {
			return err
		}

		// 5. Persist
		walk = Walk{
			ID:             walkID,
			DogID:          dog.ID,
			OwnerID:        dog.OwnerID,
			WalkerID:       walker.ID,
			SubscriptionID: sub.ID,
			Date:           req.Date,
			TimeSlot:       req.TimeSlot,
			Duration:       plan.WalkDuration,
			Status:         WalkScheduled,
			PickupStatus:   PickupPending,
			Notes:          strings.TrimSpace(req.Notes),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.InsertWalk(ctx, walk); err != nil {
			// 6. Compensate
			if relErr := ledger.Release(ctx, reservation, "booking failed"); relErr != nil {
				return errors.Join(fmt.Errorf("failed to persist walk: %w", err), relErr)
			}
			return fmt.Errorf("failed to persist walk: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("booking rejected",
			slog.String("slot", key.String()),
			slog.String("dog_id", string(req.DogID)),
			slog.String("kind", Kind(err)),
			slog.String("error", err.Error()))
		return Walk{}, err
	}

	e.logger.Info("walk booked",
		slog.String("walk_id", string(walk.ID)),
		slog.String("slot", key.String()),
		slog.String("dog_id", string(walk.DogID)),
		slog.String("subscription_id", string(walk.SubscriptionID)))
	return walk, nil
}

// checkDogFree rejects booking the same dog twice into one day's slot,
// whichever walker holds the other booking.
func (e *Engine) checkDogFree(ctx context.Context, s Store, dogID DogID, key SlotKey) error {
	existing, err := s.ListWalks(ctx, WalkFilter{
		DogID:    &dogID,
		Date:     &key.Date,
		Slot:     &key.Slot,
		Statuses: []WalkStatus{WalkScheduled, WalkInProgress},
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("dog %s already has walk %s on %s %s: %w",
			dogID, existing[0].ID, key.Date, key.Slot, ErrInvalidInput)
	}
	return nil
}

// AvailableSlots returns the slots of walkerID that can still be booked on
// date. The answer is advisory; CreateWalk re-checks it.
func (e *Engine) AvailableSlots(ctx context.Context, walkerID WalkerID, date Date) ([]TimeSlot, error) {
	walker, err := e.store.GetWalker(ctx, walkerID)
	if err != nil {
		return nil, err
	}
	return e.resolver.AvailableSlots(ctx, e.store, walker, date)
}

// SlotStates returns per-slot occupancy detail for walkerID on date.
func (e *Engine) SlotStates(ctx context.Context, walkerID WalkerID, date Date) ([]SlotAvailability, error) {
	walker, err := e.store.GetWalker(ctx, walkerID)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(ctx, e.store, walker, date)
}
