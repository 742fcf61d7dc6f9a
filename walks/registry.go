package walks

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DOGS, WALKERS, PLANS - Validation and defaults before persisting
// =============================================================================

// AddDog registers a dog. New dogs start without an assessment unless the
// caller marks them as not requiring one.
func (e *Engine) AddDog(ctx context.Context, dog Dog) (Dog, error) {
	if strings.TrimSpace(string(dog.OwnerID)) == "" || strings.TrimSpace(dog.Name) == "" {
		return Dog{}, fmt.Errorf("owner_id and name are required: %w", ErrInvalidInput)
	}
	switch dog.AssessmentStatus {
	case "":
		dog.AssessmentStatus = AssessmentNone
	case AssessmentNone, AssessmentNotRequired:
	default:
		// Every other status is reached through the assessment workflow.
		return Dog{}, fmt.Errorf("assessment_status %q cannot be set directly: %w", dog.AssessmentStatus, ErrInvalidInput)
	}
	if dog.ID == "" {
		dog.ID = DogID(e.opts.NewID())
	} else if _, err := e.store.GetDog(ctx, dog.ID); err == nil {
		return Dog{}, fmt.Errorf("dog %s already exists: %w", dog.ID, ErrInvalidInput)
	} else if !IsNotFound(err) {
		return Dog{}, err
	}
	now := e.opts.Now()
	dog.Name = strings.TrimSpace(dog.Name)
	dog.CreatedAt, dog.UpdatedAt = now, now
	if err := e.store.SaveDog(ctx, dog); err != nil {
		return Dog{}, err
	}
	return dog, nil
}

func (e *Engine) GetDog(ctx context.Context, id DogID) (Dog, error) {
	return e.store.GetDog(ctx, id)
}

// AddWalker registers or replaces a walker. A walker may take fewer dogs
// per slot than the configured capacity, never more.
func (e *Engine) AddWalker(ctx context.Context, w Walker) (Walker, error) {
	if strings.TrimSpace(w.Name) == "" {
		return Walker{}, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if w.CapacityPerSlot <= 0 {
		w.CapacityPerSlot = e.opts.CapacityPerSlot
	}
	if w.CapacityPerSlot > e.opts.CapacityPerSlot {
		return Walker{}, fmt.Errorf("capacity_per_slot %d exceeds the limit of %d: %w",
			w.CapacityPerSlot, e.opts.CapacityPerSlot, ErrInvalidInput)
	}
	for _, win := range w.Availability {
		if win.Weekday < time.Sunday || win.Weekday > time.Saturday {
			return Walker{}, fmt.Errorf("invalid weekday %d: %w", win.Weekday, ErrInvalidInput)
		}
		for _, s := range win.Slots {
			if !s.Valid() {
				return Walker{}, fmt.Errorf("invalid slot %q: %w", s, ErrInvalidInput)
			}
		}
	}
	if w.ID == "" {
		w.ID = WalkerID(e.opts.NewID())
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = e.opts.Now()
	}
	if err := e.store.SaveWalker(ctx, w); err != nil {
		return Walker{}, err
	}
	return w, nil
}

// AddPlan registers or replaces a subscription plan.
func (e *Engine) AddPlan(ctx context.Context, p SubscriptionPlan) (SubscriptionPlan, error) {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if p.WalkCredits <= 0 {
		problems = append(problems, "walk_credits must be positive")
	}
	if p.WalkDuration <= 0 {
		problems = append(problems, "walk_duration must be positive")
	}
	if p.ValidityPeriod <= 0 {
		problems = append(problems, "validity_period must be positive")
	}
	if p.Price.IsNegative() {
		problems = append(problems, "price must not be negative")
	}
	if len(problems) > 0 {
		return SubscriptionPlan{}, fmt.Errorf("%s: %w", strings.Join(problems, "; "), ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = PlanID(e.opts.NewID())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.opts.Now()
	}
	if err := e.store.SavePlan(ctx, p); err != nil {
		return SubscriptionPlan{}, err
	}
	return p, nil
}

// =============================================================================
// LISTINGS
// =============================================================================

func (e *Engine) ListDogs(ctx context.Context, ownerID OwnerID) ([]Dog, error) {
	return e.store.ListDogsByOwner(ctx, ownerID)
}

func (e *Engine) GetWalker(ctx context.Context, id WalkerID) (Walker, error) {
	return e.store.GetWalker(ctx, id)
}

func (e *Engine) ListWalkers(ctx context.Context) ([]Walker, error) {
	return e.store.ListWalkers(ctx)
}

func (e *Engine) ListPlans(ctx context.Context) ([]SubscriptionPlan, error) {
	return e.store.ListPlans(ctx)
}

// ListAssessments returns a dog's assessments, oldest first.
func (e *Engine) ListAssessments(ctx context.Context, dogID DogID) ([]Assessment, error) {
	if _, err := e.store.GetDog(ctx, dogID); err != nil {
		return nil, err
	}
	return e.store.ListAssessmentsByDog(ctx, dogID)
}
