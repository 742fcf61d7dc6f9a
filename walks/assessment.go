/*
assessment.go - Assessment state machine

PURPOSE:
  A new dog is evaluated before its first walk. The assessment's outcome is
  the only thing that feeds the Eligibility Gate: completing it with an
  approved result flips dog.AssessmentStatus to approved.

STATES:
  pending ──▶ scheduled ──▶ completed (result approved | denied)
     │            │
     └────────────┴──▶ cancelled             (completed, cancelled: terminal)

  A scheduled assessment may be rescheduled (new date or walker) in place.

DOG STATUS MIRROR:
  pending   -> dog pending
  scheduled -> dog scheduled
  completed -> dog approved / denied
  cancelled -> dog none (the owner may request again)
*/
package walks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AssessmentRequest is the input of RequestAssessment.
type AssessmentRequest struct {
	DogID         DogID
	OwnerID       OwnerID
	RequestedDate Date
	Notes         string
}

// AssessmentUpdate carries the optional fields of an admin/walker update.
type AssessmentUpdate struct {
	ScheduledDate    *Date
	AssignedWalkerID *WalkerID
	Status           *AssessmentState
	Result           *AssessmentResult
	Notes            *string
}

// =============================================================================
// PURE TRANSITIONS
// =============================================================================

// ApplyAssessmentUpdate returns a with u applied, or an error and a unchanged.
func ApplyAssessmentUpdate(a Assessment, u AssessmentUpdate, at time.Time) (Assessment, error) {
	if u.Status != nil && !u.Status.Valid() {
		return a, fmt.Errorf("unknown assessment status %q: %w", *u.Status, ErrInvalidInput)
	}
	target := a.Status
	if u.Status != nil {
		target = *u.Status
	} else if u.ScheduledDate != nil && a.Status == AssessmentStatePending {
		target = AssessmentStateScheduled
	}

	reject := func(reason string) (Assessment, error) {
		return a, &TransitionError{Entity: "assessment", ID: string(a.ID), From: string(a.Status), To: string(target), Reason: reason}
	}

	if a.Status.Terminal() {
		return reject("assessment is closed")
	}
	if u.Result != nil && target != AssessmentStateCompleted {
		return a, fmt.Errorf("result may only be set when completing: %w", ErrInvalidInput)
	}
	if u.Result != nil && *u.Result != ResultApproved && *u.Result != ResultDenied {
		return a, fmt.Errorf("result must be approved or denied: %w", ErrInvalidInput)
	}

	next := a
	if u.ScheduledDate != nil {
		d := *u.ScheduledDate
		next.ScheduledDate = &d
	}
	if u.AssignedWalkerID != nil {
		w := *u.AssignedWalkerID
		next.AssignedWalkerID = &w
	}
	if u.Notes != nil {
		next.Notes = strings.TrimSpace(*u.Notes)
	}

	switch target {
	case AssessmentStatePending:
		if a.Status != AssessmentStatePending {
			return reject("")
		}
	case AssessmentStateScheduled:
		if next.ScheduledDate == nil {
			return a, fmt.Errorf("scheduled_date is required to schedule: %w", ErrInvalidInput)
		}
	case AssessmentStateCompleted:
		if a.Status != AssessmentStateScheduled {
			return reject("assessment must be scheduled first")
		}
		if u.Result == nil {
			return a, fmt.Errorf("result is required to complete: %w", ErrInvalidInput)
		}
		r := *u.Result
		next.Result = &r
	case AssessmentStateCancelled:
	}

	next.Status = target
	next.UpdatedAt = at
	return next, nil
}

// DogStatusFor mirrors an assessment onto the dog's eligibility input.
func DogStatusFor(a Assessment) AssessmentStatus {
	switch a.Status {
	case AssessmentStatePending:
		return AssessmentPending
	case AssessmentStateScheduled:
		return AssessmentScheduled
	case AssessmentStateCompleted:
		if a.Result != nil && *a.Result == ResultApproved {
			return AssessmentApproved
		}
		return AssessmentDenied
	default:
		return AssessmentNone
	}
}

// =============================================================================
// ENGINE OPERATIONS
// =============================================================================

// RequestAssessment opens a pending assessment for a dog.
func (e *Engine) RequestAssessment(ctx context.Context, req AssessmentRequest) (Assessment, error) {
	if strings.TrimSpace(string(req.DogID)) == "" || strings.TrimSpace(string(req.OwnerID)) == "" {
		return Assessment{}, fmt.Errorf("dog_id and owner_id are required: %w", ErrInvalidInput)
	}

	var created Assessment
	err := e.withDog(ctx, req.DogID, func(s Store) error {
		dog, err := s.GetDog(ctx, req.DogID)
		if err != nil {
			return err
		}
		if dog.OwnerID != req.OwnerID {
			return fmt.Errorf("dog %s does not belong to owner %s: %w", dog.ID, req.OwnerID, ErrInvalidInput)
		}
		if CanBook(dog) {
			return &TransitionError{Entity: "dog", ID: string(dog.ID),
				From: string(dog.AssessmentStatus), To: string(AssessmentPending),
				Reason: "dog is already eligible"}
		}

		existing, err := s.ListAssessmentsByDog(ctx, dog.ID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			if !a.Status.Terminal() {
				return fmt.Errorf("dog %s has assessment %s (%s): %w", dog.ID, a.ID, a.Status, ErrAssessmentOpen)
			}
		}

		now := e.opts.Now()
		created = Assessment{
			ID:            AssessmentID(e.opts.NewID()),
			DogID:         dog.ID,
			OwnerID:       dog.OwnerID,
			Status:        AssessmentStatePending,
			RequestedDate: req.RequestedDate,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.InsertAssessment(ctx, created); err != nil {
			return err
		}
		dog.AssessmentStatus = DogStatusFor(created)
		dog.UpdatedAt = now
		return s.SaveDog(ctx, dog)
	})
	if err != nil {
		return Assessment{}, err
	}

	e.logger.Info("assessment requested",
		slog.String("assessment_id", string(created.ID)),
		slog.String("dog_id", string(created.DogID)))
	return created, nil
}

// UpdateAssessment applies a scheduling or outcome update and mirrors the
// new state onto the dog.
func (e *Engine) UpdateAssessment(ctx context.Context, id AssessmentID, u AssessmentUpdate) (Assessment, error) {
	current, err := e.store.GetAssessment(ctx, id)
	if err != nil {
		return Assessment{}, err
	}

	var updated Assessment
	err = e.withDog(ctx, current.DogID, func(s Store) error {
		a, err := s.GetAssessment(ctx, id)
		if err != nil {
			return err
		}
		if u.AssignedWalkerID != nil {
			if _, err := s.GetWalker(ctx, *u.AssignedWalkerID); err != nil {
				return err
			}
		}
		next, err := ApplyAssessmentUpdate(a, u, e.opts.Now())
		if err != nil {
			return err
		}
		if err := s.UpdateAssessment(ctx, next, a.Status); err != nil {
			return err
		}
		if next.Status != a.Status {
			dog, err := s.GetDog(ctx, next.DogID)
			if err != nil {
				return err
			}
			dog.AssessmentStatus = DogStatusFor(next)
			dog.UpdatedAt = next.UpdatedAt
			if err := s.SaveDog(ctx, dog); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return Assessment{}, err
	}

	e.logger.Info("assessment updated",
		slog.String("assessment_id", string(updated.ID)),
		slog.String("dog_id", string(updated.DogID)),
		slog.String("status", string(updated.Status)))
	return updated, nil
}

func (e *Engine) GetAssessment(ctx context.Context, id AssessmentID) (Assessment, error) {
	return e.store.GetAssessment(ctx, id)
}
