package walks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// =============================================================================
// WALK STATUS
// =============================================================================

// TransitionWalk applies a status change requested on one walk.
//
//   - in_progress / completed act on the walk's whole session and return every
//     member that moved.
//   - cancelled acts on this walk only and settles its credit: released when
//     the walk had not started, and for a started walk released only if
//     RefundOnMidWalkCancellation is set (consumed otherwise).
func (e *Engine) TransitionWalk(ctx context.Context, walkID WalkID, to WalkStatus) ([]Walk, error) {
	key, err := e.slotOf(ctx, walkID)
	if err != nil {
		return nil, err
	}

	var updated []Walk
	err = e.withSlot(ctx, key, func(s Store) error {
		walk, err := s.GetWalk(ctx, walkID)
		if err != nil {
			return err
		}
		now := e.opts.Now()
		ledger := e.ledger.WithStore(s)

		switch to {
		case WalkCancelled:
			cancelled, err := CancelWalk(walk, now)
			if err != nil {
				return err
			}
			if err := s.UpdateWalk(ctx, cancelled); err != nil {
				return err
			}
			if err := e.settleCancelled(ctx, ledger, walk); err != nil {
				return err
			}
			updated = []Walk{cancelled}

		case WalkInProgress, WalkCompleted:
			members, err := s.ListWalks(ctx, InSlot(key, WalkScheduled, WalkInProgress))
			if err != nil {
				return err
			}
			if !containsWalk(members, walk.ID) {
				return walkTransitionError(walk, to, "walk already finished")
			}
			next, err := TransitionSession(key, members, to, now)
			if err != nil {
				return err
			}
			for _, m := range next {
				if err := s.UpdateWalk(ctx, m); err != nil {
					return err
				}
				if to == WalkCompleted {
					if err := e.settle(ctx, ledger, m.ID, false, "walk completed"); err != nil {
						return err
					}
				}
			}
			updated = next

		default:
			return walkTransitionError(walk, to, "unsupported target status")
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("walk transition rejected",
			slog.String("walk_id", string(walkID)),
			slog.String("target", string(to)),
			slog.String("kind", Kind(err)),
			slog.String("error", err.Error()))
		return nil, err
	}

	e.logger.Info("walk transition applied",
		slog.String("walk_id", string(walkID)),
		slog.String("slot", key.String()),
		slog.String("target", string(to)),
		slog.Int("walks", len(updated)))
	return updated, nil
}

func (e *Engine) settleCancelled(ctx context.Context, ledger *CreditLedger, before Walk) error {
	switch before.Status {
	case WalkScheduled:
		return e.settle(ctx, ledger, before.ID, true, "walk cancelled")
	case WalkInProgress:
		return e.settle(ctx, ledger, before.ID, e.opts.RefundOnMidWalkCancellation, "walk cancelled mid-walk")
	}
	return nil
}

func (e *Engine) settle(ctx context.Context, ledger *CreditLedger, walkID WalkID, refund bool, reason string) error {
	reservation, err := ledger.ReservationFor(ctx, walkID)
	if err != nil {
		return err
	}
	if refund {
		return ledger.Release(ctx, reservation, reason)
	}
	return ledger.Consume(ctx, reservation, reason)
}

// =============================================================================
// DOG SESSION STATUS
// =============================================================================

// SetDogStatus moves the pickup sub-state of one dog inside its session.
func (e *Engine) SetDogStatus(ctx context.Context, walkID WalkID, to PickupStatus) (Walk, error) {
	key, err := e.slotOf(ctx, walkID)
	if err != nil {
		return Walk{}, err
	}

	var updated Walk
	err = e.withSlot(ctx, key, func(s Store) error {
		walk, err := s.GetWalk(ctx, walkID)
		if err != nil {
			return err
		}
		next, err := TransitionDog(walk, to, e.opts.Now())
		if err != nil {
			return err
		}
		if err := s.UpdateWalk(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Walk{}, err
	}

	e.logger.Info("dog status changed",
		slog.String("walk_id", string(walkID)),
		slog.String("dog_id", string(updated.DogID)),
		slog.String("pickup_status", string(to)))
	return updated, nil
}

// =============================================================================
// READS AND FEEDBACK
// =============================================================================

func (e *Engine) GetWalk(ctx context.Context, id WalkID) (Walk, error) {
	return e.store.GetWalk(ctx, id)
}

func (e *Engine) ListWalks(ctx context.Context, filter WalkFilter) ([]Walk, error) {
	walks, err := e.store.ListWalks(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(walks, func(i, j int) bool {
		if !walks[i].Date.Equal(walks[j].Date) {
			return walks[i].Date.Before(walks[j].Date)
		}
		return walks[i].TimeSlot < walks[j].TimeSlot
	})
	return walks, nil
}

// Session returns the live (scheduled or in progress) walks of a slot.
func (e *Engine) Session(ctx context.Context, key SlotKey) (Session, error) {
	if _, err := e.store.GetWalker(ctx, key.WalkerID); err != nil {
		return Session{}, err
	}
	members, err := e.store.ListWalks(ctx, InSlot(key, WalkScheduled, WalkInProgress))
	if err != nil {
		return Session{}, err
	}
	return Session{Key: key, Members: members}, nil
}

// RecordFeedback stores the walker's report. Only completed walks accept it.
func (e *Engine) RecordFeedback(ctx context.Context, walkID WalkID, feedback string, metrics *WalkMetrics) (Walk, error) {
	key, err := e.slotOf(ctx, walkID)
	if err != nil {
		return Walk{}, err
	}
	var updated Walk
	err = e.withSlot(ctx, key, func(s Store) error {
		walk, err := s.GetWalk(ctx, walkID)
		if err != nil {
			return err
		}
		if walk.Status != WalkCompleted {
			return fmt.Errorf("walk %s is %s, feedback needs a completed walk: %w",
				walk.ID, walk.Status, ErrInvalidStateTransition)
		}
		walk.Feedback = strings.TrimSpace(feedback)
		walk.Metrics = metrics
		walk.UpdatedAt = e.opts.Now()
		if err := s.UpdateWalk(ctx, walk); err != nil {
			return err
		}
		updated = walk
		return nil
	})
	return updated, err
}

func (e *Engine) slotOf(ctx context.Context, walkID WalkID) (SlotKey, error) {
	walk, err := e.store.GetWalk(ctx, walkID)
	if err != nil {
		return SlotKey{}, err
	}
	return walk.SlotKey(), nil
}

func containsWalk(walks []Walk, id WalkID) bool {
	for _, w := range walks {
		if w.ID == id {
			return true
		}
	}
	return false
}
