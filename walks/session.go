/*
session.go - Walk / Group Session state machine

PURPOSE:
  Pure transition functions for a walk, for the per-dog pickup sub-state, and
  for a whole group session. They take the current state and return the next
  state or a TransitionError; nothing here touches a store, so the same rules
  run behind the HTTP API and inside tests.

WALK STATES:
  scheduled ──▶ in_progress ──▶ completed
      │              │
      └──────────────┴──▶ cancelled          (completed, cancelled: terminal)

PICKUP SUB-STATES (while the walk is scheduled or in progress):
  pending ──▶ picked_up ──▶ dropped_off
     │            │
     └────────────┴──▶ absent                (dropped_off, absent: terminal)

  dropped_off additionally requires the walk to be in progress.

SESSION GUARDS (every walk sharing walker + date + slot, n >= 1):
  start:    every member picked_up or absent   -> all members in_progress
  complete: every member dropped_off or absent -> all members completed
  Transitions are all-or-nothing across the session.
*/
package walks

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TRANSITION TABLES
// =============================================================================

var walkTransitions = map[WalkStatus][]WalkStatus{
	WalkScheduled:  {WalkInProgress, WalkCancelled},
	WalkInProgress: {WalkCompleted, WalkCancelled},
}

var pickupTransitions = map[PickupStatus][]PickupStatus{
	PickupPending:  {PickupPickedUp, PickupAbsent},
	PickupPickedUp: {PickupDroppedOff, PickupAbsent},
}

func CanTransitionWalk(from, to WalkStatus) bool {
	for _, next := range walkTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionPickup(from, to PickupStatus) bool {
	for _, next := range pickupTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func walkTransitionError(w Walk, to WalkStatus, reason string) error {
	return &TransitionError{Entity: "walk", ID: string(w.ID), From: string(w.Status), To: string(to), Reason: reason}
}

// =============================================================================
// SINGLE WALK
// =============================================================================

// CancelWalk returns w cancelled, or an error when w already finished.
func CancelWalk(w Walk, at time.Time) (Walk, error) {
	if !CanTransitionWalk(w.Status, WalkCancelled) {
		return w, walkTransitionError(w, WalkCancelled, "walk already finished")
	}
	w.Status = WalkCancelled
	w.UpdatedAt = at
	return w, nil
}

// TransitionDog moves the pickup sub-state of w.
func TransitionDog(w Walk, to PickupStatus, at time.Time) (Walk, error) {
	reject := func(reason string) (Walk, error) {
		return w, &TransitionError{
			Entity: "dog session status", ID: string(w.ID),
			From: string(w.PickupStatus), To: string(to), Reason: reason,
		}
	}
	if w.Status.Terminal() {
		return reject(fmt.Sprintf("walk is %s", w.Status))
	}
	if !CanTransitionPickup(w.PickupStatus, to) {
		return reject("")
	}
	if to == PickupDroppedOff && w.Status != WalkInProgress {
		return reject("walk has not started")
	}
	w.PickupStatus = to
	w.UpdatedAt = at
	return w, nil
}

// =============================================================================
// GROUP SESSION
// =============================================================================

// Session is the set of live walks sharing one walker, date and slot.
type Session struct {
	Key     SlotKey
	Members []Walk
}

// IsGroup reports whether the session is a group walk (more than one dog).
func (s Session) IsGroup() bool { return len(s.Members) > 1 }

// Status summarises the session: the common member status, scheduled while
// members disagree, and empty when no live walk is left in the slot.
func (s Session) Status() WalkStatus {
	if len(s.Members) == 0 {
		return ""
	}
	status := s.Members[0].Status
	for _, m := range s.Members[1:] {
		if m.Status != status {
			return WalkScheduled
		}
	}
	return status
}

// sessionGuard lists, for a session-wide target, the member status required
// before the move and the pickup sub-states that allow it.
var sessionGuard = map[WalkStatus]struct {
	from    WalkStatus
	pickups []PickupStatus
}{
	WalkInProgress: {from: WalkScheduled, pickups: []PickupStatus{PickupPickedUp, PickupAbsent}},
	WalkCompleted:  {from: WalkInProgress, pickups: []PickupStatus{PickupDroppedOff, PickupAbsent}},
}

// TransitionSession moves every member to `to` (in_progress or completed).
// It returns new copies of the members; on error the input is untouched.
func TransitionSession(key SlotKey, members []Walk, to WalkStatus, at time.Time) ([]Walk, error) {
	reject := func(from WalkStatus, reason string) ([]Walk, error) {
		return nil, &TransitionError{Entity: "session", ID: key.String(), From: string(from), To: string(to), Reason: reason}
	}

	guard, ok := sessionGuard[to]
	if !ok {
		return reject(Session{Key: key, Members: members}.Status(), "not a session transition")
	}
	if len(members) == 0 {
		return reject(guard.from, "session has no active walks")
	}

	var blocked []string
	for _, m := range members {
		if m.Status != guard.from {
			return reject(m.Status, fmt.Sprintf("walk %s is %s", m.ID, m.Status))
		}
		if !pickupIn(m.PickupStatus, guard.pickups) {
			blocked = append(blocked, fmt.Sprintf("%s (dog %s) is %s", m.ID, m.DogID, m.PickupStatus))
		}
	}
	if len(blocked) > 0 {
		return reject(guard.from, "waiting on "+strings.Join(blocked, ", "))
	}

	next := make([]Walk, len(members))
	for i, m := range members {
		m.Status = to
		m.UpdatedAt = at
		next[i] = m
	}
	return next, nil
}

func pickupIn(s PickupStatus, allowed []PickupStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
