/*
errors.go - Error kinds returned by the engine

PURPOSE:
  Every rejection the engine produces maps to one kind callers can surface
  verbatim. None of them is fatal to the process; SlotFull is the only one
  expected to be common under contention and worth retrying.

ERROR CATEGORIES:
  1. Booking preconditions - DogNotEligible, NoActiveSubscription,
     NoCreditsRemaining, SlotFull
  2. State machines - InvalidStateTransition, CreditAlreadySettled,
     AssessmentOpen
  3. Lookups and input - NotFound, InvalidInput
  4. Store - DuplicateIdempotencyKey

USAGE:
  if errors.Is(err, walks.ErrSlotFull) {
      // re-query availability and let the owner pick again
  }
  kind := walks.Kind(err) // "SlotFull"

SEE ALSO:
  - api/errors.go: maps kinds to HTTP status codes
*/
package walks

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrDogNotEligible         = errors.New("dog not eligible for booking")
	ErrNoActiveSubscription   = errors.New("no active subscription")
	ErrNoCreditsRemaining     = errors.New("no credits remaining")
	ErrSlotFull               = errors.New("slot full")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")

	// ErrCreditAlreadySettled is returned when a reservation is released twice
	// or released after its walk consumed the credit.
	ErrCreditAlreadySettled = errors.New("credit already settled")

	// ErrAssessmentOpen is returned when a dog already has a pending or
	// scheduled assessment.
	ErrAssessmentOpen = errors.New("assessment already open for dog")

	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateIdempotencyKey is returned by stores when a credit entry with
	// the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrCreditUnderflow is returned by stores when a release would take
	// CreditsUsed below zero.
	ErrCreditUnderflow = errors.New("credits used would drop below zero")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError; stores return it from Get methods.
func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// SlotFullError reports occupancy at the moment the booking was rejected.
type SlotFullError struct {
	Key      SlotKey
	Capacity int
	Occupied int
	Reason   string
}

func (e *SlotFullError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("slot %s unavailable: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("slot %s full: %d/%d", e.Key, e.Occupied, e.Capacity)
}

func (e *SlotFullError) Unwrap() error { return ErrSlotFull }

// TransitionError describes a rejected state change. State is left
// unchanged whenever one is returned.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NoCreditsError provides details about an exhausted subscription.
type NoCreditsError struct {
	SubscriptionID SubscriptionID
	TotalCredits   int
	CreditsUsed    int
}

func (e *NoCreditsError) Error() string {
	return fmt.Sprintf("subscription %s has no credits remaining (%d of %d used)",
		e.SubscriptionID, e.CreditsUsed, e.TotalCredits)
}

func (e *NoCreditsError) Unwrap() error { return ErrNoCreditsRemaining }

// =============================================================================
// ERROR HELPERS
// =============================================================================

var kinds = []struct {
	err  error
	name string
}{
	{ErrDogNotEligible, "DogNotEligible"},
	{ErrNoActiveSubscription, "NoActiveSubscription"},
	{ErrNoCreditsRemaining, "NoCreditsRemaining"},
	{ErrSlotFull, "SlotFull"},
	{ErrInvalidStateTransition, "InvalidStateTransition"},
	{ErrCreditAlreadySettled, "CreditAlreadySettled"},
	{ErrAssessmentOpen, "AssessmentOpen"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidInput, "InvalidInput"},
	{ErrDuplicateIdempotencyKey, "DuplicateIdempotencyKey"},
}

// Kind returns the name of the error kind err belongs to, or "Internal".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// IsRetryable returns true if the caller may succeed after re-querying
// availability.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSlotFull)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is a rejection rather than a
// failure of the engine or its store.
func IsClientError(err error) bool {
	k := Kind(err)
	return k != "" && k != "Internal"
}
