/*
Package walks provides the walk booking and execution engine.

PURPOSE:
  This package decides whether a walk may be booked, reserves scarce walker
  capacity, consumes prepaid credit from a subscription, and drives each walk
  (and each multi-dog group session) through pickup, walking and drop-off.
  Rendering, maps, notifications and payments live elsewhere; they only read
  from or write into the entities defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Dog: bookable only once its assessment outcome allows it
  - Walker: owns a fixed capacity per slot and weekly availability windows
  - SubscriptionPlan / UserSubscription: prepaid credit balance
  - Walk: one dog, one walker, one slot, one credit
  - Assessment: the evaluation that gates a dog's first booking
  - CreditEntry: immutable record of every credit mutation

COMPONENTS (one file each):
  eligibility.go   Eligibility Gate
  availability.go  Availability Resolver
  ledger.go        Credit Ledger
  booking.go       Booking Transaction
  session.go       Walk / Group Session state machine (pure functions)
  lifecycle.go     Applies session transitions to stored walks
  assessment.go    Assessment state machine

DATA FLOW:
  Assessment completes ──▶ dog eligible ──▶ CreateWalk (availability + credit)
        ──▶ Walk scheduled ──▶ start / complete / cancel (refund on cancel)

SEE ALSO:
  - store.go: persistence interfaces
  - errors.go: error kinds surfaced to callers
*/
package walks

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DogID string
type OwnerID string
type WalkerID string
type PlanID string
type SubscriptionID string
type WalkID string
type AssessmentID string
type CreditEntryID string

// DefaultCapacityPerSlot is the number of dogs a walker takes out at once.
const DefaultCapacityPerSlot = 6

// =============================================================================
// DOG
// =============================================================================

type AssessmentStatus string

const (
	AssessmentNone        AssessmentStatus = "none"
	AssessmentPending     AssessmentStatus = "pending"
	AssessmentScheduled   AssessmentStatus = "scheduled"
	AssessmentApproved    AssessmentStatus = "approved"
	AssessmentDenied      AssessmentStatus = "denied"
	AssessmentNotRequired AssessmentStatus = "not_required"
)

func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentNone, AssessmentPending, AssessmentScheduled,
		AssessmentApproved, AssessmentDenied, AssessmentNotRequired:
		return true
	}
	return false
}

type DogSize string

const (
	DogSmall  DogSize = "small"
	DogMedium DogSize = "medium"
	DogLarge  DogSize = "large"
)

type Dog struct {
	ID               DogID
	OwnerID          OwnerID
	Name             string
	Size             DogSize
	AssessmentStatus AssessmentStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// =============================================================================
// WALKER
// =============================================================================

// AvailabilityWindow is a weekly recurring window: the slots a walker works
// on a given weekday.
type AvailabilityWindow struct {
	Weekday time.Weekday `json:"weekday"`
	Slots   []TimeSlot   `json:"slots"`
}

type Walker struct {
	ID                WalkerID
	Name              string
	CapacityPerSlot   int
	Availability      []AvailabilityWindow
	PreferredDogSizes []DogSize
	CreatedAt         time.Time
}

// WorksOn reports whether slot falls inside one of the walker's windows
// for weekday.
func (w Walker) WorksOn(weekday time.Weekday, slot TimeSlot) bool {
	for _, win := range w.Availability {
		if win.Weekday != weekday {
			continue
		}
		for _, s := range win.Slots {
			if s == slot {
				return true
			}
		}
	}
	return false
}

// Capacity returns the per-slot capacity, falling back to fallback when the
// walker record carries none.
func (w Walker) Capacity(fallback int) int {
	if w.CapacityPerSlot > 0 {
		return w.CapacityPerSlot
	}
	return fallback
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

type SubscriptionPlan struct {
	ID             PlanID
	Name           string
	WalkCredits    int
	WalkDuration   time.Duration
	ValidityPeriod int // days
	Price          decimal.Decimal
	CreatedAt      time.Time
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPending   SubscriptionStatus = "pending"
)

// UserSubscription is an owner's prepaid balance.
//
// INVARIANT: 0 <= CreditsUsed <= TotalCredits. Only the CreditLedger
// changes CreditsUsed.
type UserSubscription struct {
	ID           SubscriptionID
	OwnerID      OwnerID
	PlanID       PlanID
	TotalCredits int
	CreditsUsed  int
	Status       SubscriptionStatus
	PurchaseDate time.Time
	ExpiryDate   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s UserSubscription) CreditsRemaining() int { return s.TotalCredits - s.CreditsUsed }

// UsableAt reports whether the subscription may fund a booking at now.
func (s UserSubscription) UsableAt(now time.Time) bool {
	return s.Status == SubscriptionActive && !now.After(s.ExpiryDate)
}

// =============================================================================
// CREDIT ENTRIES - Append-only history of credit mutations
// =============================================================================

type CreditEntryType string

const (
	CreditReserve CreditEntryType = "reserve" // credit held for a scheduled walk (+1 used)
	CreditRelease CreditEntryType = "release" // credit returned on cancellation (-1 used)
	CreditConsume CreditEntryType = "consume" // credit permanently spent (no balance change)
)

type CreditEntry struct {
	ID             CreditEntryID
	SubscriptionID SubscriptionID
	WalkID         WalkID
	Type           CreditEntryType
	Delta          int // change applied to CreditsUsed
	IdempotencyKey string
	Reason         string
	CreatedAt      time.Time
}

// CreditReservation is the token returned by CreditLedger.Reserve. It is
// bound to the walk the credit was reserved for.
type CreditReservation struct {
	EntryID        CreditEntryID
	SubscriptionID SubscriptionID
	WalkID         WalkID
	ReservedAt     time.Time
}

// =============================================================================
// WALK
// =============================================================================

type WalkStatus string

const (
	WalkScheduled  WalkStatus = "scheduled"
	WalkInProgress WalkStatus = "in_progress"
	WalkCompleted  WalkStatus = "completed"
	WalkCancelled  WalkStatus = "cancelled"
)

func (s WalkStatus) Terminal() bool { return s == WalkCompleted || s == WalkCancelled }

// Occupies reports whether a walk in this status holds a capacity seat.
func (s WalkStatus) Occupies() bool { return s == WalkScheduled || s == WalkInProgress }

// PickupStatus is the per-dog sub-state inside a session.
type PickupStatus string

const (
	PickupPending    PickupStatus = "pending"
	PickupPickedUp   PickupStatus = "picked_up"
	PickupDroppedOff PickupStatus = "dropped_off"
	PickupAbsent     PickupStatus = "absent"
)

// WalkMetrics is walker-reported telemetry summarised after completion.
type WalkMetrics struct {
	DistanceKm      decimal.Decimal `json:"distance_km"`
	DurationMinutes int             `json:"duration_minutes"`
	Pees            int             `json:"pees,omitempty"`
	Poops           int             `json:"poops,omitempty"`
}

type Walk struct {
	ID             WalkID
	DogID          DogID
	OwnerID        OwnerID
	WalkerID       WalkerID
	SubscriptionID SubscriptionID
	Date           Date
	TimeSlot       TimeSlot
	Duration       time.Duration
	Status         WalkStatus
	PickupStatus   PickupStatus
	Notes          string
	Feedback       string
	Metrics        *WalkMetrics
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (w Walk) SlotKey() SlotKey {
	return SlotKey{WalkerID: w.WalkerID, Date: w.Date, Slot: w.TimeSlot}
}

// =============================================================================
// ASSESSMENT
// =============================================================================

type AssessmentState string

const (
	AssessmentStatePending   AssessmentState = "pending"
	AssessmentStateScheduled AssessmentState = "scheduled"
	AssessmentStateCompleted AssessmentState = "completed"
	AssessmentStateCancelled AssessmentState = "cancelled"
)

func (s AssessmentState) Valid() bool {
	switch s {
	case AssessmentStatePending, AssessmentStateScheduled, AssessmentStateCompleted, AssessmentStateCancelled:
		return true
	}
	return false
}

func (s AssessmentState) Terminal() bool {
	return s == AssessmentStateCompleted || s == AssessmentStateCancelled
}

type AssessmentResult string

const (
	ResultApproved AssessmentResult = "approved"
	ResultDenied   AssessmentResult = "denied"
)

type Assessment struct {
	ID               AssessmentID
	DogID            DogID
	OwnerID          OwnerID
	Status           AssessmentState
	Result           *AssessmentResult // set only when Status is completed
	AssignedWalkerID *WalkerID
	RequestedDate    Date
	ScheduledDate    *Date
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
