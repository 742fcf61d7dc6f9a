/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract: ids and enums are plain
  strings, dates are YYYY-MM-DD, timestamps RFC 3339, money a decimal string.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  DTOs are pure data carriers. Handlers parse dates and slots; the engine
  validates everything else and answers with InvalidInput.

SEE ALSO:
  - handlers.go: Uses these types
  - walks/types.go: Engine model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// DOGS
// =============================================================================

type DogDTO struct {
	ID               string `json:"id"`
	OwnerID          string `json:"owner_id"`
	Name             string `json:"name"`
	Size             string `json:"size,omitempty"`
	AssessmentStatus string `json:"assessment_status"`
	Bookable         bool   `json:"bookable"`
	CreatedAt        string `json:"created_at"`
}

type CreateDogRequest struct {
	ID               string `json:"id"`
	OwnerID          string `json:"owner_id"`
	Name             string `json:"name"`
	Size             string `json:"size"`
	AssessmentStatus string `json:"assessment_status"`
}

func toDogDTO(d walks.Dog) DogDTO {
	return DogDTO{
		ID:               string(d.ID),
		OwnerID:          string(d.OwnerID),
		Name:             d.Name,
		Size:             string(d.Size),
		AssessmentStatus: string(d.AssessmentStatus),
		Bookable:         walks.CanBook(d),
		CreatedAt:        d.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// WALKERS
// =============================================================================

type AvailabilityWindowDTO struct {
	Weekday string   `json:"weekday"`
	Slots   []string `json:"slots"`
}

type WalkerDTO struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	CapacityPerSlot   int                     `json:"capacity_per_slot"`
	Availability      []AvailabilityWindowDTO `json:"availability"`
	PreferredDogSizes []string                `json:"preferred_dog_sizes,omitempty"`
	CreatedAt         string                  `json:"created_at"`
}

type CreateWalkerRequest struct {
	ID                string                  `json:"id"`
	Name              string                  `json:"name"`
	CapacityPerSlot   int                     `json:"capacity_per_slot"`
	Availability      []AvailabilityWindowDTO `json:"availability"`
	PreferredDogSizes []string                `json:"preferred_dog_sizes"`
}

func toWalkerDTO(w walks.Walker) WalkerDTO {
	windows := make([]AvailabilityWindowDTO, len(w.Availability))
	for i, win := range w.Availability {
		slots := make([]string, len(win.Slots))
		for j, s := range win.Slots {
			slots[j] = string(s)
		}
		windows[i] = AvailabilityWindowDTO{Weekday: win.Weekday.String(), Slots: slots}
	}
	sizes := make([]string, len(w.PreferredDogSizes))
	for i, s := range w.PreferredDogSizes {
		sizes[i] = string(s)
	}
	return WalkerDTO{
		ID:                string(w.ID),
		Name:              w.Name,
		CapacityPerSlot:   w.CapacityPerSlot,
		Availability:      windows,
		PreferredDogSizes: sizes,
		CreatedAt:         w.CreatedAt.Format(time.RFC3339),
	}
}

// SlotDTO is one entry of GET /api/walkers/{id}/availability.
type SlotDTO struct {
	TimeSlot       string `json:"time_slot"`
	Available      bool   `json:"available"`
	Capacity       int    `json:"capacity"`
	Occupied       int    `json:"occupied"`
	Remaining      int    `json:"remaining"`
	WorkingHours   bool   `json:"working_hours"`
	SessionStarted bool   `json:"session_started"`
}

type AvailabilityDTO struct {
	WalkerID       string    `json:"walker_id"`
	Date           string    `json:"date"`
	AvailableSlots []string  `json:"available_slots"`
	Slots          []SlotDTO `json:"slots"`
}

type SessionDTO struct {
	WalkerID string    `json:"walker_id"`
	Date     string    `json:"date"`
	TimeSlot string    `json:"time_slot"`
	Status   string    `json:"status,omitempty"`
	IsGroup  bool      `json:"is_group"`
	Members  []WalkDTO `json:"members"`
}

// =============================================================================
// PLANS & SUBSCRIPTIONS
// =============================================================================

type PlanDTO struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	WalkCredits         int             `json:"walk_credits"`
	WalkDurationMinutes int             `json:"walk_duration_minutes"`
	ValidityPeriodDays  int             `json:"validity_period_days"`
	Price               decimal.Decimal `json:"price"`
	CreatedAt           string          `json:"created_at"`
}

type CreatePlanRequest struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	WalkCredits         int             `json:"walk_credits"`
	WalkDurationMinutes int             `json:"walk_duration_minutes"`
	ValidityPeriodDays  int             `json:"validity_period_days"`
	Price               decimal.Decimal `json:"price"`
}

func toPlanDTO(p walks.SubscriptionPlan) PlanDTO {
	return PlanDTO{
		ID:                  string(p.ID),
		Name:                p.Name,
		WalkCredits:         p.WalkCredits,
		WalkDurationMinutes: int(p.WalkDuration / time.Minute),
		ValidityPeriodDays:  p.ValidityPeriod,
		Price:               p.Price,
		CreatedAt:           p.CreatedAt.Format(time.RFC3339),
	}
}

type SubscriptionDTO struct {
	ID               string `json:"id"`
	OwnerID          string `json:"owner_id"`
	PlanID           string `json:"plan_id"`
	TotalCredits     int    `json:"total_credits"`
	CreditsUsed      int    `json:"credits_used"`
	CreditsRemaining int    `json:"credits_remaining"`
	Status           string `json:"status"`
	PurchaseDate     string `json:"purchase_date"`
	ExpiryDate       string `json:"expiry_date"`
}

type PurchaseSubscriptionRequest struct {
	OwnerID string `json:"owner_id"`
	PlanID  string `json:"plan_id"`
}

func toSubscriptionDTO(s walks.UserSubscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:               string(s.ID),
		OwnerID:          string(s.OwnerID),
		PlanID:           string(s.PlanID),
		TotalCredits:     s.TotalCredits,
		CreditsUsed:      s.CreditsUsed,
		CreditsRemaining: s.CreditsRemaining(),
		Status:           string(s.Status),
		PurchaseDate:     s.PurchaseDate.Format(time.RFC3339),
		ExpiryDate:       s.ExpiryDate.Format(time.RFC3339),
	}
}

type CreditEntryDTO struct {
	ID        string `json:"id"`
	WalkID    string `json:"walk_id"`
	Type      string `json:"type"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toCreditEntryDTOs(entries []walks.CreditEntry) []CreditEntryDTO {
	dtos := make([]CreditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = CreditEntryDTO{
			ID:        string(e.ID),
			WalkID:    string(e.WalkID),
			Type:      string(e.Type),
			Delta:     e.Delta,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

// =============================================================================
// WALKS
// =============================================================================

type WalkDTO struct {
	ID              string             `json:"id"`
	DogID           string             `json:"dog_id"`
	OwnerID         string             `json:"owner_id"`
	WalkerID        string             `json:"walker_id"`
	SubscriptionID  string             `json:"subscription_id"`
	Date            string             `json:"date"`
	TimeSlot        string             `json:"time_slot"`
	DurationMinutes int                `json:"duration_minutes"`
	Status          string             `json:"status"`
	PickupStatus    string             `json:"pickup_status"`
	Notes           string             `json:"notes,omitempty"`
	Feedback        string             `json:"feedback,omitempty"`
	Metrics         *walks.WalkMetrics `json:"metrics,omitempty"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

type CreateWalkRequest struct {
	DogID          string `json:"dog_id"`
	WalkerID       string `json:"walker_id"`
	SubscriptionID string `json:"subscription_id"`
	Date           string `json:"date"`
	TimeSlot       string `json:"time_slot"`
	Notes          string `json:"notes"`
}

type WalkStatusRequest struct {
	TargetStatus string `json:"target_status"`
}

type DogStatusRequest struct {
	TargetSubState string `json:"target_sub_state"`
}

type FeedbackRequest struct {
	Feedback string             `json:"feedback"`
	Metrics  *walks.WalkMetrics `json:"metrics"`
}

func toWalkDTO(w walks.Walk) WalkDTO {
	return WalkDTO{
		ID:              string(w.ID),
		DogID:           string(w.DogID),
		OwnerID:         string(w.OwnerID),
		WalkerID:        string(w.WalkerID),
		SubscriptionID:  string(w.SubscriptionID),
		Date:            w.Date.String(),
		TimeSlot:        string(w.TimeSlot),
		DurationMinutes: int(w.Duration / time.Minute),
		Status:          string(w.Status),
		PickupStatus:    string(w.PickupStatus),
		Notes:           w.Notes,
		Feedback:        w.Feedback,
		Metrics:         w.Metrics,
		CreatedAt:       w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       w.UpdatedAt.Format(time.RFC3339),
	}
}

func toWalkDTOs(ws []walks.Walk) []WalkDTO {
	dtos := make([]WalkDTO, len(ws))
	for i, w := range ws {
		dtos[i] = toWalkDTO(w)
	}
	return dtos
}

// =============================================================================
// ASSESSMENTS
// =============================================================================

type AssessmentDTO struct {
	ID               string `json:"id"`
	DogID            string `json:"dog_id"`
	OwnerID          string `json:"owner_id"`
	Status           string `json:"status"`
	Result           string `json:"result,omitempty"`
	AssignedWalkerID string `json:"assigned_walker_id,omitempty"`
	RequestedDate    string `json:"requested_date,omitempty"`
	ScheduledDate    string `json:"scheduled_date,omitempty"`
	Notes            string `json:"notes,omitempty"`
	UpdatedAt        string `json:"updated_at"`
}

type RequestAssessmentRequest struct {
	DogID         string `json:"dog_id"`
	OwnerID       string `json:"owner_id"`
	RequestedDate string `json:"requested_date"`
	Notes         string `json:"notes"`
}

// UpdateAssessmentRequest carries optional fields; absent keys are left as is.
type UpdateAssessmentRequest struct {
	ScheduledDate    *string `json:"scheduled_date"`
	AssignedWalkerID *string `json:"assigned_walker_id"`
	Status           *string `json:"status"`
	Result           *string `json:"result"`
	Notes            *string `json:"notes"`
}

func toAssessmentDTO(a walks.Assessment) AssessmentDTO {
	dto := AssessmentDTO{
		ID:        string(a.ID),
		DogID:     string(a.DogID),
		OwnerID:   string(a.OwnerID),
		Status:    string(a.Status),
		Notes:     a.Notes,
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
	if a.Result != nil {
		dto.Result = string(*a.Result)
	}
	if a.AssignedWalkerID != nil {
		dto.AssignedWalkerID = string(*a.AssignedWalkerID)
	}
	if !a.RequestedDate.IsZero() {
		dto.RequestedDate = a.RequestedDate.String()
	}
	if a.ScheduledDate != nil {
		dto.ScheduledDate = a.ScheduledDate.String()
	}
	return dto
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
