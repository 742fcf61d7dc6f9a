/*
handlers.go - HTTP API handlers for the walk engine

PURPOSE:
  Exposes the booking and execution engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to walks.Engine.

ENDPOINTS:
  Walks:
    POST   /api/walks                    Book a walk
    GET    /api/walks                    List (dog_id, walker_id, owner_id, date)
    GET    /api/walks/{id}               Get walk
    PATCH  /api/walks/{id}/status        Session / walk transition
    PATCH  /api/walks/{id}/dog-status    Per-dog sub-state
    PUT    /api/walks/{id}/feedback      Walker report

  Walkers:
    GET    /api/walkers                  List walkers
    POST   /api/walkers                  Create or replace walker
    GET    /api/walkers/{id}             Get walker
    GET    /api/walkers/{id}/availability?date=
    GET    /api/walkers/{id}/sessions?date=&slot=

  Dogs, plans, subscriptions, assessments: see server.go

REQUEST FLOW:
  1. Parse path, query and body (parse failures are InvalidInput)
  2. Call the engine
  3. Serialize response, or map the error kind to a status (errors.go)

SECURITY NOTE:
  No authentication. Owner identity is taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can drop all data. Scenario loading
// requires it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Pinger is implemented by stores backed by a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine *walks.Engine
	logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler serving engine.
func NewHandler(engine *walks.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness, and store reachability when the store can ping.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.engine.Store().(Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// WALK HANDLERS
// =============================================================================

// CreateWalk books a walk.
// POST /api/walks
func (h *Handler) CreateWalk(w http.ResponseWriter, r *http.Request) {
	var req CreateWalkRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, err := walks.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slot, err := walks.ParseTimeSlot(req.TimeSlot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	walk, err := h.engine.CreateWalk(r.Context(), walks.BookingRequest{
		DogID:          walks.DogID(req.DogID),
		WalkerID:       walks.WalkerID(req.WalkerID),
		SubscriptionID: walks.SubscriptionID(req.SubscriptionID),
		Date:           date,
		TimeSlot:       slot,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalkDTO(walk))
}

// ListWalks lists walks filtered by query parameters.
// GET /api/walks?dog_id=&walker_id=&owner_id=&date=&status=
func (h *Handler) ListWalks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f walks.WalkFilter
	if v := q.Get("dog_id"); v != "" {
		id := walks.DogID(v)
		f.DogID = &id
	}
	if v := q.Get("walker_id"); v != "" {
		id := walks.WalkerID(v)
		f.WalkerID = &id
	}
	if v := q.Get("owner_id"); v != "" {
		id := walks.OwnerID(v)
		f.OwnerID = &id
	}
	if v := q.Get("date"); v != "" {
		d, err := walks.ParseDate(v)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.Date = &d
	}
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			f.Statuses = append(f.Statuses, walks.WalkStatus(strings.TrimSpace(s)))
		}
	}

	list, err := h.engine.ListWalks(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"walks": toWalkDTOs(list)})
}

// GetWalk returns a single walk.
// GET /api/walks/{id}
func (h *Handler) GetWalk(w http.ResponseWriter, r *http.Request) {
	walk, err := h.engine.GetWalk(r.Context(), walks.WalkID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalkDTO(walk))
}

// TransitionWalk moves a walk (cancel) or its whole session (start, complete).
// PATCH /api/walks/{id}/status
func (h *Handler) TransitionWalk(w http.ResponseWriter, r *http.Request) {
	var req WalkStatusRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to := walks.WalkStatus(strings.TrimSpace(req.TargetStatus))
	switch to {
	case walks.WalkScheduled, walks.WalkInProgress, walks.WalkCompleted, walks.WalkCancelled:
	default:
		h.writeError(w, r, badRequest("unknown target_status %q", req.TargetStatus))
		return
	}

	moved, err := h.engine.TransitionWalk(r.Context(), walks.WalkID(chi.URLParam(r, "id")), to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"walks": toWalkDTOs(moved)})
}

// SetDogStatus records pickup, drop-off or absence for one dog.
// PATCH /api/walks/{id}/dog-status
func (h *Handler) SetDogStatus(w http.ResponseWriter, r *http.Request) {
	var req DogStatusRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to := walks.PickupStatus(strings.TrimSpace(req.TargetSubState))
	switch to {
	case walks.PickupPending, walks.PickupPickedUp, walks.PickupDroppedOff, walks.PickupAbsent:
	default:
		h.writeError(w, r, badRequest("unknown target_sub_state %q", req.TargetSubState))
		return
	}

	walk, err := h.engine.SetDogStatus(r.Context(), walks.WalkID(chi.URLParam(r, "id")), to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalkDTO(walk))
}

// RecordFeedback stores the walker's report on a completed walk.
// PUT /api/walks/{id}/feedback
func (h *Handler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	walk, err := h.engine.RecordFeedback(r.Context(), walks.WalkID(chi.URLParam(r, "id")), req.Feedback, req.Metrics)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalkDTO(walk))
}

// =============================================================================
// WALKER HANDLERS
// =============================================================================

// ListWalkers returns all walkers.
// GET /api/walkers
func (h *Handler) ListWalkers(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListWalkers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]WalkerDTO, len(list))
	for i, wk := range list {
		dtos[i] = toWalkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, map[string]any{"walkers": dtos})
}

// CreateWalker creates or replaces a walker.
// POST /api/walkers
func (h *Handler) CreateWalker(w http.ResponseWriter, r *http.Request) {
	var req CreateWalkerRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	walker := walks.Walker{
		ID:              walks.WalkerID(req.ID),
		Name:            req.Name,
		CapacityPerSlot: req.CapacityPerSlot,
	}
	for _, win := range req.Availability {
		day, err := parseWeekday(win.Weekday)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		window := walks.AvailabilityWindow{Weekday: day}
		for _, s := range win.Slots {
			slot, err := walks.ParseTimeSlot(s)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			window.Slots = append(window.Slots, slot)
		}
		walker.Availability = append(walker.Availability, window)
	}
	for _, s := range req.PreferredDogSizes {
		walker.PreferredDogSizes = append(walker.PreferredDogSizes, walks.DogSize(s))
	}

	created, err := h.engine.AddWalker(r.Context(), walker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWalkerDTO(created))
}

// GetWalker returns a single walker.
// GET /api/walkers/{id}
func (h *Handler) GetWalker(w http.ResponseWriter, r *http.Request) {
	walker, err := h.engine.GetWalker(r.Context(), walks.WalkerID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalkerDTO(walker))
}

// GetAvailability resolves the walker's slots on a date.
// GET /api/walkers/{id}/availability?date=YYYY-MM-DD
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	walkerID := walks.WalkerID(chi.URLParam(r, "id"))
	date, err := walks.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	states, err := h.engine.SlotStates(r.Context(), walkerID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dto := AvailabilityDTO{
		WalkerID:       string(walkerID),
		Date:           date.String(),
		AvailableSlots: []string{},
		Slots:          make([]SlotDTO, len(states)),
	}
	for i, s := range states {
		if s.Available() {
			dto.AvailableSlots = append(dto.AvailableSlots, string(s.Slot))
		}
		dto.Slots[i] = SlotDTO{
			TimeSlot:       string(s.Slot),
			Available:      s.Available(),
			Capacity:       s.Capacity,
			Occupied:       s.Occupied,
			Remaining:      s.Remaining(),
			WorkingHours:   s.WorkingHours,
			SessionStarted: s.SessionStarted,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetSession returns the walks sharing a walker slot.
// GET /api/walkers/{id}/sessions?date=YYYY-MM-DD&slot=AM
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	date, err := walks.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slot, err := walks.ParseTimeSlot(r.URL.Query().Get("slot"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := walks.SlotKey{WalkerID: walks.WalkerID(chi.URLParam(r, "id")), Date: date, Slot: slot}

	session, err := h.engine.Session(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{
		WalkerID: string(key.WalkerID),
		Date:     key.Date.String(),
		TimeSlot: string(key.Slot),
		Status:   string(session.Status()),
		IsGroup:  session.IsGroup(),
		Members:  toWalkDTOs(session.Members),
	})
}

// =============================================================================
// DOG HANDLERS
// =============================================================================

// ListDogs returns an owner's dogs.
// GET /api/dogs?owner_id=
func (h *Handler) ListDogs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		h.writeError(w, r, badRequest("owner_id is required"))
		return
	}
	list, err := h.engine.ListDogs(r.Context(), walks.OwnerID(owner))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]DogDTO, len(list))
	for i, d := range list {
		dtos[i] = toDogDTO(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"dogs": dtos})
}

// CreateDog registers a dog.
// POST /api/dogs
func (h *Handler) CreateDog(w http.ResponseWriter, r *http.Request) {
	var req CreateDogRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	dog, err := h.engine.AddDog(r.Context(), walks.Dog{
		ID:               walks.DogID(req.ID),
		OwnerID:          walks.OwnerID(req.OwnerID),
		Name:             req.Name,
		Size:             walks.DogSize(req.Size),
		AssessmentStatus: walks.AssessmentStatus(req.AssessmentStatus),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDogDTO(dog))
}

// GetDog returns a dog.
// GET /api/dogs/{id}
func (h *Handler) GetDog(w http.ResponseWriter, r *http.Request) {
	dog, err := h.engine.GetDog(r.Context(), walks.DogID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDogDTO(dog))
}

// ListDogAssessments returns a dog's assessment history.
// GET /api/dogs/{id}/assessments
func (h *Handler) ListDogAssessments(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListAssessments(r.Context(), walks.DogID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]AssessmentDTO, len(list))
	for i, a := range list {
		dtos[i] = toAssessmentDTO(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": dtos})
}

// =============================================================================
// PLAN & SUBSCRIPTION HANDLERS
// =============================================================================

// ListPlans returns all subscription plans.
// GET /api/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListPlans(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]PlanDTO, len(list))
	for i, p := range list {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": dtos})
}

// CreatePlan creates or replaces a plan.
// POST /api/plans
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	plan, err := h.engine.AddPlan(r.Context(), walks.SubscriptionPlan{
		ID:             walks.PlanID(req.ID),
		Name:           req.Name,
		WalkCredits:    req.WalkCredits,
		WalkDuration:   time.Duration(req.WalkDurationMinutes) * time.Minute,
		ValidityPeriod: req.ValidityPeriodDays,
		Price:          req.Price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(plan))
}

// PurchaseSubscription activates a plan for an owner.
// POST /api/subscriptions
func (h *Handler) PurchaseSubscription(w http.ResponseWriter, r *http.Request) {
	var req PurchaseSubscriptionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sub, err := h.engine.PurchaseSubscription(r.Context(), walks.OwnerID(req.OwnerID), walks.PlanID(req.PlanID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionDTO(sub))
}

// ListSubscriptions lists subscriptions, optionally for one owner.
// GET /api/subscriptions?owner_id=
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListSubscriptions(r.Context(), walks.OwnerID(r.URL.Query().Get("owner_id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]SubscriptionDTO, len(list))
	for i, s := range list {
		dtos[i] = toSubscriptionDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": dtos})
}

// GetSubscription returns a subscription with its remaining credits.
// GET /api/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.engine.GetSubscription(r.Context(), walks.SubscriptionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

// GetCreditHistory lists the ledger entries of a subscription.
// GET /api/subscriptions/{id}/credits
func (h *Handler) GetCreditHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.CreditHistory(r.Context(), walks.SubscriptionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toCreditEntryDTOs(entries)})
}

// CancelSubscription stops future bookings against a subscription.
// POST /api/subscriptions/{id}/cancel
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.engine.CancelSubscription(r.Context(), walks.SubscriptionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

// =============================================================================
// ASSESSMENT HANDLERS
// =============================================================================

// RequestAssessment opens an assessment for a dog.
// POST /api/assessments
func (h *Handler) RequestAssessment(w http.ResponseWriter, r *http.Request) {
	var req RequestAssessmentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	var requested walks.Date
	if req.RequestedDate != "" {
		d, err := walks.ParseDate(req.RequestedDate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		requested = d
	}

	a, err := h.engine.RequestAssessment(r.Context(), walks.AssessmentRequest{
		DogID:         walks.DogID(req.DogID),
		OwnerID:       walks.OwnerID(req.OwnerID),
		RequestedDate: requested,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssessmentDTO(a))
}

// GetAssessment returns an assessment.
// GET /api/assessments/{id}
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.GetAssessment(r.Context(), walks.AssessmentID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssessmentDTO(a))
}

// UpdateAssessment schedules, reschedules, completes or cancels.
// PATCH /api/assessments/{id}
func (h *Handler) UpdateAssessment(w http.ResponseWriter, r *http.Request) {
	var req UpdateAssessmentRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var u walks.AssessmentUpdate
	if req.ScheduledDate != nil {
		d, err := walks.ParseDate(*req.ScheduledDate)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		u.ScheduledDate = &d
	}
	if req.AssignedWalkerID != nil {
		id := walks.WalkerID(*req.AssignedWalkerID)
		u.AssignedWalkerID = &id
	}
	if req.Status != nil {
		s := walks.AssessmentState(*req.Status)
		u.Status = &s
	}
	if req.Result != nil {
		res := walks.AssessmentResult(*req.Result)
		u.Result = &res
	}
	u.Notes = req.Notes

	a, err := h.engine.UpdateAssessment(r.Context(), walks.AssessmentID(chi.URLParam(r, "id")), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssessmentDTO(a))
}

// =============================================================================
// HELPERS
// =============================================================================

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	if d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return 0, badRequest("invalid weekday %q", s)
}
