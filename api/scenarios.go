/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic data
	for manual exploration. Each scenario is a YAML file under scenarios/
	that lists walkers, plans, dogs, subscriptions and bookings.

AVAILABLE SCENARIOS:

	group-walk:           Three dogs sharing one morning session
	nearly-full-slot:     One seat left in a slot, two owners ready to book
	assessment-pipeline:  Dogs at every assessment stage
	last-credit:          A subscription with a single credit left

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create walkers and plans
 3. Create dogs, then drive each through the assessment workflow up to its
    target status
 4. Purchase subscriptions
 5. Book walks relative to today (in_days)

Everything goes through walks.Engine, so a scenario exercises the same
validation, locking and credit rules as live traffic.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "group-walk"}

ADDING NEW SCENARIOS:
 1. Drop a YAML file into scenarios/ with a unique id

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - scenarios/*.yaml: Scenario definitions
*/
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/walk-engine/walks"
)

//go:embed scenarios/*.yaml
var scenarioFiles embed.FS

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// Scenario is the YAML form of a demo data set.
type Scenario struct {
	ID            string                 `yaml:"id"`
	Name          string                 `yaml:"name"`
	Description   string                 `yaml:"description"`
	Walkers       []scenarioWalker       `yaml:"walkers"`
	Plans         []scenarioPlan         `yaml:"plans"`
	Dogs          []scenarioDog          `yaml:"dogs"`
	Subscriptions []scenarioSubscription `yaml:"subscriptions"`
	Bookings      []scenarioBooking      `yaml:"bookings"`
}

type scenarioWalker struct {
	ID              string           `yaml:"id"`
	Name            string           `yaml:"name"`
	CapacityPerSlot int              `yaml:"capacity_per_slot"`
	Availability    []scenarioWindow `yaml:"availability"`
}

type scenarioWindow struct {
	Weekday string   `yaml:"weekday"` // a weekday name, or "every"
	Slots   []string `yaml:"slots"`
}

type scenarioPlan struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	WalkCredits         int    `yaml:"walk_credits"`
	WalkDurationMinutes int    `yaml:"walk_duration_minutes"`
	ValidityDays        int    `yaml:"validity_days"`
	Price               string `yaml:"price"`
}

type scenarioDog struct {
	ID         string `yaml:"id"`
	OwnerID    string `yaml:"owner_id"`
	Name       string `yaml:"name"`
	Size       string `yaml:"size"`
	Assessment string `yaml:"assessment"`
	Assessor   string `yaml:"assessor"`
}

type scenarioSubscription struct {
	Ref     string `yaml:"ref"`
	OwnerID string `yaml:"owner_id"`
	PlanID  string `yaml:"plan_id"`
}

type scenarioBooking struct {
	DogID        string `yaml:"dog_id"`
	WalkerID     string `yaml:"walker_id"`
	Subscription string `yaml:"subscription"`
	InDays       int    `yaml:"in_days"`
	Slot         string `yaml:"slot"`
}

// loadScenarios parses every embedded scenario, sorted by id.
func loadScenarios() ([]Scenario, error) {
	entries, err := scenarioFiles.ReadDir("scenarios")
	if err != nil {
		return nil, err
	}
	var result []Scenario
	for _, e := range entries {
		data, err := scenarioFiles.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, err
		}
		var s Scenario
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", e.Name(), err)
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func findScenario(id string) (Scenario, error) {
	all, err := loadScenarios()
	if err != nil {
		return Scenario{}, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return Scenario{}, walks.NewNotFound("scenario", id)
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all, err := loadScenarios()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]ScenarioDTO, len(all))
	for i, s := range all {
		dtos[i] = ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, err := findScenario(current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description})
}

// LoadScenario resets the store and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
		Name       string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := req.ScenarioID
	if id == "" {
		id = req.Name
	}
	if id == "" {
		h.writeError(w, r, badRequest("scenario_id is required"))
		return
	}

	if err := h.LoadScenarioByID(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": id,
	})
}

// ResetStore drops all data.
// POST /api/scenarios/reset
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errResetUnsupported = errors.New("store does not support reset")

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.engine.Store().(Resetter)
	if !ok {
		return errResetUnsupported
	}
	return rs.Reset(ctx)
}

// LoadScenarioByID resets the store and applies scenario id. Also used at
// startup for the seed.scenario setting.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	s, err := findScenario(id)
	if err != nil {
		return err
	}
	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := h.applyScenario(ctx, s); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", s.ID, err)
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()
	h.logger.Info("scenario loaded", slog.String("scenario", s.ID))
	return nil
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) applyScenario(ctx context.Context, s Scenario) error {
	e := h.engine
	today := walks.DateOf(e.Options().Now())

	for _, sw := range s.Walkers {
		walker := walks.Walker{ID: walks.WalkerID(sw.ID), Name: sw.Name, CapacityPerSlot: sw.CapacityPerSlot}
		for _, av := range sw.Availability {
			var slots []walks.TimeSlot
			for _, raw := range av.Slots {
				slot, err := walks.ParseTimeSlot(raw)
				if err != nil {
					return err
				}
				slots = append(slots, slot)
			}
			days, err := scenarioWeekdays(av.Weekday)
			if err != nil {
				return err
			}
			for _, d := range days {
				walker.Availability = append(walker.Availability, walks.AvailabilityWindow{Weekday: d, Slots: slots})
			}
		}
		if _, err := e.AddWalker(ctx, walker); err != nil {
			return err
		}
	}

	for _, sp := range s.Plans {
		price, err := decimal.NewFromString(sp.Price)
		if err != nil {
			return fmt.Errorf("plan %s price: %w", sp.ID, err)
		}
		if _, err := e.AddPlan(ctx, walks.SubscriptionPlan{
			ID:             walks.PlanID(sp.ID),
			Name:           sp.Name,
			WalkCredits:    sp.WalkCredits,
			WalkDuration:   time.Duration(sp.WalkDurationMinutes) * time.Minute,
			ValidityPeriod: sp.ValidityDays,
			Price:          price,
		}); err != nil {
			return err
		}
	}

	for _, sd := range s.Dogs {
		if err := h.seedDog(ctx, sd, today); err != nil {
			return fmt.Errorf("dog %s: %w", sd.ID, err)
		}
	}

	subs := make(map[string]walks.SubscriptionID, len(s.Subscriptions))
	for _, ss := range s.Subscriptions {
		sub, err := e.PurchaseSubscription(ctx, walks.OwnerID(ss.OwnerID), walks.PlanID(ss.PlanID))
		if err != nil {
			return err
		}
		subs[ss.Ref] = sub.ID
	}

	for _, sb := range s.Bookings {
		subID, ok := subs[sb.Subscription]
		if !ok {
			return fmt.Errorf("booking for %s references unknown subscription %q", sb.DogID, sb.Subscription)
		}
		slot, err := walks.ParseTimeSlot(sb.Slot)
		if err != nil {
			return err
		}
		if _, err := e.CreateWalk(ctx, walks.BookingRequest{
			DogID:          walks.DogID(sb.DogID),
			WalkerID:       walks.WalkerID(sb.WalkerID),
			SubscriptionID: subID,
			Date:           today.AddDays(sb.InDays),
			TimeSlot:       slot,
		}); err != nil {
			return fmt.Errorf("booking %s: %w", sb.DogID, err)
		}
	}
	return nil
}

// seedDog creates the dog and walks its assessment up to the requested status.
func (h *Handler) seedDog(ctx context.Context, sd scenarioDog, today walks.Date) error {
	e := h.engine
	target := walks.AssessmentStatus(sd.Assessment)
	if target == "" {
		target = walks.AssessmentNone
	}

	initial := walks.AssessmentNone
	if target == walks.AssessmentNotRequired {
		initial = walks.AssessmentNotRequired
	}
	dog, err := e.AddDog(ctx, walks.Dog{
		ID:               walks.DogID(sd.ID),
		OwnerID:          walks.OwnerID(sd.OwnerID),
		Name:             sd.Name,
		Size:             walks.DogSize(sd.Size),
		AssessmentStatus: initial,
	})
	if err != nil {
		return err
	}
	if target == walks.AssessmentNone || target == walks.AssessmentNotRequired {
		return nil
	}

	a, err := e.RequestAssessment(ctx, walks.AssessmentRequest{DogID: dog.ID, OwnerID: dog.OwnerID, RequestedDate: today})
	if err != nil {
		return err
	}
	if target == walks.AssessmentPending {
		return nil
	}

	scheduled := today.AddDays(1)
	u := walks.AssessmentUpdate{ScheduledDate: &scheduled}
	if sd.Assessor != "" {
		assessor := walks.WalkerID(sd.Assessor)
		u.AssignedWalkerID = &assessor
	}
	if a, err = e.UpdateAssessment(ctx, a.ID, u); err != nil {
		return err
	}

	var result walks.AssessmentResult
	switch target {
	case walks.AssessmentScheduled:
		return nil
	case walks.AssessmentApproved:
		result = walks.ResultApproved
	case walks.AssessmentDenied:
		result = walks.ResultDenied
	default:
		return badRequest("unknown assessment status %q", sd.Assessment)
	}
	completed := walks.AssessmentStateCompleted
	_, err = e.UpdateAssessment(ctx, a.ID, walks.AssessmentUpdate{Status: &completed, Result: &result})
	return err
}

func scenarioWeekdays(s string) ([]time.Weekday, error) {
	if strings.EqualFold(strings.TrimSpace(s), "every") {
		return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
			time.Thursday, time.Friday, time.Saturday}, nil
	}
	d, err := parseWeekday(s)
	if err != nil {
		return nil, err
	}
	return []time.Weekday{d}, nil
}
