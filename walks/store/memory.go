// Package store provides an in-memory walks.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/walk-engine/walks"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	dogs        map[walks.DogID]walks.Dog
	walkers     map[walks.WalkerID]walks.Walker
	plans       map[walks.PlanID]walks.SubscriptionPlan
	subs        map[walks.SubscriptionID]walks.UserSubscription
	entries     []walks.CreditEntry
	idempotency map[string]bool
	settled     map[walks.WalkID]bool
	walks       map[walks.WalkID]walks.Walk
	assessments map[walks.AssessmentID]walks.Assessment
}

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

func newMemoryData() memoryData {
	return memoryData{
		dogs:        make(map[walks.DogID]walks.Dog),
		walkers:     make(map[walks.WalkerID]walks.Walker),
		plans:       make(map[walks.PlanID]walks.SubscriptionPlan),
		subs:        make(map[walks.SubscriptionID]walks.UserSubscription),
		idempotency: make(map[string]bool),
		settled:     make(map[walks.WalkID]bool),
		walks:       make(map[walks.WalkID]walks.Walk),
		assessments: make(map[walks.AssessmentID]walks.Assessment),
	}
}

// Reset drops every record.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newMemoryData()
	return nil
}

// WithTx executes fn within a transaction.
// Simulated by holding the store lock, snapshotting, and restoring on error.
func (m *Memory) WithTx(ctx context.Context, fn func(walks.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&view{d: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) locked(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{d: &m.data})
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		dogs:        make(map[walks.DogID]walks.Dog, len(d.dogs)),
		walkers:     make(map[walks.WalkerID]walks.Walker, len(d.walkers)),
		plans:       make(map[walks.PlanID]walks.SubscriptionPlan, len(d.plans)),
		subs:        make(map[walks.SubscriptionID]walks.UserSubscription, len(d.subs)),
		entries:     append([]walks.CreditEntry(nil), d.entries...),
		idempotency: make(map[string]bool, len(d.idempotency)),
		settled:     make(map[walks.WalkID]bool, len(d.settled)),
		walks:       make(map[walks.WalkID]walks.Walk, len(d.walks)),
		assessments: make(map[walks.AssessmentID]walks.Assessment, len(d.assessments)),
	}
	for k, v := range d.dogs {
		c.dogs[k] = v
	}
	for k, v := range d.walkers {
		c.walkers[k] = v
	}
	for k, v := range d.plans {
		c.plans[k] = v
	}
	for k, v := range d.subs {
		c.subs[k] = v
	}
	for k, v := range d.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range d.settled {
		c.settled[k] = v
	}
	for k, v := range d.walks {
		c.walks[k] = v
	}
	for k, v := range d.assessments {
		c.assessments[k] = v
	}
	return c
}

// =============================================================================
// STORE METHODS - Each takes the lock and delegates to the view
// =============================================================================

func (m *Memory) GetDog(ctx context.Context, id walks.DogID) (dog walks.Dog, err error) {
	err = m.locked(func(v *view) error { dog, err = v.GetDog(ctx, id); return err })
	return dog, err
}

func (m *Memory) SaveDog(ctx context.Context, dog walks.Dog) error {
	return m.locked(func(v *view) error { return v.SaveDog(ctx, dog) })
}

func (m *Memory) ListDogsByOwner(ctx context.Context, ownerID walks.OwnerID) (dogs []walks.Dog, err error) {
	err = m.locked(func(v *view) error { dogs, err = v.ListDogsByOwner(ctx, ownerID); return err })
	return dogs, err
}

func (m *Memory) GetWalker(ctx context.Context, id walks.WalkerID) (w walks.Walker, err error) {
	err = m.locked(func(v *view) error { w, err = v.GetWalker(ctx, id); return err })
	return w, err
}

func (m *Memory) SaveWalker(ctx context.Context, w walks.Walker) error {
	return m.locked(func(v *view) error { return v.SaveWalker(ctx, w) })
}

func (m *Memory) ListWalkers(ctx context.Context) (ws []walks.Walker, err error) {
	err = m.locked(func(v *view) error { ws, err = v.ListWalkers(ctx); return err })
	return ws, err
}

func (m *Memory) GetPlan(ctx context.Context, id walks.PlanID) (p walks.SubscriptionPlan, err error) {
	err = m.locked(func(v *view) error { p, err = v.GetPlan(ctx, id); return err })
	return p, err
}

func (m *Memory) SavePlan(ctx context.Context, p walks.SubscriptionPlan) error {
	return m.locked(func(v *view) error { return v.SavePlan(ctx, p) })
}

func (m *Memory) ListPlans(ctx context.Context) (ps []walks.SubscriptionPlan, err error) {
	err = m.locked(func(v *view) error { ps, err = v.ListPlans(ctx); return err })
	return ps, err
}

func (m *Memory) CreateSubscription(ctx context.Context, sub walks.UserSubscription) error {
	return m.locked(func(v *view) error { return v.CreateSubscription(ctx, sub) })
}

func (m *Memory) GetSubscription(ctx context.Context, id walks.SubscriptionID) (s walks.UserSubscription, err error) {
	err = m.locked(func(v *view) error { s, err = v.GetSubscription(ctx, id); return err })
	return s, err
}

func (m *Memory) ListSubscriptions(ctx context.Context, f walks.SubscriptionFilter) (subs []walks.UserSubscription, err error) {
	err = m.locked(func(v *view) error { subs, err = v.ListSubscriptions(ctx, f); return err })
	return subs, err
}

func (m *Memory) SetSubscriptionStatus(ctx context.Context, id walks.SubscriptionID, from, to walks.SubscriptionStatus) error {
	return m.locked(func(v *view) error { return v.SetSubscriptionStatus(ctx, id, from, to) })
}

func (m *Memory) AdjustCreditsUsed(ctx context.Context, id walks.SubscriptionID, delta int) error {
	return m.locked(func(v *view) error { return v.AdjustCreditsUsed(ctx, id, delta) })
}

func (m *Memory) AppendCreditEntry(ctx context.Context, e walks.CreditEntry) error {
	return m.locked(func(v *view) error { return v.AppendCreditEntry(ctx, e) })
}

func (m *Memory) ListCreditEntries(ctx context.Context, f walks.CreditEntryFilter) (es []walks.CreditEntry, err error) {
	err = m.locked(func(v *view) error { es, err = v.ListCreditEntries(ctx, f); return err })
	return es, err
}

func (m *Memory) InsertWalk(ctx context.Context, w walks.Walk) error {
	return m.locked(func(v *view) error { return v.InsertWalk(ctx, w) })
}

func (m *Memory) UpdateWalk(ctx context.Context, w walks.Walk) error {
	return m.locked(func(v *view) error { return v.UpdateWalk(ctx, w) })
}

func (m *Memory) GetWalk(ctx context.Context, id walks.WalkID) (w walks.Walk, err error) {
	err = m.locked(func(v *view) error { w, err = v.GetWalk(ctx, id); return err })
	return w, err
}

func (m *Memory) ListWalks(ctx context.Context, f walks.WalkFilter) (ws []walks.Walk, err error) {
	err = m.locked(func(v *view) error { ws, err = v.ListWalks(ctx, f); return err })
	return ws, err
}

func (m *Memory) InsertAssessment(ctx context.Context, a walks.Assessment) error {
	return m.locked(func(v *view) error { return v.InsertAssessment(ctx, a) })
}

func (m *Memory) UpdateAssessment(ctx context.Context, a walks.Assessment, from walks.AssessmentState) error {
	return m.locked(func(v *view) error { return v.UpdateAssessment(ctx, a, from) })
}

func (m *Memory) GetAssessment(ctx context.Context, id walks.AssessmentID) (a walks.Assessment, err error) {
	err = m.locked(func(v *view) error { a, err = v.GetAssessment(ctx, id); return err })
	return a, err
}

func (m *Memory) ListAssessmentsByDog(ctx context.Context, dogID walks.DogID) (as []walks.Assessment, err error) {
	err = m.locked(func(v *view) error { as, err = v.ListAssessmentsByDog(ctx, dogID); return err })
	return as, err
}

// =============================================================================
// VIEW - Lock-free operations on the data; callers hold Memory.mu
// =============================================================================

type view struct {
	d *memoryData
}

func (v *view) GetDog(_ context.Context, id walks.DogID) (walks.Dog, error) {
	dog, ok := v.d.dogs[id]
	if !ok {
		return walks.Dog{}, walks.NewNotFound("dog", id)
	}
	return dog, nil
}

func (v *view) SaveDog(_ context.Context, dog walks.Dog) error {
	v.d.dogs[dog.ID] = dog
	return nil
}

func (v *view) ListDogsByOwner(_ context.Context, ownerID walks.OwnerID) ([]walks.Dog, error) {
	var result []walks.Dog
	for _, d := range v.d.dogs {
		if d.OwnerID == ownerID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *view) GetWalker(_ context.Context, id walks.WalkerID) (walks.Walker, error) {
	w, ok := v.d.walkers[id]
	if !ok {
		return walks.Walker{}, walks.NewNotFound("walker", id)
	}
	return w, nil
}

func (v *view) SaveWalker(_ context.Context, w walks.Walker) error {
	v.d.walkers[w.ID] = w
	return nil
}

func (v *view) ListWalkers(_ context.Context) ([]walks.Walker, error) {
	result := make([]walks.Walker, 0, len(v.d.walkers))
	for _, w := range v.d.walkers {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *view) GetPlan(_ context.Context, id walks.PlanID) (walks.SubscriptionPlan, error) {
	p, ok := v.d.plans[id]
	if !ok {
		return walks.SubscriptionPlan{}, walks.NewNotFound("subscription plan", id)
	}
	return p, nil
}

func (v *view) SavePlan(_ context.Context, p walks.SubscriptionPlan) error {
	v.d.plans[p.ID] = p
	return nil
}

func (v *view) ListPlans(_ context.Context) ([]walks.SubscriptionPlan, error) {
	result := make([]walks.SubscriptionPlan, 0, len(v.d.plans))
	for _, p := range v.d.plans {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *view) CreateSubscription(_ context.Context, sub walks.UserSubscription) error {
	if _, exists := v.d.subs[sub.ID]; exists {
		return walks.ErrDuplicateIdempotencyKey
	}
	if sub.CreditsUsed < 0 || sub.CreditsUsed > sub.TotalCredits {
		return walks.ErrInvalidInput
	}
	v.d.subs[sub.ID] = sub
	return nil
}

func (v *view) GetSubscription(_ context.Context, id walks.SubscriptionID) (walks.UserSubscription, error) {
	s, ok := v.d.subs[id]
	if !ok {
		return walks.UserSubscription{}, walks.NewNotFound("subscription", id)
	}
	return s, nil
}

func (v *view) ListSubscriptions(_ context.Context, f walks.SubscriptionFilter) ([]walks.UserSubscription, error) {
	var result []walks.UserSubscription
	for _, s := range v.d.subs {
		if f.Matches(s) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *view) SetSubscriptionStatus(_ context.Context, id walks.SubscriptionID, from, to walks.SubscriptionStatus) error {
	s, ok := v.d.subs[id]
	if !ok {
		return walks.NewNotFound("subscription", id)
	}
	if s.Status != from {
		return &walks.TransitionError{Entity: "subscription", ID: string(id),
			From: string(s.Status), To: string(to), Reason: "status changed concurrently"}
	}
	s.Status = to
	v.d.subs[id] = s
	return nil
}

func (v *view) AdjustCreditsUsed(_ context.Context, id walks.SubscriptionID, delta int) error {
	s, ok := v.d.subs[id]
	if !ok {
		return walks.NewNotFound("subscription", id)
	}
	used := s.CreditsUsed + delta
	if used > s.TotalCredits {
		return walks.ErrNoCreditsRemaining
	}
	if used < 0 {
		return walks.ErrCreditUnderflow
	}
	s.CreditsUsed = used
	v.d.subs[id] = s
	return nil
}

func (v *view) AppendCreditEntry(_ context.Context, e walks.CreditEntry) error {
	if e.IdempotencyKey != "" && v.d.idempotency[e.IdempotencyKey] {
		return walks.ErrDuplicateIdempotencyKey
	}
	settles := e.Type == walks.CreditRelease || e.Type == walks.CreditConsume
	if settles && v.d.settled[e.WalkID] {
		return walks.ErrDuplicateIdempotencyKey
	}
	v.d.entries = append(v.d.entries, e)
	if e.IdempotencyKey != "" {
		v.d.idempotency[e.IdempotencyKey] = true
	}
	if settles {
		v.d.settled[e.WalkID] = true
	}
	return nil
}

func (v *view) ListCreditEntries(_ context.Context, f walks.CreditEntryFilter) ([]walks.CreditEntry, error) {
	var result []walks.CreditEntry
	for _, e := range v.d.entries {
		if f.Matches(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (v *view) InsertWalk(_ context.Context, w walks.Walk) error {
	if _, exists := v.d.walks[w.ID]; exists {
		return walks.ErrDuplicateIdempotencyKey
	}
	v.d.walks[w.ID] = w
	return nil
}

func (v *view) UpdateWalk(_ context.Context, w walks.Walk) error {
	if _, ok := v.d.walks[w.ID]; !ok {
		return walks.NewNotFound("walk", w.ID)
	}
	v.d.walks[w.ID] = w
	return nil
}

func (v *view) GetWalk(_ context.Context, id walks.WalkID) (walks.Walk, error) {
	w, ok := v.d.walks[id]
	if !ok {
		return walks.Walk{}, walks.NewNotFound("walk", id)
	}
	return w, nil
}

func (v *view) ListWalks(_ context.Context, f walks.WalkFilter) ([]walks.Walk, error) {
	var result []walks.Walk
	for _, w := range v.d.walks {
		if f.Matches(w) {
			result = append(result, w)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (v *view) InsertAssessment(_ context.Context, a walks.Assessment) error {
	if _, exists := v.d.assessments[a.ID]; exists {
		return walks.ErrDuplicateIdempotencyKey
	}
	if !a.Status.Terminal() {
		for _, other := range v.d.assessments {
			if other.DogID == a.DogID && !other.Status.Terminal() {
				return fmt.Errorf("dog %s: %w", a.DogID, walks.ErrAssessmentOpen)
			}
		}
	}
	v.d.assessments[a.ID] = a
	return nil
}

func (v *view) UpdateAssessment(_ context.Context, a walks.Assessment, from walks.AssessmentState) error {
	current, ok := v.d.assessments[a.ID]
	if !ok {
		return walks.NewNotFound("assessment", a.ID)
	}
	if current.Status != from {
		return &walks.TransitionError{Entity: "assessment", ID: string(a.ID),
			From: string(current.Status), To: string(a.Status), Reason: "status changed concurrently"}
	}
	if a.Result != nil && a.Status != walks.AssessmentStateCompleted {
		return walks.ErrInvalidInput
	}
	v.d.assessments[a.ID] = a
	return nil
}

func (v *view) GetAssessment(_ context.Context, id walks.AssessmentID) (walks.Assessment, error) {
	a, ok := v.d.assessments[id]
	if !ok {
		return walks.Assessment{}, walks.NewNotFound("assessment", id)
	}
	return a, nil
}

func (v *view) ListAssessmentsByDog(_ context.Context, dogID walks.DogID) ([]walks.Assessment, error) {
	var result []walks.Assessment
	for _, a := range v.d.assessments {
		if a.DogID == dogID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
