package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/api"
	"github.com/warp/walk-engine/logging"
	"github.com/warp/walk-engine/walks"
	"github.com/warp/walk-engine/walks/store"
)

// 2025-03-03 is a Monday.
var testNow = time.Date(2025, time.March, 3, 7, 0, 0, 0, time.UTC)

type server struct {
	t       *testing.T
	engine  *walks.Engine
	handler *api.Handler
	router  http.Handler
	now     *atomic.Pointer[time.Time]
}

func newServer(t *testing.T) *server {
	t.Helper()
	return newServerWith(t, store.NewMemory())
}

func newServerWith(t *testing.T, st walks.Store) *server {
	t.Helper()
	now := &atomic.Pointer[time.Time]{}
	start := testNow
	now.Store(&start)

	var seq atomic.Int64
	engine := walks.NewEngine(st, walks.Options{
		Now:   func() time.Time { return *now.Load() },
		NewID: func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) },
	})
	h := api.NewHandler(engine, logging.Discard())
	return &server{
		t:       t,
		engine:  engine,
		handler: h,
		router:  api.NewRouter(h, api.RouterOptions{Logger: logging.Discard()}),
		now:     now,
	}
}

func (s *server) advance(d time.Duration) {
	next := s.now.Load().Add(d)
	s.now.Store(&next)
}

// do sends body (marshalled unless nil) and returns the recorder.
func (s *server) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// expect asserts the status and decodes the body into T.
func expect[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// setup creates a Monday-AM walker, a plan, an eligible dog and an active
// subscription for owner-1.
func (s *server) setup(capacity int) (walker api.WalkerDTO, dog api.DogDTO, sub api.SubscriptionDTO) {
	s.t.Helper()
	walker = expect[api.WalkerDTO](s.t, s.do(http.MethodPost, "/api/walkers", api.CreateWalkerRequest{
		ID:              "walker-1",
		Name:            "Sam",
		CapacityPerSlot: capacity,
		Availability:    []api.AvailabilityWindowDTO{{Weekday: "monday", Slots: []string{"AM"}}},
	}), http.StatusCreated)

	expect[api.PlanDTO](s.t, s.do(http.MethodPost, "/api/plans", map[string]any{
		"id":                    "plan-5",
		"name":                  "Five Walks",
		"walk_credits":          5,
		"walk_duration_minutes": 45,
		"validity_period_days":  30,
		"price":                 "99.50",
	}), http.StatusCreated)

	dog = s.dog("owner-1", "not_required")
	sub = s.subscribe("owner-1")
	return walker, dog, sub
}

func (s *server) dog(owner, status string) api.DogDTO {
	s.t.Helper()
	return expect[api.DogDTO](s.t, s.do(http.MethodPost, "/api/dogs", api.CreateDogRequest{
		OwnerID: owner, Name: "Rex", Size: "medium", AssessmentStatus: status,
	}), http.StatusCreated)
}

func (s *server) subscribe(owner string) api.SubscriptionDTO {
	s.t.Helper()
	return expect[api.SubscriptionDTO](s.t, s.do(http.MethodPost, "/api/subscriptions", api.PurchaseSubscriptionRequest{
		OwnerID: owner, PlanID: "plan-5",
	}), http.StatusCreated)
}

func (s *server) book(dogID, subID, date string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/walks", api.CreateWalkRequest{
		DogID: dogID, WalkerID: "walker-1", SubscriptionID: subID, Date: date, TimeSlot: "AM",
	})
}
