package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/api"
	"github.com/warp/walk-engine/store/sqlstore"
)

func newSQLiteServer(t *testing.T) *server {
	t.Helper()
	st, err := sqlstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return newServerWith(t, st)
}

func TestSQLite_BookAndCancel(t *testing.T) {
	// GIVEN: the API backed by SQLite
	s := newSQLiteServer(t)
	_, dog, sub := s.setup(1)

	// WHEN: booking the only seat, then trying a second dog
	walk := expect[api.WalkDTO](t, s.book(dog.ID, sub.ID, "2025-03-10"), http.StatusCreated)
	other := s.dog("owner-1", "not_required")
	body := expect[api.ErrorResponse](t, s.book(other.ID, sub.ID, "2025-03-10"), http.StatusConflict)
	assert.Equal(t, "SlotFull", body.Error)

	// AND: cancelling the first walk
	expect[walksBody](t, s.do(http.MethodPatch, "/api/walks/"+walk.ID+"/status",
		api.WalkStatusRequest{TargetStatus: "cancelled"}), http.StatusOK)

	// THEN: the seat and the credit are back
	expect[api.WalkDTO](t, s.book(other.ID, sub.ID, "2025-03-10"), http.StatusCreated)
	got := expect[api.SubscriptionDTO](t, s.do(http.MethodGet, "/api/subscriptions/"+sub.ID, nil), http.StatusOK)
	assert.Equal(t, 4, got.CreditsRemaining)

	history := expect[entriesBody](t, s.do(http.MethodGet, "/api/subscriptions/"+sub.ID+"/credits", nil), http.StatusOK)
	types := make([]string, len(history.Entries))
	for i, e := range history.Entries {
		types[i] = e.Type
	}
	assert.Equal(t, []string{"reserve", "release", "reserve"}, types)
}

func TestSQLite_ScenarioAndHealth(t *testing.T) {
	s := newSQLiteServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "group-walk"))

	session := expect[api.SessionDTO](t, s.do(http.MethodGet, "/api/walkers/walker-sam/sessions?date=2025-03-04&slot=AM", nil), http.StatusOK)
	assert.Len(t, session.Members, 3)

	health := expect[map[string]string](t, s.do(http.MethodGet, "/healthz", nil), http.StatusOK)
	assert.Equal(t, "ok", health["status"])
}
