package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/api"
	"github.com/warp/walk-engine/walks"
)

func TestListScenarios(t *testing.T) {
	s := newServer(t)
	list := expect[[]api.ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios", nil), http.StatusOK)

	ids := make([]string, len(list))
	for i, sc := range list {
		ids[i] = sc.ID
		assert.NotEmpty(t, sc.Name)
	}
	assert.Equal(t, []string{"assessment-pipeline", "group-walk", "last-credit", "nearly-full-slot"}, ids)
}

func TestScenario_GroupWalk(t *testing.T) {
	// GIVEN: the group-walk scenario
	s := newServer(t)
	expect[map[string]string](t, s.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "group-walk"}), http.StatusOK)

	// THEN: tomorrow morning is one session of three dogs
	session := expect[api.SessionDTO](t, s.do(http.MethodGet, "/api/walkers/walker-sam/sessions?date=2025-03-04&slot=AM", nil), http.StatusOK)
	assert.True(t, session.IsGroup)
	assert.Len(t, session.Members, 3)

	current := expect[api.ScenarioDTO](t, s.do(http.MethodGet, "/api/scenarios/current", nil), http.StatusOK)
	assert.Equal(t, "group-walk", current.ID)
}

func TestScenario_NearlyFullSlot(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "nearly-full-slot"))

	av := expect[api.AvailabilityDTO](t, s.do(http.MethodGet, "/api/walkers/walker-kim/availability?date=2025-03-04", nil), http.StatusOK)
	require.NotEmpty(t, av.Slots)
	assert.Equal(t, 1, av.Slots[0].Remaining)
}

func TestScenario_AssessmentPipeline(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "assessment-pipeline"))

	want := map[walks.DogID]walks.AssessmentStatus{
		"dog-nova":  walks.AssessmentNone,
		"dog-ziggy": walks.AssessmentPending,
		"dog-bruno": walks.AssessmentScheduled,
		"dog-fig":   walks.AssessmentDenied,
		"dog-luna":  walks.AssessmentApproved,
	}
	for id, status := range want {
		dog, err := s.engine.GetDog(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, status, dog.AssessmentStatus, id)
	}
}

func TestScenario_LastCredit(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "last-credit"))

	subs, err := s.engine.ListSubscriptions(t.Context(), "owner-kai")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 1, subs[0].CreditsRemaining())
}

func TestScenario_ReloadResets(t *testing.T) {
	// GIVEN: one scenario loaded
	s := newServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "group-walk"))

	// WHEN: loading another
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "last-credit"))

	// THEN: nothing from the first survives
	_, err := s.engine.GetWalker(t.Context(), "walker-sam")
	assert.True(t, walks.IsNotFound(err))
}

func TestScenario_Unknown(t *testing.T) {
	s := newServer(t)
	body := expect[api.ErrorResponse](t, s.do(http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "moon-walk"}), http.StatusNotFound)
	assert.Equal(t, "NotFound", body.Error)
}

func TestResetStore(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.handler.LoadScenarioByID(t.Context(), "group-walk"))

	expect[map[string]string](t, s.do(http.MethodPost, "/api/scenarios/reset", nil), http.StatusOK)

	walkers, err := s.engine.ListWalkers(t.Context())
	require.NoError(t, err)
	assert.Empty(t, walkers)
}
