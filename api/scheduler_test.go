package api_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/walk-engine/api"
	"github.com/warp/walk-engine/logging"
)

func TestExpiryScheduler_RunNow(t *testing.T) {
	// GIVEN: a 30-day subscription
	s := newServer(t)
	_, _, sub := s.setup(6)
	sched := api.NewExpiryScheduler(s.engine, logging.Discard())

	// WHEN: sweeping before expiry
	res := sched.RunNow(t.Context())

	// THEN: nothing changes
	require.NoError(t, res.Err)
	assert.Zero(t, res.Expired)

	// WHEN: sweeping after expiry
	s.advance(31 * 24 * time.Hour)
	res = sched.RunNow(t.Context())

	// THEN: the subscription is expired
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, res, sched.LastRun())
	got := expect[api.SubscriptionDTO](t, s.do(http.MethodGet, "/api/subscriptions/"+sub.ID, nil), http.StatusOK)
	assert.Equal(t, "expired", got.Status)
}

func TestExpiryScheduler_StartStop(t *testing.T) {
	s := newServer(t)
	s.setup(6)
	s.advance(31 * 24 * time.Hour)

	sched := api.NewExpiryScheduler(s.engine, logging.Discard())
	sched.CheckInterval = 10 * time.Millisecond
	sched.Start()
	sched.Start()

	// The first sweep runs immediately on start.
	assert.Eventually(t, func() bool { return sched.LastRun().Expired == 1 }, time.Second, 5*time.Millisecond)
	sched.Stop()
	sched.Stop()
}

func TestExpiryScheduler_Disabled(t *testing.T) {
	s := newServer(t)
	sched := api.NewExpiryScheduler(s.engine, logging.Discard())
	sched.Enabled = false
	sched.Start()
	sched.Stop()
	assert.True(t, sched.LastRun().At.IsZero())
}
