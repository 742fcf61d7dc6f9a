package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/walk-engine/walks"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{walks.NewNotFound("walk", "w-1"), http.StatusNotFound},
		{&walks.SlotFullError{Capacity: 6, Occupied: 6}, http.StatusConflict},
		{&walks.TransitionError{Entity: "walk"}, http.StatusConflict},
		{fmt.Errorf("release: %w", walks.ErrCreditAlreadySettled), http.StatusConflict},
		{walks.ErrAssessmentOpen, http.StatusConflict},
		{walks.ErrDogNotEligible, http.StatusUnprocessableEntity},
		{walks.ErrNoActiveSubscription, http.StatusUnprocessableEntity},
		{&walks.NoCreditsError{}, http.StatusUnprocessableEntity},
		{badRequest("bad %s", "thing"), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
