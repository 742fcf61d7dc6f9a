/*
errors.go - Engine error kinds to HTTP responses

PURPOSE:
  Every engine rejection surfaces verbatim as {"error": Kind, "message": ...}.
  The status code depends only on the kind.

STATUS MAPPING:
  404  NotFound
  409  SlotFull, InvalidStateTransition, CreditAlreadySettled, AssessmentOpen,
       DuplicateIdempotencyKey
  422  DogNotEligible, NoActiveSubscription, NoCreditsRemaining
  400  InvalidInput
  500  anything else (message hidden)

SEE ALSO:
  - walks/errors.go: Kind()
*/
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/warp/walk-engine/walks"
)

var kindStatus = map[string]int{
	"NotFound":                http.StatusNotFound,
	"SlotFull":                http.StatusConflict,
	"InvalidStateTransition":  http.StatusConflict,
	"CreditAlreadySettled":    http.StatusConflict,
	"AssessmentOpen":          http.StatusConflict,
	"DuplicateIdempotencyKey": http.StatusConflict,
	"DogNotEligible":          http.StatusUnprocessableEntity,
	"NoActiveSubscription":    http.StatusUnprocessableEntity,
	"NoCreditsRemaining":      http.StatusUnprocessableEntity,
	"InvalidInput":            http.StatusBadRequest,
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	if status, ok := kindStatus[walks.Kind(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError renders err. Internal failures are logged and their message is
// not exposed.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: walks.Kind(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		body = ErrorResponse{Error: "Internal", Message: "internal error"}
	}
	writeJSON(w, status, body)
}

// badRequest wraps a parsing problem as InvalidInput.
func badRequest(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, walks.ErrInvalidInput)...)
}

// decode reads a JSON body into dst.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
