package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
	"github.com/warp/timekeeper/logging"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(code string) int {
	switch code {
	case generic.CodeValidation:
		return http.StatusBadRequest
	case generic.CodeConflict, generic.CodeInvalidState, generic.CodeConcurrent:
		return http.StatusConflict
	case generic.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case generic.CodeForbidden:
		return http.StatusForbidden
	case generic.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as an ErrorResponse. Internal errors are logged and
// their message is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := generic.Kind(err)
	status := statusFor(code)
	resp := ErrorResponse{Error: err.Error(), Code: code, Details: detailsOf(err)}

	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context(), zap.L()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal error"
		resp.Details = nil
	}
	writeJSON(w, status, resp)
}

// detailsOf exposes the structured fields of the engine's errors.
func detailsOf(err error) any {
	var (
		ve  *generic.ValidationError
		ce  *generic.ConflictError
		ibe *generic.InsufficientBalanceError
		ise *generic.InvalidStateTransitionError
		be  *bindError
	)
	switch {
	case errors.As(err, &be):
		return be.Fields
	case errors.As(err, &ve):
		return map[string]string{"field": ve.Field, "reason": ve.Reason}
	case errors.As(err, &ce):
		return map[string]string{
			"existing_id": string(ce.ExistingID),
			"existing":    ce.Existing.String(),
			"candidate":   ce.Candidate.String(),
		}
	case errors.As(err, &ibe):
		return map[string]string{
			"leave_type": ibe.LeaveType,
			"remaining":  ibe.Remaining.String(),
			"requested":  ibe.Requested.String(),
		}
	case errors.As(err, &ise):
		return map[string]string{"from": ise.From, "action": ise.Action}
	}
	return nil
}

// writeJSON writes data as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeStatus writes an error body for failures that are not engine errors.
func writeStatus(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
