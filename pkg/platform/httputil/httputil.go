// Package httputil maps coded domain errors onto HTTP responses so handlers
// never hand-roll status codes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "landregistry/pkg/domain-errors"
)

// errorBody is the wire shape for all error responses.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// statusFor maps domain error codes to HTTP status codes.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeValidation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders a coded error. Internal errors omit the description so
// infrastructure details never leak to callers; every other kind surfaces its
// actionable message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != dErrors.CodeInternal {
		body.ErrorDescription = dErrors.MessageOf(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON renders a success payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
