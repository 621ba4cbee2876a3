package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dErrors "landregistry/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("forbidden includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeForbidden, "approval authority is disjoint from applicant identity"))

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "forbidden" {
			t.Fatalf("expected error code forbidden, got %q", body["error"])
		}
		if body["error_description"] == "" {
			t.Fatalf("expected error_description for guard failures")
		}
	})

	t.Run("status mapping covers the full taxonomy", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeNotFound:           http.StatusNotFound,
			dErrors.CodeConflict:           http.StatusConflict,
			dErrors.CodeInvalidState:       http.StatusConflict,
			dErrors.CodePreconditionFailed: http.StatusPreconditionFailed,
			dErrors.CodeValidation:         http.StatusUnprocessableEntity,
			dErrors.CodeBadRequest:         http.StatusBadRequest,
			dErrors.CodeUnauthorized:       http.StatusUnauthorized,
		}
		for code, want := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "x"))
			if w.Code != want {
				t.Fatalf("code %s: expected status %d, got %d", code, want, w.Code)
			}
		}
	})

	t.Run("uncoded errors render as internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.ErrBodyNotAllowed)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 for uncoded error, got %d", w.Code)
		}
	})
}
