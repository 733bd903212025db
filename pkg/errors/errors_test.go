package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTypeHelpers(t *testing.T) {
	cause := fmt.Errorf("connection reset")

	tests := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		persistence bool
	}{
		{"not found", NewNotFoundError("note"), true, false, false},
		{"conflict", NewConflictError("duplicate"), false, true, false},
		{"database", NewDatabaseError("create_note", cause), false, false, true},
		{"unavailable", NewUnavailableError("store"), false, false, true},
		{"wrapped database", fmt.Errorf("add note: %w", NewDatabaseError("x", cause)), false, false, true},
		{"plain", cause, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			assert.Equal(t, tt.persistence, IsPersistence(tt.err))
		})
	}
}

func TestDatabaseErrorUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewDatabaseError("delete_note", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "delete_note")
}

func TestErrorHandler_Handle(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", NewValidationError("title is required"), http.StatusBadRequest, "VALIDATION"},
		{"not found", NewNotFoundError("note"), http.StatusNotFound, "NOT_FOUND"},
		{"database", NewDatabaseError("list_notes", fmt.Errorf("down")), http.StatusInternalServerError, "DATABASE"},
		{"generic", fmt.Errorf("oops"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)

			h.Handle(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Error)
			assert.Equal(t, tt.wantType, body.Type)
		})
	}
}

func TestErrorHandler_MiddlewareRecoversPanic(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
