package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/application/services"
	pkgerrors "notecanvas/pkg/errors"
)

// CodeMalformedBody marks request bodies that are not valid JSON.
const CodeMalformedBody = "malformed_body"

// SkippedResponse is returned when an intent was a no-op.
type SkippedResponse struct {
	Applied bool                `json:"applied"`
	Reason  services.SkipReason `json:"reason"`
}

type responder struct {
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

func (h *responder) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondOutcome renders the result of an intent sent through the command
// bus. Applied outcomes return their payload with the given status.
func (h *responder) respondOutcome(w http.ResponseWriter, r *http.Request, status int, result interface{}, err error) {
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	outcome, ok := result.(services.Outcome)
	if !ok {
		h.errors.Handle(w, r, pkgerrors.NewInternalError("unexpected intent result"))
		return
	}
	if !outcome.IsApplied() {
		h.respondJSON(w, http.StatusOK, SkippedResponse{Applied: false, Reason: outcome.Reason})
		return
	}
	h.respondJSON(w, status, outcome.Payload)
}

func (h *responder) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return pkgerrors.NewValidationError("invalid request body").
			WithCode(CodeMalformedBody).
			WithCause(err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.NewValidationError("invalid " + name)
	}
	return id, nil
}

// sessionFor tags REST intents so they can be told apart in logs.
func sessionFor(r *http.Request) ports.SessionID {
	return ports.SessionID("rest:" + middleware.GetReqID(r.Context()))
}
