package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"notecanvas/application/queries"
	querybus "notecanvas/application/queries/bus"
	pkgerrors "notecanvas/pkg/errors"
)

// CanvasHandler serves the whole canvas in one response.
type CanvasHandler struct {
	responder
	queryBus *querybus.QueryBus
}

func NewCanvasHandler(queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *CanvasHandler {
	return &CanvasHandler{
		responder: responder{errors: errs, logger: logger},
		queryBus:  queryBus,
	}
}

// GetSnapshot handles GET /snapshot
func (h *CanvasHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetSnapshotQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}
