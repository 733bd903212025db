package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"notecanvas/application/commands"
	"notecanvas/application/commands/bus"
	"notecanvas/application/queries"
	querybus "notecanvas/application/queries/bus"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/utils"
)

// ConnectionHandler handles connection-related HTTP requests
type ConnectionHandler struct {
	responder
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
}

func NewConnectionHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *ConnectionHandler {
	return &ConnectionHandler{
		responder:  responder{errors: errs, logger: logger},
		commandBus: commandBus,
		queryBus:   queryBus,
	}
}

// CreateConnectionRequest represents the request body for connecting notes
type CreateConnectionRequest struct {
	SourceNoteID int64 `json:"sourceNoteId" validate:"required,gt=0"`
	TargetNoteID int64 `json:"targetNoteId" validate:"required,gt=0"`
}

// ListConnections handles GET /connections
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListConnectionsQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// CreateConnection handles POST /connections. Self, duplicate and dangling
// connections are skipped rather than rejected.
func (h *ConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req CreateConnectionRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.ConnectNotesCommand{
		Session:  sessionFor(r),
		SourceID: req.SourceNoteID,
		TargetID: req.TargetNoteID,
	})
	h.respondOutcome(w, r, http.StatusCreated, result, err)
}

// DeleteConnection handles DELETE /connections/{id}
func (h *ConnectionHandler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.DisconnectNotesCommand{
		Session:      sessionFor(r),
		ConnectionID: id,
	})
	h.respondOutcome(w, r, http.StatusOK, result, err)
}
