package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"notecanvas/application/commands"
	"notecanvas/application/commands/bus"
	"notecanvas/application/queries"
	querybus "notecanvas/application/queries/bus"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/utils"
)

// NoteHandler handles note-related HTTP requests
type NoteHandler struct {
	responder
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
}

func NewNoteHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *NoteHandler {
	return &NoteHandler{
		responder:  responder{errors: errs, logger: logger},
		commandBus: commandBus,
		queryBus:   queryBus,
	}
}

// MoveNoteRequest is the body of PATCH /notes/{id}/position.
type MoveNoteRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ListNotes handles GET /notes
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListNotesQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// GetNote handles GET /notes/{id}
func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetNoteQuery{ID: id})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// CreateNote handles POST /notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req entities.NoteFields
	if err := h.decode(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.AddNoteCommand{
		Session:    sessionFor(r),
		NoteFields: req,
	})
	h.respondOutcome(w, r, http.StatusCreated, result, err)
}

// UpdateNote handles PUT /notes/{id}
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req entities.NoteFields
	if err := h.decode(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.UpdateNoteCommand{
		Session:    sessionFor(r),
		ID:         id,
		NoteFields: req,
	})
	h.respondOutcome(w, r, http.StatusOK, result, err)
}

// MoveNote handles PATCH /notes/{id}/position
func (h *NoteHandler) MoveNote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req MoveNoteRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.MoveNoteCommand{
		Session: sessionFor(r),
		ID:      id,
		X:       req.X,
		Y:       req.Y,
	})
	h.respondOutcome(w, r, http.StatusOK, result, err)
}

// DeleteNote handles DELETE /notes/{id}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.DeleteNoteCommand{
		Session: sessionFor(r),
		ID:      id,
	})
	h.respondOutcome(w, r, http.StatusOK, result, err)
}
