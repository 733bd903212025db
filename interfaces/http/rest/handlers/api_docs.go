package handlers

// This file contains OpenAPI annotations for the /api/v1 handlers, read by
// `swag init -g cmd/notecanvas/main.go`.

// GetSnapshot returns every note followed by every connection
// @Summary Get the canvas snapshot
// @Tags canvas
// @Produce json
// @Success 200 {object} services.Snapshot
// @Failure 500 {object} errors.ErrorResponse
// @Router /snapshot [get]

// ListNotes lists all notes
// @Summary List notes
// @Tags notes
// @Produce json
// @Success 200 {array} entities.Note
// @Failure 500 {object} errors.ErrorResponse
// @Router /notes [get]

// GetNote retrieves a note by ID
// @Summary Get note by ID
// @Tags notes
// @Produce json
// @Param id path int true "Note ID"
// @Success 200 {object} entities.Note
// @Failure 400 {object} errors.ErrorResponse "Invalid id"
// @Failure 404 {object} errors.ErrorResponse "Note not found"
// @Router /notes/{id} [get]

// CreateNote adds a note and broadcasts ReceiveNote
// @Summary Create a note
// @Tags notes
// @Accept json
// @Produce json
// @Param request body entities.NoteFields true "Note fields"
// @Success 201 {object} entities.Note
// @Failure 400 {object} errors.ErrorResponse "Validation failed or malformed_body"
// @Failure 429 {object} errors.ErrorResponse "Rate limited"
// @Failure 500 {object} errors.ErrorResponse
// @Router /notes [post]

// UpdateNote replaces a note's fields and broadcasts UpdateNote
// @Summary Update a note
// @Tags notes
// @Accept json
// @Produce json
// @Param id path int true "Note ID"
// @Param request body entities.NoteFields true "Note fields"
// @Success 200 {object} entities.Note
// @Success 200 {object} SkippedResponse "Note not found"
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /notes/{id} [put]

// MoveNote changes a note's position and broadcasts MoveNote
// @Summary Move a note
// @Tags notes
// @Accept json
// @Produce json
// @Param id path int true "Note ID"
// @Param request body MoveNoteRequest true "New position"
// @Success 200 {object} events.MovedPayload
// @Success 200 {object} SkippedResponse "Note not found"
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /notes/{id}/position [patch]

// DeleteNote removes a note with its connections and broadcasts DeleteNote
// @Summary Delete a note
// @Tags notes
// @Produce json
// @Param id path int true "Note ID"
// @Success 200 {object} events.DeletedPayload
// @Success 200 {object} SkippedResponse "Note not found"
// @Failure 500 {object} errors.ErrorResponse
// @Router /notes/{id} [delete]

// ListConnections lists all connections
// @Summary List connections
// @Tags connections
// @Produce json
// @Success 200 {array} entities.NoteConnection
// @Failure 500 {object} errors.ErrorResponse
// @Router /connections [get]

// CreateConnection connects two notes and broadcasts ReceiveNoteConnection
// @Summary Connect two notes
// @Description Self, duplicate and dangling connections are skipped, not rejected.
// @Tags connections
// @Accept json
// @Produce json
// @Param request body CreateConnectionRequest true "Endpoints"
// @Success 201 {object} entities.NoteConnection
// @Success 200 {object} SkippedResponse "self_connection, duplicate_connection or note_not_found"
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /connections [post]

// DeleteConnection removes a connection and broadcasts RemoveNoteConnection
// @Summary Disconnect notes
// @Tags connections
// @Produce json
// @Param id path int true "Connection ID"
// @Success 200 {object} events.RemovedConnectionPayload
// @Success 200 {object} SkippedResponse "connection_not_found"
// @Failure 500 {object} errors.ErrorResponse
// @Router /connections/{id} [delete]
