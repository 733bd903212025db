// Package commands holds one command per client intent. Commands carry the
// originating session so handlers can address replies to it.
package commands

import (
	"math"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

// AddNoteCommand creates a note. Field constraints are enforced by the store.
type AddNoteCommand struct {
	Session ports.SessionID `json:"-"`
	entities.NoteFields
}

func (c AddNoteCommand) Validate() error {
	return validatePosition(c.PositionX, c.PositionY)
}

// UpdateNoteCommand overwrites every editable field of a note.
type UpdateNoteCommand struct {
	Session ports.SessionID `json:"-"`
	ID      int64           `json:"id"`
	entities.NoteFields
}

func (c UpdateNoteCommand) Validate() error {
	return validatePosition(c.PositionX, c.PositionY)
}

type DeleteNoteCommand struct {
	Session ports.SessionID `json:"-"`
	ID      int64           `json:"id"`
}

func (c DeleteNoteCommand) Validate() error { return nil }

// MoveNoteCommand repositions a note.
type MoveNoteCommand struct {
	Session ports.SessionID `json:"-"`
	ID      int64           `json:"id"`
	X       float64         `json:"x"`
	Y       float64         `json:"y"`
}

func (c MoveNoteCommand) Validate() error {
	return validatePosition(c.X, c.Y)
}

type ConnectNotesCommand struct {
	Session  ports.SessionID `json:"-"`
	SourceID int64           `json:"sourceId"`
	TargetID int64           `json:"targetId"`
}

func (c ConnectNotesCommand) Validate() error { return nil }

type DisconnectNotesCommand struct {
	Session      ports.SessionID `json:"-"`
	ConnectionID int64           `json:"connectionId"`
}

func (c DisconnectNotesCommand) Validate() error { return nil }

// RequestSnapshotCommand replays the canvas to the requesting session.
type RequestSnapshotCommand struct {
	Session ports.SessionID `json:"-"`
}

func (c RequestSnapshotCommand) Validate() error {
	if c.Session == "" {
		return pkgerrors.NewValidationError("session is required")
	}
	return nil
}

func validatePosition(x, y float64) error {
	for _, v := range []float64{x, y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return pkgerrors.NewValidationError("position must be a finite number")
		}
	}
	return nil
}
