package entities

import (
	"time"

	pkgerrors "notecanvas/pkg/errors"
)

// NoteConnection is an undirected link between two distinct notes. The
// source/target naming records who initiated it; uniqueness ignores order.
type NoteConnection struct {
	ID           int64     `json:"id"`
	SourceNoteID int64     `json:"sourceNoteId"`
	TargetNoteID int64     `json:"targetNoteId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func NewNoteConnection(sourceID, targetID int64, at time.Time) *NoteConnection {
	return &NoteConnection{
		SourceNoteID: sourceID,
		TargetNoteID: targetID,
		CreatedAt:    at.UTC(),
	}
}

func (c *NoteConnection) Validate() error {
	if c.SourceNoteID == c.TargetNoteID {
		return pkgerrors.NewValidationError("a note cannot be connected to itself")
	}
	return nil
}

// Pair returns the connection's unordered pair key.
func (c *NoteConnection) Pair() Pair {
	return PairKey(c.SourceNoteID, c.TargetNoteID)
}

// Touches reports whether the connection has noteID at either end.
func (c *NoteConnection) Touches(noteID int64) bool {
	return c.SourceNoteID == noteID || c.TargetNoteID == noteID
}

func (c *NoteConnection) Clone() *NoteConnection {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Pair is an unordered pair of note ids normalised so Low <= High.
type Pair struct {
	Low  int64
	High int64
}

// PairKey normalises (a, b) so that PairKey(a, b) == PairKey(b, a).
func PairKey(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}
