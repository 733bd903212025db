// Package queries holds the read side used by the REST surface.
package queries

import pkgerrors "notecanvas/pkg/errors"

// GetSnapshotQuery returns every note and connection.
type GetSnapshotQuery struct{}

func (GetSnapshotQuery) Validate() error { return nil }

type ListNotesQuery struct{}

func (ListNotesQuery) Validate() error { return nil }

type GetNoteQuery struct {
	ID int64
}

func (q GetNoteQuery) Validate() error {
	if q.ID <= 0 {
		return pkgerrors.NewValidationError("note id must be positive")
	}
	return nil
}

type ListConnectionsQuery struct{}

func (ListConnectionsQuery) Validate() error { return nil }
