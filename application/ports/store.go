package ports

import (
	"context"
	"time"

	"notecanvas/domain/core/entities"
)

// NoteStore persists notes. Every method is atomic with respect to
// concurrent callers; lookups of a missing id return (nil, nil).
type NoteStore interface {
	ListNotes(ctx context.Context) ([]*entities.Note, error)
	GetNote(ctx context.Context, id int64) (*entities.Note, error)
	NoteExists(ctx context.Context, id int64) (bool, error)

	// CreateNote assigns the id and returns the stored note.
	CreateNote(ctx context.Context, note *entities.Note) (*entities.Note, error)

	// UpdateNote overwrites the editable fields and UpdatedAt of an existing
	// note. CreatedAt is preserved.
	UpdateNote(ctx context.Context, note *entities.Note) (*entities.Note, error)

	// MoveNote writes only the position and UpdatedAt.
	MoveNote(ctx context.Context, id int64, x, y float64, at time.Time) (*entities.Note, error)

	// DeleteNote removes the note and every connection touching it. It
	// reports whether a note was removed.
	DeleteNote(ctx context.Context, id int64) (bool, error)
}

// ConnectionStore persists connections between notes.
type ConnectionStore interface {
	ListConnections(ctx context.Context) ([]*entities.NoteConnection, error)

	// FindConnection looks the pair up in either direction.
	FindConnection(ctx context.Context, a, b int64) (*entities.NoteConnection, error)

	// CreateConnection returns a CONFLICT AppError when the unordered pair
	// already exists and NOT_FOUND when either note is missing.
	CreateConnection(ctx context.Context, conn *entities.NoteConnection) (*entities.NoteConnection, error)

	DeleteConnection(ctx context.Context, id int64) (bool, error)
}

// Store is the full persistence collaborator of the sync service.
type Store interface {
	NoteStore
	ConnectionStore
}

// HealthChecker is implemented by stores that can report readiness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}
