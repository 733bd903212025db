// Package memory is a single-process Store. One mutex serialises every
// operation, which makes each of them atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	pkgerrors "notecanvas/pkg/errors"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu          sync.RWMutex
	notes       map[int64]*entities.Note
	connections map[int64]*entities.NoteConnection
	pairs       map[entities.Pair]int64
	nextNoteID  int64
	nextConnID  int64
}

func NewStore() *Store {
	return &Store{
		notes:       make(map[int64]*entities.Note),
		connections: make(map[int64]*entities.NoteConnection),
		pairs:       make(map[entities.Pair]int64),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ListNotes(ctx context.Context) ([]*entities.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetNote(ctx context.Context, id int64) (*entities.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notes[id].Clone(), nil
}

func (s *Store) NoteExists(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.notes[id]
	return ok, nil
}

func (s *Store) CreateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNoteID++
	stored := note.Clone()
	stored.ID = s.nextNoteID
	s.notes[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *Store) UpdateNote(ctx context.Context, note *entities.Note) (*entities.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[note.ID]
	if !ok {
		return nil, nil
	}
	existing.Apply(note.NoteFields, note.UpdatedAt)
	return existing.Clone(), nil
}

func (s *Store) MoveNote(ctx context.Context, id int64, x, y float64, at time.Time) (*entities.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.notes[id]
	if !ok {
		return nil, nil
	}
	existing.MoveTo(x, y, at)
	return existing.Clone(), nil
}

func (s *Store) DeleteNote(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return false, nil
	}
	delete(s.notes, id)
	for cid, c := range s.connections {
		if c.Touches(id) {
			delete(s.connections, cid)
			delete(s.pairs, c.Pair())
		}
	}
	return true, nil
}

func (s *Store) ListConnections(ctx context.Context) ([]*entities.NoteConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.NoteConnection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindConnection(ctx context.Context, a, b int64) (*entities.NoteConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pairs[entities.PairKey(a, b)]
	if !ok {
		return nil, nil
	}
	return s.connections[id].Clone(), nil
}

func (s *Store) CreateConnection(ctx context.Context, conn *entities.NoteConnection) (*entities.NoteConnection, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[conn.Pair()]; ok {
		return nil, pkgerrors.NewConflictError("connection already exists")
	}
	if _, ok := s.notes[conn.SourceNoteID]; !ok {
		return nil, pkgerrors.NewNotFoundError("source note")
	}
	if _, ok := s.notes[conn.TargetNoteID]; !ok {
		return nil, pkgerrors.NewNotFoundError("target note")
	}

	s.nextConnID++
	stored := conn.Clone()
	stored.ID = s.nextConnID
	s.connections[stored.ID] = stored
	s.pairs[stored.Pair()] = stored.ID
	return stored.Clone(), nil
}

func (s *Store) DeleteConnection(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[id]
	if !ok {
		return false, nil
	}
	delete(s.connections, id)
	delete(s.pairs, c.Pair())
	return true, nil
}
