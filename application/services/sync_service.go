package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notecanvas/application/ports"
	"notecanvas/domain/core/entities"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

// Snapshot is the full canvas state replayed to a joining session.
type Snapshot struct {
	Notes       []*entities.Note           `json:"notes"`
	Connections []*entities.NoteConnection `json:"connections"`
}

// SyncService applies one intent at a time to the store and decides what to
// broadcast. It keeps no state between calls; every operation is a single
// read, validate, write, broadcast pass so concurrent updates resolve as
// last writer wins inside the store.
type SyncService struct {
	store     ports.Store
	fanout    ports.Fanout
	publisher ports.EventPublisher
	clock     ports.Clock
	logger    *zap.Logger
}

func NewSyncService(
	store ports.Store,
	fanout ports.Fanout,
	publisher ports.EventPublisher,
	clock ports.Clock,
	logger *zap.Logger,
) *SyncService {
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	return &SyncService{
		store:     store,
		fanout:    fanout,
		publisher: publisher,
		clock:     clock,
		logger:    logger.Named("sync"),
	}
}

// Snapshot reads every note and every connection.
func (s *SyncService) Snapshot(ctx context.Context) (*Snapshot, error) {
	notes, err := s.store.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return &Snapshot{Notes: notes, Connections: conns}, nil
}

// ConnectSession replays the current canvas to caller only: a ReceiveNote
// per note followed by a ReceiveNoteConnection per connection.
func (s *SyncService) ConnectSession(ctx context.Context, caller ports.SessionID) (*Snapshot, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	for _, note := range snap.Notes {
		if err := s.fanout.SendToCaller(ctx, caller, events.ReceiveNote, note); err != nil {
			return snap, fmt.Errorf("replay note %d: %w", note.ID, err)
		}
	}
	for _, conn := range snap.Connections {
		if err := s.fanout.SendToCaller(ctx, caller, events.ReceiveNoteConnection, conn); err != nil {
			return snap, fmt.Errorf("replay connection %d: %w", conn.ID, err)
		}
	}

	s.logger.Debug("Session replayed",
		zap.String("session", string(caller)),
		zap.Int("notes", len(snap.Notes)),
		zap.Int("connections", len(snap.Connections)),
	)
	return snap, nil
}

// AddNote stamps server-side timestamps, persists the note and broadcasts it.
func (s *SyncService) AddNote(ctx context.Context, caller ports.SessionID, fields entities.NoteFields) (Outcome, error) {
	created, err := s.store.CreateNote(ctx, entities.NewNote(fields, s.clock.Now()))
	if err != nil {
		return Outcome{}, s.failed(caller, "AddNote", fmt.Errorf("add note: %w", err))
	}
	return s.broadcast(ctx, events.ReceiveNote, created), nil
}

// UpdateNote overwrites the editable fields of an existing note.
func (s *SyncService) UpdateNote(ctx context.Context, caller ports.SessionID, id int64, fields entities.NoteFields) (Outcome, error) {
	existing, err := s.store.GetNote(ctx, id)
	if err != nil {
		return Outcome{}, s.failed(caller, "UpdateNote", fmt.Errorf("load note %d: %w", id, err))
	}
	if existing == nil {
		return s.skip(caller, "UpdateNote", ReasonNoteNotFound), nil
	}

	existing.Apply(fields, s.clock.Now())
	updated, err := s.store.UpdateNote(ctx, existing)
	if err != nil {
		return Outcome{}, s.failed(caller, "UpdateNote", fmt.Errorf("update note %d: %w", id, err))
	}
	if updated == nil {
		// Deleted between the read and the write.
		return s.skip(caller, "UpdateNote", ReasonNoteNotFound), nil
	}
	return s.broadcast(ctx, events.UpdateNote, updated), nil
}

// DeleteNote removes a note. The store cascades its connections; those
// removals are not broadcast separately.
func (s *SyncService) DeleteNote(ctx context.Context, caller ports.SessionID, id int64) (Outcome, error) {
	deleted, err := s.store.DeleteNote(ctx, id)
	if err != nil {
		return Outcome{}, s.failed(caller, "DeleteNote", fmt.Errorf("delete note %d: %w", id, err))
	}
	if !deleted {
		return s.skip(caller, "DeleteNote", ReasonNoteNotFound), nil
	}
	return s.broadcast(ctx, events.DeleteNote, events.DeletedPayload{ID: id}), nil
}

// MoveNote updates only the position and UpdatedAt.
func (s *SyncService) MoveNote(ctx context.Context, caller ports.SessionID, id int64, x, y float64) (Outcome, error) {
	moved, err := s.store.MoveNote(ctx, id, x, y, s.clock.Now())
	if err != nil {
		return Outcome{}, s.failed(caller, "MoveNote", fmt.Errorf("move note %d: %w", id, err))
	}
	if moved == nil {
		return s.skip(caller, "MoveNote", ReasonNoteNotFound), nil
	}
	return s.broadcast(ctx, events.MoveNote, events.MovedPayload{ID: id, X: moved.PositionX, Y: moved.PositionY}), nil
}

// ConnectNotes links two notes. Checks run in order and stop at the first
// failure: self connection, existing pair in either direction, missing note.
func (s *SyncService) ConnectNotes(ctx context.Context, caller ports.SessionID, sourceID, targetID int64) (Outcome, error) {
	if sourceID == targetID {
		return s.skip(caller, "ConnectNotes", ReasonSelfConnection), nil
	}

	existing, err := s.store.FindConnection(ctx, sourceID, targetID)
	if err != nil {
		return Outcome{}, s.failed(caller, "ConnectNotes", fmt.Errorf("find connection: %w", err))
	}
	if existing != nil {
		return s.skip(caller, "ConnectNotes", ReasonDuplicateConnection), nil
	}

	for _, id := range []int64{sourceID, targetID} {
		ok, err := s.store.NoteExists(ctx, id)
		if err != nil {
			return Outcome{}, s.failed(caller, "ConnectNotes", fmt.Errorf("check note %d: %w", id, err))
		}
		if !ok {
			return s.skip(caller, "ConnectNotes", ReasonNoteNotFound), nil
		}
	}

	created, err := s.store.CreateConnection(ctx, entities.NewNoteConnection(sourceID, targetID, s.clock.Now()))
	switch {
	case pkgerrors.IsConflict(err):
		// Another session created the pair after our check.
		return s.skip(caller, "ConnectNotes", ReasonDuplicateConnection), nil
	case pkgerrors.IsNotFound(err):
		return s.skip(caller, "ConnectNotes", ReasonNoteNotFound), nil
	case err != nil:
		return Outcome{}, s.failed(caller, "ConnectNotes", fmt.Errorf("create connection: %w", err))
	}
	return s.broadcast(ctx, events.ReceiveNoteConnection, created), nil
}

// DisconnectNotes removes a connection by id.
func (s *SyncService) DisconnectNotes(ctx context.Context, caller ports.SessionID, connectionID int64) (Outcome, error) {
	deleted, err := s.store.DeleteConnection(ctx, connectionID)
	if err != nil {
		return Outcome{}, s.failed(caller, "DisconnectNotes", fmt.Errorf("delete connection %d: %w", connectionID, err))
	}
	if !deleted {
		return s.skip(caller, "DisconnectNotes", ReasonConnectionNotFound), nil
	}
	return s.broadcast(ctx, events.RemoveNoteConnection, events.RemovedConnectionPayload{ID: connectionID}), nil
}

// broadcast runs after a successful write. Delivery problems are logged: the
// change is already durable and later events will still reach every session.
func (s *SyncService) broadcast(ctx context.Context, event events.Name, payload interface{}) Outcome {
	if err := s.fanout.SendToAll(ctx, event, payload); err != nil {
		s.logger.Warn("Broadcast failed", zap.String("event", event.String()), zap.Error(err))
	}

	de := events.NewDomainEvent(uuid.NewString(), event, payload, s.clock.Now())
	if err := s.publisher.Publish(ctx, de); err != nil {
		s.logger.Warn("Event publish failed", zap.String("event", event.String()), zap.Error(err))
	}
	return Applied(event, payload)
}

func (s *SyncService) skip(caller ports.SessionID, intent string, reason SkipReason) Outcome {
	s.logger.Debug("Intent skipped",
		zap.String("session", string(caller)),
		zap.String("intent", intent),
		zap.String("reason", string(reason)),
	)
	return Skipped(reason)
}

func (s *SyncService) failed(caller ports.SessionID, intent string, err error) error {
	s.logger.Error("Intent failed",
		zap.String("session", string(caller)),
		zap.String("intent", intent),
		zap.Error(err),
	)
	return err
}
