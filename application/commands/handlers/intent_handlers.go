// Package handlers binds each intent command to the sync service.
package handlers

import (
	"context"
	"fmt"

	"notecanvas/application/commands"
	"notecanvas/application/commands/bus"
	"notecanvas/application/services"
)

// Register binds every intent command on b to svc.
func Register(b *bus.CommandBus, svc *services.SyncService) error {
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandlerFunc
	}{
		{commands.AddNoteCommand{}, addNote(svc)},
		{commands.UpdateNoteCommand{}, updateNote(svc)},
		{commands.DeleteNoteCommand{}, deleteNote(svc)},
		{commands.MoveNoteCommand{}, moveNote(svc)},
		{commands.ConnectNotesCommand{}, connectNotes(svc)},
		{commands.DisconnectNotesCommand{}, disconnectNotes(svc)},
		{commands.RequestSnapshotCommand{}, requestSnapshot(svc)},
	}

	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func unexpected(cmd bus.Command) error {
	return fmt.Errorf("unexpected command type %T", cmd)
}

func addNote(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.AddNoteCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.AddNote(ctx, c.Session, c.NoteFields)
	}
}

func updateNote(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.UpdateNoteCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.UpdateNote(ctx, c.Session, c.ID, c.NoteFields)
	}
}

func deleteNote(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.DeleteNoteCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.DeleteNote(ctx, c.Session, c.ID)
	}
}

func moveNote(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.MoveNoteCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.MoveNote(ctx, c.Session, c.ID, c.X, c.Y)
	}
}

func connectNotes(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.ConnectNotesCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.ConnectNotes(ctx, c.Session, c.SourceID, c.TargetID)
	}
}

func disconnectNotes(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.DisconnectNotesCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.DisconnectNotes(ctx, c.Session, c.ConnectionID)
	}
}

func requestSnapshot(svc *services.SyncService) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		c, ok := cmd.(commands.RequestSnapshotCommand)
		if !ok {
			return nil, unexpected(cmd)
		}
		return svc.ConnectSession(ctx, c.Session)
	}
}
