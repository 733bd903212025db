package handlers

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notecanvas/application/commands"
	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
	"notecanvas/application/services"
	"notecanvas/domain/core/entities"
	"notecanvas/domain/events"
	"notecanvas/infrastructure/persistence/memory"
	pkgerrors "notecanvas/pkg/errors"
	"notecanvas/pkg/utils"
)

type captureFanout struct {
	mu     sync.Mutex
	caller []events.Name
	all    []events.Name
}

func (f *captureFanout) SendToCaller(_ context.Context, _ ports.SessionID, e events.Name, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caller = append(f.caller, e)
	return nil
}

func (f *captureFanout) SendToAll(_ context.Context, e events.Name, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, e)
	return nil
}

func newBus(t *testing.T) (*bus.CommandBus, *captureFanout) {
	t.Helper()
	fan := &captureFanout{}
	svc := services.NewSyncService(memory.NewStore(), fan, nil, utils.SystemClock{}, zap.NewNop())
	b := bus.NewCommandBus()
	require.NoError(t, Register(b, svc))
	return b, fan
}

func TestRegister_RoutesEveryIntent(t *testing.T) {
	ctx := context.Background()
	b, fan := newBus(t)
	fields := entities.NoteFields{Title: "A", Color: "#123456"}

	first, err := b.Send(ctx, commands.AddNoteCommand{Session: "s1", NoteFields: fields})
	require.NoError(t, err)
	second, err := b.Send(ctx, commands.AddNoteCommand{Session: "s1", NoteFields: fields})
	require.NoError(t, err)
	a := first.(services.Outcome).Payload.(*entities.Note)
	c := second.(services.Outcome).Payload.(*entities.Note)

	steps := []bus.Command{
		commands.UpdateNoteCommand{Session: "s1", ID: a.ID, NoteFields: fields},
		commands.MoveNoteCommand{Session: "s1", ID: a.ID, X: 1, Y: 2},
		commands.ConnectNotesCommand{Session: "s1", SourceID: a.ID, TargetID: c.ID},
		commands.DisconnectNotesCommand{Session: "s1", ConnectionID: 1},
		commands.DeleteNoteCommand{Session: "s1", ID: a.ID},
	}
	for _, cmd := range steps {
		result, err := b.Send(ctx, cmd)
		require.NoError(t, err)
		assert.True(t, result.(services.Outcome).IsApplied(), bus.CommandName(cmd))
	}

	snap, err := b.Send(ctx, commands.RequestSnapshotCommand{Session: "s2"})
	require.NoError(t, err)
	assert.Len(t, snap.(*services.Snapshot).Notes, 1)

	assert.Equal(t, []events.Name{
		events.ReceiveNote, events.ReceiveNote, events.UpdateNote, events.MoveNote,
		events.ReceiveNoteConnection, events.RemoveNoteConnection, events.DeleteNote,
	}, fan.all)
	assert.Equal(t, []events.Name{events.ReceiveNote}, fan.caller)
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     bus.Command
		wantErr bool
	}{
		{"finite move", commands.MoveNoteCommand{ID: 1, X: -10, Y: 1e6}, false},
		{"nan move", commands.MoveNoteCommand{ID: 1, X: math.NaN()}, true},
		{"infinite add", commands.AddNoteCommand{NoteFields: entities.NoteFields{PositionY: math.Inf(1)}}, true},
		{"snapshot without session", commands.RequestSnapshotCommand{}, true},
		{"delete", commands.DeleteNoteCommand{ID: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
