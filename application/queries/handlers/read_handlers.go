// Package handlers answers read-side queries straight from the store.
package handlers

import (
	"context"
	"fmt"

	"notecanvas/application/ports"
	"notecanvas/application/queries"
	"notecanvas/application/queries/bus"
	"notecanvas/application/services"
	pkgerrors "notecanvas/pkg/errors"
)

// Register binds every read query on b.
func Register(b *bus.QueryBus, store ports.Store, svc *services.SyncService) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandlerFunc
	}{
		{queries.GetSnapshotQuery{}, func(ctx context.Context, _ bus.Query) (interface{}, error) {
			return svc.Snapshot(ctx)
		}},
		{queries.ListNotesQuery{}, func(ctx context.Context, _ bus.Query) (interface{}, error) {
			return store.ListNotes(ctx)
		}},
		{queries.GetNoteQuery{}, getNote(store)},
		{queries.ListConnectionsQuery{}, func(ctx context.Context, _ bus.Query) (interface{}, error) {
			return store.ListConnections(ctx)
		}},
	}

	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return err
		}
	}
	return nil
}

func getNote(store ports.NoteStore) bus.QueryHandlerFunc {
	return func(ctx context.Context, query bus.Query) (interface{}, error) {
		q, ok := query.(queries.GetNoteQuery)
		if !ok {
			return nil, fmt.Errorf("unexpected query type %T", query)
		}
		note, err := store.GetNote(ctx, q.ID)
		if err != nil {
			return nil, err
		}
		if note == nil {
			return nil, pkgerrors.NewNotFoundError(fmt.Sprintf("note %d", q.ID))
		}
		return note, nil
	}
}
