package ports

import (
	"context"

	"notecanvas/domain/events"
)

// SessionID identifies one connected client. It is an opaque handle passed
// to the Fanout and never interpreted by the sync service.
type SessionID string

// Fanout delivers events to sessions. Delivery to any single session
// preserves the order of sends.
type Fanout interface {
	SendToCaller(ctx context.Context, caller SessionID, event events.Name, payload interface{}) error
	SendToAll(ctx context.Context, event events.Name, payload interface{}) error
}

// EventPublisher forwards applied changes to systems outside the canvas.
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, events.DomainEvent) error { return nil }
