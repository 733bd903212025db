// Package events names the notifications broadcast to sessions and the
// envelope used when they leave the process.
//
// DeleteNote and RemoveNoteConnection carry an object, {"id":N}, not a bare
// id; clients written against a bare-id payload must read data.id.
package events

import (
	"time"
)

// Name identifies a broadcast event.
type Name string

const (
	ReceiveNote           Name = "ReceiveNote"
	UpdateNote            Name = "UpdateNote"
	DeleteNote            Name = "DeleteNote"
	MoveNote              Name = "MoveNote"
	ReceiveNoteConnection Name = "ReceiveNoteConnection"
	RemoveNoteConnection  Name = "RemoveNoteConnection"

	// Error is sent only to the session whose intent failed.
	Error Name = "Error"
	// Pong answers a client Ping.
	Pong Name = "Pong"
)

func (n Name) String() string { return string(n) }

// DeletedPayload is the DeleteNote payload.
type DeletedPayload struct {
	ID int64 `json:"id"`
}

// MovedPayload is the MoveNote payload.
type MovedPayload struct {
	ID int64   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// RemovedConnectionPayload is the RemoveNoteConnection payload.
type RemovedConnectionPayload struct {
	ID int64 `json:"id"`
}

// ErrorPayload describes a failed intent to its sender.
type ErrorPayload struct {
	Intent    string `json:"intent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
}

// DomainEvent is the envelope published to external consumers for every
// applied change.
type DomainEvent struct {
	EventID    string      `json:"eventId"`
	EventType  Name        `json:"eventType"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

func NewDomainEvent(id string, name Name, payload interface{}, at time.Time) DomainEvent {
	return DomainEvent{
		EventID:    id,
		EventType:  name,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}
