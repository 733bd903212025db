package services

import "notecanvas/domain/events"

// SkipReason says why an intent left the canvas untouched.
type SkipReason string

const (
	ReasonNoteNotFound        SkipReason = "note_not_found"
	ReasonConnectionNotFound  SkipReason = "connection_not_found"
	ReasonSelfConnection      SkipReason = "self_connection"
	ReasonDuplicateConnection SkipReason = "duplicate_connection"
)

// Outcome is the result of one intent: either the event that was broadcast
// with its payload, or the reason nothing happened.
type Outcome struct {
	Event   events.Name `json:"event,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Reason  SkipReason  `json:"reason,omitempty"`
	applied bool
}

func Applied(event events.Name, payload interface{}) Outcome {
	return Outcome{Event: event, Payload: payload, applied: true}
}

func Skipped(reason SkipReason) Outcome {
	return Outcome{Reason: reason}
}

func (o Outcome) IsApplied() bool { return o.applied }

// Status is "applied" or "skipped", used as a metrics label.
func (o Outcome) Status() string {
	if o.applied {
		return "applied"
	}
	return "skipped"
}
