package events

import (
	"encoding/json"
	"time"
)

// Frame is the wire form of an event delivered to a session.
type Frame struct {
	Type      Name        `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Encode renders an event as a JSON text frame stamped in milliseconds.
func Encode(name Name, payload interface{}, at time.Time) ([]byte, error) {
	return json.Marshal(Frame{Type: name, Data: payload, Timestamp: at.UnixMilli()})
}
