// Package websocket is the session gateway: it upgrades client connections,
// replays the canvas to each new session, turns inbound frames into intent
// commands and delivers broadcast events back out.
package websocket

import (
	"encoding/json"

	"notecanvas/application/commands"
	"notecanvas/application/commands/bus"
	"notecanvas/application/ports"
	"notecanvas/domain/events"
	pkgerrors "notecanvas/pkg/errors"
)

// Intent types accepted from clients.
const (
	IntentAddNote         = "AddNote"
	IntentUpdateNote      = "UpdateNote"
	IntentDeleteNote      = "DeleteNote"
	IntentMoveNote        = "MoveNote"
	IntentConnectNotes    = "ConnectNotes"
	IntentDisconnectNotes = "DisconnectNotes"
	IntentRequestSnapshot = "RequestSnapshot"
	IntentPing            = "Ping"
)

// Codes carried by Error events for frames that never reached a handler.
const (
	CodeMalformedMessage = "malformed_message"
	CodeUnknownIntent    = "unknown_intent"
	CodeMalformedIntent  = "malformed_intent"
)

// Inbound is a client frame.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeIntent turns a client frame into the command for its intent.
func DecodeIntent(session ports.SessionID, in Inbound) (bus.Command, error) {
	var cmd bus.Command
	var err error

	switch in.Type {
	case IntentAddNote:
		c := commands.AddNoteCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentUpdateNote:
		c := commands.UpdateNoteCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentDeleteNote:
		c := commands.DeleteNoteCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentMoveNote:
		c := commands.MoveNoteCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentConnectNotes:
		c := commands.ConnectNotesCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentDisconnectNotes:
		c := commands.DisconnectNotesCommand{}
		err = unmarshalData(in.Data, &c)
		c.Session = session
		cmd = c
	case IntentRequestSnapshot:
		cmd = commands.RequestSnapshotCommand{Session: session}
	default:
		return nil, pkgerrors.NewValidationError("unknown intent type").
			WithCode(CodeUnknownIntent).
			WithDetails(map[string]interface{}{"type": in.Type})
	}

	if err != nil {
		return nil, pkgerrors.NewValidationError("malformed intent data").
			WithCode(CodeMalformedIntent).
			WithCause(err)
	}
	return cmd, nil
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// ErrorFor describes a failed intent to the session that sent it.
func ErrorFor(in Inbound, err error) events.ErrorPayload {
	payload := events.ErrorPayload{
		Intent:    in.Type,
		RequestID: in.RequestID,
		Type:      string(pkgerrors.ErrorTypeInternal),
		Message:   "internal error",
	}
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		payload.Type = string(appErr.Type)
		payload.Message = appErr.Message
		payload.Code = appErr.Code
	}
	return payload
}
