// Package wire defines the JSON messages exchanged between clients and the hub.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/astromechza/noteboard/pkg/board"
)

const (
	EventInit            = "init"
	EventBootstrap       = "bootstrap"
	EventMoveNote        = "move-note"
	EventAddNote         = "add-note"
	EventChangeNoteLabel = "change-note-label"
	EventDeleteNote      = "delete-note"
	EventStateUpdate     = "state-update"
)

var (
	ErrUnknownEvent     = errors.New("unknown event")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope is one message on the connection. Data is absent for events without a payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type MoveNote struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type ChangeNoteLabel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type DeleteNote struct {
	ID string `json:"id"`
}

// New encodes payload under the given event. A nil payload produces an envelope without data.
func New(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return Envelope{Type: event, Data: raw}, nil
}

// Init asks the hub for the current state.
func Init() Envelope {
	return Envelope{Type: EventInit}
}

func AddNote() Envelope {
	return Envelope{Type: EventAddNote}
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Type, err)
	}
	return nil
}

// State decodes the board carried by a bootstrap or state-update message.
func (e Envelope) State() (board.State, error) {
	switch e.Type {
	case EventBootstrap, EventStateUpdate:
	default:
		return board.State{}, fmt.Errorf("%w: %q does not carry a state", ErrUnknownEvent, e.Type)
	}
	var s board.State
	if err := e.Decode(&s); err != nil {
		return board.State{}, err
	}
	return s, nil
}

// Mutation decodes a client command into the transition it requests. Commands that name no
// note are rejected with ErrMalformedPayload.
func (e Envelope) Mutation() (board.Mutation, error) {
	switch e.Type {
	case EventAddNote:
		return board.AddNote(), nil
	case EventMoveNote:
		var p MoveNote
		if err := e.decodeWithID(&p, &p.ID); err != nil {
			return nil, err
		}
		return board.MoveNote(p.ID, p.X, p.Y), nil
	case EventChangeNoteLabel:
		var p ChangeNoteLabel
		if err := e.decodeWithID(&p, &p.ID); err != nil {
			return nil, err
		}
		return board.SetLabel(p.ID, p.Label), nil
	case EventDeleteNote:
		var p DeleteNote
		if err := e.decodeWithID(&p, &p.ID); err != nil {
			return nil, err
		}
		return board.DeleteNote(p.ID), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
}

func (e Envelope) decodeWithID(v any, id *string) error {
	if err := e.Decode(v); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: %s without id", ErrMalformedPayload, e.Type)
	}
	return nil
}
