// Package board holds the shared note board model and the pure transitions applied to it by
// both the hub and every client.
package board

// Board is a named column that groups notes.
type Board struct {
	Name string `json:"name" yaml:"name"`
}

// Position is the top-left offset of a note in board-local pixels.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Note struct {
	ID    string   `json:"id" yaml:"id"`
	Label string   `json:"label" yaml:"label"`
	Pos   Position `json:"pos" yaml:"pos"`
}

// NoteMap indexes notes by id.
type NoteMap map[string]Note

func (m NoteMap) clone() NoteMap {
	out := make(NoteMap, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// State is the canonical board content. It is what the hub owns and what every broadcast carries.
type State struct {
	Boards map[string]Board `json:"boards" yaml:"boards"`
	Notes  NoteMap          `json:"notes" yaml:"notes"`
}

// Empty returns a state with no boards and no notes.
func Empty() State {
	return State{Boards: map[string]Board{}, Notes: NoteMap{}}
}

// Normalized replaces nil maps so that equality checks never have to tell nil from empty.
func (s State) Normalized() State {
	if s.Boards == nil {
		s.Boards = map[string]Board{}
	}
	if s.Notes == nil {
		s.Notes = NoteMap{}
	}
	return s
}

// Has reports whether a note with the given id exists.
func (s State) Has(id string) bool {
	_, ok := s.Notes[id]
	return ok
}

// ViewState is the client mirror of State plus local-only fields that are never sent to the hub.
// An empty id means no note is being edited or dragged.
type ViewState struct {
	State
	EditingNoteID  string `json:"editingNoteId"`
	DraggingNoteID string `json:"draggingNoteId"`
}

// EmptyView is the state a client starts folding from.
func EmptyView() ViewState {
	return ViewState{State: Empty()}
}

// prune clears local fields that name a note which no longer exists.
func (v ViewState) prune() ViewState {
	if v.EditingNoteID != "" && !v.Has(v.EditingNoteID) {
		v.EditingNoteID = ""
	}
	if v.DraggingNoteID != "" && !v.Has(v.DraggingNoteID) {
		v.DraggingNoteID = ""
	}
	return v
}
