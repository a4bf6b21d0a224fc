package board

// InitialNotePos is where newly added notes appear.
var InitialNotePos = Position{X: 100, Y: 100}

// Mutation is a pure transition of the canonical state. It must return a complete state and
// never modify the maps of its input.
type Mutation func(State) State

// ViewMutation is a pure transition of a client view.
type ViewMutation func(ViewState) ViewState

// Bootstrap replaces boards and notes wholesale.
func Bootstrap(data State) Mutation {
	data = data.Normalized()
	return func(State) State {
		return data
	}
}

// MoveNote sets the position of an existing note. Unknown ids leave the state unchanged.
func MoveNote(id string, x, y float64) Mutation {
	return func(s State) State {
		note, ok := s.Notes[id]
		if !ok {
			return s
		}
		note.Pos = Position{X: x, Y: y}
		notes := s.Notes.clone()
		notes[id] = note
		return State{Boards: s.Boards, Notes: notes}
	}
}

// AddNote inserts an empty note under the next free id.
func AddNote() Mutation {
	return func(s State) State {
		id := NextID(s.Notes)
		notes := s.Notes.clone()
		notes[id] = Note{ID: id, Pos: InitialNotePos}
		return State{Boards: s.Boards, Notes: notes}
	}
}

// SetLabel replaces the label of an existing note. Unknown ids leave the state unchanged.
// Callers trim the text when capturing it.
func SetLabel(id, text string) Mutation {
	return func(s State) State {
		note, ok := s.Notes[id]
		if !ok {
			return s
		}
		note.Label = text
		notes := s.Notes.clone()
		notes[id] = note
		return State{Boards: s.Boards, Notes: notes}
	}
}

// DeleteNote removes a note. Unknown ids leave the state unchanged.
func DeleteNote(id string) Mutation {
	return func(s State) State {
		if !s.Has(id) {
			return s
		}
		notes := s.Notes.clone()
		delete(notes, id)
		return State{Boards: s.Boards, Notes: notes}
	}
}

// Lift runs a canonical mutation against the board part of a view. Editing and dragging ids
// that no longer name a note are cleared afterwards; everything else local survives.
func Lift(m Mutation) ViewMutation {
	return func(v ViewState) ViewState {
		v.State = m(v.State)
		return v.prune()
	}
}

// ApplyBootstrap reconciles a view with a state pushed by the hub.
func ApplyBootstrap(data State) ViewMutation {
	return Lift(Bootstrap(data))
}

// SetEditing selects the note in label-edit mode, or none for "". Asking for the current
// value returns the view untouched.
func SetEditing(id string) ViewMutation {
	return func(v ViewState) ViewState {
		if v.EditingNoteID == id {
			return v
		}
		if id != "" && !v.Has(id) {
			return v
		}
		v.EditingNoteID = id
		return v
	}
}

// SetDragging marks the note being dragged, or none for "".
func SetDragging(id string) ViewMutation {
	return func(v ViewState) ViewState {
		if id != "" && !v.Has(id) {
			return v
		}
		v.DraggingNoteID = id
		return v
	}
}

// Fold applies mutations left to right.
func Fold(initial ViewState, mutations ...ViewMutation) ViewState {
	for _, m := range mutations {
		initial = m(initial)
	}
	return initial
}
