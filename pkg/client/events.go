package client

// PointerEvent is emitted by the board surface: PointerDown, PointerMove or PointerUp.
type PointerEvent interface {
	pointerEvent()
}

// PointerDown is a press on a note.
type PointerDown struct {
	NoteID string
}

// PointerMove reports the cursor position in board-local pixels.
type PointerMove struct {
	X, Y float64
}

type PointerUp struct{}

func (PointerDown) pointerEvent() {}
func (PointerMove) pointerEvent() {}
func (PointerUp) pointerEvent() {}

// EditEvent ends label editing: EditBlur or ContainerClick.
type EditEvent interface {
	editEvent()
}

// EditBlur fires when the label text area loses focus. Text is the raw field value.
type EditBlur struct {
	NoteID string
	Text   string
}

type ContainerClick struct{}

func (EditBlur) editEvent() {}
func (ContainerClick) editEvent() {}

// ButtonEvent is a click on AddClick or DeleteClick.
type ButtonEvent interface {
	buttonEvent()
}

type AddClick struct{}

type DeleteClick struct {
	NoteID string
}

func (AddClick) buttonEvent() {}
func (DeleteClick) buttonEvent() {}
