package client

import (
	"log/slog"
	"time"
)

type Options struct {
	// NoteWidth and NoteHeight are used to centre a dragged note under the cursor.
	NoteWidth  float64
	NoteHeight float64
	// MoveQuiet is how long a drag must rest before its position is sent to the hub.
	MoveQuiet time.Duration
	// EditSettle absorbs a blur and a container click that fire together.
	EditSettle time.Duration
	// CommandBuffer bounds commands waiting for the transport. Extra commands are dropped.
	CommandBuffer int
	Logger        *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		NoteWidth:     60,
		NoteHeight:    60,
		MoveQuiet:     500 * time.Millisecond,
		EditSettle:    20 * time.Millisecond,
		CommandBuffer: 64,
		Logger:        slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NoteWidth == 0 {
		o.NoteWidth = d.NoteWidth
	}
	if o.NoteHeight == 0 {
		o.NoteHeight = d.NoteHeight
	}
	if o.MoveQuiet == 0 {
		o.MoveQuiet = d.MoveQuiet
	}
	if o.EditSettle == 0 {
		o.EditSettle = d.EditSettle
	}
	if o.CommandBuffer == 0 {
		o.CommandBuffer = d.CommandBuffer
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
