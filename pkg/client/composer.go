package client

import (
	"context"
	"strings"
	"time"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/wire"
)

// Transition is one named step of the client state.
type Transition struct {
	Name  string
	Apply board.ViewMutation
}

const (
	TransitionBootstrap   = "bootstrap"
	TransitionMoveNote    = "move-note"
	TransitionAddNote     = "add-note"
	TransitionSetLabel    = "set-label"
	TransitionDeleteNote  = "delete-note"
	TransitionSetEditing  = "set-editing"
	TransitionSetDragging = "set-dragging"
)

// Sources are the independently timed inputs of a board view. Any of them may be nil.
type Sources struct {
	Pointer <-chan PointerEvent
	// EditStart carries the id of a note whose edit button was pressed. The view holds the
	// sending half.
	EditStart <-chan string
	Edit      <-chan EditEvent
	Buttons   <-chan ButtonEvent
	// Server carries messages pushed by the hub.
	Server <-chan wire.Envelope
}

// gesture lives from a pointer-down on a note until the next pointer-up.
type gesture struct {
	noteID  string
	sampled bool
	last    board.Position
}

// debounce fires once its duration has passed without another arm.
type debounce struct {
	d     time.Duration
	timer *time.Timer
	c     <-chan time.Time
}

func (d *debounce) arm() {
	if d.timer == nil {
		d.timer = time.NewTimer(d.d)
	} else {
		d.timer.Reset(d.d)
	}
	d.c = d.timer.C
}

func (d *debounce) fired() {
	d.c = nil
}

func (d *debounce) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.c = nil
}

// Composer merges the view sources into one ordered stream of transitions plus the commands
// that must reach the hub.
type Composer struct {
	opts        Options
	src         Sources
	transitions chan Transition
	commands    chan wire.Envelope

	drag        *gesture
	pendingMove *wire.MoveNote
	moveQuiet   debounce
	editSettle  debounce
}

func NewComposer(src Sources, opts Options) *Composer {
	opts = opts.withDefaults()
	return &Composer{
		opts:        opts,
		src:         src,
		transitions: make(chan Transition, 256),
		commands:    make(chan wire.Envelope, opts.CommandBuffer),
		moveQuiet:   debounce{d: opts.MoveQuiet},
		editSettle:  debounce{d: opts.EditSettle},
	}
}

// Transitions is closed when Run returns.
func (c *Composer) Transitions() <-chan Transition {
	return c.transitions
}

// Commands carries outbound wire messages. It is never closed.
func (c *Composer) Commands() <-chan wire.Envelope {
	return c.commands
}

// Run consumes the sources until ctx is cancelled. Each event is handled to completion before
// the next is taken, which fixes the order of the transition stream.
func (c *Composer) Run(ctx context.Context) error {
	defer close(c.transitions)
	defer c.moveQuiet.stop()
	defer c.editSettle.stop()

	src := c.src
	for {
		var err error
		select {
		case ev, ok := <-src.Pointer:
			if !ok {
				src.Pointer = nil
				continue
			}
			err = c.onPointer(ctx, ev)
		case id, ok := <-src.EditStart:
			if !ok {
				src.EditStart = nil
				continue
			}
			err = c.emit(ctx, TransitionSetEditing, board.SetEditing(id))
		case ev, ok := <-src.Edit:
			if !ok {
				src.Edit = nil
				continue
			}
			err = c.onEdit(ctx, ev)
		case ev, ok := <-src.Buttons:
			if !ok {
				src.Buttons = nil
				continue
			}
			err = c.onButton(ctx, ev)
		case env, ok := <-src.Server:
			if !ok {
				src.Server = nil
				continue
			}
			err = c.onServer(ctx, env)
		case <-c.moveQuiet.c:
			c.moveQuiet.fired()
			c.flushMove()
		case <-c.editSettle.c:
			c.editSettle.fired()
			err = c.emit(ctx, TransitionSetEditing, board.SetEditing(""))
		case <-ctx.Done():
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Composer) onPointer(ctx context.Context, ev PointerEvent) error {
	switch ev := ev.(type) {
	case PointerDown:
		c.drag = &gesture{noteID: ev.NoteID}
	case PointerMove:
		if c.drag == nil {
			return nil
		}
		return c.sample(ctx, board.Position{
			X: ev.X - c.opts.NoteWidth/2,
			Y: ev.Y - c.opts.NoteHeight/2,
		})
	case PointerUp:
		c.drag = nil
		return c.emit(ctx, TransitionSetDragging, board.SetDragging(""))
	}
	return nil
}

func (c *Composer) sample(ctx context.Context, pos board.Position) error {
	g := c.drag
	if g.sampled && g.last == pos {
		return nil
	}
	first := !g.sampled
	g.sampled, g.last = true, pos

	if first {
		if err := c.emit(ctx, TransitionSetDragging, board.SetDragging(g.noteID)); err != nil {
			return err
		}
	}
	if err := c.emit(ctx, TransitionMoveNote, board.Lift(board.MoveNote(g.noteID, pos.X, pos.Y))); err != nil {
		return err
	}
	// Only the latest position per note may be throttled away.
	if c.pendingMove != nil && c.pendingMove.ID != g.noteID {
		c.flushMove()
	}
	c.pendingMove = &wire.MoveNote{ID: g.noteID, X: pos.X, Y: pos.Y}
	c.moveQuiet.arm()
	return nil
}

func (c *Composer) flushMove() {
	if c.pendingMove == nil {
		return
	}
	p := *c.pendingMove
	c.pendingMove = nil
	c.send(wire.EventMoveNote, p)
}

func (c *Composer) onEdit(ctx context.Context, ev EditEvent) error {
	if blur, ok := ev.(EditBlur); ok {
		text := strings.TrimSpace(blur.Text)
		if blur.NoteID != "" && text != "" {
			if err := c.emit(ctx, TransitionSetLabel, board.Lift(board.SetLabel(blur.NoteID, text))); err != nil {
				return err
			}
			c.send(wire.EventChangeNoteLabel, wire.ChangeNoteLabel{ID: blur.NoteID, Label: text})
		}
	}
	c.editSettle.arm()
	return nil
}

func (c *Composer) onButton(ctx context.Context, ev ButtonEvent) error {
	switch ev := ev.(type) {
	case AddClick:
		if err := c.emit(ctx, TransitionAddNote, board.Lift(board.AddNote())); err != nil {
			return err
		}
		c.send(wire.EventAddNote, nil)
	case DeleteClick:
		if err := c.emit(ctx, TransitionDeleteNote, board.Lift(board.DeleteNote(ev.NoteID))); err != nil {
			return err
		}
		c.send(wire.EventDeleteNote, wire.DeleteNote{ID: ev.NoteID})
	}
	return nil
}

func (c *Composer) onServer(ctx context.Context, env wire.Envelope) error {
	s, err := env.State()
	if err != nil {
		c.opts.Logger.Warn("ignoring server message", "event", env.Type, "err", err)
		return nil
	}
	return c.emit(ctx, TransitionBootstrap, board.ApplyBootstrap(s))
}

func (c *Composer) emit(ctx context.Context, name string, m board.ViewMutation) error {
	select {
	case c.transitions <- Transition{Name: name, Apply: m}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send hands a command to the transport without waiting. Commands that do not fit are lost,
// the next broadcast reconciles the view.
func (c *Composer) send(event string, payload any) {
	env, err := wire.New(event, payload)
	if err != nil {
		c.opts.Logger.Error("failed to encode command", "event", event, "err", err)
		return
	}
	select {
	case c.commands <- env:
	default:
		c.opts.Logger.Warn("command queue full, dropping command", "event", event)
	}
}
