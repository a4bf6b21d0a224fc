// Package client is the board view engine: it turns UI events into optimistic state transitions
// and hub commands, and folds them together with hub broadcasts into the state to render.
package client

import (
	"context"

	"github.com/sanity-io/litter"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/wire"
)

// Client wires a Composer, an Engine and a Session. The exported channels are the sending
// halves held by the view layer.
type Client struct {
	Pointer   chan<- PointerEvent
	EditStart chan<- string
	Edit      chan<- EditEvent
	Buttons   chan<- ButtonEvent

	opts     Options
	composer *Composer
	engine   *Engine
	session  *Session
	states   chan board.ViewState
}

// New prepares a client for the hub websocket at url.
func New(url string, opts Options) *Client {
	opts = opts.withDefaults()
	pointer := make(chan PointerEvent)
	editStart := make(chan string)
	edit := make(chan EditEvent)
	buttons := make(chan ButtonEvent)
	server := make(chan wire.Envelope)

	composer := NewComposer(Sources{
		Pointer:   pointer,
		EditStart: editStart,
		Edit:      edit,
		Buttons:   buttons,
		Server:    server,
	}, opts)

	return &Client{
		Pointer:   pointer,
		EditStart: editStart,
		Edit:      edit,
		Buttons:   buttons,
		opts:      opts,
		composer:  composer,
		engine:    NewEngine(board.EmptyView()),
		session:   NewSession(url, server, composer.Commands(), opts.Logger),
		states:    make(chan board.ViewState, 16),
	}
}

// States carries every distinct view state, starting with the empty one.
func (c *Client) States() <-chan board.ViewState {
	return c.states
}

// Run blocks until ctx is cancelled or a component fails.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.composer.Run(gctx)
	})
	g.Go(func() error {
		return c.engine.Run(gctx, c.composer.Transitions(), c.states)
	})
	g.Go(func() error {
		return c.session.Run(gctx)
	})
	return g.Wait()
}

// Dump renders a state for debug logs.
func Dump(s board.ViewState) string {
	return litter.Sdump(s)
}
