package client

import (
	"context"

	"github.com/google/go-cmp/cmp"

	"github.com/astromechza/noteboard/pkg/board"
)

// Engine folds transitions over a view state. It is not safe for concurrent use; Run owns it
// while running.
type Engine struct {
	state board.ViewState
}

func NewEngine(initial board.ViewState) *Engine {
	return &Engine{state: initial}
}

// Apply folds one mutation in and reports whether the state changed structurally.
func (e *Engine) Apply(m board.ViewMutation) (board.ViewState, bool) {
	next := m(e.state)
	if cmp.Equal(next, e.state) {
		return e.state, false
	}
	e.state = next
	return next, true
}

func (e *Engine) State() board.ViewState {
	return e.state
}

// Run emits the initial state, then every distinct state produced by folding in. It returns
// when in is closed or ctx is cancelled, closing out.
func (e *Engine) Run(ctx context.Context, in <-chan Transition, out chan<- board.ViewState) error {
	defer close(out)
	if !publish(ctx, out, e.state) {
		return nil
	}
	for {
		select {
		case t, ok := <-in:
			if !ok {
				return nil
			}
			next, changed := e.Apply(t.Apply)
			if !changed {
				continue
			}
			if !publish(ctx, out, next) {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func publish(ctx context.Context, out chan<- board.ViewState, s board.ViewState) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
