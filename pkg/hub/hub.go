// Package hub owns the canonical board and serialises every command applied to it. All state
// lives inside the Run loop; callers only talk to it through channels.
package hub

import (
	"context"
	"errors"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/metrics"
	"github.com/astromechza/noteboard/pkg/wire"
)

// ErrStopped is returned once the Run loop has exited.
var ErrStopped = errors.New("hub stopped")

// Peer is one connected client.
type Peer interface {
	ID() string
	// Send queues a message without blocking and reports whether it was accepted.
	Send(wire.Envelope) bool
}

// Journal receives every applied command.
type Journal interface {
	Append(ctx context.Context, event string, payload []byte) (int64, error)
}

// Recorder receives every canonical state produced by a command.
type Recorder interface {
	Record(event string, s board.State) error
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithJournal(j Journal) Option {
	return func(h *Hub) { h.journal = j }
}

func WithRecorder(r Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

func WithMetrics(m *metrics.Hub) Option {
	return func(h *Hub) { h.metrics = m }
}

type command struct {
	peer  Peer
	env   wire.Envelope
	reply chan<- board.State
}

type Hub struct {
	seed     board.State
	logger   *slog.Logger
	journal  Journal
	recorder Recorder
	metrics  *metrics.Hub

	join     chan Peer
	leave    chan Peer
	commands chan command
	done     chan struct{}
}

// New creates a hub whose canonical state starts as seed. Call Run to start processing.
func New(seed board.State, opts ...Option) *Hub {
	h := &Hub{
		seed:     seed.Normalized(),
		logger:   slog.Default(),
		join:     make(chan Peer),
		leave:    make(chan Peer),
		commands: make(chan command, 64),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.NewHub(prometheus.NewRegistry())
	}
	return h
}

// Run processes joins, leaves and commands one at a time until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	state := h.seed
	peers := mapset.NewThreadUnsafeSet[Peer]()
	if h.recorder != nil {
		if err := h.recorder.Record("seed", state); err != nil {
			h.logger.Error("failed to record seed", "err", err)
		}
	}

	for {
		select {
		case p := <-h.join:
			if peers.Add(p) {
				h.metrics.Peers.Set(float64(peers.Cardinality()))
				h.logger.Info("peer joined", "peer", p.ID(), "peers", peers.Cardinality())
			}
		case p := <-h.leave:
			if peers.Contains(p) {
				peers.Remove(p)
				h.metrics.Peers.Set(float64(peers.Cardinality()))
				h.logger.Info("peer left", "peer", p.ID(), "peers", peers.Cardinality())
			}
		case c := <-h.commands:
			if c.reply != nil {
				c.reply <- state
				continue
			}
			state = h.handle(ctx, state, peers, c)
		case <-ctx.Done():
			h.logger.Info("stopping hub", "peers", peers.Cardinality())
			return ctx.Err()
		}
	}
}

func (h *Hub) handle(ctx context.Context, state board.State, peers mapset.Set[Peer], c command) board.State {
	if c.env.Type == wire.EventInit {
		env, err := wire.New(wire.EventBootstrap, state)
		if err != nil {
			h.logger.Error("failed to encode bootstrap", "err", err)
			return state
		}
		h.deliver(c.peer, env)
		return state
	}

	mutation, err := c.env.Mutation()
	if err != nil {
		h.metrics.Rejected.WithLabelValues(eventLabel(c.env.Type)).Inc()
		h.logger.Warn("dropping command", "peer", c.peer.ID(), "event", c.env.Type, "err", err)
		return state
	}
	next := mutation(state)
	h.metrics.Commands.WithLabelValues(eventLabel(c.env.Type)).Inc()
	h.logger.Debug("applied command", "peer", c.peer.ID(), "event", c.env.Type, "notes", len(next.Notes))

	if h.journal != nil {
		if _, err := h.journal.Append(ctx, c.env.Type, c.env.Data); err != nil {
			h.logger.Error("failed to journal command", "event", c.env.Type, "err", err)
		}
	}
	if h.recorder != nil {
		if err := h.recorder.Record(c.env.Type, next); err != nil {
			h.logger.Error("failed to record state", "event", c.env.Type, "err", err)
		}
	}

	env, err := wire.New(wire.EventStateUpdate, next)
	if err != nil {
		h.logger.Error("failed to encode state update", "err", err)
		return next
	}
	h.metrics.Broadcasts.Inc()
	peers.Each(func(p Peer) bool {
		h.deliver(p, env)
		return false
	})
	return next
}

// eventLabel keeps metric label values to the fixed set of command names since the type comes
// straight from the peer.
func eventLabel(event string) string {
	switch event {
	case wire.EventInit, wire.EventMoveNote, wire.EventAddNote, wire.EventChangeNoteLabel, wire.EventDeleteNote:
		return event
	}
	return "unknown"
}

func (h *Hub) deliver(p Peer, env wire.Envelope) {
	if !p.Send(env) {
		h.metrics.Dropped.Inc()
		h.logger.Warn("peer queue full, dropping message", "peer", p.ID(), "event", env.Type)
	}
}

// Join adds p to the broadcast set.
func (h *Hub) Join(ctx context.Context, p Peer) error {
	return send(ctx, h, h.join, p)
}

// Leave removes p from the broadcast set. Unknown peers are ignored.
func (h *Hub) Leave(ctx context.Context, p Peer) error {
	return send(ctx, h, h.leave, p)
}

// Submit queues a command from p. Commands are applied in the order they are queued.
func (h *Hub) Submit(ctx context.Context, p Peer, env wire.Envelope) error {
	return send(ctx, h, h.commands, command{peer: p, env: env})
}

// Snapshot returns the canonical state as of every command queued before the call.
func (h *Hub) Snapshot(ctx context.Context) (board.State, error) {
	reply := make(chan board.State, 1)
	if err := send(ctx, h, h.commands, command{reply: reply}); err != nil {
		return board.State{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return board.State{}, ErrStopped
	case <-ctx.Done():
		return board.State{}, ctx.Err()
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func send[T any](ctx context.Context, h *Hub, ch chan<- T, v T) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case ch <- v:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
