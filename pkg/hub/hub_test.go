package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/metrics"
	"github.com/astromechza/noteboard/pkg/wire"
)

type fakePeer struct {
	id    string
	inbox chan wire.Envelope
}

func newFakePeer(id string, size int) *fakePeer {
	return &fakePeer{id: id, inbox: make(chan wire.Envelope, size)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(env wire.Envelope) bool {
	select {
	case p.inbox <- env:
		return true
	default:
		return false
	}
}

func (p *fakePeer) next(t *testing.T) wire.Envelope {
	t.Helper()
	select {
	case env := <-p.inbox:
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("peer %s received nothing", p.id)
		return wire.Envelope{}
	}
}

type fakeJournal struct {
	mu     sync.Mutex
	events []string
}

func (j *fakeJournal) Append(_ context.Context, event string, _ []byte) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
	return int64(len(j.events)), nil
}

type fakeRecorder struct {
	events []string
	states []board.State
}

func (r *fakeRecorder) Record(event string, s board.State) error {
	r.events = append(r.events, event)
	r.states = append(r.states, s)
	return nil
}

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := New(board.Seed(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func mustEnv(t *testing.T, event string, payload any) wire.Envelope {
	t.Helper()
	env, err := wire.New(event, payload)
	require.NoError(t, err)
	return env
}

func stateOf(t *testing.T, env wire.Envelope) board.State {
	t.Helper()
	s, err := env.State()
	require.NoError(t, err)
	return s
}

func TestHub_InitRepliesToRequesterOnly(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a, b := newFakePeer("a", 4), newFakePeer("b", 4)
	require.NoError(t, h.Join(ctx, a))
	require.NoError(t, h.Join(ctx, b))

	require.NoError(t, h.Submit(ctx, a, wire.Init()))
	env := a.next(t)
	assert.Equal(t, wire.EventBootstrap, env.Type)
	assert.Equal(t, board.Seed(), stateOf(t, env))

	_, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, b.inbox)
}

func TestHub_AddNoteTwiceBroadcastsToEveryone(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a, b := newFakePeer("a", 4), newFakePeer("b", 4)
	require.NoError(t, h.Join(ctx, a))
	require.NoError(t, h.Join(ctx, b))

	require.NoError(t, h.Submit(ctx, a, wire.AddNote()))
	require.NoError(t, h.Submit(ctx, b, wire.AddNote()))

	for _, p := range []*fakePeer{a, b} {
		first := stateOf(t, p.next(t))
		assert.Len(t, first.Notes, 2)
		assert.Contains(t, first.Notes, "2")

		second := p.next(t)
		assert.Equal(t, wire.EventStateUpdate, second.Type)
		s := stateOf(t, second)
		assert.Len(t, s.Notes, 3)
		for _, id := range []string{"1", "2", "3"} {
			assert.Contains(t, s.Notes, id)
		}
	}
}

func TestHub_MalformedCommandsAreNoops(t *testing.T) {
	m := metrics.NewHub(prometheus.NewRegistry())
	h := startHub(t, WithMetrics(m))
	ctx := context.Background()
	a := newFakePeer("a", 4)
	require.NoError(t, h.Join(ctx, a))

	require.NoError(t, h.Submit(ctx, a, wire.Envelope{Type: wire.EventMoveNote, Data: json.RawMessage(`{"x":1}`)}))
	require.NoError(t, h.Submit(ctx, a, wire.Envelope{Type: wire.EventDeleteNote}))
	require.NoError(t, h.Submit(ctx, a, wire.Envelope{Type: "explode"}))

	s, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, board.Seed(), s)
	assert.Empty(t, a.inbox)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues(wire.EventMoveNote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("unknown")))
}

func TestHub_RejectedEventLabelsStayBounded(t *testing.T) {
	m := metrics.NewHub(prometheus.NewRegistry())
	h := startHub(t, WithMetrics(m))
	ctx := context.Background()
	a := newFakePeer("a", 4)
	require.NoError(t, h.Join(ctx, a))

	for i := 0; i < 200; i++ {
		require.NoError(t, h.Submit(ctx, a, wire.Envelope{Type: "junk-" + strconv.Itoa(i)}))
	}
	require.NoError(t, h.Submit(ctx, a, wire.Envelope{Type: wire.EventBootstrap}))
	_, err := h.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Rejected))
	assert.Equal(t, 201.0, testutil.ToFloat64(m.Rejected.WithLabelValues("unknown")))
	assert.Empty(t, a.inbox)
}

func TestHub_UnknownNoteStillBroadcasts(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a := newFakePeer("a", 4)
	require.NoError(t, h.Join(ctx, a))

	require.NoError(t, h.Submit(ctx, a, mustEnv(t, wire.EventMoveNote, wire.MoveNote{ID: "404", X: 1, Y: 1})))
	assert.Equal(t, board.Seed(), stateOf(t, a.next(t)))
}

func TestHub_DeleteAndLabel(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a := newFakePeer("a", 4)
	require.NoError(t, h.Join(ctx, a))

	require.NoError(t, h.Submit(ctx, a, mustEnv(t, wire.EventChangeNoteLabel, wire.ChangeNoteLabel{ID: "1", Label: "renamed"})))
	assert.Equal(t, "renamed", stateOf(t, a.next(t)).Notes["1"].Label)

	require.NoError(t, h.Submit(ctx, a, mustEnv(t, wire.EventDeleteNote, wire.DeleteNote{ID: "1"})))
	assert.Empty(t, stateOf(t, a.next(t)).Notes)
}

func TestHub_SlowPeerDoesNotBlock(t *testing.T) {
	m := metrics.NewHub(prometheus.NewRegistry())
	h := startHub(t, WithMetrics(m))
	ctx := context.Background()
	stuck, ok := newFakePeer("stuck", 0), newFakePeer("ok", 4)
	require.NoError(t, h.Join(ctx, stuck))
	require.NoError(t, h.Join(ctx, ok))

	require.NoError(t, h.Submit(ctx, ok, wire.AddNote()))
	assert.Len(t, stateOf(t, ok.next(t)).Notes, 2)
	_, err := h.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Peers))
}

func TestHub_LeaveStopsBroadcasts(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()
	a, b := newFakePeer("a", 4), newFakePeer("b", 4)
	require.NoError(t, h.Join(ctx, a))
	require.NoError(t, h.Join(ctx, b))
	require.NoError(t, h.Leave(ctx, b))
	require.NoError(t, h.Leave(ctx, b))

	require.NoError(t, h.Submit(ctx, a, wire.AddNote()))
	a.next(t)
	assert.Empty(t, b.inbox)
}

func TestHub_ConcurrentAddsNeverCollide(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.Submit(ctx, newFakePeer(strconv.Itoa(i), 0), wire.AddNote()))
		}(i)
	}
	wg.Wait()

	s, err := h.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, s.Notes, 21)
	for i := 1; i <= 21; i++ {
		assert.Contains(t, s.Notes, strconv.Itoa(i))
	}
}

func TestHub_JournalsAndRecords(t *testing.T) {
	j, r := &fakeJournal{}, &fakeRecorder{}
	h := startHub(t, WithJournal(j), WithRecorder(r))
	ctx := context.Background()
	a := newFakePeer("a", 4)

	require.NoError(t, h.Submit(ctx, a, wire.Init()))
	require.NoError(t, h.Submit(ctx, a, wire.AddNote()))
	require.NoError(t, h.Submit(ctx, a, mustEnv(t, wire.EventDeleteNote, wire.DeleteNote{ID: "1"})))
	s, err := h.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{wire.EventAddNote, wire.EventDeleteNote}, j.events)
	assert.Equal(t, []string{"seed", wire.EventAddNote, wire.EventDeleteNote}, r.events)
	assert.Equal(t, s, r.states[len(r.states)-1])
}

func TestHub_StoppedHubRejects(t *testing.T) {
	h := New(board.Seed())
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- h.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	assert.ErrorIs(t, h.Submit(context.Background(), newFakePeer("a", 1), wire.AddNote()), ErrStopped)
	_, err := h.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
