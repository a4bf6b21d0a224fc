package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/client"
	"github.com/astromechza/noteboard/pkg/hub"
	"github.com/astromechza/noteboard/pkg/journal"
	"github.com/astromechza/noteboard/pkg/metrics"
	"github.com/astromechza/noteboard/pkg/wire"
)

type harness struct {
	hub     *hub.Hub
	journal *journal.Journal
	http    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	j, err := journal.Open(ctx, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	h := hub.New(board.Seed(), hub.WithJournal(j), hub.WithMetrics(metrics.NewHub(reg)))
	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewUnstartedServer(New(h, WithJournal(j), WithGatherer(reg)).Router())
	srv.Config.BaseContext = func(_ net.Listener) context.Context { return ctx }
	srv.Start()

	t.Cleanup(func() {
		cancel()
		<-h.Done()
		srv.Close()
		_ = j.Close()
	})
	return &harness{hub: h, journal: j, http: srv}
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/board/sync"
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env wire.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestServer_GetState(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.http.URL + "/board/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s board.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	assert.Equal(t, board.Seed(), s)
}

func TestServer_SyncRoundTrip(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(wire.Init()))
	env := readEnvelope(t, conn)
	require.Equal(t, wire.EventBootstrap, env.Type)

	require.NoError(t, conn.WriteJSON(wire.AddNote()))
	env = readEnvelope(t, conn)
	require.Equal(t, wire.EventStateUpdate, env.Type)
	s, err := env.State()
	require.NoError(t, err)
	assert.Len(t, s.Notes, 2)
}

func TestServer_BroadcastsToOtherConnections(t *testing.T) {
	h := newHarness(t)
	a, b := h.dial(t), h.dial(t)
	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.WriteJSON(wire.Init()))
		require.Equal(t, wire.EventBootstrap, readEnvelope(t, conn).Type)
	}

	move, err := wire.New(wire.EventMoveNote, wire.MoveNote{ID: "1", X: 3, Y: 4})
	require.NoError(t, err)
	require.NoError(t, a.WriteJSON(move))

	for _, conn := range []*websocket.Conn{a, b} {
		s, err := readEnvelope(t, conn).State()
		require.NoError(t, err)
		assert.Equal(t, board.Position{X: 3, Y: 4}, s.Notes["1"].Pos)
	}
}

func TestServer_Journal(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(wire.AddNote()))
	readEnvelope(t, conn)

	resp, err := http.Get(h.http.URL + "/board/journal?since=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []journal.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, wire.EventAddNote, entries[0].Event)

	bad, err := http.Get(h.http.URL + "/board/journal?since=x")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	require.NoError(t, conn.WriteJSON(wire.AddNote()))
	readEnvelope(t, conn)

	resp, err := http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `noteboard_hub_commands_total{event="add-note"} 1`)
	assert.Contains(t, string(body), "noteboard_hub_peers 1")
}

func waitFor(t *testing.T, states <-chan board.ViewState, ok func(board.ViewState) bool) board.ViewState {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-states:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("state never reached")
			return board.ViewState{}
		}
	}
}

func hasNotes(ids ...string) func(board.ViewState) bool {
	return func(s board.ViewState) bool {
		if len(s.Notes) != len(ids) {
			return false
		}
		for _, id := range ids {
			if !s.Has(id) {
				return false
			}
		}
		return true
	}
}

func TestServer_ClientsConverge(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := client.Options{MoveQuiet: 20 * time.Millisecond, EditSettle: 5 * time.Millisecond}
	a, b := client.New(h.wsURL(), opts), client.New(h.wsURL(), opts)
	for _, c := range []*client.Client{a, b} {
		go func(c *client.Client) { _ = c.Run(ctx) }(c)
	}
	waitFor(t, a.States(), hasNotes("1"))
	waitFor(t, b.States(), hasNotes("1"))

	a.Buttons <- client.AddClick{}
	a.Buttons <- client.AddClick{}

	waitFor(t, b.States(), hasNotes("1", "2", "3"))
	final := waitFor(t, a.States(), hasNotes("1", "2", "3"))

	snapshot, err := h.hub.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot, final.State)

	b.EditStart <- "2"
	b.Edit <- client.EditBlur{NoteID: "2", Text: " hello "}
	waitFor(t, a.States(), func(s board.ViewState) bool { return s.Notes["2"].Label == "hello" })
}
