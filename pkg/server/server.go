// Package server exposes the hub over HTTP: a websocket endpoint for board clients plus a few
// read-only endpoints for inspection.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astromechza/noteboard/pkg/board"
	"github.com/astromechza/noteboard/pkg/hub"
	"github.com/astromechza/noteboard/pkg/journal"
	"github.com/astromechza/noteboard/pkg/wire"
)

const (
	defaultSendBuffer   = 16
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

// Hub is the part of *hub.Hub the server drives.
type Hub interface {
	Join(ctx context.Context, p hub.Peer) error
	Leave(ctx context.Context, p hub.Peer) error
	Submit(ctx context.Context, p hub.Peer, env wire.Envelope) error
	Snapshot(ctx context.Context) (board.State, error)
}

// JournalReader lists applied commands.
type JournalReader interface {
	Since(ctx context.Context, seq int64, limit int) ([]journal.Entry, error)
}

type Option func(*Server)

func WithJournal(j JournalReader) Option {
	return func(s *Server) { s.journal = j }
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithSendBuffer bounds the messages queued for one connection.
func WithSendBuffer(n int) Option {
	return func(s *Server) { s.sendBuffer = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

type Server struct {
	hub        Hub
	journal    JournalReader
	gatherer   prometheus.Gatherer
	sendBuffer int
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func New(h Hub, opts ...Option) *Server {
	s := &Server{
		hub:        h,
		sendBuffer: defaultSendBuffer,
		logger:     slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/board/state").HandlerFunc(s.getState)
	r.Methods(http.MethodGet).Path("/board/sync").HandlerFunc(s.syncBoard)
	if s.journal != nil {
		r.Methods(http.MethodGet).Path("/board/journal").HandlerFunc(s.getJournal)
	}
	if s.gatherer != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) getState(writer http.ResponseWriter, request *http.Request) {
	state, err := s.hub.Snapshot(request.Context())
	if err != nil {
		s.logger.Error("failed to snapshot", "err", err)
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(writer, state)
}

func (s *Server) getJournal(writer http.ResponseWriter, request *http.Request) {
	since, err := queryInt(request, "since", 0)
	if err != nil || since < 0 {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	limit, err := queryInt(request, "limit", defaultJournalLimit)
	if err != nil || limit <= 0 {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	entries, err := s.journal.Since(request.Context(), since, int(limit))
	if err != nil {
		s.logger.Error("failed to read journal", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeJSON(writer, entries)
}

func (s *Server) writeJSON(writer http.ResponseWriter, v any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func queryInt(request *http.Request, key string, fallback int64) (int64, error) {
	raw := request.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
