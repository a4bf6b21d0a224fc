// Package history keeps every canonical board revision in an automerge document so a running
// hub can be inspected after the fact.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/noteboard/pkg/board"
)

// Log is safe for concurrent use.
type Log struct {
	mu  sync.Mutex
	doc *automerge.Doc
}

func New() *Log {
	return &Log{doc: automerge.New()}
}

// Load restores a log from bytes produced by Save.
func Load(raw []byte) (*Log, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	return &Log{doc: doc}, nil
}

// Record commits s as a new revision, using event as the commit message.
func (l *Log) Record(event string, s board.State) error {
	boards, err := toTree(s.Boards)
	if err != nil {
		return err
	}
	notes, err := toTree(s.Notes)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.doc.Path("boards").Set(boards); err != nil {
		return fmt.Errorf("failed to set boards: %w", err)
	}
	if err := l.doc.Path("notes").Set(notes); err != nil {
		return fmt.Errorf("failed to set notes: %w", err)
	}
	if _, err := l.doc.Commit(event, automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit doc: %w", err)
	}
	return nil
}

// Latest reads back the most recently recorded state.
func (l *Log) Latest() (board.State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return stateOf(l.doc)
}

// Revision describes one recorded change.
type Revision struct {
	Hash  string
	Actor string
	Seq   uint64
	Event string
	At    time.Time
	Deps  []string
	Notes int
}

// Revisions lists every recorded change, oldest first, with the note count at that point.
func (l *Log) Revisions() ([]Revision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	changes, err := l.doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	out := make([]Revision, 0, len(changes))
	for _, change := range changes {
		docAt, err := l.doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		s, err := stateOf(docAt)
		if err != nil {
			return nil, err
		}
		deps := make([]string, 0, len(change.Dependencies()))
		for _, h := range change.Dependencies() {
			deps = append(deps, h.String())
		}
		out = append(out, Revision{
			Hash:  change.Hash().String(),
			Actor: change.ActorID(),
			Seq:   change.ActorSeq(),
			Event: change.Message(),
			At:    change.Timestamp(),
			Deps:  deps,
			Notes: len(s.Notes),
		})
	}
	return out, nil
}

func (l *Log) Save() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doc.Save()
}

// toTree converts a typed value into the plain map form automerge stores.
func toTree(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return out, nil
}

func stateOf(doc *automerge.Doc) (board.State, error) {
	boards, err := automerge.As[map[string]any](doc.Path("boards").Get())
	if err != nil {
		return board.State{}, fmt.Errorf("failed to read boards: %w", err)
	}
	notes, err := automerge.As[map[string]any](doc.Path("notes").Get())
	if err != nil {
		return board.State{}, fmt.Errorf("failed to read notes: %w", err)
	}
	raw, err := json.Marshal(map[string]any{"boards": boards, "notes": notes})
	if err != nil {
		return board.State{}, fmt.Errorf("failed to encode: %w", err)
	}
	s := board.Empty()
	if err := json.Unmarshal(raw, &s); err != nil {
		return board.State{}, fmt.Errorf("failed to decode: %w", err)
	}
	return s.Normalized(), nil
}
