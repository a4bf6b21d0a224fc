package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/noteboard/pkg/wire"
)

const maxMessageSize = 64 << 10

// peer is one websocket connection. The hub writes into outbox; the write pump drains it.
type peer struct {
	id     string
	outbox chan wire.Envelope
}

func (p *peer) ID() string {
	return p.id
}

func (p *peer) Send(env wire.Envelope) bool {
	select {
	case p.outbox <- env:
		return true
	default:
		return false
	}
}

func (s *Server) syncBoard(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	p := &peer{id: uuid.NewString(), outbox: make(chan wire.Envelope, s.sendBuffer)}
	ctx := request.Context()
	if err := s.hub.Join(ctx, p); err != nil {
		s.logger.Error("failed to join hub", "peer", p.id, "err", err)
		return
	}
	defer func() {
		if err := s.hub.Leave(context.WithoutCancel(ctx), p); err != nil {
			s.logger.Debug("failed to leave hub", "peer", p.id, "err", err)
		}
	}()

	if err := s.pump(ctx, conn, p); err != nil {
		s.logger.Info("connection closed", "peer", p.id, "err", err)
	}
}

// pump runs the read and write halves of a connection until either fails or ctx ends.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, p *peer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		for {
			mt, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return errors.New("closed by peer")
				}
				return fmt.Errorf("failed to read message: %w", err)
			}
			if mt != websocket.TextMessage {
				continue
			}
			var env wire.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				s.logger.Warn("dropping undecodable message", "peer", p.id, "err", err)
				continue
			}
			if err := s.hub.Submit(gctx, p, env); err != nil {
				return fmt.Errorf("failed to submit: %w", err)
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case env := <-p.outbox:
				if err := conn.WriteJSON(env); err != nil {
					return fmt.Errorf("failed to write message: %w", err)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})
	return g.Wait()
}
