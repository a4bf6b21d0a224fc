package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/noteboard/pkg/wire"
)

// Session keeps one websocket connection to the hub alive, feeding pushed messages to inbox and
// writing queued commands out. Every new connection starts with an init request.
type Session struct {
	url        string
	dialer     *websocket.Dialer
	logger     *slog.Logger
	inbox      chan<- wire.Envelope
	commands   <-chan wire.Envelope
	newBackOff func() backoff.BackOff
}

func NewSession(url string, inbox chan<- wire.Envelope, commands <-chan wire.Envelope, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		url:      url,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		inbox:    inbox,
		commands: commands,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run connects and reconnects until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	b := s.newBackOff()
	for {
		connected, err := s.connectAndSync(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on %s: %w", s.url, err)
		}
		s.logger.Warn("connection lost, retrying", "url", s.url, "err", err, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

func (s *Session) connectAndSync(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()
	s.logger.Info("connected", "url", s.url)

	if err := conn.WriteJSON(wire.Init()); err != nil {
		return true, fmt.Errorf("failed to write init: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		for {
			var env wire.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return fmt.Errorf("failed to read message: %w", err)
			}
			select {
			case s.inbox <- env:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case env := <-s.commands:
				if err := conn.WriteJSON(env); err != nil {
					return fmt.Errorf("failed to write message: %w", err)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})
	return true, g.Wait()
}
