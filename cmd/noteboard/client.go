package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/noteboard/pkg/client"
)

var clientFlags struct {
	addr     string
	add      int
	moves    []string
	labels   []string
	deletes  []string
	duration time.Duration
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect a headless board client, optionally perform some edits, and log the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		script, err := parseScript()
		if err != nil {
			return err
		}
		u := url.URL{Scheme: "ws", Host: clientFlags.addr, Path: "/board/sync"}
		return runClient(cmd.Context(), u.String(), script, clientFlags.duration)
	},
}

func init() {
	f := clientCmd.Flags()
	f.StringVar(&clientFlags.addr, "addr", "127.0.0.1:8080", "the address of the hub")
	f.IntVar(&clientFlags.add, "add", 0, "number of notes to add")
	f.StringArrayVar(&clientFlags.moves, "move", nil, "drag a note to a position, as id:x:y")
	f.StringArrayVar(&clientFlags.labels, "label", nil, "edit a note label, as id:text")
	f.StringArrayVar(&clientFlags.deletes, "delete", nil, "delete a note by id")
	f.DurationVar(&clientFlags.duration, "for", 0, "disconnect after this long (0 waits for a signal)")
}

// action feeds one user gesture into the client.
type action func(ctx context.Context, c *client.Client, opts client.Options) error

func parseScript() ([]action, error) {
	var script []action
	for i := 0; i < clientFlags.add; i++ {
		script = append(script, func(ctx context.Context, c *client.Client, _ client.Options) error {
			return sendTo(ctx, c.Buttons, client.ButtonEvent(client.AddClick{}))
		})
	}
	for _, raw := range clientFlags.moves {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid --move %q, expected id:x:y", raw)
		}
		x, errX := strconv.ParseFloat(parts[1], 64)
		y, errY := strconv.ParseFloat(parts[2], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("invalid --move %q, expected numeric x and y", raw)
		}
		id := parts[0]
		script = append(script, func(ctx context.Context, c *client.Client, opts client.Options) error {
			for _, ev := range []client.PointerEvent{
				client.PointerDown{NoteID: id},
				client.PointerMove{X: x + opts.NoteWidth/2, Y: y + opts.NoteHeight/2},
				client.PointerUp{},
			} {
				if err := sendTo(ctx, c.Pointer, ev); err != nil {
					return err
				}
			}
			return nil
		})
	}
	for _, raw := range clientFlags.labels {
		id, text, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --label %q, expected id:text", raw)
		}
		script = append(script, func(ctx context.Context, c *client.Client, _ client.Options) error {
			if err := sendTo(ctx, c.EditStart, id); err != nil {
				return err
			}
			return sendTo(ctx, c.Edit, client.EditEvent(client.EditBlur{NoteID: id, Text: text}))
		})
	}
	for _, id := range clientFlags.deletes {
		script = append(script, func(ctx context.Context, c *client.Client, _ client.Options) error {
			return sendTo(ctx, c.Buttons, client.ButtonEvent(client.DeleteClick{NoteID: id}))
		})
	}
	return script, nil
}

func sendTo[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runClient(ctx context.Context, hubURL string, script []action, duration time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	opts := client.DefaultOptions()
	c := client.New(hubURL, opts)
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()

	scripted := false
	for s := range c.States() {
		slog.Info("board", "notes", len(s.Notes), "boards", len(s.Boards), "editing", s.EditingNoteID, "dragging", s.DraggingNoteID)
		slog.Debug("board state", "state", client.Dump(s))
		if !scripted && len(s.Boards) > 0 {
			scripted = true
			go runScript(ctx, c, opts, script)
		}
	}
	return <-errs
}

func runScript(ctx context.Context, c *client.Client, opts client.Options, script []action) {
	for _, act := range script {
		if err := act(ctx, c, opts); err != nil {
			slog.Error("failed to perform action", "err", err)
			return
		}
	}
	if len(script) > 0 {
		slog.Info("performed actions", "count", len(script))
	}
}
