package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/astromechza/noteboard/pkg/config"
	"github.com/astromechza/noteboard/pkg/history"
	"github.com/astromechza/noteboard/pkg/hub"
	"github.com/astromechza/noteboard/pkg/journal"
	"github.com/astromechza/noteboard/pkg/metrics"
	"github.com/astromechza/noteboard/pkg/server"
	"github.com/astromechza/noteboard/pkg/viz"
)

var serveFlags struct {
	config string
	addr   string
	dump   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hub and serve board clients over websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveFlags.config)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveFlags.addr
		}
		if serveFlags.dump {
			cfg.History.Enabled = true
		}
		return serve(cmd.Context(), cfg, serveFlags.dump)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.config, "config", "", "path to a YAML config file")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "localhost:8080", "the address to listen on")
	serveCmd.Flags().BoolVar(&serveFlags.dump, "dump", false, "save the board history and render it on shutdown")
}

func serve(ctx context.Context, cfg config.Config, dump bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Opening journal")
	j, err := journal.Open(ctx, cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer j.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hubOpts := []hub.Option{hub.WithJournal(j), hub.WithMetrics(metrics.NewHub(reg))}
	var hist *history.Log
	if cfg.History.Enabled {
		hist = history.New()
		hubOpts = append(hubOpts, hub.WithRecorder(hist))
	}
	h := hub.New(cfg.SeedState(), hubOpts...)

	srv := server.New(h,
		server.WithJournal(j),
		server.WithGatherer(reg),
		server.WithSendBuffer(cfg.Peer.SendBuffer),
	)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("Listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		return httpServer.Close()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if dump && hist != nil {
		dumpHistory(hist, cfg.History.DumpDir)
	}
	return nil
}

func dumpHistory(hist *history.Log, dir string) {
	stamp := time.Now().Format("20060102-150405")
	tf := filepath.Join(dir, "noteboard-"+stamp+".automerge")
	if err := os.WriteFile(tf, hist.Save(), 0o644); err != nil {
		slog.Error("failed to dump", "err", err)
		return
	}
	slog.Info("dumped", "path", tf)

	svgPath := filepath.Join(dir, "noteboard-"+stamp+".svg")
	if err := viz.RenderToFile(hist, svgPath); err != nil {
		slog.Error("failed to render", "err", err)
		return
	}
	slog.Info("rendered", "path", "file://"+svgPath)
}
