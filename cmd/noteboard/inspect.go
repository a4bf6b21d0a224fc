package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/astromechza/noteboard/pkg/history"
	"github.com/astromechza/noteboard/pkg/viz"
)

var inspectFlags struct {
	svg string
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <history-file>",
	Short: "Print the revisions in a history dump and the final board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		log, err := history.Load(raw)
		if err != nil {
			return err
		}

		revisions, err := log.Revisions()
		if err != nil {
			return err
		}
		for i, rev := range revisions {
			slog.Info("revision", "i", fmt.Sprintf("%4d", i), "hash", rev.Hash, "actor", rev.Actor, "event", rev.Event, "notes", rev.Notes, "deps", rev.Deps)
		}

		latest, err := log.Latest()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(latest); err != nil {
			return fmt.Errorf("failed to print state: %w", err)
		}

		if inspectFlags.svg != "" {
			if err := viz.RenderToFile(log, inspectFlags.svg); err != nil {
				return err
			}
			slog.Info("rendered", "path", "file://"+inspectFlags.svg)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFlags.svg, "svg", "", "also render the revision graph to this SVG file")
}
