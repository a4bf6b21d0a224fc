// Package viz renders the revision graph of a board history as SVG.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/noteboard/pkg/history"
)

// RenderHistory writes one node per revision, labelled with the command that produced it and
// the note count afterwards, with edges from each revision's dependencies.
func RenderHistory(log *history.Log, out io.Writer) error {
	revisions, err := log.Revisions()
	if err != nil {
		return err
	}

	g := graphviz.New()
	defer g.Close()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	nodes := make(map[string]*cgraph.Node, len(revisions))
	edges := 0
	for _, rev := range revisions {
		n, err := graph.CreateNode(rev.Hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(fmt.Sprintf("%s %s@%d\n%s: %d notes", short(rev.Hash), short(rev.Actor), rev.Seq, rev.Event, rev.Notes))
		nodes[rev.Hash] = n

		for _, dep := range rev.Deps {
			parent, ok := nodes[dep]
			if !ok {
				continue
			}
			edges++
			if _, err := graph.CreateEdge(strconv.Itoa(edges), parent, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	if err := g.Render(graph, graphviz.SVG, out); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	return nil
}

// RenderToFile renders the history into outputPath.
func RenderToFile(log *history.Log, outputPath string) error {
	var buff bytes.Buffer
	if err := RenderHistory(log, &buff); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

func short(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
