package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/autotron"
	"github.com/aretw0/autotron/internal/presentation/graph"
	"github.com/aretw0/autotron/pkg/adapters/file"
)

// ErrGraphWarnings is returned in strict mode when a graph loads with
// skipped nodes or dropped connections.
var ErrGraphWarnings = errors.New("graph has warnings")

// Validate builds the document at path the way the runtime would and prints
// the evaluation order and every problem found. Nothing is ticked.
func Validate(ctx context.Context, path string, strict bool, w io.Writer) error {
	doc, err := file.LoadPath(path)
	if err != nil {
		return err
	}

	svc, err := autotron.New()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Load(ctx, doc); err != nil {
		return err
	}
	report, err := svc.Report()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Nodes: %d, connections: %d\n", len(report.Order), svc.Status().ConnectionCount)
	fmt.Fprintf(w, "Evaluation order: %v\n", report.Order)
	for _, c := range report.BackEdges {
		fmt.Fprintf(w, "  back-edge (previous tick): %s\n", c)
	}
	for _, id := range report.Skipped {
		fmt.Fprintf(w, "WARN node %s skipped: unknown type\n", id)
	}
	for _, d := range report.Dropped {
		fmt.Fprintf(w, "WARN connection %s dropped: %s\n", d.Connection, d.Reason)
	}

	warnings := len(report.Skipped) + len(report.Dropped)
	if strict && warnings > 0 {
		return fmt.Errorf("%w: %d", ErrGraphWarnings, warnings)
	}
	return nil
}

// Mermaid renders the document at path as a Mermaid flowchart.
func Mermaid(path string) (string, error) {
	doc, err := file.LoadPath(path)
	if err != nil {
		return "", err
	}
	return graph.GenerateMermaid(doc, nil), nil
}
