package graph

import (
	"fmt"
	"sort"
	"strings"

	model "github.com/aretw0/autotron/internal/graph"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
)

// GraphOverlay contains runtime state to visualize on the graph.
type GraphOverlay struct {
	// Outputs is the last tick's output cache; nodes with a true output are highlighted.
	Outputs map[string]node.Outputs
	// Failed lists nodes whose last compute failed.
	Failed []string
}

// GenerateMermaid produces a Mermaid flowchart from a graph document.
// Node shapes follow the node type:
//   - constant: ((Circle))
//   - logic: {Rhombus}
//   - time_window, delay: ([Stadium])
//   - actuator, color_cycle: [[Subroutine]]
//   - sender, receiver: [/Parallelogram/]
//   - anything else: [Rectangle]
//
// Back-edges (read from the previous tick) are dotted. Dangling connections
// are left out, as the runtime drops them too.
func GenerateMermaid(doc *domain.Document, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	if doc == nil {
		return sb.String()
	}

	for _, n := range doc.Nodes {
		opener, closer := shape(n.Name)
		label := n.ID
		if n.Label != "" {
			label = n.Label
		}
		fmt.Fprintf(&sb, "    %s%s\"%s<br/><i>%s</i>\"%s\n",
			sanitizeMermaidID(n.ID), opener, escape(label), escape(n.Name), closer)
	}

	m := model.Build(doc.Nodes, doc.Connections, nil)
	for _, c := range m.Connections() {
		arrow := "-->"
		if m.IsBackEdge(c) {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "    %s %s|%s → %s| %s\n",
			sanitizeMermaidID(c.Source), arrow, escape(c.SourceOutput), escape(c.TargetInput), sanitizeMermaidID(c.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on light fills in both themes.
		sb.WriteString("    classDef active fill:#fff59d,stroke:#f9a825,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:3px,color:#000;\n")

		var active []string
		for id, outs := range overlay.Outputs {
			for _, v := range outs {
				if v == true {
					active = append(active, id)
					break
				}
			}
		}
		sort.Strings(active)
		for _, id := range active {
			fmt.Fprintf(&sb, "    class %s active;\n", sanitizeMermaidID(id))
		}

		seen := make(map[string]bool)
		for _, id := range overlay.Failed {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s failed;\n", safeID)
			}
		}
	}

	return sb.String()
}

func shape(typeName string) (string, string) {
	switch typeName {
	case "constant":
		return "((", "))"
	case "logic":
		return "{", "}"
	case "time_window", "delay":
		return "([", "])"
	case "actuator", "color_cycle":
		return "[[", "]]"
	case "sender", "receiver":
		return "[/", "/]"
	}
	return "[", "]"
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
