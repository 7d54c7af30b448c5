package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/autotron/internal/presentation/graph"
	"github.com/aretw0/autotron/pkg/domain"
	nodepkg "github.com/aretw0/autotron/pkg/node"
	"github.com/stretchr/testify/assert"
)

func node(id, typeName string) domain.NodeSpec {
	return domain.NodeSpec{ID: id, Name: typeName}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		doc         *domain.Document
		overlay     *graph.GraphOverlay
		contains    []string
		notContains []string
	}{
		{
			name: "Shapes By Type",
			doc: &domain.Document{Nodes: []domain.NodeSpec{
				node("on", "constant"),
				node("gate", "logic"),
				node("evening", "time_window"),
				node("lamp", "actuator"),
				node("tx", "sender"),
				node("custom", "plugin"),
			}},
			contains: []string{
				`on(("on<br/><i>constant</i>"))`,
				`gate{"gate<br/><i>logic</i>"}`,
				`evening(["evening<br/><i>time_window</i>"])`,
				`lamp[["lamp<br/><i>actuator</i>"]]`,
				`tx[/"tx<br/><i>sender</i>"/]`,
				`custom["custom<br/><i>plugin</i>"]`,
			},
		},
		{
			name: "Label And ID Sanitization",
			doc: &domain.Document{Nodes: []domain.NodeSpec{
				{ID: "living-room.lamp", Name: "actuator", Label: `Big "Lamp"`},
			}},
			contains: []string{`living_room_lamp[["Big 'Lamp'<br/><i>actuator</i>"]]`},
		},
		{
			name: "Back Edges Are Dotted And Dangling Dropped",
			doc: &domain.Document{
				Nodes: []domain.NodeSpec{node("a", "logic"), node("b", "logic")},
				Connections: []domain.ConnectionSpec{
					{Source: "a", SourceOutput: "out", Target: "b", TargetInput: "in"},
					{Source: "b", SourceOutput: "out", Target: "a", TargetInput: "in"},
					{Source: "ghost", SourceOutput: "out", Target: "a", TargetInput: "in"},
				},
			},
			contains:    []string{"a -->|out → in| b", "b -.->|out → in| a"},
			notContains: []string{"ghost"},
		},
		{
			name: "Overlay",
			doc:  &domain.Document{Nodes: []domain.NodeSpec{node("a", "constant"), node("b", "logic")}},
			overlay: &graph.GraphOverlay{
				Outputs: map[string]nodepkg.Outputs{"a": {"value": true}, "b": {"out": false}},
				Failed:  []string{"b", "b"},
			},
			contains:    []string{"class a active;", "class b failed;"},
			notContains: []string{"class b active;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(tt.doc, tt.overlay)
			assert.True(t, strings.HasPrefix(out, "graph LR\n"))
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, out, unwanted)
			}
			if tt.overlay != nil {
				assert.Equal(t, 1, strings.Count(out, "class b failed;"))
			}
		})
	}
}

func TestGenerateMermaid_NilDocument(t *testing.T) {
	assert.Equal(t, "graph LR\n", graph.GenerateMermaid(nil, nil))
}
