package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doc(nodes []NodeSpec, conns ...ConnectionSpec) *Document {
	return &Document{Nodes: nodes, Connections: conns}
}

func TestDiff(t *testing.T) {
	base := []NodeSpec{
		{ID: "a", Name: "constant", Data: NodeData{Properties: map[string]any{"value": 1}}},
		{ID: "b", Name: "logic"},
		{ID: "c", Name: "delay"},
	}

	tests := []struct {
		name string
		old  *Document
		new  *Document
		want *DocumentDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  doc(base),
			want: &DocumentDiff{Added: []string{"a", "b", "c"}},
		},
		{
			name: "No Changes",
			old:  doc(base),
			new:  doc(base),
			want: &DocumentDiff{Kept: []string{"a", "b", "c"}},
		},
		{
			name: "Number Types Do Not Count As Changes",
			old:  doc(base),
			new: doc([]NodeSpec{
				{ID: "a", Name: "constant", Data: NodeData{Properties: map[string]any{"value": json.Number("1")}}},
				{ID: "b", Name: "logic"},
				{ID: "c", Name: "delay"},
			}),
			want: &DocumentDiff{Kept: []string{"a", "b", "c"}},
		},
		{
			name: "Add Remove Retype Reconfigure",
			old:  doc(base),
			new: doc([]NodeSpec{
				{ID: "a", Name: "constant", Data: NodeData{Properties: map[string]any{"value": 2}}},
				{ID: "b", Name: "time_window"},
				{ID: "d", Name: "actuator"},
			}),
			want: &DocumentDiff{
				Added:        []string{"d"},
				Removed:      []string{"c"},
				Retyped:      []string{"b"},
				Reconfigured: []string{"a"},
			},
		},
		{
			name: "Connections",
			old:  doc(base, ConnectionSpec{Source: "a", SourceOutput: "value", Target: "b", TargetInput: "in"}),
			new:  doc(base, ConnectionSpec{Source: "a", SourceOutput: "value", Target: "c", TargetInput: "in"}),
			want: &DocumentDiff{
				Kept:               []string{"a", "b", "c"},
				ConnectionsAdded:   1,
				ConnectionsRemoved: 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiff_IsEmpty(t *testing.T) {
	d := Diff(doc([]NodeSpec{{ID: "a", Name: "x"}}), doc([]NodeSpec{{ID: "a", Name: "x"}}))
	assert.True(t, d.IsEmpty())

	d = Diff(nil, doc([]NodeSpec{{ID: "a", Name: "x"}}))
	assert.False(t, d.IsEmpty())
}

func TestParseDocument(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		raw := `{"nodes":[{"id":"n1","name":"constant","label":"On","data":{"properties":{"value":true}}}],
			"connections":[{"source":"n1","sourceOutput":"value","target":"n2","targetInput":"in"}]}`
		d, err := ParseDocument([]byte(raw))
		assert.NoError(t, err)
		assert.Len(t, d.Nodes, 1)
		assert.Equal(t, "On", d.Nodes[0].Label)
		assert.Equal(t, true, d.Nodes[0].Data.Properties["value"])
		assert.Len(t, d.Connections, 1, "dangling connections are kept until the model is built")
	})

	failures := map[string]string{
		"empty":        "  ",
		"bad json":     `{"nodes": [`,
		"missing id":   `{"nodes":[{"name":"constant"}]}`,
		"missing type": `{"nodes":[{"id":"a"}]}`,
		"duplicate id": `{"nodes":[{"id":"a","name":"x"},{"id":"a","name":"y"}]}`,
	}
	for name, raw := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDocument([]byte(raw))
			assert.ErrorIs(t, err, ErrGraphLoad)
			assert.True(t, strings.HasPrefix(err.Error(), "graph load error"))
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(1, 1.0))
	assert.True(t, ValuesEqual(json.Number("128"), 128))
	assert.True(t, ValuesEqual("on", true))
	assert.True(t, ValuesEqual([]any{10, 20.0}, []float64{10, 20}))
	assert.False(t, ValuesEqual(true, false))
	assert.False(t, ValuesEqual(100, 101))
	assert.False(t, ValuesEqual(nil, 0))
	assert.True(t, ValuesEqual(nil, nil))
}

func TestAttributes_Diff(t *testing.T) {
	expected := Attributes{AttrOn: true, AttrBrightness: 200, AttrHSColor: []any{120, 100}}
	actual := Attributes{AttrOn: true, AttrBrightness: 40, AttrHSColor: []any{10, 100}}

	assert.Equal(t, []string{AttrBrightness, AttrHSColor}, expected.Diff(actual, nil))
	assert.Empty(t, expected.Diff(actual, ColorKeys))
	assert.Equal(t, []string{AttrOn}, Attributes{AttrOn: true}.Diff(Attributes{}, ColorKeys))
}
