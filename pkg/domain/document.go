package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the persisted form of a node graph.
// It is the JSON shape saved by the editor and loaded by the runtime.
type Document struct {
	Nodes       []NodeSpec       `json:"nodes"`
	Connections []ConnectionSpec `json:"connections"`
}

// NodeSpec describes one node instance in a Document.
type NodeSpec struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"` // node type name
	Label string   `json:"label,omitempty"`
	Data  NodeData `json:"data"`
}

// NodeData carries the persisted properties of a node.
type NodeData struct {
	Properties map[string]any `json:"properties,omitempty"`
}

// ConnectionSpec wires an output port of one node to an input port of another.
type ConnectionSpec struct {
	Source       string `json:"source"`
	SourceOutput string `json:"sourceOutput"`
	Target       string `json:"target"`
	TargetInput  string `json:"targetInput"`
}

// String renders the connection as "source.out -> target.in".
func (c ConnectionSpec) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.Source, c.SourceOutput, c.Target, c.TargetInput)
}

// ParseDocument decodes and validates a graph document.
// Structural problems (bad JSON, missing or duplicate node ids, missing type names)
// are reported as a *GraphLoadError. Dangling connections are not an error here;
// they are dropped when the graph model is built.
func ParseDocument(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &GraphLoadError{Reason: "empty document"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &GraphLoadError{Reason: "invalid json", Err: err}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the structural integrity of the document.
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			return &GraphLoadError{Reason: fmt.Sprintf("node #%d has no id", i)}
		}
		if n.Name == "" {
			return &GraphLoadError{Reason: fmt.Sprintf("node %q has no type name", n.ID)}
		}
		if _, dup := seen[n.ID]; dup {
			return &GraphLoadError{Reason: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		seen[n.ID] = struct{}{}
	}
	return nil
}

// Marshal encodes the document with stable indentation, as written to disk.
func (d *Document) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Clone returns a deep copy of the document.
// Property maps are copied through a JSON round trip so callers can mutate freely.
func (d *Document) Clone() (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to clone document: %w", err)
	}
	var out Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to clone document: %w", err)
	}
	return &out, nil
}

// Node returns the NodeSpec with the given id.
func (d *Document) Node(id string) (NodeSpec, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}
