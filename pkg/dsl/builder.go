package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/autotron/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	order       []string
	nodes       map[string]*NodeBuilder
	connections []domain.ConnectionSpec
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
// Nodes keep the order they were added in, which is the document order.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.NodeSpec{ID: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Connect wires source.output to target.input.
func (b *Builder) Connect(source, output, target, input string) *Builder {
	b.connections = append(b.connections, domain.ConnectionSpec{
		Source:       source,
		SourceOutput: output,
		Target:       target,
		TargetInput:  input,
	})
	return b
}

// Build compiles the graph into a document. Connections to nodes that were
// never added are reported here rather than silently dropped at load.
func (b *Builder) Build() (*domain.Document, error) {
	doc := &domain.Document{
		Nodes:       make([]domain.NodeSpec, 0, len(b.order)),
		Connections: append([]domain.ConnectionSpec{}, b.connections...),
	}
	for _, id := range b.order {
		doc.Nodes = append(doc.Nodes, b.nodes[id].node)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	for _, c := range doc.Connections {
		for _, id := range []string{c.Source, c.Target} {
			if _, ok := b.nodes[id]; !ok {
				errs = append(errs, fmt.Errorf("connection %s: unknown node %q", c, id))
			}
		}
	}
	if len(errs) > 0 {
		return nil, &domain.GraphLoadError{Reason: "invalid connections", Err: errors.Join(errs...)}
	}

	// Hand out an independent copy so the builder can keep being used.
	return doc.Clone()
}

// MustBuild is Build for graphs known to be valid, such as test fixtures.
func (b *Builder) MustBuild() *domain.Document {
	doc, err := b.Build()
	if err != nil {
		panic(err)
	}
	return doc
}
