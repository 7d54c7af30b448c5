package dsl

import (
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/nodes"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.NodeSpec
	builder *Builder
}

// Type sets the node type name.
func (n *NodeBuilder) Type(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Label sets the display label.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Set stores a property.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	if n.node.Data.Properties == nil {
		n.node.Data.Properties = make(map[string]any)
	}
	n.node.Data.Properties[key] = value
	return n
}

// To connects an output of this node to target.input.
func (n *NodeBuilder) To(output, target, input string) *NodeBuilder {
	n.builder.Connect(n.node.ID, output, target, input)
	return n
}

// Constant makes the node emit value.
func (n *NodeBuilder) Constant(value any) *NodeBuilder {
	return n.Type(nodes.TypeConstant).Set("value", value)
}

// Logic makes the node a boolean gate (and, or, not, xor).
func (n *NodeBuilder) Logic(op string) *NodeBuilder {
	return n.Type(nodes.TypeLogic).Set("op", op)
}

// TimeWindow makes the node active between start and end (HH:MM).
func (n *NodeBuilder) TimeWindow(start, end string) *NodeBuilder {
	return n.Type(nodes.TypeTimeWindow).Set("start", start).Set("end", end)
}

// Delay makes the node an on-delay of seconds.
func (n *NodeBuilder) Delay(seconds float64) *NodeBuilder {
	return n.Type(nodes.TypeDelay).Set("seconds", seconds)
}

// Actuator makes the node drive entityID.
func (n *NodeBuilder) Actuator(entityID string) *NodeBuilder {
	return n.Type(nodes.TypeActuator).Set("entity_id", entityID)
}

// ColorCycle makes the node rotate the hue of entityIDs while enabled.
func (n *NodeBuilder) ColorCycle(entityIDs ...string) *NodeBuilder {
	return n.Type(nodes.TypeColorCycle).Set("entity_ids", entityIDs)
}

// Sender publishes its input on channel.
func (n *NodeBuilder) Sender(channel string) *NodeBuilder {
	return n.Type(nodes.TypeSender).Set("channel", channel)
}

// Receiver emits the last value published on channel.
func (n *NodeBuilder) Receiver(channel string) *NodeBuilder {
	return n.Type(nodes.TypeReceiver).Set("channel", channel)
}
