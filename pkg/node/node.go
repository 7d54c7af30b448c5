package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
)

// Inputs holds, per input port, the values of every connection feeding it,
// in connection order.
type Inputs map[string][]any

// Outputs holds the value produced on each output port.
type Outputs map[string]any

// First returns the first value on the port, if any.
func (in Inputs) First(port string) (any, bool) {
	vals := in[port]
	if len(vals) == 0 {
		return nil, false
	}
	return vals[0], true
}

// Node is the contract every node type implements.
//
// Compute is invoked exactly once per tick. It may mutate only its own state and
// must never block on I/O: device calls go through Env.Issue, which returns immediately.
type Node interface {
	Compute(ctx context.Context, in Inputs) (Outputs, error)

	// Serialize returns a JSON-safe snapshot of the persisted properties.
	Serialize() (map[string]any, error)

	// Restore reapplies a snapshot produced by Serialize (or loaded from a document).
	Restore(saved map[string]any) error
}

// Destroyer is implemented by nodes holding timers or subscriptions.
// Destroy is called once, when the node is removed by a reload or on shutdown.
type Destroyer interface {
	Destroy()
}

// PortDeclarer is implemented by nodes with a fixed set of ports.
// Connections to undeclared ports are dropped at load time.
type PortDeclarer interface {
	Ports() (inputs, outputs []string)
}

// EntityReporter is implemented by actuator nodes. It returns the node's own
// per-entity tracked state, which the audit prefers over the command ledger.
type EntityReporter interface {
	TrackedEntities() map[string]domain.Attributes
}

// Env is the runtime context injected into every node at construction.
// It replaces any global engine reference: a node only sees the services below,
// already bound to its own id.
type Env interface {
	NodeID() string
	Logger() *slog.Logger
	Now() time.Time

	// SkipDeviceCommands reports whether a human currently holds the devices
	// through the frontend. Nodes still compute outputs but must not actuate.
	SkipDeviceCommands() bool

	// Issue records the command in the ledger and launches the actuation in the
	// background. It returns the tracked command id, or domain.ErrCommandsSuppressed.
	Issue(cmd domain.Command) (string, error)

	// Lookup returns the ledger entry of a command issued earlier, so a node can
	// observe the outcome of its own actuation on a later tick.
	Lookup(commandID string) (domain.TrackedCommand, bool)

	// Publish stages a value on a named channel. Staged values become visible to
	// Receive on the next tick.
	Publish(channel string, value any)
	Receive(channel string) (any, bool)

	// SetOverride puts an entity under an exclusive override mode (e.g. "color_cycle").
	SetOverride(entityID, mode string)
	ClearOverride(entityID string)

	// NotifyChange signals that the node's properties changed outside of a reload.
	NotifyChange()
}

// Factory builds a fresh, unconfigured node bound to env.
type Factory func(env Env) Node

// Descriptor is what a node type registers.
type Descriptor struct {
	Factory     Factory
	Description string
	// Actuator marks node types that drive devices.
	Actuator bool
}
