package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTick      EventType = "tick"
	EventNodeError EventType = "node_error"
	EventCommand   EventType = "command"
	EventAudit     EventType = "audit"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// TickEvent is emitted after every completed tick.
type TickEvent struct {
	EventBase
	TickCount uint64        `json:"tick_count"`
	NodeCount int           `json:"node_count"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// NodeErrorEvent is emitted when a node fails during a tick.
type NodeErrorEvent struct {
	EventBase
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	Err      error  `json:"-"`
}

// CommandEvent is emitted whenever a node asks for a device command,
// whether it was dispatched, suppressed or failed at the boundary.
type CommandEvent struct {
	EventBase
	CommandID    string  `json:"command_id,omitempty"`
	Command      Command `json:"command"`
	SourceNodeID string  `json:"source_node_id"`
	Suppressed   bool    `json:"suppressed,omitempty"`
	Retry        bool    `json:"retry,omitempty"`
	Err          error   `json:"-"`
}

// AuditEvent is emitted after each audit pass.
type AuditEvent struct {
	EventBase
	Report AuditReport `json:"report"`
}

// LifecycleHooks defines callbacks for runtime observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnTick      func(context.Context, *TickEvent)
	OnNodeError func(context.Context, *NodeErrorEvent)
	OnCommand   func(context.Context, *CommandEvent)
	OnAudit     func(context.Context, *AuditEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTick:      chain(h.OnTick, other.OnTick),
		OnNodeError: chain(h.OnNodeError, other.OnNodeError),
		OnCommand:   chain(h.OnCommand, other.OnCommand),
		OnAudit:     chain(h.OnAudit, other.OnAudit),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
