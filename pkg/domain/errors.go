package domain

import (
	"errors"
	"fmt"
)

// ErrGraphLoad is returned when a graph document is malformed.
// The previously active graph, if any, stays active.
var ErrGraphLoad = errors.New("graph load error")

// ErrUnknownNodeType is returned when a node type name has no registered factory.
var ErrUnknownNodeType = errors.New("unknown node type")

// ErrNodeCompute marks a failure inside a node's Compute call.
var ErrNodeCompute = errors.New("node compute error")

// ErrNoGraphLoaded is returned when the runtime is started without any nodes.
var ErrNoGraphLoaded = errors.New("no graph loaded")

// ErrActuationUnreachable is returned when the actuation boundary cannot answer for an entity.
var ErrActuationUnreachable = errors.New("actuation unreachable")

// ErrGraphNotFound is returned when a stored graph document cannot be found.
var ErrGraphNotFound = errors.New("graph not found")

// ErrInvalidGraphName is returned when a graph is stored under an empty or
// reserved name.
var ErrInvalidGraphName = errors.New("invalid graph name")

// ErrCommandsSuppressed is returned when a node issues a device command while the
// frontend holds actuation.
var ErrCommandsSuppressed = errors.New("device commands suppressed while frontend is active")

// GraphLoadError describes why a document could not be turned into a graph.
type GraphLoadError struct {
	Reason string
	Err    error
}

func (e *GraphLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph load error: %s: %v", e.Reason, e.Err)
	}
	return "graph load error: " + e.Reason
}

func (e *GraphLoadError) Unwrap() error { return e.Err }

// Is reports ErrGraphLoad as a match so callers can use errors.Is.
func (e *GraphLoadError) Is(target error) bool { return target == ErrGraphLoad }

// NodeComputeError wraps a failure (or recovered panic) raised by a node during a tick.
type NodeComputeError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *NodeComputeError) Error() string {
	return fmt.Sprintf("node %s (%s) compute failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeComputeError) Unwrap() error { return e.Err }

// Is reports ErrNodeCompute as a match so callers can use errors.Is.
func (e *NodeComputeError) Is(target error) bool { return target == ErrNodeCompute }
