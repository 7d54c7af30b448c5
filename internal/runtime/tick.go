package runtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
)

// Tick evaluates every node once, in topological order. It is a no-op when the
// engine is not running, unless force is set.
func (e *Engine) Tick(ctx context.Context, force bool) error {
	if !force && !e.isRunning() {
		return nil
	}

	e.tickMu.Lock()
	model := e.model
	if model == nil {
		e.tickMu.Unlock()
		return domain.ErrNoGraphLoaded
	}

	start := time.Now()

	e.cacheMu.RLock()
	prev := e.cache
	e.cacheMu.RUnlock()

	current := make(map[string]node.Outputs, len(e.instances))
	var failed []string

	for _, id := range model.Order() {
		inst := e.instances[id]

		in := make(node.Inputs)
		for _, c := range model.Inbound(id) {
			src := current[c.Source]
			if model.IsBackEdge(c) {
				src = prev[c.Source]
			}
			if v, ok := src[c.SourceOutput]; ok && v != nil {
				in[c.TargetInput] = append(in[c.TargetInput], v)
			}
		}

		out, err := e.compute(ctx, inst, in)
		if err != nil {
			failed = append(failed, id)
			e.reportNodeError(ctx, inst, err)
			out = node.Outputs{}
		}
		current[id] = out
	}

	e.commitChannels()

	e.cacheMu.Lock()
	e.cache = current
	e.failed = failed
	e.cacheMu.Unlock()

	e.refreshExpectations(model.Order())

	now := e.now()
	e.stateMu.Lock()
	e.tickCount++
	e.lastTick = now
	count := e.tickCount
	e.stateMu.Unlock()

	nodeCount := len(e.instances)
	e.tickMu.Unlock()

	if e.hooks.OnTick != nil {
		e.hooks.OnTick(ctx, &domain.TickEvent{
			EventBase: domain.EventBase{Timestamp: now, Type: domain.EventTick},
			TickCount: count,
			NodeCount: nodeCount,
			Errors:    len(failed),
			Duration:  time.Since(start),
		})
	}
	if e.dirty.Swap(false) && e.onChange != nil {
		e.onChange()
	}
	return nil
}

// compute runs one node, turning a panic into an error.
func (e *Engine) compute(ctx context.Context, inst *instance, in node.Inputs) (out node.Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Node panic stack", "node_id", inst.spec.ID, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = inst.node.Compute(ctx, in)
	if out == nil && err == nil {
		out = node.Outputs{}
	}
	return out, err
}

func (e *Engine) reportNodeError(ctx context.Context, inst *instance, cause error) {
	err := &domain.NodeComputeError{NodeID: inst.spec.ID, NodeType: inst.spec.Name, Err: cause}
	e.logger.ErrorContext(ctx, "Node compute failed", "node_id", inst.spec.ID, "node_type", inst.spec.Name, "err", err)
	if e.hooks.OnNodeError != nil {
		e.hooks.OnNodeError(ctx, &domain.NodeErrorEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventNodeError},
			NodeID:    inst.spec.ID,
			NodeType:  inst.spec.Name,
			Err:       err,
		})
	}
}

// commitChannels makes values published this tick visible to receivers.
func (e *Engine) commitChannels() {
	e.chanMu.Lock()
	defer e.chanMu.Unlock()
	for name, v := range e.staged {
		e.committed[name] = v
	}
	clear(e.staged)
}

// refreshExpectations publishes the per-entity state of actuator nodes for the
// audit. The first node in evaluation order wins when two report one entity.
func (e *Engine) refreshExpectations(order []string) {
	next := make(map[string]domain.Expectation)
	for _, id := range order {
		inst := e.instances[id]
		if !inst.actuator {
			continue
		}
		reporter, ok := inst.node.(node.EntityReporter)
		if !ok {
			continue
		}
		for entity, state := range reporter.TrackedEntities() {
			if _, taken := next[entity]; taken {
				continue
			}
			next[entity] = domain.Expectation{
				EntityID: entity,
				State:    state.Clone(),
				Source:   "node:" + id,
			}
		}
	}

	e.snapMu.Lock()
	e.expectations = next
	e.snapMu.Unlock()
}
