package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/autotron/internal/graph"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
)

// LoadBytes parses a JSON document and loads it.
func (e *Engine) LoadBytes(ctx context.Context, data []byte) error {
	doc, err := domain.ParseDocument(data)
	if err != nil {
		e.logger.ErrorContext(ctx, "Graph document rejected, keeping previous graph", "err", err)
		return err
	}
	return e.LoadGraph(ctx, doc)
}

// LoadGraph makes doc the active graph. Live instances whose id and type are
// unchanged are reused. On failure the previous graph stays active.
func (e *Engine) LoadGraph(ctx context.Context, doc *domain.Document) error {
	_, err := e.apply(ctx, doc)
	return err
}

// HotReload swaps the running graph for doc and reports what changed.
// Unchanged nodes keep their in-flight state; removed nodes are destroyed.
func (e *Engine) HotReload(ctx context.Context, doc *domain.Document) (*domain.DocumentDiff, error) {
	diff, err := e.apply(ctx, doc)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "Graph hot reloaded",
		"added", len(diff.Added),
		"removed", len(diff.Removed),
		"retyped", len(diff.Retyped),
		"reconfigured", len(diff.Reconfigured),
		"kept", len(diff.Kept),
	)
	return diff, nil
}

func (e *Engine) apply(ctx context.Context, doc *domain.Document) (*domain.DocumentDiff, error) {
	if doc == nil {
		return nil, &domain.GraphLoadError{Reason: "nil document"}
	}
	if err := doc.Validate(); err != nil {
		e.logger.ErrorContext(ctx, "Graph document rejected, keeping previous graph", "err", err)
		return nil, err
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.stateMu.RLock()
	prevDoc := e.doc
	e.stateMu.RUnlock()

	diff := domain.Diff(prevDoc, doc)

	next := make(map[string]*instance, len(doc.Nodes))
	var fresh []*instance
	var restored []rollback
	kept := make(map[string]bool)
	var accepted []domain.NodeSpec
	var skipped []string

	fail := func(err error) (*domain.DocumentDiff, error) {
		for _, inst := range fresh {
			destroy(inst)
		}
		for _, r := range restored {
			if rerr := r.node.Restore(r.props); rerr != nil {
				e.logger.WarnContext(ctx, "Failed to roll back node properties", "err", rerr)
			}
		}
		e.logger.ErrorContext(ctx, "Graph build failed, keeping previous graph", "err", err)
		return nil, err
	}

	for _, spec := range doc.Nodes {
		desc, ok := e.registry.Descriptor(spec.Name)
		if !ok {
			e.logger.WarnContext(ctx, "Unknown node type, skipping node", "node_id", spec.ID, "type", spec.Name)
			skipped = append(skipped, spec.ID)
			continue
		}

		if live, ok := e.instances[spec.ID]; ok && live.spec.Name == spec.Name {
			current, err := live.node.Serialize()
			if err != nil {
				return fail(&domain.GraphLoadError{Reason: fmt.Sprintf("node %q", spec.ID), Err: err})
			}
			if !domain.EqualJSON(current, spec.Data.Properties) {
				if err := live.node.Restore(spec.Data.Properties); err != nil {
					return fail(&domain.GraphLoadError{Reason: fmt.Sprintf("node %q", spec.ID), Err: err})
				}
				restored = append(restored, rollback{node: live.node, props: current})
			}
			next[spec.ID] = &instance{spec: spec, node: live.node, actuator: desc.Actuator}
			kept[spec.ID] = true
			accepted = append(accepted, spec)
			continue
		}

		n, err := e.registry.Create(spec.Name, e.envFor(spec), spec.Data.Properties)
		if err != nil {
			return fail(&domain.GraphLoadError{Reason: fmt.Sprintf("node %q", spec.ID), Err: err})
		}
		inst := &instance{spec: spec, node: n, actuator: desc.Actuator}
		fresh = append(fresh, inst)
		next[spec.ID] = inst
		accepted = append(accepted, spec)
	}

	model := graph.Build(accepted, doc.Connections, portsOf(next))
	for _, d := range model.Dropped() {
		e.logger.WarnContext(ctx, "Dropping connection", "connection", d.Connection.String(), "reason", d.Reason)
	}

	// Nothing below can fail.
	var removed []string
	for id, old := range e.instances {
		if kept[id] {
			continue
		}
		removed = append(removed, id)
		e.retire(old)
	}

	e.instances = next
	e.model = model

	e.cacheMu.Lock()
	for _, id := range removed {
		delete(e.cache, id)
	}
	e.cacheMu.Unlock()

	e.stateMu.Lock()
	e.doc = doc
	e.nodeCount = model.NodeCount()
	e.connCount = len(model.Connections())
	e.droppedCount = len(model.Dropped())
	e.skipped = skipped
	if e.state == domain.StateStopped {
		e.state = domain.StateLoaded
	}
	e.stateMu.Unlock()

	e.logger.InfoContext(ctx, "Graph loaded",
		"nodes", model.NodeCount(),
		"connections", len(model.Connections()),
		"dropped", len(model.Dropped()),
		"back_edges", len(model.BackEdges()),
	)
	return diff, nil
}

// retire destroys an instance removed from the graph and releases what it owns.
func (e *Engine) retire(inst *instance) {
	if e.verifier != nil {
		e.verifier.CancelSource(inst.spec.ID)
	}
	e.clearOverridesOf(inst.spec.ID)
	destroy(inst)
}

// rollback holds the properties of a live node before a reload touched them.
type rollback struct {
	node  node.Node
	props map[string]any
}

func destroy(inst *instance) {
	if d, ok := inst.node.(node.Destroyer); ok {
		d.Destroy()
	}
}

func portsOf(instances map[string]*instance) graph.PortResolver {
	return func(id string) ([]string, []string, bool) {
		inst, ok := instances[id]
		if !ok {
			return nil, nil, false
		}
		pd, ok := inst.node.(node.PortDeclarer)
		if !ok {
			return nil, nil, false
		}
		in, out := pd.Ports()
		return in, out, true
	}
}
