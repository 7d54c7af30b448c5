package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
)

// nodeEnv is the node.Env handed to each instance, bound to its id.
type nodeEnv struct {
	engine *Engine
	id     string
	logger *slog.Logger
}

func (e *Engine) envFor(spec domain.NodeSpec) *nodeEnv {
	return &nodeEnv{
		engine: e,
		id:     spec.ID,
		logger: e.logger.With("node_id", spec.ID, "node_type", spec.Name),
	}
}

func (n *nodeEnv) NodeID() string           { return n.id }
func (n *nodeEnv) Logger() *slog.Logger     { return n.logger }
func (n *nodeEnv) Now() time.Time           { return n.engine.now() }
func (n *nodeEnv) SkipDeviceCommands() bool { return n.engine.ShouldSkipDeviceCommands() }
func (n *nodeEnv) NotifyChange()            { n.engine.dirty.Store(true) }

func (n *nodeEnv) Issue(cmd domain.Command) (string, error) {
	return n.engine.issue(n.id, cmd)
}

func (n *nodeEnv) Lookup(commandID string) (domain.TrackedCommand, bool) {
	return n.engine.tracker.Get(commandID)
}

func (n *nodeEnv) Publish(channel string, value any) {
	n.engine.chanMu.Lock()
	defer n.engine.chanMu.Unlock()
	n.engine.staged[channel] = value
}

func (n *nodeEnv) Receive(channel string) (any, bool) {
	n.engine.chanMu.Lock()
	defer n.engine.chanMu.Unlock()
	v, ok := n.engine.committed[channel]
	return v, ok
}

func (n *nodeEnv) SetOverride(entityID, mode string) {
	n.engine.setOverride(n.id, entityID, mode)
}

func (n *nodeEnv) ClearOverride(entityID string) {
	n.engine.clearOverride(n.id, entityID)
}

// issue records a command and dispatches it without waiting for the device.
func (e *Engine) issue(sourceNodeID string, cmd domain.Command) (string, error) {
	ctx := context.Background()
	event := &domain.CommandEvent{
		EventBase:    domain.EventBase{Timestamp: e.now(), Type: domain.EventCommand},
		Command:      cmd,
		SourceNodeID: sourceNodeID,
	}

	if e.ShouldSkipDeviceCommands() {
		event.Suppressed = true
		event.Err = domain.ErrCommandsSuppressed
		if e.hooks.OnCommand != nil {
			e.hooks.OnCommand(ctx, event)
		}
		return "", domain.ErrCommandsSuppressed
	}

	id := e.tracker.Record(cmd.EntityID, cmd.Action, cmd.Desired, sourceNodeID)
	event.CommandID = id
	e.dispatch(id, cmd)

	if e.verifier != nil {
		e.verifier.Watch(id, sourceNodeID, func(ctx context.Context) error {
			return e.resend(id, sourceNodeID, cmd)
		})
	}
	if e.hooks.OnCommand != nil {
		e.hooks.OnCommand(ctx, event)
	}
	return id, nil
}

// resend redelivers a tracked command under its original ledger id.
func (e *Engine) resend(commandID, sourceNodeID string, cmd domain.Command) error {
	if e.ShouldSkipDeviceCommands() {
		return domain.ErrCommandsSuppressed
	}
	e.dispatch(commandID, cmd)
	if e.hooks.OnCommand != nil {
		e.hooks.OnCommand(context.Background(), &domain.CommandEvent{
			EventBase:    domain.EventBase{Timestamp: e.now(), Type: domain.EventCommand},
			CommandID:    commandID,
			Command:      cmd,
			SourceNodeID: sourceNodeID,
			Retry:        true,
		})
	}
	return nil
}

// dispatch sends a command to the actuator in the background. Failures are
// logged; confirmation arrives later through the state subscription.
func (e *Engine) dispatch(commandID string, cmd domain.Command) {
	if e.actuator == nil {
		e.logger.Debug("No actuator configured, command only recorded", "command_id", commandID, "entity_id", cmd.EntityID)
		return
	}

	e.actWG.Add(1)
	go func() {
		defer e.actWG.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Actuation panicked", "command_id", commandID, "entity_id", cmd.EntityID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(e.actCtx, e.actuationTimeout)
		defer cancel()

		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Warn("Actuation dropped by rate limiter", "command_id", commandID, "entity_id", cmd.EntityID, "err", err)
			return
		}
		if err := e.actuator.Actuate(ctx, cmd); err != nil {
			e.logger.Warn("Actuation failed",
				"command_id", commandID,
				"entity_id", cmd.EntityID,
				"action", cmd.Action,
				"err", fmt.Errorf("%w: %w", domain.ErrActuationUnreachable, err),
			)
			return
		}
		e.logger.Debug("Actuation sent", "command_id", commandID, "entity_id", cmd.EntityID, "action", cmd.Action)
	}()
}
