package nodes

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
	"github.com/spf13/cast"
)

type actuatorConfig struct {
	EntityID string `mapstructure:"entity_id"`
}

// actuator drives one entity. It only issues a command when the desired
// attributes change, and never while the frontend holds the devices: in that
// case it still reports the logical state but leaves it unsent, so the command
// goes out once actuation resumes.
type actuator struct {
	props[actuatorConfig]
	env node.Env

	mu        sync.Mutex
	sent      domain.Attributes
	lastCmdID string
	warned    bool
}

func newActuator(env node.Env) node.Node {
	return &actuator{env: env}
}

func (a *actuator) Restore(saved map[string]any) error {
	prev := a.cfg.EntityID
	if err := a.decode(saved, actuatorConfig{}, nil); err != nil {
		return err
	}
	if a.cfg.EntityID != prev {
		a.mu.Lock()
		a.sent = nil
		a.lastCmdID = ""
		a.warned = false
		a.mu.Unlock()
	}
	return nil
}

func (a *actuator) Ports() ([]string, []string) {
	return []string{"trigger", domain.AttrBrightness, "color"}, []string{"is_on", "pending"}
}

func (a *actuator) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	trigger, ok := in.First("trigger")
	if !ok {
		return node.Outputs{"is_on": a.isOnLocked(), "pending": a.pendingLocked()}, nil
	}

	desired := domain.Attributes{domain.AttrOn: cast.ToBool(trigger)}
	if desired[domain.AttrOn] == true {
		if v, ok := in.First(domain.AttrBrightness); ok {
			desired[domain.AttrBrightness] = cast.ToInt(v)
		}
		if v, ok := in.First("color"); ok {
			desired[domain.AttrHSColor] = v
		}
	}
	out := node.Outputs{"is_on": desired[domain.AttrOn]}

	if a.cfg.EntityID == "" {
		if !a.warned {
			a.env.Logger().Warn("Actuator has no entity_id, not sending commands")
			a.warned = true
		}
		out["pending"] = false
		return out, nil
	}

	if a.env.SkipDeviceCommands() {
		out["pending"] = false
		return out, nil
	}

	if a.sent == nil || !a.sent.Matches(desired) || len(a.sent) != len(desired) {
		action := domain.ActionTurnOff
		if desired[domain.AttrOn] == true {
			action = domain.ActionTurnOn
		}
		id, err := a.env.Issue(domain.Command{EntityID: a.cfg.EntityID, Action: action, Desired: desired})
		switch {
		case errors.Is(err, domain.ErrCommandsSuppressed):
			out["pending"] = false
			return out, nil
		case err != nil:
			return nil, err
		}
		a.sent = desired
		a.lastCmdID = id
	}

	out["pending"] = a.pendingLocked()
	return out, nil
}

func (a *actuator) isOnLocked() bool {
	if a.sent == nil {
		return false
	}
	return a.sent[domain.AttrOn] == true
}

func (a *actuator) pendingLocked() bool {
	if a.lastCmdID == "" {
		return false
	}
	cmd, ok := a.env.Lookup(a.lastCmdID)
	return ok && !cmd.Confirmed()
}

// TrackedEntities reports the last state this node sent.
func (a *actuator) TrackedEntities() map[string]domain.Attributes {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sent == nil || a.cfg.EntityID == "" {
		return nil
	}
	return map[string]domain.Attributes{a.cfg.EntityID: a.sent.Clone()}
}

type colorCycleConfig struct {
	EntityIDs   []string `mapstructure:"entity_ids"`
	StepSeconds float64  `mapstructure:"step_seconds"`
	StepDegrees float64  `mapstructure:"step_degrees"`
	Saturation  float64  `mapstructure:"saturation"`
}

var colorCycleDefaults = colorCycleConfig{StepSeconds: 5, StepDegrees: 30, Saturation: 100}

// colorCycle puts its entities under the color_cycle override while enabled
// and steps their hue on a fixed cadence.
type colorCycle struct {
	props[colorCycleConfig]
	env node.Env

	active   bool
	hue      float64
	lastStep int64 // unix nanos of the last step
}

func newColorCycle(env node.Env) node.Node {
	return &colorCycle{env: env, props: props[colorCycleConfig]{cfg: colorCycleDefaults}}
}

func (c *colorCycle) Restore(saved map[string]any) error {
	prev := c.cfg.EntityIDs
	err := c.decode(saved, colorCycleDefaults, func(cfg *colorCycleConfig) error {
		if cfg.StepSeconds <= 0 {
			cfg.StepSeconds = colorCycleDefaults.StepSeconds
		}
		return nil
	})
	if err != nil {
		return err
	}
	if c.active {
		for _, id := range prev {
			c.env.ClearOverride(id)
		}
		c.active = false
	}
	return nil
}

func (c *colorCycle) Ports() ([]string, []string) {
	return []string{"enable"}, []string{"active", "hue"}
}

func (c *colorCycle) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	v, _ := in.First("enable")
	enable := cast.ToBool(v)

	if !enable {
		if c.active {
			c.release()
		}
		return node.Outputs{"active": false, "hue": c.hue}, nil
	}

	now := c.env.Now()
	if !c.active {
		for _, id := range c.cfg.EntityIDs {
			c.env.SetOverride(id, OverrideColorCycle)
		}
		c.active = true
		c.lastStep = 0
	}

	step := int64(c.cfg.StepSeconds * 1e9)
	if c.lastStep == 0 || now.UnixNano()-c.lastStep >= step {
		if c.lastStep != 0 {
			c.hue = mod360(c.hue + c.cfg.StepDegrees)
		}
		c.lastStep = now.UnixNano()
		c.send()
	}
	return node.Outputs{"active": true, "hue": c.hue}, nil
}

func (c *colorCycle) send() {
	for _, id := range c.cfg.EntityIDs {
		_, err := c.env.Issue(domain.Command{
			EntityID: id,
			Action:   domain.ActionTurnOn,
			Desired: domain.Attributes{
				domain.AttrOn:      true,
				domain.AttrHSColor: []any{c.hue, c.cfg.Saturation},
			},
		})
		if err != nil && !errors.Is(err, domain.ErrCommandsSuppressed) {
			c.env.Logger().Warn("Color step not sent", "entity_id", id, "err", err)
		}
	}
}

func (c *colorCycle) release() {
	for _, id := range c.cfg.EntityIDs {
		c.env.ClearOverride(id)
	}
	c.active = false
}

// Destroy drops the override so the audit checks the entities in full again.
func (c *colorCycle) Destroy() {
	if c.active {
		c.release()
	}
}

func mod360(h float64) float64 {
	for h >= 360 {
		h -= 360
	}
	return h
}
