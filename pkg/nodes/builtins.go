// Package nodes holds the node types shipped with the runtime.
//
// They are registered from an explicit table at startup:
//
//	reg := registry.NewRegistry()
//	nodes.RegisterAll(reg)
package nodes

import (
	"github.com/aretw0/autotron/pkg/node"
	"github.com/aretw0/autotron/pkg/registry"
)

// Type names of the built-in nodes.
const (
	TypeConstant   = "constant"
	TypeLogic      = "logic"
	TypeTimeWindow = "time_window"
	TypeDelay      = "delay"
	TypeActuator   = "actuator"
	TypeColorCycle = "color_cycle"
	TypeSender     = "sender"
	TypeReceiver   = "receiver"
)

// OverrideColorCycle is the override mode set by color_cycle nodes.
const OverrideColorCycle = "color_cycle"

// Builtins is the startup table of node types.
var Builtins = map[string]node.Descriptor{
	TypeConstant: {
		Factory:     newConstant,
		Description: "Emits a configured value",
	},
	TypeLogic: {
		Factory:     newLogic,
		Description: "Boolean and/or/not/xor over its inputs",
	},
	TypeTimeWindow: {
		Factory:     newTimeWindow,
		Description: "True between start and end (HH:MM, may wrap midnight)",
	},
	TypeDelay: {
		Factory:     newDelay,
		Description: "On-delay: output follows a true input after a number of seconds",
	},
	TypeActuator: {
		Factory:     newActuator,
		Description: "Drives a device entity on input edges",
		Actuator:    true,
	},
	TypeColorCycle: {
		Factory:     newColorCycle,
		Description: "Cycles the hue of entities while enabled",
		Actuator:    true,
	},
	TypeSender: {
		Factory:     newSender,
		Description: "Publishes its input on a named channel",
	},
	TypeReceiver: {
		Factory:     newReceiver,
		Description: "Emits the last value published on a named channel",
	},
}

// RegisterAll registers every built-in node type.
func RegisterAll(reg *registry.Registry) {
	for name, desc := range Builtins {
		reg.Register(name, desc)
	}
}

// props is the typed-config plumbing shared by every built-in node.
type props[C any] struct {
	cfg   C
	extra map[string]any
}

func (p *props[C]) Serialize() (map[string]any, error) {
	return node.Encode(p.cfg, p.extra)
}

// decode applies saved onto a copy of defaults, so a rejected map leaves
// the current configuration untouched.
func (p *props[C]) decode(saved map[string]any, defaults C, validate func(*C) error) error {
	cfg := defaults
	extra, err := node.Decode(saved, &cfg)
	if err != nil {
		return err
	}
	if validate != nil {
		if err := validate(&cfg); err != nil {
			return err
		}
	}
	p.cfg = cfg
	p.extra = extra
	return nil
}
