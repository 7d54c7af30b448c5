package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/autotron/pkg/node"
	"github.com/spf13/cast"
)

type constantConfig struct {
	Value any `mapstructure:"value"`
}

type constant struct {
	props[constantConfig]
}

func newConstant(env node.Env) node.Node {
	return &constant{}
}

func (c *constant) Restore(saved map[string]any) error {
	return c.decode(saved, constantConfig{}, nil)
}

func (c *constant) Ports() ([]string, []string) {
	return nil, []string{"value"}
}

func (c *constant) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	return node.Outputs{"value": c.cfg.Value}, nil
}

type logicConfig struct {
	Op string `mapstructure:"op"`
}

type logic struct {
	props[logicConfig]
}

func newLogic(env node.Env) node.Node {
	return &logic{props: props[logicConfig]{cfg: logicConfig{Op: "and"}}}
}

func (l *logic) Restore(saved map[string]any) error {
	return l.decode(saved, logicConfig{Op: "and"}, func(cfg *logicConfig) error {
		cfg.Op = strings.ToLower(cfg.Op)
		switch cfg.Op {
		case "and", "or", "not", "xor":
			return nil
		}
		return fmt.Errorf("unknown logic op %q", cfg.Op)
	})
}

func (l *logic) Ports() ([]string, []string) {
	return []string{"in"}, []string{"out"}
}

func (l *logic) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	values := in["in"]
	bools := make([]bool, 0, len(values))
	for _, v := range values {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("input is not boolean: %w", err)
		}
		bools = append(bools, b)
	}

	var out bool
	switch l.cfg.Op {
	case "and":
		out = len(bools) > 0
		for _, b := range bools {
			out = out && b
		}
	case "or":
		for _, b := range bools {
			out = out || b
		}
	case "not":
		out = len(bools) == 0 || !bools[0]
	case "xor":
		for _, b := range bools {
			out = out != b
		}
	}
	return node.Outputs{"out": out}, nil
}

type channelConfig struct {
	Channel string `mapstructure:"channel"`
}

// sender publishes its input; receivers see it on the next tick.
type sender struct {
	props[channelConfig]
	env node.Env
}

func newSender(env node.Env) node.Node {
	return &sender{env: env}
}

func (s *sender) Restore(saved map[string]any) error {
	return s.decode(saved, channelConfig{}, nil)
}

func (s *sender) Ports() ([]string, []string) {
	return []string{"value"}, nil
}

func (s *sender) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	if s.cfg.Channel == "" {
		return node.Outputs{}, nil
	}
	if v, ok := in.First("value"); ok {
		s.env.Publish(s.cfg.Channel, v)
	}
	return node.Outputs{}, nil
}

type receiver struct {
	props[channelConfig]
	env node.Env
}

func newReceiver(env node.Env) node.Node {
	return &receiver{env: env}
}

func (r *receiver) Restore(saved map[string]any) error {
	return r.decode(saved, channelConfig{}, nil)
}

func (r *receiver) Ports() ([]string, []string) {
	return nil, []string{"value"}
}

func (r *receiver) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	v, ok := r.env.Receive(r.cfg.Channel)
	if !ok {
		return node.Outputs{}, nil
	}
	return node.Outputs{"value": v}, nil
}
