package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/autotron/pkg/node"
	"github.com/spf13/cast"
)

type timeWindowConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// timeWindow is active from Start (inclusive) to End (exclusive), local time.
// A window with End before Start wraps midnight; Start == End is never active.
type timeWindow struct {
	props[timeWindowConfig]
	env        node.Env
	start, end int // minutes since midnight
}

func newTimeWindow(env node.Env) node.Node {
	return &timeWindow{
		env:   env,
		props: props[timeWindowConfig]{cfg: timeWindowConfig{Start: "00:00", End: "00:00"}},
	}
}

func (w *timeWindow) Restore(saved map[string]any) error {
	var start, end int
	err := w.decode(saved, timeWindowConfig{Start: "00:00", End: "00:00"}, func(cfg *timeWindowConfig) error {
		var err error
		if start, err = parseClock(cfg.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		if end, err = parseClock(cfg.End); err != nil {
			return fmt.Errorf("end: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.start, w.end = start, end
	return nil
}

func (w *timeWindow) Ports() ([]string, []string) {
	return nil, []string{"active"}
}

func (w *timeWindow) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	now := w.env.Now()
	minute := now.Hour()*60 + now.Minute()

	var active bool
	switch {
	case w.start < w.end:
		active = minute >= w.start && minute < w.end
	case w.start > w.end:
		active = minute >= w.start || minute < w.end
	}
	return node.Outputs{"active": active}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

type delayConfig struct {
	Seconds float64 `mapstructure:"seconds"`
}

// delay is an on-delay timer. The countdown is runtime state, not a property,
// so it survives a reload that keeps the instance.
type delay struct {
	props[delayConfig]
	env   node.Env
	since time.Time
}

func newDelay(env node.Env) node.Node {
	return &delay{env: env}
}

func (d *delay) Restore(saved map[string]any) error {
	return d.decode(saved, delayConfig{}, func(cfg *delayConfig) error {
		if cfg.Seconds < 0 {
			return fmt.Errorf("seconds must not be negative, got %v", cfg.Seconds)
		}
		return nil
	})
}

func (d *delay) Ports() ([]string, []string) {
	return []string{"in"}, []string{"out", "remaining"}
}

func (d *delay) Compute(ctx context.Context, in node.Inputs) (node.Outputs, error) {
	v, _ := in.First("in")
	if !cast.ToBool(v) {
		d.since = time.Time{}
		return node.Outputs{"out": false, "remaining": 0.0}, nil
	}

	now := d.env.Now()
	if d.since.IsZero() {
		d.since = now
	}
	hold := time.Duration(d.cfg.Seconds * float64(time.Second))
	remaining := hold - now.Sub(d.since)
	if remaining <= 0 {
		return node.Outputs{"out": true, "remaining": 0.0}, nil
	}
	return node.Outputs{"out": false, "remaining": remaining.Seconds()}, nil
}
