package nodes_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/node"
	"github.com/aretw0/autotron/pkg/nodes"
	"github.com/aretw0/autotron/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv records what a node asks of the runtime.
type fakeEnv struct {
	now       time.Time
	skip      bool
	issued    []domain.Command
	confirmed map[string]bool
	channels  map[string]any
	overrides map[string]string
}

func newEnv() *fakeEnv {
	return &fakeEnv{
		now:       time.Date(2026, 3, 1, 14, 0, 0, 0, time.Local),
		confirmed: map[string]bool{},
		channels:  map[string]any{},
		overrides: map[string]string{},
	}
}

func (f *fakeEnv) NodeID() string           { return "n1" }
func (f *fakeEnv) Logger() *slog.Logger     { return logging.NewNop() }
func (f *fakeEnv) Now() time.Time           { return f.now }
func (f *fakeEnv) SkipDeviceCommands() bool { return f.skip }
func (f *fakeEnv) NotifyChange()            {}

func (f *fakeEnv) Issue(cmd domain.Command) (string, error) {
	if f.skip {
		return "", domain.ErrCommandsSuppressed
	}
	f.issued = append(f.issued, cmd)
	return fmt.Sprintf("cmd-%d", len(f.issued)), nil
}

func (f *fakeEnv) Lookup(id string) (domain.TrackedCommand, bool) {
	cmd := domain.TrackedCommand{ID: id}
	if f.confirmed[id] {
		at := f.now
		cmd.ConfirmedAt = &at
	}
	return cmd, true
}

func (f *fakeEnv) Publish(channel string, value any)  { f.channels[channel] = value }
func (f *fakeEnv) Receive(channel string) (any, bool) { v, ok := f.channels[channel]; return v, ok }
func (f *fakeEnv) SetOverride(entityID, mode string)  { f.overrides[entityID] = mode }
func (f *fakeEnv) ClearOverride(entityID string)      { delete(f.overrides, entityID) }

func create(t *testing.T, env node.Env, typeName string, props map[string]any) node.Node {
	t.Helper()
	reg := registry.NewRegistry()
	nodes.RegisterAll(reg)
	n, err := reg.Create(typeName, env, props)
	require.NoError(t, err)
	return n
}

func compute(t *testing.T, n node.Node, in node.Inputs) node.Outputs {
	t.Helper()
	out, err := n.Compute(context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestRegisterAll(t *testing.T) {
	reg := registry.NewRegistry()
	nodes.RegisterAll(reg)
	assert.Len(t, reg.List(), len(nodes.Builtins))

	desc, ok := reg.Descriptor(nodes.TypeActuator)
	require.True(t, ok)
	assert.True(t, desc.Actuator)
}

func TestConstant(t *testing.T) {
	n := create(t, newEnv(), nodes.TypeConstant, map[string]any{"value": true, "ui": "x"})
	assert.Equal(t, node.Outputs{"value": true}, compute(t, n, nil))

	props, err := n.Serialize()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": true, "ui": "x"}, props, "unknown keys survive")
}

func TestLogic(t *testing.T) {
	tests := []struct {
		op   string
		in   []any
		want bool
	}{
		{"and", []any{true, true}, true},
		{"and", []any{true, false}, false},
		{"and", nil, false},
		{"or", []any{false, true}, true},
		{"or", nil, false},
		{"not", []any{false}, true},
		{"not", []any{true}, false},
		{"xor", []any{true, true, true}, true},
		{"xor", []any{true, true}, false},
		{"AND", []any{"true", 1}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.op, tt.in), func(t *testing.T) {
			n := create(t, newEnv(), nodes.TypeLogic, map[string]any{"op": tt.op})
			out := compute(t, n, node.Inputs{"in": tt.in})
			assert.Equal(t, tt.want, out["out"])
		})
	}
}

func TestLogic_RejectsUnknownOp(t *testing.T) {
	reg := registry.NewRegistry()
	nodes.RegisterAll(reg)
	_, err := reg.Create(nodes.TypeLogic, newEnv(), map[string]any{"op": "nand"})
	assert.Error(t, err)
}

func TestTimeWindow(t *testing.T) {
	env := newEnv()
	day := create(t, env, nodes.TypeTimeWindow, map[string]any{"start": "12:00", "end": "20:00"})
	night := create(t, env, nodes.TypeTimeWindow, map[string]any{"start": "22:00", "end": "06:00"})

	assert.Equal(t, true, compute(t, day, nil)["active"])
	assert.Equal(t, false, compute(t, night, nil)["active"])

	env.now = time.Date(2026, 3, 1, 23, 30, 0, 0, time.Local)
	assert.Equal(t, false, compute(t, day, nil)["active"])
	assert.Equal(t, true, compute(t, night, nil)["active"])

	env.now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.Local)
	assert.Equal(t, false, compute(t, day, nil)["active"], "end is exclusive")
}

func TestTimeWindow_InvalidClock(t *testing.T) {
	reg := registry.NewRegistry()
	nodes.RegisterAll(reg)
	_, err := reg.Create(nodes.TypeTimeWindow, newEnv(), map[string]any{"start": "noon", "end": "20:00"})
	assert.Error(t, err)
}

func TestDelay_CountdownSurvivesRestore(t *testing.T) {
	env := newEnv()
	n := create(t, env, nodes.TypeDelay, map[string]any{"seconds": 10})

	out := compute(t, n, node.Inputs{"in": {true}})
	assert.Equal(t, false, out["out"])

	env.now = env.now.Add(6 * time.Second)
	require.NoError(t, n.Restore(map[string]any{"seconds": 10}))

	env.now = env.now.Add(4 * time.Second)
	out = compute(t, n, node.Inputs{"in": {true}})
	assert.Equal(t, true, out["out"])

	out = compute(t, n, node.Inputs{"in": {false}})
	assert.Equal(t, false, out["out"])
}

func TestActuator_EdgeTriggered(t *testing.T) {
	env := newEnv()
	n := create(t, env, nodes.TypeActuator, map[string]any{"entity_id": "light.desk"})

	out := compute(t, n, node.Inputs{"trigger": {true}})
	assert.Equal(t, true, out["is_on"])
	assert.Equal(t, true, out["pending"])
	require.Len(t, env.issued, 1)
	assert.Equal(t, domain.ActionTurnOn, env.issued[0].Action)

	compute(t, n, node.Inputs{"trigger": {true}})
	assert.Len(t, env.issued, 1, "no command without a change")

	env.confirmed["cmd-1"] = true
	out = compute(t, n, node.Inputs{"trigger": {true}})
	assert.Equal(t, false, out["pending"])

	compute(t, n, node.Inputs{"trigger": {false}})
	require.Len(t, env.issued, 2)
	assert.Equal(t, domain.ActionTurnOff, env.issued[1].Action)

	reporter, ok := n.(node.EntityReporter)
	require.True(t, ok)
	assert.Equal(t, map[string]domain.Attributes{"light.desk": {"on": false}}, reporter.TrackedEntities())
}

func TestActuator_SuppressedWhileFrontendActive(t *testing.T) {
	env := newEnv()
	env.skip = true
	n := create(t, env, nodes.TypeActuator, map[string]any{"entity_id": "light.desk"})

	out := compute(t, n, node.Inputs{"trigger": {true}})
	assert.Equal(t, true, out["is_on"])
	assert.Empty(t, env.issued)

	env.skip = false
	compute(t, n, node.Inputs{"trigger": {true}})
	assert.Len(t, env.issued, 1, "command goes out once actuation resumes")
}

func TestActuator_BrightnessAndColor(t *testing.T) {
	env := newEnv()
	n := create(t, env, nodes.TypeActuator, map[string]any{"entity_id": "light.desk"})

	compute(t, n, node.Inputs{"trigger": {true}, "brightness": {128.0}, "color": {[]any{120, 100}}})
	require.Len(t, env.issued, 1)
	assert.Equal(t, 128, env.issued[0].Desired["brightness"])
	assert.Equal(t, []any{120, 100}, env.issued[0].Desired["hs_color"])
}

func TestColorCycle(t *testing.T) {
	env := newEnv()
	n := create(t, env, nodes.TypeColorCycle, map[string]any{
		"entity_ids":   []any{"light.a", "light.b"},
		"step_seconds": 2,
	})

	out := compute(t, n, node.Inputs{"enable": {true}})
	assert.Equal(t, true, out["active"])
	assert.Equal(t, map[string]string{"light.a": nodes.OverrideColorCycle, "light.b": nodes.OverrideColorCycle}, env.overrides)
	assert.Len(t, env.issued, 2)

	env.now = env.now.Add(time.Second)
	compute(t, n, node.Inputs{"enable": {true}})
	assert.Len(t, env.issued, 2, "not yet time to step")

	env.now = env.now.Add(time.Second)
	out = compute(t, n, node.Inputs{"enable": {true}})
	assert.Len(t, env.issued, 4)
	assert.Equal(t, 30.0, out["hue"])

	compute(t, n, node.Inputs{"enable": {false}})
	assert.Empty(t, env.overrides)
}

func TestColorCycle_DestroyClearsOverride(t *testing.T) {
	env := newEnv()
	n := create(t, env, nodes.TypeColorCycle, map[string]any{"entity_ids": []any{"light.a"}})
	compute(t, n, node.Inputs{"enable": {true}})
	require.NotEmpty(t, env.overrides)

	n.(node.Destroyer).Destroy()
	assert.Empty(t, env.overrides)
}

func TestChannels(t *testing.T) {
	env := newEnv()
	snd := create(t, env, nodes.TypeSender, map[string]any{"channel": "motion"})
	rcv := create(t, env, nodes.TypeReceiver, map[string]any{"channel": "motion"})

	assert.Empty(t, compute(t, rcv, nil))
	compute(t, snd, node.Inputs{"value": {true}})
	assert.Equal(t, node.Outputs{"value": true}, compute(t, rcv, nil))
}

func TestSerializeRestoreRoundTrip(t *testing.T) {
	cases := map[string]map[string]any{
		nodes.TypeConstant:   {"value": 42.0},
		nodes.TypeLogic:      {"op": "or"},
		nodes.TypeTimeWindow: {"start": "07:30", "end": "09:00"},
		nodes.TypeDelay:      {"seconds": 3.5},
		nodes.TypeActuator:   {"entity_id": "light.desk"},
		nodes.TypeColorCycle: {"entity_ids": []any{"light.a"}, "step_seconds": 1.0, "step_degrees": 45.0, "saturation": 80.0},
		nodes.TypeSender:     {"channel": "x"},
		nodes.TypeReceiver:   {"channel": "x"},
	}
	for typeName, props := range cases {
		t.Run(typeName, func(t *testing.T) {
			n := create(t, newEnv(), typeName, props)
			saved, err := n.Serialize()
			require.NoError(t, err)
			assert.True(t, domain.EqualJSON(props, saved), "got %v", saved)

			again := create(t, newEnv(), typeName, saved)
			resaved, err := again.Serialize()
			require.NoError(t, err)
			assert.True(t, domain.EqualJSON(saved, resaved))
		})
	}
}
