package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.GraphStore      = (*memory.Store)(nil)
	_ ports.Actuator        = (*memory.Devices)(nil)
	_ ports.StateSubscriber = (*memory.Devices)(nil)
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunGraphStoreContract(t, memory.NewStore())
}

func receive(t *testing.T, ch <-chan domain.StateUpdate) domain.StateUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no state update")
		return domain.StateUpdate{}
	}
}

func TestDevices_ActuatePublishesState(t *testing.T) {
	devices := memory.NewDevices()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := devices.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, devices.Actuate(ctx, domain.Command{
		EntityID: "light.porch",
		Action:   domain.ActionTurnOn,
		Desired:  domain.Attributes{domain.AttrBrightness: 120},
	}))

	u := receive(t, updates)
	assert.Equal(t, "light.porch", u.EntityID)
	assert.Equal(t, true, u.Attributes[domain.AttrOn])
	assert.Equal(t, 120, u.Attributes[domain.AttrBrightness])

	require.NoError(t, devices.Actuate(ctx, domain.Command{EntityID: "light.porch", Action: domain.ActionTurnOff}))
	u = receive(t, updates)
	assert.Equal(t, false, u.Attributes[domain.AttrOn])
	assert.Equal(t, 120, u.Attributes[domain.AttrBrightness], "turning off keeps the other attributes")

	state, err := devices.Query(ctx, "light.porch")
	require.NoError(t, err)
	assert.Equal(t, false, state[domain.AttrOn])
	assert.Len(t, devices.Sent(), 2)
}

func TestDevices_UnreachableAndUnknown(t *testing.T) {
	devices := memory.NewDevices()
	ctx := context.Background()

	_, err := devices.Query(ctx, "light.ghost")
	assert.ErrorIs(t, err, domain.ErrActuationUnreachable)

	devices.SetUnreachable("light.attic", true)
	err = devices.Actuate(ctx, domain.Command{EntityID: "light.attic", Action: domain.ActionTurnOn})
	assert.ErrorIs(t, err, domain.ErrActuationUnreachable)
	assert.Empty(t, devices.Sent())
}

func TestDevices_IgnoredCommandIsRecordedButNotApplied(t *testing.T) {
	devices := memory.NewDevices()
	ctx := context.Background()
	devices.Set("light.hall", domain.Attributes{domain.AttrOn: false})
	devices.Ignore("light.hall", true)

	require.NoError(t, devices.Actuate(ctx, domain.Command{EntityID: "light.hall", Action: domain.ActionTurnOn}))

	state, ok := devices.State("light.hall")
	require.True(t, ok)
	assert.Equal(t, false, state[domain.AttrOn])
	assert.Len(t, devices.Sent(), 1)
}

func TestDevices_LatencyAndSubscriberClose(t *testing.T) {
	devices := memory.NewDevices(memory.WithLatency(30 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := devices.Subscribe(ctx)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, devices.Actuate(ctx, domain.Command{EntityID: "switch.fan", Action: domain.ActionTurnOn}))
	receive(t, updates)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
