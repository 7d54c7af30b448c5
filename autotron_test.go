package autotron_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/autotron"
	"github.com/aretw0/autotron/internal/config"
	"github.com/aretw0/autotron/pkg/adapters/file"
	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualConfig keeps the scheduler out of the way so tests drive ticks.
func manualConfig() config.Config {
	cfg := config.Default()
	cfg.TickInterval = time.Hour
	cfg.AuditInterval = 0
	cfg.CommandGrace = 0
	return cfg
}

func lampDoc(on bool) *domain.Document {
	return &domain.Document{
		Nodes: []domain.NodeSpec{
			{ID: "switch", Name: "constant", Data: domain.NodeData{Properties: map[string]any{"value": on}}},
			{ID: "lamp", Name: "actuator", Data: domain.NodeData{Properties: map[string]any{"entity_id": "light.lamp"}}},
		},
		Connections: []domain.ConnectionSpec{
			{Source: "switch", SourceOutput: "value", Target: "lamp", TargetInput: "trigger"},
		},
	}
}

func newService(t *testing.T, opts ...autotron.Option) *autotron.Service {
	t.Helper()
	svc, err := autotron.New(append([]autotron.Option{autotron.WithConfig(manualConfig())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_SaveAndRestoreLastActive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first := newService(t, autotron.WithStore(store))
	require.NoError(t, first.Load(ctx, lampDoc(true)))
	require.NoError(t, first.Save(ctx, "porch"))
	assert.Equal(t, "porch", first.Active())

	names, err := first.Graphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"porch"}, names)

	second := newService(t, autotron.WithStore(store))
	found, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, second.Status().NodeCount)
	assert.Equal(t, domain.StateLoaded, second.Status().State)
}

func TestService_PutGraphIsRestoredAtStartup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	editor := newService(t, autotron.WithStore(store))
	_, err := editor.PutGraph(ctx, "porch", lampDoc(true))
	require.NoError(t, err)

	restarted := newService(t, autotron.WithStore(store))
	found, err := restarted.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found, "a graph stored through PutGraph becomes the last active one")
	assert.Equal(t, 2, restarted.Status().NodeCount)
}

func TestService_RestoreFollowsStoredGraph(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first := newService(t, autotron.WithStore(store))
	require.NoError(t, first.Load(ctx, lampDoc(true)))
	require.NoError(t, first.Save(ctx, "porch"))
	_, err := first.PutGraph(ctx, "garage", &domain.Document{Nodes: []domain.NodeSpec{{ID: "a", Name: "constant"}}})
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "porch"))

	second := newService(t, autotron.WithStore(store))
	found, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "porch", second.Active())

	require.NoError(t, store.Save(ctx, "porch", lampDoc(false)))
	_, err = second.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, second.Document().Nodes[0].Data.Properties["value"])
}

func TestService_ReservedNamesRejected(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	require.NoError(t, svc.Load(ctx, lampDoc(true)))

	_, err := svc.PutGraph(ctx, ".last_active", lampDoc(true))
	assert.ErrorIs(t, err, domain.ErrInvalidGraphName)
	assert.ErrorIs(t, svc.Save(ctx, ""), domain.ErrInvalidGraphName)
}

func TestService_RestoreWithoutLastActive(t *testing.T) {
	svc := newService(t)
	found, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, domain.StateStopped, svc.Status().State)
}

func TestService_SaveRequiresGraph(t *testing.T) {
	svc := newService(t)
	assert.ErrorIs(t, svc.Save(context.Background(), "empty"), domain.ErrNoGraphLoaded)
}

func TestService_CommandsAreConfirmedByDeviceUpdates(t *testing.T) {
	ctx := context.Background()
	devices := memory.NewDevices()
	svc := newService(t, autotron.WithActuator(devices))

	require.NoError(t, svc.Load(ctx, lampDoc(true)))
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Tick(ctx))

	require.Eventually(t, func() bool {
		cmds := svc.Commands("light.lamp", 1)
		return len(cmds) == 1 && cmds[0].Verified()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, svc.Pending(""))

	report := svc.Audit(ctx)
	require.Equal(t, 1, report.Checked)
	assert.Zero(t, report.Mismatched)
	require.Len(t, svc.Devices(), 1)
	assert.Equal(t, "light.lamp", svc.Devices()[0].EntityID)
}

func TestService_AuditFlagsManualChange(t *testing.T) {
	ctx := context.Background()
	devices := memory.NewDevices()
	svc := newService(t, autotron.WithActuator(devices))

	require.NoError(t, svc.Load(ctx, lampDoc(true)))
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Tick(ctx))
	require.Eventually(t, func() bool {
		state, ok := devices.State("light.lamp")
		return ok && state[domain.AttrOn] == true
	}, 2*time.Second, 10*time.Millisecond)

	devices.Set("light.lamp", domain.Attributes{domain.AttrOn: false})

	report := svc.Audit(ctx)
	assert.Equal(t, 1, report.Mismatched)
}

func TestService_PutGraphHotReloadsActive(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.PutGraph(ctx, "porch", lampDoc(false))
	require.NoError(t, err)
	require.NoError(t, svc.LoadNamed(ctx, "porch"))

	doc := lampDoc(false)
	doc.Nodes = append(doc.Nodes, domain.NodeSpec{ID: "night", Name: "time_window",
		Data: domain.NodeData{Properties: map[string]any{"start": "22:00", "end": "06:00"}}})

	diff, err := svc.PutGraph(ctx, "porch", doc)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, []string{"night"}, diff.Added)
	assert.Equal(t, 3, svc.Status().NodeCount)

	diff, err = svc.PutGraph(ctx, "other", lampDoc(true))
	require.NoError(t, err)
	assert.Nil(t, diff, "inactive graphs are only stored")

	_, err = svc.PutGraph(ctx, "broken", &domain.Document{Nodes: []domain.NodeSpec{{ID: "x"}}})
	assert.ErrorIs(t, err, domain.ErrGraphLoad)
}

func TestService_ReloadNeedsActiveGraph(t *testing.T) {
	svc := newService(t)
	require.NoError(t, svc.Load(context.Background(), lampDoc(true)))
	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrGraphNotFound)
}

func TestService_FileChangesHotReloadActiveGraph(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	editor := file.New(dir)
	require.NoError(t, editor.Save(ctx, "porch", lampDoc(true)))

	svc := newService(t, autotron.WithStore(file.New(dir, file.WithDebounce(10*time.Millisecond))))
	require.NoError(t, svc.LoadNamed(ctx, "porch"))
	require.NoError(t, svc.Start(ctx))

	doc := lampDoc(true)
	doc.Nodes = append(doc.Nodes, domain.NodeSpec{ID: "wait", Name: "delay",
		Data: domain.NodeData{Properties: map[string]any{"seconds": 3}}})
	require.NoError(t, editor.Save(ctx, "porch", doc))

	assert.Eventually(t, func() bool {
		return svc.Status().NodeCount == 3
	}, 3*time.Second, 20*time.Millisecond)
}

func TestService_SubscribersSeeFrontendChanges(t *testing.T) {
	svc := newService(t)
	updates, cancel := svc.Subscribe()
	defer cancel()

	svc.Heartbeat()
	select {
	case status := <-updates:
		assert.True(t, status.FrontendActive)
	case <-time.After(time.Second):
		t.Fatal("no status broadcast")
	}

	svc.ReleaseFrontend()
	status := <-updates
	assert.False(t, status.FrontendActive)
}

func TestService_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TickInterval = 0
	_, err := autotron.New(autotron.WithConfig(cfg))
	assert.Error(t, err)
}
