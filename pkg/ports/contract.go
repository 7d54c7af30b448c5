package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunGraphStoreContract runs a suite of tests to verify that a GraphStore implementation
// adheres to the defined interface contract.
func RunGraphStoreContract(t *testing.T, store GraphStore) {
	ctx := context.Background()
	name := "contract-graph-" + time.Now().Format("20060102150405")

	sample := &domain.Document{
		Nodes: []domain.NodeSpec{
			{ID: "window", Name: "time_window", Label: "Daytime", Data: domain.NodeData{
				Properties: map[string]any{"start": "12:00", "end": "20:00"},
			}},
			{ID: "lamp", Name: "actuator", Data: domain.NodeData{
				Properties: map[string]any{"entity_id": "light.lamp", "brightness": 180},
			}},
		},
		Connections: []domain.ConnectionSpec{
			{Source: "window", SourceOutput: "active", Target: "lamp", TargetInput: "trigger"},
		},
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, name, sample)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		require.Len(t, loaded.Nodes, 2)
		assert.Equal(t, "window", loaded.Nodes[0].ID)
		assert.Equal(t, "time_window", loaded.Nodes[0].Name)
		assert.Equal(t, "Daytime", loaded.Nodes[0].Label)
		assert.Equal(t, sample.Connections, loaded.Connections)
		// JSON persistence may turn ints into json.Number; compare by encoding.
		assert.True(t, domain.EqualJSON(sample.Nodes[1].Data.Properties, loaded.Nodes[1].Data.Properties))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+name)
		assert.ErrorIs(t, err, domain.ErrGraphNotFound)
	})

	t.Run("Isolation", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, sample))
		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		loaded.Nodes[0].Data.Properties["start"] = "00:00"

		again, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "12:00", again.Nodes[0].Data.Properties["start"])
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, sample))

		err := store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrGraphNotFound, "Load after Delete should return ErrGraphNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := name + "-1"
		id2 := name + "-2"
		_ = store.Save(ctx, id1, sample)
		_ = store.Save(ctx, id2, sample)
		_ = store.Save(ctx, LastActiveName, sample)

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
			_ = store.Delete(ctx, LastActiveName)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, id1)
		assert.Contains(t, names, id2)
		assert.NotContains(t, names, LastActiveName)
	})

	t.Run("Round Trip Preserves Document", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, name, sample))
		defer func() { _ = store.Delete(ctx, name) }()

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)

		want, _ := json.Marshal(sample)
		got, _ := json.Marshal(loaded)
		assert.JSONEq(t, string(want), string(got))
	})
}
