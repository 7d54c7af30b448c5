package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "autotron version")
}

func TestValidateAndGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.json")
	doc := `{"nodes": [{"id": "on", "name": "constant", "data": {"properties": {"value": true}}},
		{"id": "lamp", "name": "actuator", "data": {"properties": {"entity_id": "light.lamp"}}}],
		"connections": [{"source": "on", "sourceOutput": "value", "target": "lamp", "targetInput": "trigger"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Evaluation order: [on lamp]")
	assert.Contains(t, out, "Graph is valid!")

	out, err = execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")

	_, err = execute(t, "validate")
	assert.Error(t, err)
}
