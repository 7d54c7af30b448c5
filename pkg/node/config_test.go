package node_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/autotron/pkg/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lampConfig struct {
	EntityID   string  `mapstructure:"entity_id"`
	Brightness int     `mapstructure:"brightness"`
	Enabled    bool    `mapstructure:"enabled"`
	Ratio      float64 `mapstructure:"ratio"`
}

func TestDecode_WeakTypes(t *testing.T) {
	var cfg lampConfig
	extra, err := node.Decode(map[string]any{
		"entity_id":  "light.lamp",
		"brightness": json.Number("120"),
		"enabled":    "true",
		"ratio":      1,
		"ui_color":   "#ff0000",
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, lampConfig{EntityID: "light.lamp", Brightness: 120, Enabled: true, Ratio: 1}, cfg)
	assert.Equal(t, map[string]any{"ui_color": "#ff0000"}, extra)
}

func TestDecode_Invalid(t *testing.T) {
	var cfg lampConfig
	_, err := node.Decode(map[string]any{"brightness": "bright"}, &cfg)
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := lampConfig{EntityID: "light.lamp", Brightness: 200}
	props, err := node.Encode(cfg, map[string]any{"ui_color": "#00ff00", "brightness": 1})
	require.NoError(t, err)

	assert.Equal(t, "light.lamp", props["entity_id"])
	assert.Equal(t, 200, props["brightness"], "typed fields win over extra keys")
	assert.Equal(t, "#00ff00", props["ui_color"])

	var back lampConfig
	extra, err := node.Decode(props, &back)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
	assert.Equal(t, map[string]any{"ui_color": "#00ff00"}, extra)
}

func TestInputs_First(t *testing.T) {
	in := node.Inputs{"in": {true, false}}
	v, ok := in.First("in")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = in.First("missing")
	assert.False(t, ok)
}
