package process

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bridgeScript = `
case "$1" in
  actuate)
    cat > "$OUT"
    echo "$AUTOTRON_ENTITY_ID $AUTOTRON_ACTION $AUTOTRON_ATTR_BRIGHTNESS $AUTOTRON_ATTR_HS_COLOR" > "$OUT.env"
    ;;
  query)
    case "$2" in
      light.gone) exit 3 ;;
      light.broken) echo "boom" >&2; exit 1 ;;
      light.mute) ;;
      *) echo '{"on": true, "brightness": 128}' ;;
    esac
    ;;
esac
`

func newBridge(t *testing.T) (*Bridge, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("bridge tests use sh")
	}
	out := filepath.Join(t.TempDir(), "cmd.json")
	return NewBridge(Config{
		Command: "sh",
		Args:    []string{"-c", bridgeScript, "bridge"},
		Env:     map[string]string{"OUT": out},
	}), out
}

func TestBridge_Actuate(t *testing.T) {
	b, out := newBridge(t)

	cmd := domain.Command{
		EntityID: "light.porch",
		Action:   domain.ActionTurnOn,
		Desired:  domain.Attributes{"on": true, "brightness": 200, "hs_color": []any{30, 100}},
	}
	require.NoError(t, b.Actuate(context.Background(), cmd))

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var got domain.Command
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "light.porch", got.EntityID)
	assert.Equal(t, domain.ActionTurnOn, got.Action)

	env, err := os.ReadFile(out + ".env")
	require.NoError(t, err)
	assert.Equal(t, "light.porch turn_on 200 [30,100]\n", string(env))
}

func TestBridge_Query(t *testing.T) {
	b, _ := newBridge(t)
	ctx := context.Background()

	attrs, err := b.Query(ctx, "light.porch")
	require.NoError(t, err)
	assert.Equal(t, true, attrs["on"])
	assert.EqualValues(t, 128, attrs["brightness"])

	_, err = b.Query(ctx, "light.gone")
	assert.ErrorIs(t, err, domain.ErrActuationUnreachable)

	_, err = b.Query(ctx, "light.broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrActuationUnreachable)
	assert.Contains(t, err.Error(), "boom")

	_, err = b.Query(ctx, "light.mute")
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "HS_COLOR", envKey("hs_color"))
	assert.Equal(t, "COLOR_TEMP", envKey("color-temp"))
}
