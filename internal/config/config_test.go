package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/autotron/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := write(t, "autotron.yaml", `
store: redis
redis:
  addr: redis:6379
  db: 2
tick_interval: 250ms
frontend_timeout: 1m
max_attempts: 0
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.StoreRedis, cfg.Store)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "autotron", cfg.Redis.Prefix, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, time.Minute, cfg.FrontendTimeout)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 1000, cfg.MaxHistory)
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "autotron.json", `{"graph_dir": "/srv/graphs", "verify_delay": "2s"}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/graphs", cfg.GraphDir)
	assert.Equal(t, 2*time.Second, cfg.VerifyDelay)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := config.Load(write(t, "bad.yaml", "store: etcd\ntick_interval: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")
	assert.Contains(t, err.Error(), "tick_interval")

	_, err = config.Load(write(t, "broken.yaml", "store: [\n"))
	assert.Error(t, err)
}

func TestLoad_BridgeAndEncryption(t *testing.T) {
	path := write(t, "autotron.yaml", `
bridge:
  command: /usr/local/bin/zigbee-bridge
  args: [--verbose]
  env:
    BRIDGE_PORT: /dev/ttyUSB0
encryption:
  key: AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Bridge.Enabled())
	assert.Equal(t, []string{"--verbose"}, cfg.Bridge.Args)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Bridge.Env["BRIDGE_PORT"])
	assert.True(t, cfg.Encryption.Enabled())

	_, err = config.Load(write(t, "short.yaml", "encryption:\n  key: c2hvcnQ=\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption")
}

func TestLoad_EncryptionKeyFromEnv(t *testing.T) {
	t.Setenv(config.EncryptionKeyEnv, "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Encryption.Enabled())
}
