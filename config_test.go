package netcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.Socket.NoDelay)
	require.True(t, cfg.Socket.NoSigpipe)
	require.Equal(t, 200, cfg.RateLimit.TickMillis)
	require.Equal(t, 200*time.Millisecond, cfg.RateLimit.Tick())
}

func TestLoadConfigTOMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcore.toml")
	contents := `
[socket]
no_delay = false
keepalive_seconds = 30

[rate_limit]
tick_millis = 100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.Socket.NoDelay)
	require.True(t, cfg.Socket.NoSigpipe) // untouched by the file, kept at default
	require.Equal(t, 30, cfg.Socket.KeepaliveSeconds)
	require.Equal(t, 100, cfg.RateLimit.TickMillis)
}

func TestLoadConfigYAMLOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcore.yaml")
	contents := "socket:\n  no_delay: false\nrate_limit:\n  tick_millis: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.Socket.NoDelay)
	require.Equal(t, 50, cfg.RateLimit.TickMillis)
}

func TestLoadConfigRejectsNonPositiveTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcore.toml")
	contents := "[rate_limit]\ntick_millis = 0\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcore.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
