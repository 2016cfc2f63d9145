package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", cfg.ServerAddr)
	assert.False(t, cfg.Offline)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.BackgroundHeartbeatInterval)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InterpolationDelay)
	assert.Equal(t, 2*time.Second, cfg.SnapshotHorizon)
	assert.Equal(t, 3, cfg.OutboxMaxRetries)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tacmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: wss://maps.example.com/ws
player_name: Dana
backoff_base: 250ms
max_attempts: 8
offline: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://maps.example.com/ws", cfg.ServerAddr)
	assert.Equal(t, "Dana", cfg.PlayerName)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 8, cfg.MaxAttempts)
	assert.True(t, cfg.Offline)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tacmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player_name: Dana\n"), 0o644))
	t.Setenv("TACMAP_PLAYER_NAME", "Riley")
	t.Setenv("TACMAP_MAX_ATTEMPTS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Riley", cfg.PlayerName)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
