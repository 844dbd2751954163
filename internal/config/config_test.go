package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, GatewayMPRIS, cfg.Media.Gateway)
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Timer.PausedPollInterval)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Daemon.Listen, cfg.Daemon.Listen)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
daemon:
  listen: 127.0.0.1:9999
media:
  gateway: playerctl
  player: spotify
timer:
  paused_poll_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Daemon.Listen)
	assert.Equal(t, GatewayPlayerctl, cfg.Media.Gateway)
	assert.Equal(t, "spotify", cfg.Media.Player)
	assert.Equal(t, 250*time.Millisecond, cfg.Timer.PausedPollInterval)
	// untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("media:\n  gateway: playerctl\n"), 0o600))

	t.Setenv("DORMINDO_MEDIA_GATEWAY", "simulated")
	t.Setenv("PUSHOVER_TOKEN", "tok")
	t.Setenv("PUSHOVER_RECIPIENT", "me")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, GatewaySimulated, cfg.Media.Gateway)
	assert.True(t, cfg.Notifications.Pushover.Enabled())
}

func TestLoadRejectsInvalidGateway(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("media:\n  gateway: cassette\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid media.gateway")
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.History.RetentionDays = 7

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.History.RetentionDays)
}

func TestLoadDotEnvSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DORMINDO_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("DORMINDO_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "loaded", os.Getenv("DORMINDO_TEST_DOTENV"))
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"error", zerolog.ErrorLevel},
		{"WARNING", zerolog.WarnLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Daemon.LogLevel = tt.in
			assert.Equal(t, tt.want, cfg.GetLogLevel())
		})
	}
}
