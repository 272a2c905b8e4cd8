package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, DefaultMaxRetries, config.Engine.MaxRetries)
	assert.Equal(t, DefaultStaleThreshold, config.Engine.StaleThresholdDuration())
	assert.Equal(t, DefaultProcessTimeout, config.Engine.ProcessTimeoutDuration())
	assert.False(t, config.LLM.Enabled)
	assert.False(t, config.Workflow.Enabled)
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prospector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000

[engine]
max_retries = 5
stale_threshold = "20m"

[poller]
enabled = true
schedule = "@every 2s"
`), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 5, config.Engine.MaxRetries)
	assert.Equal(t, 20*time.Minute, config.Engine.StaleThresholdDuration())
	assert.True(t, config.Poller.Enabled)

	// Untouched sections keep their defaults
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "./data/prospector.db", config.Storage.SQLite.Path)
}

func TestLoadFromFilesLaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9000\nhost = \"0.0.0.0\"\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("[server]\nport = 9100\n"), 0644))

	config, err := LoadFromFiles(base, local)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROSPECTOR_SERVER_PORT", "9200")
	t.Setenv("PROSPECTOR_MAX_RETRIES", "7")
	t.Setenv("PROSPECTOR_WORKFLOW_ENDPOINT", "http://workflow.local:9090")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, 7, config.Engine.MaxRetries)
	assert.Equal(t, "http://workflow.local:9090", config.Workflow.Endpoint)
	assert.True(t, config.Workflow.Enabled)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9300, "127.0.0.1")
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9300, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
}

func TestEngineConfigDurationFallbacks(t *testing.T) {
	bad := EngineConfig{StaleThreshold: "not-a-duration", ProcessTimeout: "-5s"}
	assert.Equal(t, DefaultStaleThreshold, bad.StaleThresholdDuration())
	assert.Equal(t, DefaultProcessTimeout, bad.ProcessTimeoutDuration())
}
