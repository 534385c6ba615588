package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/", cfg.ContextRoot)
	assert.Equal(t, 30, cfg.ShutdownTimeout)
	assert.Equal(t, "HS512", cfg.Auth.JWT.Algorithm)
	assert.Equal(t, SchedulerModeAttached, cfg.Scheduler.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfigFile(t, "app.yaml", `
listen: ":9090"
contextRoot: /api
auth:
  basic:
    enabled: true
    users:
      alice: secret
scheduler:
  enabled: true
  mode: standalone
  jobs:
    - name: cleanup
      cron: "*/5 * * * *"
      module: cleanup
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/api", cfg.ContextRoot)
	assert.True(t, cfg.Auth.Basic.Enabled)
	assert.Equal(t, UserTable{"alice": "secret"}, cfg.Auth.Basic.Users)
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, SchedulerModeStandalone, cfg.Scheduler.Mode)
	// Defaults survive a partial document.
	assert.Equal(t, 30, cfg.ShutdownTimeout)
	assert.Equal(t, "HS512", cfg.Auth.JWT.Algorithm)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfigFile(t, "app.json", `{
  "listen": ":9091",
  "auth": {
    "basic": {
      "enabled": true,
      "users": [
        {"username": "alice", "password": "secret"},
        {"username": "bob", "password": "hunter2"}
      ]
    }
  }
}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9091", cfg.Listen)
	assert.Equal(t, UserTable{"alice": "secret", "bob": "hunter2"}, cfg.Auth.Basic.Users)
}

func TestLoadConfigJSONSchemaRejection(t *testing.T) {
	path := writeConfigFile(t, "app.json", `{"shutdownTimeout": 0}`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfigFile(t, "app.toml", `
listen = ":9092"

[auth.jwt]
enabled = true
secret = "toml-secret"
algorithm = "HS256"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9092", cfg.Listen)
	assert.True(t, cfg.Auth.JWT.Enabled)
	assert.Equal(t, "HS256", cfg.Auth.JWT.Algorithm)
}

func TestLoadConfigUnsupportedExtension(t *testing.T) {
	path := writeConfigFile(t, "app.ini", "listen = :9093")

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfigFileUnsupported)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, "app.yaml", `listen: ":9090"`)

	t.Setenv("SCAFFOLD_LISTEN", ":7070")
	t.Setenv("SCAFFOLD_CLUSTER_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.True(t, cfg.Cluster.Enabled)
}

func TestUserTableUnmarshalJSON(t *testing.T) {
	t.Run("flat map", func(t *testing.T) {
		var table UserTable
		require.NoError(t, table.UnmarshalJSON([]byte(`{"alice":"secret"}`)))
		assert.Equal(t, UserTable{"alice": "secret"}, table)
	})

	t.Run("pair list", func(t *testing.T) {
		var table UserTable
		require.NoError(t, table.UnmarshalJSON([]byte(`[{"username":"alice","password":"secret"}]`)))
		assert.Equal(t, UserTable{"alice": "secret"}, table)
	})

	t.Run("unsupported shape", func(t *testing.T) {
		var table UserTable
		assert.Error(t, table.UnmarshalJSON([]byte(`"alice:secret"`)))
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("jwt enabled requires secret", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Auth.JWT.Enabled = true
		assert.ErrorIs(t, cfg.Validate(), ErrJWTSecretMissing)

		cfg.Auth.JWT.Secret = "s3cret"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown scheduler mode", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Scheduler.Mode = "leader-elected"
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownSchedulerMode)
	})

	t.Run("job missing cron", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Scheduler.Jobs = []JobConfig{{Name: "cleanup", Module: "cleanup"}}
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})

	t.Run("job missing module", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Scheduler.Jobs = []JobConfig{{Name: "cleanup", Cron: "@hourly"}}
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})

	t.Run("shutdown timeout floor", func(t *testing.T) {
		cfg := NewConfig()
		cfg.ShutdownTimeout = 0
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})
}

func TestJobConfigIsEnabled(t *testing.T) {
	assert.True(t, JobConfig{}.IsEnabled())

	enabled := true
	disabled := false
	assert.True(t, JobConfig{Enabled: &enabled}.IsEnabled())
	assert.False(t, JobConfig{Enabled: &disabled}.IsEnabled())
}
