package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/pbpd/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.ModeOffline, cfg.Mode)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 10*time.Second, cfg.ModelsTimeout)
	assert.False(t, cfg.EnableAuth)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFileEnvFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
models:
  dir: /srv/models
  timeout: 3s
cors:
  origins: ["https://a.example"]
log:
  level: debug
`), 0o644))

	t.Setenv("PBPD_MODELS_DIR", "/env/models")
	t.Setenv("PBPD_CORS_ORIGINS", "https://b.example, https://c.example")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("http.addr", "", "")
	require.NoError(t, fs.Parse([]string{"--http.addr=:7000"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr, "flag beats file")
	assert.Equal(t, "/env/models", cfg.ModelsDir, "env beats file")
	assert.Equal(t, 3*time.Second, cfg.ModelsTimeout)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestOnlineModeRequiresAuthSecret(t *testing.T) {
	t.Setenv("PBPD_MODE", "online")
	_, err := config.Load("", nil)
	require.Error(t, err)

	t.Setenv("PBPD_AUTH_HMAC_SECRET", "s3cret")
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.EnableAuth)

	t.Setenv("PBPD_AUTH_ENABLED", "false")
	cfg, err = config.Load("", nil)
	require.NoError(t, err)
	assert.False(t, cfg.EnableAuth)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("PBPD_DB_DRIVER", "mysql")
	_, err := config.Load("", nil)
	assert.ErrorContains(t, err, "db.driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
