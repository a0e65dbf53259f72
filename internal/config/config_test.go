package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrConfigCreated)

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, BackendDisk, cfg.Assets.Backend)
}

func TestReadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
	"app_name": "demo",
	"debug_mode": true,
	"server": {"port": 4000, "ping_interval": "5s"},
	"session": {"max_sessions": 8},
	"engine": {"allow_unjoined_mutations": true}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.AppName)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.PingInterval())
	assert.Equal(t, 8, cfg.Session.MaxSessions)
	assert.True(t, cfg.Engine.AllowUnjoinedMutations)
	// 未给出的字段保留默认值
	assert.Equal(t, 256, cfg.Server.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout())
}

func TestReadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
app_name = "toml-demo"

[server]
port = 5000

[assets]
backend = "gridfs"
bucket = "boards"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "toml-demo", cfg.AppName)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, BackendGridFS, cfg.Assets.Backend)
	assert.Equal(t, "boards", cfg.Assets.Bucket)
	assert.Equal(t, "tabletop", cfg.Database.Database)
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err := ReadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"server": {"port": 70000}, "assets": {"backend": "s3"}}`), 0644))
	_, err = ReadConfig(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "assets.backend")
}

func TestValidateDurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero ping interval", func(c *Config) { c.Server.PingInterval = "0s" }, "server.ping_interval"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = "0ms" }, "server.read_timeout"},
		{"zero write timeout", func(c *Config) { c.Server.WriteTimeout = "0m" }, "server.write_timeout"},
		{"negative ping interval", func(c *Config) { c.Server.PingInterval = "-5s" }, "server.ping_interval"},
		{"malformed read timeout", func(c *Config) { c.Server.ReadTimeout = "soon" }, "server.read_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestDurationAccessorsFallBackOnZero(t *testing.T) {
	cfg := Default()
	cfg.Server.PingInterval = "0s"
	cfg.Server.ReadTimeout = "0s"
	cfg.Server.WriteTimeout = ""

	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout())
}
