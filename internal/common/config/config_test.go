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
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeoutDuration())
	assert.Equal(t, "https://agent.tinyfish.ai", cfg.Provider.BaseURL)
	assert.Equal(t, "stealth", cfg.Provider.Mode)
	assert.Equal(t, 90000, cfg.Provider.TimeoutMS)
	assert.Equal(t, 16*1024*1024, cfg.Provider.MaxFrameBytes)
	assert.True(t, cfg.Relay.AbandonAsError)
	assert.Equal(t, "", cfg.Events.NATSURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 8089
provider:
  baseUrl: http://localhost:9100
  timeoutMs: 5000
relay:
  abandonAsError: false
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("TINYFISH_API_KEY", "sk-test")
	t.Setenv("RELAY_SERVER_PORT", "9000")
	t.Setenv("RELAY_PROVIDER_MAX_FRAME_BYTES", "4194304")

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "http://localhost:9100", cfg.Provider.BaseURL)
	assert.Equal(t, 5000, cfg.Provider.TimeoutMS)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, 4194304, cfg.Provider.MaxFrameBytes)
	assert.False(t, cfg.Relay.AbandonAsError)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 3000},
			Provider: ProviderConfig{
				BaseURL:        "https://agent.tinyfish.ai",
				TargetURL:      "https://example.com",
				TimeoutMS:      1000,
				ConnectTimeout: 5,
				MaxFrameBytes:  1 << 20,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "bad base url", mutate: func(c *Config) { c.Provider.BaseURL = "agent.tinyfish.ai" }, wantErr: "provider.baseUrl"},
		{name: "missing target", mutate: func(c *Config) { c.Provider.TargetURL = "" }, wantErr: "provider.targetUrl"},
		{name: "tiny frame limit", mutate: func(c *Config) { c.Provider.MaxFrameBytes = 16 }, wantErr: "provider.maxFrameBytes"},
		{name: "negative runs", mutate: func(c *Config) { c.Relay.RunsPerMinute = -1 }, wantErr: "relay.runsPerMinute"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			cfg.Logging.Level = "info"
			cfg.Logging.Format = "json"
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
