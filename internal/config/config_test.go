package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	require.NoError(t, Save(path, cfg))
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.MaxConcurrent)
	require.Equal(t, "cl100k_base", cfg.Context.Encoding)
	require.Equal(t, "@every 1h", cfg.Maintenance.CheckpointSchedule)
	require.FileExists(t, path)
}

func TestSaveReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := Defaults()
	original.DataDir = "/tmp/test-data"
	original.LogLevel = "debug"
	original.MaxConcurrent = 8
	original.Server.ListenAddr = ":9000"
	original.Server.AllowedOrigins = []string{"https://studio.example.com"}
	original.Server.AuthToken = "tok-round-trip"
	original.Context.MaxContextTokens = 32000
	original.Maintenance.SweepSchedule = "@daily"
	writeTestConfig(t, path, original)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, original, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"warn","server":{"listen_addr":":1234"}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, ":1234", cfg.Server.ListenAddr)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"max_concurrent":0}`), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "max_concurrent")
}

func TestLoadEnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	t.Setenv("STUDIO_LISTEN_ADDR", ":7777")
	t.Setenv("STUDIO_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("STUDIO_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Server.ListenAddr)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadDotEnvFile(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	// Registered with t.Setenv so it is restored afterwards, then cleared so
	// only the .env file can provide it.
	t.Setenv("STUDIO_AUTH_TOKEN", "")
	require.NoError(t, os.Unsetenv("STUDIO_AUTH_TOKEN"))

	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STUDIO_AUTH_TOKEN=from-dotenv\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Server.AuthToken)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	require.NoFileExists(t, path+".tmp")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir"},
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "listen_addr"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/test", MaxConcurrent: 2}
	cfg.Server.ListenAddr = ":8484"

	m, err := ToMap(cfg)
	require.NoError(t, err)
	require.Equal(t, "/tmp/test", m["data_dir"])
	require.Equal(t, float64(2), m["max_concurrent"])

	server, ok := m["server"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, ":8484", server["listen_addr"])
}

func TestListValues(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	cfg.Server.AuthToken = "tok-secret-1234"

	plain, err := ListValues(cfg, false)
	require.NoError(t, err)
	require.Equal(t, "tok-secret-1234", plain["server.auth_token"])

	masked, err := ListValues(cfg, true)
	require.NoError(t, err)
	require.Equal(t, "***1234", masked["server.auth_token"])
	require.Equal(t, "info", masked["log_level"])
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	cfg := Defaults()
	cfg.MaxConcurrent = 8
	cfg.Context.Encoding = "o200k_base"
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "context.encoding")
	require.NoError(t, err)
	require.Equal(t, "o200k_base", v)

	v, err = GetValue(path, "max_concurrent")
	require.NoError(t, err)
	require.Equal(t, float64(8), v)

	_, err = GetValue(path, "nonexistent.key")
	require.EqualError(t, err, "unknown config key: nonexistent.key")
}

func TestSetValue(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"log_level", "debug", "debug"},
		{"max_concurrent", "16", float64(16)},
		{"server.listen_addr", ":9999", ":9999"},
		{"server.allowed_origins", `["https://a.example.com"]`, []any{"https://a.example.com"}},
		{"maintenance.sweep_schedule", "@every 30m", "@every 30m"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := tempConfigPath(t)
			writeTestConfig(t, path, Defaults())

			require.NoError(t, SetValue(path, tt.key, tt.raw))

			v, err := GetValue(path, tt.key)
			require.NoError(t, err)
			require.Equal(t, tt.want, v)

			v, err = GetValue(path, "context.encoding")
			require.NoError(t, err)
			require.Equal(t, "cl100k_base", v)
		})
	}
}

func TestSetValueRejects(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	require.ErrorContains(t, SetValue(path, "custom.flag", "true"), "unknown config key")
	require.ErrorContains(t, SetValue(path, "max_concurrent", "many"), "max_concurrent")
	require.ErrorContains(t, SetValue(path, "max_concurrent", "0"), "max_concurrent")
	require.ErrorContains(t, SetValue(path, "log_level", "loud"), "log_level")

	v, err := GetValue(path, "max_concurrent")
	require.NoError(t, err)
	require.Equal(t, float64(4), v)
}

func TestSetValueNonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	require.Error(t, SetValue(path, "log_level", "debug"))
}
