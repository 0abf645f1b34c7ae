package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	MaxConcurrent int    `json:"max_concurrent"`
	Server        struct {
		ListenAddr     string   `json:"listen_addr"`
		AllowedOrigins []string `json:"allowed_origins"`
		AuthToken      string   `json:"auth_token"`
	} `json:"server"`
	Context struct {
		Encoding         string `json:"encoding"`
		MaxContextTokens int    `json:"max_context_tokens"`
		OutputReserve    int    `json:"output_reserve"`
	} `json:"context"`
	Retry struct {
		MaxAttempts    int `json:"max_attempts"`
		InitialDelayMs int `json:"initial_delay_ms"`
		MaxDelayMs     int `json:"max_delay_ms"`
	} `json:"retry"`
	Maintenance struct {
		CheckpointSchedule string `json:"checkpoint_schedule"`
		SweepSchedule      string `json:"sweep_schedule"`
	} `json:"maintenance"`
}

// Defaults returns the configuration used when no file exists yet.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".composablestudio"),
		LogLevel:      "info",
		LogFormat:     "console",
		MaxConcurrent: 4,
	}
	cfg.Server.ListenAddr = "127.0.0.1:8484"
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Context.Encoding = "cl100k_base"
	cfg.Context.MaxContextTokens = 128000
	cfg.Context.OutputReserve = 4096
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelayMs = 500
	cfg.Retry.MaxDelayMs = 10000
	cfg.Maintenance.CheckpointSchedule = "@every 1h"
	cfg.Maintenance.SweepSchedule = "0 4 * * *"
	return cfg
}

// Load reads the config at path, writing defaults there if it does not
// exist. A .env file next to the config is loaded into the environment
// first; environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, errors.Wrap(err, "load .env")
		}
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if dir := os.Getenv("STUDIO_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("STUDIO_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if addr := os.Getenv("STUDIO_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if token := os.Getenv("STUDIO_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if origins := os.Getenv("STUDIO_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeDefaults(path string, cfg *Config) error {
	return errors.Wrap(Save(path, cfg), "write default config")
}

// Save writes cfg to path as indented JSON via a temp file and rename.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return writeRaw(path, append(data, '\n'))
}

func writeRaw(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrap(err, "write config")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "rename config")
	}
	return nil
}

// ToMap converts cfg into a generic nested map using its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return m, nil
}

// ListValues returns the config flattened to dot-separated keys, masking
// secrets when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return m, nil
}

// GetValue reads a single dot-separated key from the config file at path.
func GetValue(path, key string) (any, error) {
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, errors.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-separated key in the config file at path. raw is
// parsed as JSON when possible (numbers, booleans, arrays) and stored as a
// plain string otherwise. Keys the Config type does not declare are
// rejected, and the result must still decode and validate.
func SetValue(path, key, raw string) error {
	known, err := ListValues(Defaults(), false)
	if err != nil {
		return err
	}
	if _, ok := known[key]; !ok {
		return errors.Errorf("unknown config key: %s", key)
	}

	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	flat := Flatten(m)
	flat[key] = value
	nested, err := Unflatten(flat)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	check := Defaults()
	if err := json.Unmarshal(data, check); err != nil {
		return errors.Wrapf(err, "invalid value for %s", key)
	}
	if err := check.Validate(); err != nil {
		return err
	}
	return writeRaw(path, append(data, '\n'))
}

// Validate checks the values that the server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is empty")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return errors.New("server.listen_addr is empty")
	}
	if c.MaxConcurrent < 1 {
		return errors.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return errors.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
