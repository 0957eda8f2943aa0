package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable playground settings.
type Config struct {
	BaseURL         string `mapstructure:"base_url"`
	DebounceMS      int    `mapstructure:"debounce_ms"`      // collaboration publish quiet window
	AutosaveSeconds int    `mapstructure:"autosave_seconds"` // initial autosave period; prefs may override
	Collab          Collab `mapstructure:"collab"`
	LogLevel        string `mapstructure:"log_level"` // debug | info | warn | error
	LogJSON         *bool  `mapstructure:"log_json"`
	DataDir         string `mapstructure:"data_dir"` // override of the XDG data directory
	AIModel         string `mapstructure:"ai_model"`
}

// Collab configures the collaboration channel.
type Collab struct {
	Reconnect                  *bool `mapstructure:"reconnect"`
	MaxReconnectElapsedSeconds int   `mapstructure:"max_reconnect_elapsed_seconds"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		BaseURL:         "http://localhost:3000",
		DebounceMS:      800,
		AutosaveSeconds: 5,
		Collab:          Collab{Reconnect: boolPtr(false), MaxReconnectElapsedSeconds: 300},
		LogLevel:        "warn",
		LogJSON:         boolPtr(false),
		AIModel:         "gpt-4o-mini",
	}
}

func boolPtr(b bool) *bool { return &b }

// Debounce returns the publish quiet window.
func (c Config) Debounce() time.Duration { return time.Duration(c.DebounceMS) * time.Millisecond }

// AutosaveInterval returns the initial autosave period.
func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveSeconds) * time.Second
}

// ReconnectEnabled reports whether the collaboration channel redials.
func (c Config) ReconnectEnabled() bool { return c.Collab.Reconnect != nil && *c.Collab.Reconnect }

// MaxReconnectElapsed bounds one redial sequence.
func (c Config) MaxReconnectElapsed() time.Duration {
	return time.Duration(c.Collab.MaxReconnectElapsedSeconds) * time.Second
}

// JSONLogs reports whether logs are emitted as JSON.
func (c Config) JSONLogs() bool { return c.LogJSON != nil && *c.LogJSON }

// GlobalDir returns ~/.config/playground.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "playground"), nil
}

// LoadGlobal reads ~/.config/playground/config.yaml (or config.json).
// Returns defaults if neither file exists.
func LoadGlobal() (*Config, error) {
	dir, err := GlobalDir()
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		cfg, err := loadFile(filepath.Join(dir, name))
		if err != nil || cfg != nil {
			return cfg, err
		}
	}
	d := Defaults()
	return &d, nil
}

// LoadProject reads .playground.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".playground.yaml")
}

// loadFile parses the config file at path, YAML or JSON by extension.
// It returns nil when the file is absent.
func loadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// GlobalFile is the file SaveGlobal writes.
const GlobalFile = "config.yaml"

// SaveGlobal writes c to ~/.config/playground/config.yaml and returns the
// path written.
func SaveGlobal(c Config) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	v := viper.New()
	v.Set("base_url", c.BaseURL)
	v.Set("debounce_ms", c.DebounceMS)
	v.Set("autosave_seconds", c.AutosaveSeconds)
	v.Set("collab.max_reconnect_elapsed_seconds", c.Collab.MaxReconnectElapsedSeconds)
	if c.Collab.Reconnect != nil {
		v.Set("collab.reconnect", *c.Collab.Reconnect)
	}
	v.Set("log_level", c.LogLevel)
	if c.LogJSON != nil {
		v.Set("log_json", *c.LogJSON)
	}
	if c.DataDir != "" {
		v.Set("data_dir", c.DataDir)
	}
	if c.AIModel != "" {
		v.Set("ai_model", c.AIModel)
	}
	path := filepath.Join(dir, GlobalFile)
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer == nil {
			continue
		}
		if layer.BaseURL != "" {
			result.BaseURL = layer.BaseURL
		}
		if layer.DebounceMS > 0 {
			result.DebounceMS = layer.DebounceMS
		}
		if layer.AutosaveSeconds > 0 {
			result.AutosaveSeconds = layer.AutosaveSeconds
		}
		if layer.Collab.Reconnect != nil {
			result.Collab.Reconnect = layer.Collab.Reconnect
		}
		if layer.Collab.MaxReconnectElapsedSeconds > 0 {
			result.Collab.MaxReconnectElapsedSeconds = layer.Collab.MaxReconnectElapsedSeconds
		}
		if layer.LogLevel != "" {
			result.LogLevel = layer.LogLevel
		}
		if layer.LogJSON != nil {
			result.LogJSON = layer.LogJSON
		}
		if layer.DataDir != "" {
			result.DataDir = layer.DataDir
		}
		if layer.AIModel != "" {
			result.AIModel = layer.AIModel
		}
	}
	return result
}

// EnvPrefix prefixes environment overrides, e.g. PLAYGROUND_BASE_URL or
// PLAYGROUND_COLLAB_RECONNECT.
const EnvPrefix = "PLAYGROUND"

// ApplyEnv overrides cfg with any PLAYGROUND_* environment variables.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	keys := []string{
		"base_url", "debounce_ms", "autosave_seconds", "collab.reconnect",
		"collab.max_reconnect_elapsed_seconds", "log_level", "log_json", "data_dir", "ai_model",
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return err
		}
	}
	var env Config
	if err := v.Unmarshal(&env); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	*cfg = Merge(cfg, &env)
	return nil
}

// Load reads global and project files, merges them and applies environment
// overrides.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
