package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emmett/ears/internal/logging"
	"github.com/emmett/ears/internal/models"
)

// DefaultBufferFrames queues 256 seconds of 8000-sample frames
const DefaultBufferFrames = 512

// Config represents the application configuration.
// The audio format is fixed and has no settings here.
type Config struct {
	// Model settings
	Model struct {
		Path string `yaml:"path"`
	} `yaml:"model"`

	// Log settings (stderr only)
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Buffer settings
	Buffer struct {
		Frames int `yaml:"frames"`
	} `yaml:"buffer"`

	// Input settings; an empty file means the default microphone
	Input struct {
		File     string `yaml:"file"`
		Realtime bool   `yaml:"realtime"`
	} `yaml:"input"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Model.Path = models.DefaultModelDir

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	cfg.Buffer.Frames = DefaultBufferFrames

	cfg.Input.File = ""
	cfg.Input.Realtime = false

	return cfg
}

// Load loads configuration from file, then applies environment overrides
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.earsrc > /etc/ears/config.yaml > defaults
func LoadWithFallback(explicitPath string) (*Config, error) {
	// If explicit path is provided, use it
	if explicitPath != "" {
		return Load(explicitPath)
	}

	// Try user config (~/.earsrc)
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, ".earsrc")
		if _, err := os.Stat(userConfigPath); err == nil {
			return Load(userConfigPath)
		}
	}

	// Try system config (/etc/ears/config.yaml)
	systemConfigPath := "/etc/ears/config.yaml"
	if _, err := os.Stat(systemConfigPath); err == nil {
		return Load(systemConfigPath)
	}

	// No config file found, defaults plus environment
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model.Path) == "" {
		return fmt.Errorf("model.path must not be empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Buffer.Frames <= 0 {
		return fmt.Errorf("buffer.frames must be positive, got %d", c.Buffer.Frames)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("EARS_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("EARS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EARS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EARS_BUFFER_FRAMES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EARS_BUFFER_FRAMES: %w", err)
		}
		cfg.Buffer.Frames = n
	}
	if v := os.Getenv("EARS_INPUT_FILE"); v != "" {
		cfg.Input.File = v
	}
	if v := os.Getenv("EARS_INPUT_REALTIME"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EARS_INPUT_REALTIME: %w", err)
		}
		cfg.Input.Realtime = b
	}
	return nil
}
