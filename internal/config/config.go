package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Audio settings
	Audio struct {
		Device         string   `yaml:"device"`
		PreferredRates []uint32 `yaml:"preferred_rates"`
	} `yaml:"audio"`

	// VAD settings
	VAD struct {
		ModelPath       string  `yaml:"model_path"`
		SampleRate      int     `yaml:"sample_rate"`
		EnergyThreshold float64 `yaml:"energy_threshold"`
	} `yaml:"vad"`

	// Recording settings
	Recording struct {
		SilenceThreshold  float64 `yaml:"silence_threshold"`
		SilenceDurationMs int     `yaml:"silence_duration_ms"`
		SilencePaddingMs  int     `yaml:"silence_padding_ms"`
	} `yaml:"recording"`

	// Project settings
	Project struct {
		Directory string `yaml:"directory"`
	} `yaml:"project"`

	// Hotkey settings
	Hotkeys struct {
		PauseResume string `yaml:"pause_resume"`
		Stop        string `yaml:"stop"`
	} `yaml:"hotkeys"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Audio defaults
	cfg.Audio.Device = ""
	cfg.Audio.PreferredRates = nil

	// VAD defaults
	cfg.VAD.ModelPath = ""
	cfg.VAD.SampleRate = 16000
	cfg.VAD.EnergyThreshold = 0.01

	// Recording defaults
	cfg.Recording.SilenceThreshold = 0.01
	cfg.Recording.SilenceDurationMs = 1000
	cfg.Recording.SilencePaddingMs = 200

	// Project defaults
	cfg.Project.Directory = "corpusrec"

	// Hotkey defaults
	cfg.Hotkeys.PauseResume = "f9"
	cfg.Hotkeys.Stop = "f10"

	return cfg
}

// SilenceDuration returns the recording silence duration as a time.Duration
func (c *Config) SilenceDuration() time.Duration {
	return time.Duration(c.Recording.SilenceDurationMs) * time.Millisecond
}

// SilencePadding returns the recording silence padding as a time.Duration
func (c *Config) SilencePadding() time.Duration {
	return time.Duration(c.Recording.SilencePaddingMs) * time.Millisecond
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.corpusrecrc > /etc/corpusrec/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	// If explicit path is provided, use it
	if explicitPath != "" {
		return Load(explicitPath)
	}

	// Try user config (~/.corpusrecrc)
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(homeDir, ".corpusrecrc")
		if _, err := os.Stat(userConfigPath); err == nil {
			cfg, err := Load(userConfigPath)
			if err == nil {
				return cfg, nil
			}
		}
	}

	// Try system config (/etc/corpusrec/config.yaml)
	systemConfigPath := "/etc/corpusrec/config.yaml"
	if _, err := os.Stat(systemConfigPath); err == nil {
		cfg, err := Load(systemConfigPath)
		if err == nil {
			return cfg, nil
		}
	}

	// No config file found, return defaults
	return DefaultConfig(), nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
