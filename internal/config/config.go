// Package config loads the application configuration from a YAML file under
// the XDG config directory, with API keys supplied through the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI     AIConfig    `yaml:"ai" validate:"required"`
	Paths  PathsConfig `yaml:"paths"`
	Limits Limits      `yaml:"limits"`
}

// AIConfig carries the main model plus an optional planning model. The
// planning model handles structural work (outline, division, consolidation);
// the main model writes prose. When planning is absent the main model does
// both.
type AIConfig struct {
	Main     ModelConfig  `yaml:"main" validate:"required"`
	Planning *ModelConfig `yaml:"planning,omitempty"`
}

type ModelConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic custom"`
	Model    string `yaml:"model" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"required,url"`
	// APIKey is resolved from the environment, never stored in the file.
	APIKey    string `yaml:"-"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := getConfigPath()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.resolveAPIKeys(); err != nil {
			return nil, err
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.resolveAPIKeys(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file exists: an OpenAI main
// model with no separate planning model.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Main: ModelConfig{
				Provider:  "openai",
				Model:     "gpt-4.1",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		},
		Paths:  PathsConfig{DataDir: defaultDataDir()},
		Limits: DefaultLimits(),
	}
}

func getConfigPath() string {
	// Explicit config path via environment variable
	if path := os.Getenv("NOVELFORGE_CONFIG"); path != "" {
		return path
	}

	// XDG_CONFIG_HOME (XDG Base Directory Specification)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "novelforge", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "novelforge", "config.yaml")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "novelforge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "novelforge")
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// resolveAPIKeys fills in the API keys from the environment. The planning
// model falls back to the main model's key, matching the transport.
func (c *Config) resolveAPIKeys() error {
	env := c.AI.Main.APIKeyEnv
	if env == "" {
		env = defaultKeyEnv(c.AI.Main.Provider)
	}
	c.AI.Main.APIKey = os.Getenv(env)
	if c.AI.Main.APIKey == "" {
		return fmt.Errorf("API key not set: export %s", env)
	}

	if c.AI.Planning != nil {
		env := c.AI.Planning.APIKeyEnv
		if env == "" {
			env = defaultKeyEnv(c.AI.Planning.Provider)
		}
		if key := os.Getenv(env); key != "" {
			c.AI.Planning.APIKey = key
		} else {
			c.AI.Planning.APIKey = c.AI.Main.APIKey
		}
	}

	return nil
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func (c *Config) validate() error {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	} else {
		c.Paths.DataDir = expandTilde(c.Paths.DataDir)
	}

	if c.Limits.MaxRetries == 0 && c.Limits.RequestTimeout == 0 {
		c.Limits = DefaultLimits()
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Save writes the configuration to the given path. API keys never land in
// the file; only the environment variable names do.
func Save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}
