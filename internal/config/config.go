package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI     AIConfig     `yaml:"ai" validate:"required"`
	Store  StoreConfig  `yaml:"store"`
	Output OutputConfig `yaml:"output"`
	Limits Limits       `yaml:"limits" validate:"required"`
}

type AIConfig struct {
	APIKey  string `yaml:"api_key" validate:"required,min=20"`
	Model   string `yaml:"model" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Client selects the transport: "http" for the built-in client,
	// "sdk" for the go-openai SDK.
	Client string `yaml:"client" validate:"oneof=http sdk"`
}

type StoreConfig struct {
	// Driver selects the consistency store backend.
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	// DSN is the sqlite file path; ignored for the memory driver.
	DSN string `yaml:"dsn"`
}

type OutputConfig struct {
	// Dir receives generation result JSON when set.
	Dir string `yaml:"dir"`
}

// Load reads the YAML config, overlays the API key from the environment and
// validates the result. A missing file yields defaults (the API key must
// then come from the environment).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(configPath())
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if cfg.AI.APIKey == "" || cfg.AI.APIKey == "${OPENAI_API_KEY}" {
		cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
			Client:  "http",
		},
		Store:  StoreConfig{Driver: "memory"},
		Limits: DefaultLimits(),
	}
}

func configPath() string {
	if path := os.Getenv("STORYFORGE_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "storyforge", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "storyforge", "config.yaml")
}

func (c *Config) validate() error {
	if c.AI.Client == "" {
		c.AI.Client = "http"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		return fmt.Errorf("sqlite store requires a dsn")
	}
	if c.Limits.MaxRunsPerStory == 0 {
		c.Limits = DefaultLimits()
	}

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
