// Package config loads daemon configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon settings.
type Config struct {
	Port             int    `yaml:"port"`
	ProjectStorePath string `yaml:"project_store_path"`
	DBPath           string `yaml:"db_path"`

	AgentTimeoutSeconds int  `yaml:"agent_timeout_seconds"`
	AutoApproveGates    bool `yaml:"auto_approve_gates"`

	Generator GeneratorConfig `yaml:"generator"`
}

// GeneratorConfig configures the generative service client.
type GeneratorConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:                8000,
		ProjectStorePath:    "projects",
		DBPath:              "architect.db",
		AgentTimeoutSeconds: 120,
		Generator: GeneratorConfig{
			Endpoint:       "http://localhost:8090/v1/generate",
			Model:          "construction-planner-1",
			TimeoutSeconds: 60,
		},
	}
}

// Load reads the config file at path (missing file is fine) and applies env
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Port = p
		}
	}
	if v := os.Getenv("PROJECT_STORE_PATH"); v != "" {
		c.ProjectStorePath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GENERATOR_ENDPOINT"); v != "" {
		c.Generator.Endpoint = v
	}
	if v := os.Getenv("GENERATOR_MODEL"); v != "" {
		c.Generator.Model = v
	}
	if v := os.Getenv("GENERATOR_API_KEY"); v != "" {
		c.Generator.APIKey = v
	}
	if v := os.Getenv("AUTO_APPROVE_GATES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoApproveGates = b
		}
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ProjectStorePath == "" {
		return fmt.Errorf("project_store_path is required")
	}
	if c.AgentTimeoutSeconds <= 0 {
		c.AgentTimeoutSeconds = 120
	}
	return nil
}

// AgentTimeout returns the per-agent call bound as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// GeneratorTimeout returns the generator HTTP timeout as a duration.
func (c *Config) GeneratorTimeout() time.Duration {
	if c.Generator.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}
