// Package config holds the server configuration file and the YAML
// definition loader that seeds the repository at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, read from a YAML file.
type Config struct {
	// Listen is the address the server binds, host:port.
	Listen string `yaml:"listen"`

	// AdminPrefix is the URL prefix the admin API is mounted under.
	AdminPrefix string `yaml:"adminPrefix"`

	Log LogConfig `yaml:"log"`

	// Definitions are glob patterns for definition files, resolved
	// relative to the config file. ** matches recursively.
	Definitions []string `yaml:"definitions"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:      ":8080",
		AdminPrefix: "/__admin",
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFile reads a YAML configuration file, filling unset fields from
// Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.AdminPrefix == "" {
		cfg.AdminPrefix = "/__admin"
	}

	base := filepath.Dir(path)
	for i, pattern := range cfg.Definitions {
		if !filepath.IsAbs(pattern) {
			cfg.Definitions[i] = filepath.Join(base, pattern)
		}
	}
	return cfg, nil
}
