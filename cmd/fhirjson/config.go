package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds defaults read from a YAML file. Flags given on the command
// line take precedence.
type Config struct {
	Timezone    string       `yaml:"timezone"`
	Validate    *bool        `yaml:"validate"`
	Constraints *bool        `yaml:"constraints"`
	Sanitize    []string     `yaml:"sanitize"`
	Packages    []string     `yaml:"packages"`
	Workers     int          `yaml:"workers"`
	LogLevel    string       `yaml:"log_level"`
	Output      OutputConfig `yaml:"output"`
}

// OutputConfig controls the shape of printed records.
type OutputConfig struct {
	Pretty    bool `yaml:"pretty"`
	Analytics bool `yaml:"analytics"`
}

// LoadConfig reads path. An empty path yields an empty Config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML document. Unknown keys are rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	return cfg, nil
}

// applyTo fills the input flags left at their zero value.
func (c *Config) applyTo(in *InputFlags) {
	if in.Timezone == "" {
		in.Timezone = c.Timezone
	}
	if !in.NoValidate && c.Validate != nil && !*c.Validate {
		in.NoValidate = true
	}
	if len(in.Sanitize) == 0 {
		in.Sanitize = c.Sanitize
	}
	if len(in.Packages) == 0 {
		in.Packages = c.Packages
	}
	if in.Workers == 0 {
		in.Workers = c.Workers
	}
}

// constraints reports whether FHIRPath invariants should run.
func (c *Config) constraints() bool {
	return c.Constraints == nil || *c.Constraints
}
