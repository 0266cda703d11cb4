// Package config loads the engine configuration from a JSON or YAML file with
// environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/trainops/instructor-dispatch/core/assign"
	"github.com/trainops/instructor-dispatch/core/assignment"
	"github.com/trainops/instructor-dispatch/core/distance"
	"github.com/trainops/instructor-dispatch/core/metrics"
	"github.com/trainops/instructor-dispatch/infra/geo"
	"github.com/trainops/instructor-dispatch/infra/notify"
	"github.com/trainops/instructor-dispatch/infra/quota"
	"github.com/trainops/instructor-dispatch/infra/store"
)

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Port int `json:"port"`
	// Token, when set, is required as a bearer token on every API route.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
}

// OutboxConfig holds the dispatcher drain settings.
type OutboxConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	BatchSize       int `json:"batch_size"`
}

// SetDefaults applies sane defaults.
func (c *OutboxConfig) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 30
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// JobsConfig holds the periodic background job settings.
type JobsConfig struct {
	// DistanceEveryMins is the distance batch period. Zero disables it.
	DistanceEveryMins int `json:"distance_every_mins"`
	// PromoteEveryMins is the confirmation promotion period. Zero disables it.
	PromoteEveryMins int `json:"promote_every_mins"`
}

// CandidatesConfig holds the resolver settings.
type CandidatesConfig struct {
	PageSize int `json:"page_size"`
}

// SetDefaults applies sane defaults.
func (c *CandidatesConfig) SetDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
}

// Config is the full engine configuration.
type Config struct {
	HTTP       HTTPConfig        `json:"http"`
	Database   store.Config      `json:"database"`
	Redis      quota.Config      `json:"redis"`
	Provider   geo.Config        `json:"provider"`
	Distance   distance.Config   `json:"distance"`
	Matching   assign.Config     `json:"matching"`
	Assignment assignment.Config `json:"assignment"`
	Candidates CandidatesConfig  `json:"candidates"`
	Notify     notify.Config     `json:"notify"`
	Outbox     OutboxConfig      `json:"outbox"`
	Jobs       JobsConfig        `json:"jobs"`
	Metrics    metrics.Config    `json:"metrics"`
}

// Load reads the configuration file and applies ID_* environment overrides
// (ID_HTTP__PORT=9090 sets http.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("ID_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "id_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Database.SetDefaults()
	c.Redis.SetDefaults()
	c.Provider.SetDefaults()
	c.Distance.SetDefaults()
	c.Matching.SetDefaults()
	c.Assignment.SetDefaults()
	c.Candidates.SetDefaults()
	c.Notify.SetDefaults()
	c.Outbox.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks the sections that carry mandatory fields.
func (c *Config) Validate() error {
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return nil
}
