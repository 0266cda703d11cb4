package assign

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/trainops/instructor-dispatch/core/model"
)

// Config defines the matching policy. The ranking rules are a default policy,
// adjustable here rather than hard-coded.
type Config struct {
	// AllowSameUnitMultiLocation permits one instructor to serve several
	// locations of the same unit on the same date.
	AllowSameUnitMultiLocation bool `json:"allow_same_unit_multi_location" yaml:"allow_same_unit_multi_location"`
	// CategoryOrder overrides the seniority order used for Head slots, most
	// senior first. Empty uses Main, Co, Assistant, Practicum.
	CategoryOrder []string `json:"category_order" yaml:"category_order"`
}

// SetDefaults applies the default policy.
func (c *Config) SetDefaults() {
	if len(c.CategoryOrder) == 0 {
		c.CategoryOrder = []string{"Main", "Co", "Assistant", "Practicum"}
	}
}

// Validate checks the category order names.
func (c Config) Validate() error {
	for _, name := range c.CategoryOrder {
		if model.CategoryFromString(name) == model.CategoryUnknown {
			return fmt.Errorf("unknown category %q in category_order", name)
		}
	}
	return nil
}

// categoryRank maps the configured order to ranks, highest first.
func (c Config) categoryRank() map[model.Category]int {
	ranks := make(map[model.Category]int, len(c.CategoryOrder))
	for i, name := range c.CategoryOrder {
		ranks[model.CategoryFromString(name)] = len(c.CategoryOrder) - i
	}
	return ranks
}

// LoadConfig loads a matching policy from a JSON or YAML file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg Config
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err != nil {
		return Config{}, err
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}

// DecodeConfig reads from r to decode a matching policy.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	var cfg Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported format: %s", format)
	}
	cfg.SetDefaults()
	return cfg, cfg.Validate()
}
