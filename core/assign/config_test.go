package assign

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainops/instructor-dispatch/core/model"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, []string{"Main", "Co", "Assistant", "Practicum"}, cfg.CategoryOrder)
	require.NoError(t, cfg.Validate())

	ranks := cfg.categoryRank()
	assert.Greater(t, ranks[model.CategoryMain], ranks[model.CategoryCo])
	assert.Greater(t, ranks[model.CategoryCo], ranks[model.CategoryAssistant])
}

func TestConfigValidateRejectsUnknownCategory(t *testing.T) {
	cfg := Config{CategoryOrder: []string{"Main", "Boss"}}
	assert.Error(t, cfg.Validate())
}

func TestDecodeConfigYAML(t *testing.T) {
	r := strings.NewReader("allow_same_unit_multi_location: true\ncategory_order: [Co, Main]\n")
	cfg, err := DecodeConfig(r, "yaml")
	require.NoError(t, err)
	assert.True(t, cfg.AllowSameUnitMultiLocation)
	assert.Equal(t, []string{"Co", "Main"}, cfg.CategoryOrder)

	ranks := cfg.categoryRank()
	assert.Greater(t, ranks[model.CategoryCo], ranks[model.CategoryMain])
}

func TestDecodeConfigJSON(t *testing.T) {
	r := strings.NewReader(`{"category_order": ["Main"]}`)
	cfg, err := DecodeConfig(r, "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"Main"}, cfg.CategoryOrder)
}

func TestDecodeConfigUnknownFormat(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader(""), "toml")
	assert.Error(t, err)
}
