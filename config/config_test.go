package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
http:
  port: 9090
  token: secret
database:
  url: postgres://localhost/dispatch
provider:
  api_key: test-key
distance:
  daily_quota: 500
matching:
  allow_same_unit_multi_location: true
assignment:
  proposal_window_days: 5
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "secret", cfg.HTTP.Token)
	assert.Equal(t, "postgres://localhost/dispatch", cfg.Database.URL)
	assert.Equal(t, 500, cfg.Distance.DailyQuota)
	assert.True(t, cfg.Matching.AllowSameUnitMultiLocation)
	assert.Equal(t, 5, cfg.Assignment.ProposalWindowDays)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 1000, cfg.Distance.DailyQuota)
	assert.Equal(t, 200, cfg.Distance.DefaultBatchLimit)
	assert.Equal(t, 3, cfg.Assignment.ProposalWindowDays)
	assert.Equal(t, 30, cfg.Outbox.IntervalSeconds)
	assert.Equal(t, []string{"Main", "Co", "Assistant", "Practicum"}, cfg.Matching.CategoryOrder)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ID_HTTP__PORT", "7070")
	cfg, err := Load(writeTemp(t, "config.yaml", sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Load(writeTemp(t, "config.toml", ""))
	assert.Error(t, err)
}

func TestInvalidCategoryOrder(t *testing.T) {
	_, err := Load(writeTemp(t, "config.yaml", "matching:\n  category_order: [\"Boss\"]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category_order")
}
