package repair

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty sentinel", func(c *Config) { c.Sentinel = "  " }},
		{"zero extract radius", func(c *Config) { c.ExtractRadius = 0 }},
		{"zero search radius", func(c *Config) { c.SearchRadius = 0 }},
		{"search narrower than extract", func(c *Config) { c.SearchRadius = 1 }},
		{"no result keywords", func(c *Config) { c.ResultKeywords = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfig_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	data := []byte(`
sentinel: "Not specified"
search_radius: 15
result_keywords:
  - negative
  - positive
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Not specified", cfg.Sentinel)
	assert.Equal(t, 15, cfg.SearchRadius)
	assert.Equal(t, []string{"negative", "positive"}, cfg.ResultKeywords)

	// Untouched fields keep defaults.
	assert.Equal(t, 2, cfg.ExtractRadius)
	assert.NotEmpty(t, cfg.SystemAnchors)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
