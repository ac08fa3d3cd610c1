package config

import (
	"os"
	"path/filepath"
	"testing"

	"imss/harvester/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
source:
  base_url: http://localhost:8080
  max_requests_per_second: 5
  proxies:
    - http://proxy-1:3128
harvest:
  years: ["2019", "2020"]
  start_from: ["3", "45"]
  output: file
  output_dir: /tmp/contracts
  delay_min: 0
  delay_max: 0
redis:
  enabled: true
  consumer_group: test_group
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8080", cfg.Source.BaseURL)
	assert.Equal(t, 5, cfg.Source.MaxRequestsPerSecond)
	assert.Equal(t, []string{"http://proxy-1:3128"}, cfg.Source.Proxies)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, "/tmp/contracts", cfg.Harvest.OutputDir)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "test_group", cfg.Redis.ConsumerGroup)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.False(t, cfg.Database.Enabled)

	run := cfg.RunConfig(true)
	assert.Equal(t, []string{"2019", "2020"}, run.Periods)
	assert.Equal(t, []string{"3", "45"}, run.StartFrom)
	assert.Equal(t, domain.OutputFile, run.Output)
	assert.True(t, run.Continue)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://compras.imss.gob.mx", cfg.Source.BaseURL)
	assert.Equal(t, "stdout", cfg.Harvest.Output)
	assert.Equal(t, 1000, cfg.Harvest.DelayMin)
	assert.Equal(t, 2000, cfg.Harvest.DelayMax)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "harvest:\n  output: stdout\n")
	t.Setenv("HARVEST_OUTPUT", "file")
	t.Setenv("SOURCE_BASE_URL", "http://mirror.local")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Harvest.Output)
	assert.Equal(t, "http://mirror.local", cfg.Source.BaseURL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source:  SourceConfig{BaseURL: "http://compras.imss.gob.mx", MaxRequestsPerSecond: 1},
			Harvest: HarvestConfig{Output: "file", DelayMin: 1000, DelayMax: 2000},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "no delay", mutate: func(c *Config) { c.Harvest.DelayMin, c.Harvest.DelayMax = 0, 0 }},
		{name: "bad output", mutate: func(c *Config) { c.Harvest.Output = "csv" }, wantErr: "harvest.output"},
		{name: "long start path", mutate: func(c *Config) { c.Harvest.StartFrom = []string{"1", "2", "3", "4"} }, wantErr: "start_from"},
		{name: "inverted delay", mutate: func(c *Config) { c.Harvest.DelayMin = 3000 }, wantErr: "delay_min"},
		{name: "negative delay", mutate: func(c *Config) { c.Harvest.DelayMin = -1 }, wantErr: "negative"},
		{name: "no base url", mutate: func(c *Config) { c.Source.BaseURL = "" }, wantErr: "base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
