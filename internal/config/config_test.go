package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.Git.Configured())
	assert.Equal(t, DefaultPrometheusAlertRulesPath, cfg.Paths.PrometheusAlertRulesPath)
	assert.Equal(t, DefaultLokiAlertRulesPath, cfg.Paths.LokiAlertRulesPath)
	assert.Equal(t, DefaultGrafanaDashboardsPath, cfg.Paths.GrafanaDashboardsPath)
	assert.Equal(t, DefaultSyncInterval, cfg.Sync.Interval)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
git:
  repo: https://github.com/canonical/cos-config-example.git
  branch: main
  depth: 1
paths:
  grafana_dashboards_path: dashboards
sync:
  interval: 1m
channels:
  prometheus_url: http://prometheus:9090/api/v1/rules
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Git.Configured())
	assert.Equal(t, "https://github.com/canonical/cos-config-example.git", cfg.Git.Repo)
	assert.Equal(t, "main", cfg.Git.Branch)
	assert.Equal(t, 1, cfg.Git.Depth)
	assert.Equal(t, "dashboards", cfg.Paths.GrafanaDashboardsPath)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultPrometheusAlertRulesPath, cfg.Paths.PrometheusAlertRulesPath)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "http://prometheus:9090/api/v1/rules", cfg.Channels.PrometheusURL)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("git: [not a mapping"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "empty repo is valid (unconfigured)",
			mutate: func(c *Config) { c.Git.Repo = "" },
		},
		{
			name:    "negative depth",
			mutate:  func(c *Config) { c.Git.Depth = -1 },
			wantErr: "git.depth",
		},
		{
			name:    "relative sync root",
			mutate:  func(c *Config) { c.Sync.Root = "relative/path" },
			wantErr: "sync.root",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: "sync.interval",
		},
		{
			name:    "absolute rules path",
			mutate:  func(c *Config) { c.Paths.LokiAlertRulesPath = "/etc/rules" },
			wantErr: "loki_alert_rules_path",
		},
		{
			name:    "bad channel url",
			mutate:  func(c *Config) { c.Channels.GrafanaURL = "not a url" },
			wantErr: "channels.grafana_url",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			test.mutate(&cfg)
			errs := Validate(cfg)
			if test.wantErr == "" {
				assert.False(t, errs.HasErrors(), "unexpected errors: %v", errs)
			} else {
				require.True(t, errs.HasErrors())
				assert.Contains(t, errs.Error(), test.wantErr)
			}
		})
	}
}

func TestRepoDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Sync.Root = "/var/lib/cos"
	assert.Equal(t, filepath.Join("/var/lib/cos", RepoSubdir), cfg.RepoDir())
}
