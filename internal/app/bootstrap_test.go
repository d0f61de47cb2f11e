package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/reconciler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewApplication_MissingConfigUsesDefaults(t *testing.T) {
	app, err := NewApplication(Options{
		ConfigPath: filepath.Join(t.TempDir(), "does-not-exist.yaml"),
		LogOutput:  io.Discard,
	})
	require.NoError(t, err)

	assert.Equal(t, "prometheus_alert_rules", app.cfg.Paths.PrometheusAlertRulesPath)
	assert.Equal(t, 5*time.Minute, app.cfg.Sync.Interval)
	assert.Equal(t, reconciler.StateUninitialized, app.Manager().Status().State)
}

func TestNewApplication_LoadsConfigFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
git:
  repo: https://github.com/canonical/cos-config-example.git
  branch: main
sync:
  root: `+root+`
  interval: 30s
server:
  port: 8081
`)

	app, err := NewApplication(Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)

	assert.Equal(t, "main", app.cfg.Git.Branch)
	assert.Equal(t, 30*time.Second, app.cfg.Sync.Interval)
	assert.Contains(t, app.admin.Addr(), ":8081")
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
git:
  repo: https://github.com/canonical/cos-config-example.git
  depth: -1
`)

	_, err := NewApplication(Options{ConfigPath: path, LogOutput: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestReloadConfig_AppliesChanges(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
git:
  repo: https://github.com/canonical/cos-config-example.git
  branch: main
sync:
  root: `+root+`
`)

	app, err := NewApplication(Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)
	require.Equal(t, "main", app.cfg.Git.Branch)

	require.NoError(t, os.WriteFile(path, []byte(`
git:
  repo: https://github.com/canonical/cos-config-example.git
  branch: production
sync:
  root: `+root+`
`), 0o644))

	require.NoError(t, app.reloadConfig())
	assert.Equal(t, "production", app.cfg.Git.Branch)
}

func TestReloadConfig_InvalidFileKeepsRunningConfig(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
git:
  repo: https://github.com/canonical/cos-config-example.git
sync:
  root: `+root+`
`)

	app, err := NewApplication(Options{ConfigPath: path, LogOutput: io.Discard})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
git:
  repo: https://github.com/canonical/cos-config-example.git
  depth: -1
`), 0o644))

	err = app.reloadConfig()
	require.Error(t, err)
	assert.Equal(t, root, app.cfg.Sync.Root, "running configuration must be untouched")
	assert.Equal(t, 0, app.cfg.Git.Depth)
}

func TestNewApplication_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "git: [broken")

	_, err := NewApplication(Options{ConfigPath: path, LogOutput: io.Discard})
	require.Error(t, err)
}
