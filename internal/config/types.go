package config

import (
	"path/filepath"
	"time"
)

// RepoSubdir is the directory name under the sync root into which git-sync
// checks out the repository (passed to git-sync via --dest). Having a fixed
// subdirectory is useful in lieu of a git "overwrite all" flag: any upstream
// change overwrites whatever is on disk.
const RepoSubdir = "repo"

// Config is the top-level configuration structure for the daemon.
type Config struct {
	Git      SourceSpec     `yaml:"git"`
	Paths    PathsConfig    `yaml:"paths"`
	Sync     SyncConfig     `yaml:"sync"`
	Channels ChannelsConfig `yaml:"channels"`
	Server   ServerConfig   `yaml:"server"`
}

// SourceSpec describes the remote source tree to mirror. It is immutable for
// the duration of a reconcile pass. An empty Repo means the workload is not
// configured; nothing is synced and nothing is published.
type SourceSpec struct {
	Repo   string `yaml:"repo,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	Rev    string `yaml:"rev,omitempty"`
	Depth  int    `yaml:"depth,omitempty"`
	SSHKey string `yaml:"ssh_key,omitempty"`
}

// Configured reports whether a source location is present. This is the sole
// signal that drives the Uninitialized/Idle vs Configured lifecycle.
func (s SourceSpec) Configured() bool {
	return s.Repo != ""
}

// PathsConfig holds the repository-relative subpaths that are scanned for
// publishable content. Paths are relative to the checked-out repository root.
type PathsConfig struct {
	PrometheusAlertRulesPath string `yaml:"prometheus_alert_rules_path,omitempty"`
	LokiAlertRulesPath       string `yaml:"loki_alert_rules_path,omitempty"`
	GrafanaDashboardsPath    string `yaml:"grafana_dashboards_path,omitempty"`
}

// SyncConfig controls the git-sync agent and the reconcile cadence.
type SyncConfig struct {
	// Root is the local directory git-sync mirrors into; the repository
	// itself lands under Root/repo.
	Root string `yaml:"root,omitempty"`

	// Interval is the scheduled reconcile tick; also passed to git-sync as
	// its continuous sync period.
	Interval time.Duration `yaml:"interval,omitempty"`

	// OneShotTimeout bounds the wait for a manually triggered one-time sync.
	OneShotTimeout time.Duration `yaml:"one_shot_timeout,omitempty"`

	// GitSyncBinary is the path to the git-sync executable.
	GitSyncBinary string `yaml:"git_sync_binary,omitempty"`
}

// ChannelsConfig holds the base URLs of the three downstream stores. An empty
// URL means that kind's channel is not joined yet; publishing that kind is
// deferred until a URL is supplied.
type ChannelsConfig struct {
	PrometheusURL string `yaml:"prometheus_url,omitempty"`
	LokiURL       string `yaml:"loki_url,omitempty"`
	GrafanaURL    string `yaml:"grafana_url,omitempty"`
}

// ServerConfig configures the admin HTTP endpoint (manual sync trigger,
// status, health).
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// RepoDir returns the absolute path of the checked-out repository.
func (c Config) RepoDir() string {
	return filepath.Join(c.Sync.Root, RepoSubdir)
}

// RulePaths returns the repository-relative subpaths hashed for change
// detection, in a stable order.
func (c Config) RulePaths() []string {
	return []string{
		c.Paths.PrometheusAlertRulesPath,
		c.Paths.LokiAlertRulesPath,
		c.Paths.GrafanaDashboardsPath,
	}
}
