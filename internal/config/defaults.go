package config

import "time"

const (
	// DefaultPrometheusAlertRulesPath is scanned for Prometheus rule files.
	DefaultPrometheusAlertRulesPath = "prometheus_alert_rules"

	// DefaultLokiAlertRulesPath is scanned for Loki rule files.
	DefaultLokiAlertRulesPath = "loki_alert_rules"

	// DefaultGrafanaDashboardsPath is scanned for dashboard files.
	DefaultGrafanaDashboardsPath = "grafana_dashboards"

	// DefaultSyncInterval is the scheduled reconcile tick.
	DefaultSyncInterval = 5 * time.Minute

	// DefaultOneShotTimeout bounds a manually triggered one-time sync.
	DefaultOneShotTimeout = 60 * time.Second

	// DefaultServerPort is the admin endpoint port.
	DefaultServerPort = 9000
)

// GetDefaultConfig returns the default configuration. The git source is left
// empty: a fresh deployment starts Uninitialized until a repo is configured.
func GetDefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			PrometheusAlertRulesPath: DefaultPrometheusAlertRulesPath,
			LokiAlertRulesPath:       DefaultLokiAlertRulesPath,
			GrafanaDashboardsPath:    DefaultGrafanaDashboardsPath,
		},
		Sync: SyncConfig{
			Root:           "/var/lib/cos-configuration",
			Interval:       DefaultSyncInterval,
			OneShotTimeout: DefaultOneShotTimeout,
			GitSyncBinary:  "git-sync",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: DefaultServerPort,
		},
	}
}
