package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error.
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// Validate checks a loaded configuration for values the daemon cannot work
// with. An empty git repo is valid (the workload is simply not configured).
func Validate(c Config) ValidationErrors {
	var errs ValidationErrors

	if c.Git.Depth < 0 {
		errs.Add("git.depth", "must not be negative")
	}
	if c.Sync.Root == "" {
		errs.Add("sync.root", "must not be empty")
	} else if !filepath.IsAbs(c.Sync.Root) {
		errs.Add("sync.root", "must be an absolute path")
	}
	if c.Sync.Interval <= 0 {
		errs.Add("sync.interval", "must be positive")
	}
	if c.Sync.OneShotTimeout <= 0 {
		errs.Add("sync.one_shot_timeout", "must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be in range 1-65535")
	}

	for field, path := range map[string]string{
		"paths.prometheus_alert_rules_path": c.Paths.PrometheusAlertRulesPath,
		"paths.loki_alert_rules_path":       c.Paths.LokiAlertRulesPath,
		"paths.grafana_dashboards_path":     c.Paths.GrafanaDashboardsPath,
	} {
		if path == "" {
			errs.Add(field, "must not be empty")
		} else if filepath.IsAbs(path) {
			errs.Add(field, "must be relative to the repository root")
		}
	}

	for field, raw := range map[string]string{
		"channels.prometheus_url": c.Channels.PrometheusURL,
		"channels.loki_url":       c.Channels.LokiURL,
		"channels.grafana_url":    c.Channels.GrafanaURL,
	} {
		if raw == "" {
			continue // channel not joined yet
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add(field, "must be a valid absolute URL")
		}
	}

	return errs
}
