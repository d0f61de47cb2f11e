package cmd

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/config"
)

// adminClient is the HTTP client used by the client subcommands. The manual
// sync action can block for a full one-shot cycle, hence the long timeout.
var adminClient = &http.Client{Timeout: 2 * time.Minute}

// resolveAdminURL returns the admin endpoint base URL: the --admin-url flag
// when given, otherwise the address from the configuration file.
func resolveAdminURL() (string, error) {
	if adminURL != "" {
		return adminURL, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}
	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Server.Port)), nil
}
