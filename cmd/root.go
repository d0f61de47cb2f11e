package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Default location of the daemon configuration file.
const defaultConfigPath = "/etc/cos-configuration/config.yaml"

// configPath is the configuration file used by the serve command and, for
// the admin-endpoint default, by the client commands.
var configPath string

// debug enables verbose logging across the application.
var debug bool

// adminURL is the admin endpoint the client commands (sync-now, status)
// talk to. When empty, it is derived from the configuration file.
var adminURL string

// rootCmd is the base command of the cos-configuration daemon and its
// client subcommands.
var rootCmd = &cobra.Command{
	Use:   "cos-configuration",
	Short: "Sync alert rules and dashboards from a git repository into COS",
	Long: `cos-configuration mirrors a git repository with git-sync and publishes
its Prometheus alert rules, Loki alert rules and Grafana dashboards into the
configured downstream stores, keeping them in step with the repository.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin-url", "", "Admin endpoint base URL (default derived from the config file)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncNowCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "cos-configuration version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
