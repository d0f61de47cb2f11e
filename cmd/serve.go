package cmd

import (
	"fmt"

	"github.com/canonical/cos-configuration-k8s-operator/internal/app"

	"github.com/spf13/cobra"
)

// newServeCmd creates the command that runs the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync and publication daemon",
		Long: `Starts the daemon: the git-sync agent is supervised according to the
configured source, changed content is published to the downstream stores, and
the admin endpoint (health, status, manual sync) is served.

The daemon reconciles on a fixed interval and additionally whenever the
mirrored repository changes on disk. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(app.Options{
				ConfigPath: configPath,
				Debug:      debug,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run(cmd.Context())
		},
	}
}
