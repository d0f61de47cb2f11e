package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/canonical/cos-configuration-k8s-operator/internal/server"

	"github.com/spf13/cobra"
)

// newSyncNowCmd creates the command that asks a running daemon for an
// immediate sync and publication pass.
func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-now",
		Short: "Trigger an immediate sync and publication pass",
		Long: `Asks the running daemon to sync the repository now and publish any
changed content, instead of waiting for the next scheduled pass. Blocks until
the pass completes and reports its outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveAdminURL()
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/-/sync", nil)
			if err != nil {
				return err
			}
			resp, err := adminClient.Do(req)
			if err != nil {
				return fmt.Errorf("reaching daemon at %s: %w", base, err)
			}
			defer resp.Body.Close()

			var body server.SyncResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("unexpected response (HTTP %d): %w", resp.StatusCode, err)
			}

			switch resp.StatusCode {
			case http.StatusOK:
				fmt.Fprintf(cmd.OutOrStdout(), "Synced (state: %s)\n", body.State)
				return nil
			case http.StatusConflict:
				return fmt.Errorf("sync rejected: %s", body.Error)
			default:
				return fmt.Errorf("sync failed: %s", body.Error)
			}
		},
	}
}
