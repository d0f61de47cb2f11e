package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/canonical/cos-configuration-k8s-operator/internal/publisher"
	"github.com/canonical/cos-configuration-k8s-operator/internal/server"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the command that prints a running daemon's status.
func newStatusCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's sync and publication status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := resolveAdminURL()
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+"/-/status", nil)
			if err != nil {
				return err
			}
			resp, err := adminClient.Do(req)
			if err != nil {
				return fmt.Errorf("reaching daemon at %s: %w", base, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
			}

			var body server.StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(body)
			}

			renderStatus(cmd, body)
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output raw JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, body server.StatusResponse) {
	out := cmd.OutOrStdout()
	status := body.Status

	fmt.Fprintf(out, "State:    %s\n", status.State)
	if status.Message != "" {
		fmt.Fprintf(out, "Message:  %s\n", status.Message)
	}
	if status.Revision != "" {
		fmt.Fprintf(out, "Revision: %s\n", status.Revision)
	}
	if status.GitSyncVersion != "" {
		fmt.Fprintf(out, "git-sync: %s\n", status.GitSyncVersion)
	}
	if !status.LastPassTime.IsZero() {
		fmt.Fprintf(out, "Last pass: %s (%s ago)\n",
			status.LastPassID, time.Since(status.LastPassTime).Round(time.Second))
	}
	if status.LastPassError != "" {
		fmt.Fprintf(out, "Last pass error: %s\n", status.LastPassError)
	}
	fmt.Fprintln(out)

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Kind", "Published", "Deferred", "Errors"})
	for _, kind := range publisher.Kinds() {
		ks, ok := status.Kinds[kind]
		if !ok {
			continue
		}
		published := fmt.Sprintf("%d", ks.PublishedCount)
		if ks.PublishedCount < 0 {
			published = "-"
		}
		t.AppendRow(table.Row{kind, published, ks.Deferred, len(ks.Errors)})
	}
	t.Render()

	for _, kind := range publisher.Kinds() {
		for _, msg := range status.Kinds[kind].Errors {
			fmt.Fprintf(out, "  %s: %s\n", kind, msg)
		}
	}
}
