package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var wmsTestCmd = &cobra.Command{
	Use:   "wms-test",
	Short: "Check that the NID WMS accepts the session id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("wms-test"); err != nil {
			return err
		}
		session, _ := cmd.Flags().GetString("session")

		status, err := newClient(cfg, session).Probe(ctx)
		if err != nil {
			return eris.Wrap(err, "wms-test")
		}
		if status != http.StatusOK {
			fmt.Fprintf(cmd.OutOrStdout(), "WMS connection failed: HTTP %d (the session id is probably stale)\n", status)
			return eris.Errorf("wms-test: http %d", status)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "WMS connection OK")
		return nil
	},
}

func init() {
	wmsTestCmd.Flags().String("session", "", "WMS session id (default: nid.session_id)")
	rootCmd.AddCommand(wmsTestCmd)
}
