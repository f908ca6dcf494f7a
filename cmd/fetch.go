package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nid2geo/internal/nid"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the archives in an archive list",
	Long: `Downloads every archive of a tab-separated archive list to
<outdir>/<typ_rejestru>/<JPT_KOD_JE>.zip. Failed downloads are logged and skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if v, _ := cmd.Flags().GetString("input"); v != "" {
			cfg.Fetch.Input = v
		}
		if v, _ := cmd.Flags().GetString("outdir"); v != "" {
			cfg.Fetch.OutDir = v
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		archives, err := nid.ReadArchiveList(ctx, cfg.Fetch.Input)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		stats, err := nid.DownloadArchives(ctx, newFetcher(cfg), archives, cfg.Fetch.OutDir)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d of %d archives (%d failed, %d skipped) to %s\n",
			stats.Downloaded, len(archives), stats.Failed, stats.Skipped, cfg.Fetch.OutDir)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("input", "", "archive list (default: fetch.input)")
	fetchCmd.Flags().String("outdir", "", "download directory (default: fetch.outdir)")
	rootCmd.AddCommand(fetchCmd)
}
