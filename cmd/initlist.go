package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nid2geo/internal/nid"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Build the list of archives to download",
	Long: `Reads a tab-separated list of administrative units (JPT_KOD_JE, XCoord, YCoord),
asks the NID WMS which register archives cover each unit and writes them to a
tab-separated archive list (JPT_KOD_JE, typ_rejestru, link_do_pobrania).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		session, _ := cmd.Flags().GetString("session")
		if v, _ := cmd.Flags().GetString("input"); v != "" {
			cfg.Init.Input = v
		}
		if v, _ := cmd.Flags().GetString("output"); v != "" {
			cfg.Init.Output = v
		}
		if err := cfg.Validate("init"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "init"))

		units, err := nid.ReadUnits(ctx, cfg.Init.Input)
		if err != nil {
			return eris.Wrap(err, "init")
		}
		log.Info("units loaded", zap.String("input", cfg.Init.Input), zap.Int("units", len(units)))

		archives, err := newClient(cfg, session).Discover(ctx, units, func(done, total int, unit string) {
			if done%50 == 0 || done == total {
				log.Info("discovery progress", zap.Int("done", done), zap.Int("total", total), zap.String("unit", unit))
			}
		})
		if err != nil {
			return eris.Wrap(err, "init")
		}

		if err := nid.WriteArchiveList(cfg.Init.Output, archives); err != nil {
			return eris.Wrap(err, "init")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d archives to %s\n", len(archives), cfg.Init.Output)
		return nil
	},
}

func init() {
	initCmd.Flags().String("session", "", "WMS session id (default: nid.session_id)")
	initCmd.Flags().String("input", "", "unit list (default: init.input)")
	initCmd.Flags().String("output", "", "archive list to write (default: init.output)")
	rootCmd.AddCommand(initCmd)
}
