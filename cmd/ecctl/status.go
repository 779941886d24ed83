package main

import (
	"codeberg.org/mutker/ecctl/internal/logger"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the detected machine, scenario and fan status",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			snap, err := e.Monitor.Sample(ctx)
			if err != nil {
				return err
			}

			table := e.Registers.Model()
			if e.Registers.IsFallback() {
				table += " (fallback)"
			}

			rows := [][]string{
				{"Vendor", orNotAvailable(e.Identity.Vendor)},
				{"Product", orNotAvailable(e.Identity.Product)},
				{"Register table", table},
				{"Backend", e.Backend.Kind().String()},
			}

			active, err := e.Profiles.Active()
			switch {
			case err != nil:
				logger.Warn().Err(err).Msg("Failed to read active profile")
			case active != nil:
				rows = append(rows, []string{"Active profile", active.Name})
			}

			return renderPairs("Status", append(rows, snapshotRows(snap)...))
		},
	}
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
