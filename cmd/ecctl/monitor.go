package main

import (
	"time"

	"codeberg.org/mutker/ecctl/internal/config"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/monitor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newMonitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print temperatures and fan speeds until interrupted",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			m := e.Monitor
			if a.cfg.Metrics.Enabled {
				rec, err := e.OpenRecorder()
				if err != nil {
					return err
				}
				defer func() {
					if err := rec.Close(); err != nil {
						logger.Error().Err(err).Msg("Failed to close metrics database")
					}
				}()

				pterm.Info.Printfln("Recording to %s, session %s", a.cfg.Metrics.DBPath, rec.Session())
				m = e.NewMonitor(rec)
			}

			logger.Info().Int("interval", a.cfg.Interval).Msg("Monitor mode activated")

			return m.Run(ctx, time.Duration(a.cfg.Interval)*time.Second, func(s monitor.Snapshot) error {
				pterm.Println(sampleLine(s))
				return nil
			})
		},
	}

	cmd.Flags().Int("interval", config.DefaultInterval, "seconds between samples")
	cmd.Flags().Bool("record", false, "record samples to the metrics database")
	cmd.Flags().String("db", "", "metrics database path")

	return cmd
}
