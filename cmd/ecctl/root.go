package main

import (
	"codeberg.org/mutker/ecctl/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ecctl",
		Short:         "Control fans and performance scenarios through the embedded controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "configuration file (default /etc/ecctl.toml)")
	pf.String("log-level", config.DefaultLogLevel, "log level: debug, info, warning, error")
	pf.String("backend", config.DefaultBackend, "EC backend: auto, port, debugfs, sysfs")
	pf.String("model", "", "register table to use instead of DMI detection")
	pf.String("profiles", "", "profile store path")
	pf.String("lock", "", "write lock path")
	pf.String("register-table", "", "additional register table file")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newStatusCmd(a),
		newFanCmd(a),
		newScenarioCmd(a),
		newProfileCmd(a),
		newMonitorCmd(a),
		newApplyCmd(a),
	)

	return root
}
