package main

import (
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newScenarioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Read and switch performance scenarios",
	}

	cmd.AddCommand(
		newScenarioStatusCmd(a),
		newScenarioListCmd(),
		newScenarioSetCmd(a),
		newScenarioShiftCmd(a),
		newScenarioSuperBatteryCmd(a),
	)

	return cmd
}

func newScenarioStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current scenario",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}

			st, err := e.Scenarios.Status(cmd.Context())
			if err != nil {
				return err
			}

			return renderPairs("Scenario", [][]string{
				{"Scenario", st.Scenario.DisplayName()},
				{"Shift mode", scenario.ShiftName(st.ShiftMode)},
				{"Super battery", formatSwitch(st.SuperBattery)},
			})
		},
	}
}

func newScenarioListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available scenarios",
		Args:  exactArgs(0),
		RunE: func(*cobra.Command, []string) error {
			rows := [][]string{{"Name", "Shift mode", "Fan mode", "Cooler boost", "Super battery"}}
			for _, s := range scenario.All() {
				settings, _ := scenario.SettingsFor(s)
				rows = append(rows, []string{
					s.DisplayName(),
					scenario.ShiftName(settings.ShiftMode),
					string(settings.Fan.Mode),
					formatSwitch(settings.Fan.CoolerBoost),
					formatSwitch(settings.SuperBattery),
				})
			}

			return renderTable(rows)
		},
	}
}

func newScenarioSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <scenario>",
		Short: "Switch to a scenario",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scenario.Parse(args[0])
			if err != nil {
				return err
			}

			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}

			if err := e.Scenarios.Set(cmd.Context(), s, scenario.Options{}); err != nil {
				reportFailure(err)
				return err
			}

			pterm.Success.Printfln("Scenario set to %s", s.DisplayName())

			return nil
		},
	}
}

func newScenarioShiftCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shift <eco|comfort|sport|turbo>",
		Short: "Write the shift mode register alone",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := scenario.ParseShift(args[0])
			if err != nil {
				return err
			}

			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Scenarios.SetShiftMode(cmd.Context(), v); err != nil {
				return err
			}

			pterm.Success.Printfln("Shift mode set to %s", scenario.ShiftName(v))

			return nil
		},
	}
}

func newScenarioSuperBatteryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "super-battery <on|off>",
		Short: "Switch super battery on or off",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}

			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Scenarios.SetSuperBattery(cmd.Context(), on); err != nil {
				return err
			}

			pterm.Success.Printfln("Super battery %s", formatSwitch(on))

			return nil
		},
	}
}

// reportFailure prints the progress of a failed scenario transition.
func reportFailure(err error) {
	f, ok := errors.DataOf[scenario.Failure](err)
	if !ok {
		return
	}

	pterm.Warning.Println(f.String())
	if f.Rollback == scenario.RollbackFailed {
		pterm.Warning.Println("Shift mode could not be restored, check \"ecctl scenario status\"")
	}
}
