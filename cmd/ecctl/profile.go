package main

import (
	"time"

	"codeberg.org/mutker/ecctl/internal/profile"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved profiles",
	}

	cmd.AddCommand(
		newProfileListCmd(a),
		newProfileActiveCmd(a),
		newProfileSetCmd(a),
		newProfileCreateCmd(a),
		newProfileDeleteCmd(a),
		newProfileSaveCmd(a),
	)

	return cmd
}

func newProfileListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  exactArgs(0),
		RunE: func(*cobra.Command, []string) error {
			m := a.profiles()

			list, err := m.List()
			if err != nil {
				return err
			}
			active, err := m.Active()
			if err != nil {
				return err
			}

			rows := [][]string{{"", "Name", "Scenario", "Fan override", "Created from", "Updated"}}
			for _, p := range list {
				marker := ""
				if active != nil && active.Name == p.Name {
					marker = "*"
				}
				override := "no"
				if p.FanOverride != nil {
					override = string(p.FanOverride.Mode)
				}
				rows = append(rows, []string{
					marker,
					p.Name,
					p.BaseScenario.DisplayName(),
					override,
					string(p.CreatedFrom),
					p.UpdatedAt.Local().Format(time.DateTime),
				})
			}

			return renderTable(rows)
		},
	}
}

func newProfileActiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the active profile",
		Args:  exactArgs(0),
		RunE: func(*cobra.Command, []string) error {
			p, err := a.profiles().Active()
			if err != nil {
				return err
			}
			if p == nil {
				pterm.Info.Println("No active profile")
				return nil
			}

			pterm.Println(p.Name)

			return nil
		},
	}
}

func newProfileSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Mark a profile active without applying it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.profiles().SetActive(cmd.Context(), args[0]); err != nil {
				return err
			}

			pterm.Success.Printfln("Active profile set to %s", args[0])

			return nil
		},
	}
}

func newProfileCreateCmd(a *app) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a profile based on a scenario",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scenario.Parse(base)
			if err != nil {
				return err
			}

			p, err := a.profiles().Create(cmd.Context(), args[0], s)
			if err != nil {
				return err
			}

			pterm.Success.Printfln("Profile %s created from %s", p.Name, s.DisplayName())

			return nil
		},
	}

	cmd.Flags().StringVar(&base, "scenario", string(scenario.Balanced), "base scenario")

	return cmd
}

func newProfileDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.profiles().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			pterm.Success.Printfln("Profile %s deleted", args[0])

			return nil
		},
	}
}

func newProfileSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save [name]",
		Short: "Save the current hardware state into a profile",
		Long: `Save the current scenario and fan configuration into a profile.

Without a name the active profile is updated. A missing profile is created.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.engine(cmd.Context()); err != nil {
				return err
			}

			p, err := a.profiles().Save(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}

			pterm.Success.Printfln("Profile %s saved (%s)", p.Name, p.BaseScenario.DisplayName())

			return nil
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [name]",
		Short: "Apply a profile, or the active profile when no name is given",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}

			p, err := a.profiles().Apply(cmd.Context(), firstArg(args))
			if err != nil {
				reportFailure(err)
				return err
			}

			printApplied(p)

			return runSoftwareLoops(cmd.Context(), e)
		},
	}

	return cmd
}

func printApplied(p profile.Profile) {
	if p.FanOverride != nil {
		pterm.Success.Printfln("Profile %s applied (%s, fan mode %s)", p.Name, p.BaseScenario.DisplayName(), p.FanOverride.Mode)
		return
	}

	pterm.Success.Printfln("Profile %s applied (%s)", p.Name, p.BaseScenario.DisplayName())
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
