package main

import (
	"context"
	"strconv"
	"strings"

	"codeberg.org/mutker/ecctl/internal/engine"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/registers"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newFanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fan",
		Short: "Read and control the fans",
	}

	cmd.AddCommand(
		newFanStatusCmd(a),
		newFanModeCmd(a),
		newFanCoolerBoostCmd(a),
		newFanSpeedCmd(a),
		newFanCurveCmd(a),
		newFanResetCmd(a),
	)

	return cmd
}

func newFanStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show fan mode, cooler boost and curves",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			st, err := e.Fans.ReadState(ctx)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Mode", string(st.Mode)},
				{"Cooler boost", formatSwitch(st.CoolerBoost)},
			}
			for _, f := range registers.Fans {
				curve := formatCurve(st.Curve(f))
				if !e.Guard.CurveHardwareBacked(f) {
					curve = "no curve storage, software control only"
				}
				rows = append(rows, []string{strings.ToUpper(string(f)) + " curve", curve})
			}

			return renderPairs("Fans", rows)
		},
	}
}

func newFanModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <auto|silent|basic|advanced>",
		Short: "Set the EC fan mode",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := fan.ParseMode(args[0])
			if err != nil {
				return err
			}
			if mode == fan.ModeManual {
				return errors.New().WithMessage(errors.ErrInvalidArgument, `use "ecctl fan speed" for manual control`)
			}

			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Fans.SetMode(cmd.Context(), mode); err != nil {
				return err
			}

			pterm.Success.Printfln("Fan mode set to %s", mode)

			return nil
		},
	}
}

func newFanCoolerBoostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cooler-boost <on|off>",
		Short: "Switch cooler boost on or off",
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
			if err := e.Fans.SetCoolerBoost(cmd.Context(), on); err != nil {
				return err
			}

			pterm.Success.Printfln("Cooler boost %s", formatSwitch(on))

			return nil
		},
	}
}

func newFanSpeedCmd(a *app) *cobra.Command {
	var fanName string

	cmd := &cobra.Command{
		Use:   "speed <percent>",
		Short: "Fix fan speed at a percentage",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			percent, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
			if err != nil {
				return usageError(err)
			}
			fans, err := parseFans(fanName)
			if err != nil {
				return err
			}

			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}

			for _, f := range fans {
				applied, err := e.Fans.SetManual(cmd.Context(), f, percent)
				if err != nil {
					return err
				}
				pterm.Success.Printfln("%s fan set to %d%%", strings.ToUpper(string(f)), applied)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&fanName, "fan", "both", "fan to control: cpu, gpu or both")

	return cmd
}

func newFanCurveCmd(a *app) *cobra.Command {
	var fanName, preset, points string

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Apply a fan curve from a preset or explicit points",
		Long: `Apply a fan curve to one or both fans.

Points are given as temperature:duty pairs, for example
  ecctl fan curve --fan cpu --points "40:0,50:30,60:50,70:70,80:90,90:100"

Fans without curve storage in the EC are driven by a software loop, which
keeps the command in the foreground until it is interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			curve, err := curveFromFlags(preset, points)
			if err != nil {
				return err
			}
			fans, err := parseFans(fanName)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := a.engine(ctx)
			if err != nil {
				return err
			}

			for _, f := range fans {
				applied, err := e.Fans.ApplyCurve(ctx, f, curve)
				if err != nil {
					return err
				}
				pterm.Success.Printfln("%s fan curve %s applied (%s)", strings.ToUpper(string(f)), curve, applied)
			}

			return runSoftwareLoops(ctx, e)
		},
	}

	cmd.Flags().StringVar(&fanName, "fan", "both", "fan to control: cpu, gpu or both")
	cmd.Flags().StringVar(&preset, "preset", "", "curve preset: silent, balanced, performance or custom")
	cmd.Flags().StringVar(&points, "points", "", `custom curve as "temp:duty,..."`)

	return cmd
}

func newFanResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return the fans to EC automatic control",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			if err := e.Fans.Reset(cmd.Context()); err != nil {
				return err
			}

			pterm.Success.Println("Fans returned to automatic control")

			return nil
		},
	}
}

// runSoftwareLoops blocks while software fan loops are running, until ctx
// is cancelled.
func runSoftwareLoops(ctx context.Context, e *engine.Engine) error {
	if len(e.Fans.Loops()) == 0 {
		return nil
	}

	pterm.Info.Println("Software fan control running, press Ctrl+C to stop")
	<-ctx.Done()
	e.Fans.StopLoops()
	pterm.Info.Println("Software fan control stopped")

	return nil
}

func curveFromFlags(preset, points string) (fan.Curve, error) {
	errFactory := errors.New()

	preset = strings.ToLower(strings.TrimSpace(preset))

	if points != "" {
		if preset != "" && preset != "custom" {
			return fan.Curve{}, errFactory.WithMessage(errors.ErrInvalidArgument, "--points requires --preset custom")
		}
		return fan.ParseCurve(points)
	}

	switch preset {
	case "":
		return fan.Curve{}, errFactory.WithMessage(errors.ErrInvalidArgument, "one of --preset or --points is required")
	case "custom":
		return fan.Curve{}, errFactory.WithMessage(errors.ErrInvalidArgument, "--preset custom requires --points")
	}

	c, ok := fan.Preset(preset)
	if !ok {
		return fan.Curve{}, errFactory.WithData(errors.ErrInvalidArgument, "preset "+preset)
	}

	return c, nil
}

func parseFans(name string) ([]registers.Fan, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "both" {
		return registers.Fans, nil
	}

	f, ok := registers.ParseFan(name)
	if !ok {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "fan "+name)
	}

	return []registers.Fan{f}, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "0", "disable", "disabled":
		return false, nil
	}

	return false, errors.New().WithData(errors.ErrInvalidArgument, "expected on or off, got "+s)
}
