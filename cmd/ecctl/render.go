package main

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/monitor"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/pterm/pterm"
)

const notAvailable = "n/a"

func renderTable(rows [][]string) error {
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func renderPairs(title string, pairs [][]string) error {
	pterm.DefaultSection.Println(title)
	return pterm.DefaultTable.WithData(pairs).Render()
}

func formatTemp(v *int) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprintf("%d°C", *v)
}

func formatFan(r monitor.FanReading) string {
	if r.Percent == nil {
		return notAvailable
	}
	if r.RPM == nil {
		return fmt.Sprintf("%d%%", *r.Percent)
	}
	return fmt.Sprintf("%d%% (%d RPM)", *r.Percent, *r.RPM)
}

func formatSwitch(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatSwitchPtr(v *bool) string {
	if v == nil {
		return notAvailable
	}
	return formatSwitch(*v)
}

func formatShift(v *byte) string {
	if v == nil {
		return notAvailable
	}
	return scenario.ShiftName(*v)
}

func formatMode(m *fan.Mode) string {
	if m == nil {
		return notAvailable
	}
	return string(*m)
}

func formatCurve(c *fan.Curve) string {
	if c == nil {
		return notAvailable
	}
	return c.String()
}

// snapshotRows lays out one sample as label/value pairs.
func snapshotRows(s monitor.Snapshot) [][]string {
	rows := [][]string{
		{"Scenario", s.Scenario.DisplayName()},
		{"Shift mode", formatShift(s.ShiftMode)},
		{"Super battery", formatSwitchPtr(s.SuperBattery)},
		{"Fan mode", formatMode(s.Mode)},
		{"Cooler boost", formatSwitchPtr(s.CoolerBoost)},
	}

	for _, f := range registers.Fans {
		name := strings.ToUpper(string(f))
		temp := formatTemp(s.Temp(f))
		if avg := s.AvgTemp(f); avg != nil {
			temp += fmt.Sprintf(" (avg %d°C)", *avg)
		}
		rows = append(rows,
			[]string{name + " temperature", temp},
			[]string{name + " fan", formatFan(s.Fan(f))},
		)
	}

	for _, h := range s.Host {
		rows = append(rows, []string{h.Source + " " + h.Label, strconv.FormatFloat(h.Celsius, 'f', 1, 64) + "°C"})
	}

	return rows
}

// sampleLine condenses a sample for the monitor output.
func sampleLine(s monitor.Snapshot) string {
	parts := []string{s.Time.Local().Format("15:04:05")}
	for _, f := range registers.Fans {
		parts = append(parts, fmt.Sprintf("%s %s fan %s",
			strings.ToUpper(string(f)), formatTemp(s.Temp(f)), formatFan(s.Fan(f))))
	}
	parts = append(parts, "mode "+formatMode(s.Mode), "boost "+formatSwitchPtr(s.CoolerBoost), s.Scenario.DisplayName())

	line := strings.Join(parts, "  ")
	if len(s.Missing) > 0 {
		missing := make([]string, len(s.Missing))
		for i, tag := range s.Missing {
			missing[i] = string(tag)
		}
		line += pterm.FgYellow.Sprint("  missing " + strings.Join(missing, ","))
	}

	return line
}
