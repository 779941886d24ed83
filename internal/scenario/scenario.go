package scenario

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
)

// Scenario is a user facing performance profile of the EC.
type Scenario string

const (
	Silent          Scenario = "silent"
	Balanced        Scenario = "balanced"
	HighPerformance Scenario = "high-performance"
	Turbo           Scenario = "turbo"
	SuperBattery    Scenario = "super-battery"
	// Unknown is observed when the shift mode matches no scenario.
	Unknown Scenario = "unknown"
)

// Shift mode register values.
const (
	ShiftEco     byte = 0xC2
	ShiftComfort byte = 0xC1
	ShiftSport   byte = 0xC0
	ShiftTurbo   byte = 0xC4
)

var shiftNames = map[byte]string{
	ShiftEco:     "eco",
	ShiftComfort: "comfort",
	ShiftSport:   "sport",
	ShiftTurbo:   "turbo",
}

// Settings is the fixed register configuration of a scenario.
type Settings struct {
	ShiftMode    byte
	Fan          fan.State
	SuperBattery bool
}

var all = []Scenario{Silent, Balanced, HighPerformance, Turbo, SuperBattery}

// All lists the settable scenarios.
func All() []Scenario {
	return append([]Scenario(nil), all...)
}

// SettingsFor returns the settings of s. The returned value is a copy.
func SettingsFor(s Scenario) (Settings, bool) {
	silent := fan.SilentCurve()
	balanced := fan.DefaultCurve()
	performance := fan.PerformanceCurve()

	switch s {
	case Silent:
		return Settings{ShiftMode: ShiftEco, Fan: fan.State{Mode: fan.ModeSilent, CPUCurve: &silent, GPUCurve: cp(silent)}}, true
	case Balanced:
		return Settings{ShiftMode: ShiftComfort, Fan: fan.State{Mode: fan.ModeAuto, CPUCurve: &balanced, GPUCurve: cp(balanced)}}, true
	case HighPerformance:
		return Settings{ShiftMode: ShiftSport, Fan: fan.State{Mode: fan.ModeBasic, CPUCurve: &performance, GPUCurve: cp(performance)}}, true
	case Turbo:
		return Settings{
			ShiftMode: ShiftTurbo,
			Fan:       fan.State{Mode: fan.ModeAdvanced, CoolerBoost: true, CPUCurve: &performance, GPUCurve: cp(performance)},
		}, true
	case SuperBattery:
		return Settings{
			ShiftMode:    ShiftEco,
			Fan:          fan.State{Mode: fan.ModeSilent, CPUCurve: &silent, GPUCurve: cp(silent)},
			SuperBattery: true,
		}, true
	}

	return Settings{}, false
}

func cp(c fan.Curve) *fan.Curve {
	out := fan.Curve{Points: append([]fan.Point(nil), c.Points...)}
	return &out
}

// Parse maps a user supplied name onto a Scenario. Case, spaces and
// underscores are ignored.
func Parse(name string) (Scenario, error) {
	norm := strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch norm {
	case "highperformance", "performance":
		norm = string(HighPerformance)
	case "superbattery", "battery":
		norm = string(SuperBattery)
	}

	for _, s := range all {
		if string(s) == norm {
			return s, nil
		}
	}

	return "", errors.New().WithData(errors.ErrInvalidArgument, "scenario "+name)
}

// DisplayName returns the human readable name.
func (s Scenario) DisplayName() string {
	switch s {
	case Silent:
		return "Silent"
	case Balanced:
		return "Balanced"
	case HighPerformance:
		return "High Performance"
	case Turbo:
		return "Turbo"
	case SuperBattery:
		return "Super Battery"
	}

	return "Unknown"
}

// FromShift maps a shift mode value and super battery flag onto a scenario.
// The super battery flag takes precedence.
func FromShift(shift byte, superBattery bool) Scenario {
	if superBattery {
		return SuperBattery
	}

	switch shift {
	case ShiftEco:
		return Silent
	case ShiftComfort:
		return Balanced
	case ShiftSport:
		return HighPerformance
	case ShiftTurbo:
		return Turbo
	}

	return Unknown
}

// ShiftName names a shift mode value.
func ShiftName(v byte) string {
	if name, ok := shiftNames[v]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", v)
}

// ParseShift maps eco, comfort, sport or turbo onto its register value.
func ParseShift(name string) (byte, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for v, n := range shiftNames {
		if n == name {
			return v, nil
		}
	}

	return 0, errors.New().WithData(errors.ErrInvalidArgument, "shift mode "+name)
}
