package fan

import (
	"math"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/registers"
)

// Mode is the EC fan control mode. Manual is driven by this tool and has no
// register value of its own.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeSilent   Mode = "silent"
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
	ModeManual   Mode = "manual"
	ModeUnknown  Mode = "unknown"
)

var modeValues = map[Mode]byte{
	ModeAuto:     0x00,
	ModeSilent:   0x01,
	ModeBasic:    0x02,
	ModeAdvanced: 0x03,
}

// ParseMode maps a user supplied name onto a Mode.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := modeValues[m]; ok || m == ModeManual {
		return m, nil
	}

	return "", errors.New().WithData(ErrInvalidArgument, "fan mode "+name)
}

// Value returns the fan mode register value.
func (m Mode) Value() (byte, bool) {
	v, ok := modeValues[m]
	return v, ok
}

// ModeFromValue decodes the fan mode register. Only the low nibble is significant.
func ModeFromValue(v byte) Mode {
	for m, mv := range modeValues {
		if mv == v&0x0F {
			return m
		}
	}

	return ModeUnknown
}

// State is a complete fan configuration.
type State struct {
	Mode        Mode   `json:"mode"`
	CPUCurve    *Curve `json:"cpuCurve,omitempty"`
	GPUCurve    *Curve `json:"gpuCurve,omitempty"`
	ManualCPU   *int   `json:"manualCpuPercent,omitempty"`
	ManualGPU   *int   `json:"manualGpuPercent,omitempty"`
	CoolerBoost bool   `json:"coolerBoost"`
}

// Curve returns the curve configured for f.
func (s State) Curve(f registers.Fan) *Curve {
	if f == registers.GPU {
		return s.GPUCurve
	}
	return s.CPUCurve
}

// SetCurve sets the curve of f.
func (s *State) SetCurve(f registers.Fan, c *Curve) {
	if f == registers.GPU {
		s.GPUCurve = c
		return
	}
	s.CPUCurve = c
}

// Manual returns the manual duty configured for f.
func (s State) Manual(f registers.Fan) *int {
	if f == registers.GPU {
		return s.ManualGPU
	}
	return s.ManualCPU
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.CPUCurve != nil {
		c := Curve{Points: append([]Point(nil), s.CPUCurve.Points...)}
		out.CPUCurve = &c
	}
	if s.GPUCurve != nil {
		c := Curve{Points: append([]Point(nil), s.GPUCurve.Points...)}
		out.GPUCurve = &c
	}
	if s.ManualCPU != nil {
		v := *s.ManualCPU
		out.ManualCPU = &v
	}
	if s.ManualGPU != nil {
		v := *s.ManualGPU
		out.ManualGPU = &v
	}

	return out
}

// Clamp limits percent to [0,100].
func Clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}

	return percent
}

// PercentToRaw converts a duty percent into a 0..255 curve slot value.
func PercentToRaw(percent int) byte {
	return byte(math.Round(float64(Clamp(percent)) * 255 / 100))
}

// RawToPercent converts a 0..255 curve slot value into a duty percent.
func RawToPercent(raw byte) int {
	return int(math.Round(float64(raw) * 100 / 255))
}

// dutyToRaw converts percent into the units of a manual duty register.
func dutyToRaw(e registers.Entry, percent int) byte {
	if e.Scale != nil && e.Scale.PercentDivisor > 0 {
		return byte(math.Round(float64(Clamp(percent)) * e.Scale.PercentDivisor / 100))
	}
	return PercentToRaw(percent)
}
