package monitor

import (
	"time"

	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"codeberg.org/mutker/ecctl/internal/sensors"
)

// FanReading is a fan speed. Nil fields could not be read.
type FanReading struct {
	Percent *int `json:"percent,omitempty"`
	RPM     *int `json:"rpm,omitempty"`
}

// Snapshot is one sample of the EC state. Nil fields could not be read and
// their tags are listed in Missing.
type Snapshot struct {
	Time time.Time `json:"time"`

	CPUTemp *int `json:"cpuTemp,omitempty"`
	GPUTemp *int `json:"gpuTemp,omitempty"`
	// Averages over the last few samples of the same Monitor.
	CPUTempAvg *int `json:"cpuTempAvg,omitempty"`
	GPUTempAvg *int `json:"gpuTempAvg,omitempty"`

	CPUFan FanReading `json:"cpuFan"`
	GPUFan FanReading `json:"gpuFan"`

	Mode         *fan.Mode         `json:"mode,omitempty"`
	CoolerBoost  *bool             `json:"coolerBoost,omitempty"`
	ShiftMode    *byte             `json:"shiftMode,omitempty"`
	SuperBattery *bool             `json:"superBattery,omitempty"`
	Scenario     scenario.Scenario `json:"scenario"`

	Host    []sensors.Reading `json:"host,omitempty"`
	Missing []registers.Tag   `json:"missing,omitempty"`
}

// Temp returns the temperature of f.
func (s Snapshot) Temp(f registers.Fan) *int {
	if f == registers.GPU {
		return s.GPUTemp
	}
	return s.CPUTemp
}

func (s Snapshot) AvgTemp(f registers.Fan) *int {
	if f == registers.GPU {
		return s.GPUTempAvg
	}
	return s.CPUTempAvg
}

// Fan returns the speed reading of f.
func (s Snapshot) Fan(f registers.Fan) FanReading {
	if f == registers.GPU {
		return s.GPUFan
	}
	return s.CPUFan
}

// IsMissing reports whether tag failed to read.
func (s Snapshot) IsMissing(tag registers.Tag) bool {
	for _, t := range s.Missing {
		if t == tag {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
