package registers

import "strconv"

// Tag names the meaning of a register independently of its address.
type Tag string

const (
	CPUTemp        Tag = "cpu_temp"
	GPUTemp        Tag = "gpu_temp"
	CPUFanSpeed    Tag = "cpu_fan_speed"
	GPUFanSpeed    Tag = "gpu_fan_speed"
	CPUFanRealtime Tag = "cpu_fan_realtime"
	GPUFanRealtime Tag = "gpu_fan_realtime"
	CPUFanDuty     Tag = "cpu_fan_duty"
	GPUFanDuty     Tag = "gpu_fan_duty"
	FanMode        Tag = "fan_mode"
	CoolerBoost    Tag = "cooler_boost"
	ShiftMode      Tag = "shift_mode"
	SuperBattery   Tag = "super_battery"
)

const (
	curveTempPrefix = "_curve_temp_"
	curveDutyPrefix = "_curve_duty_"
)

// Fan identifies one of the EC controlled fans.
type Fan string

const (
	CPU Fan = "cpu"
	GPU Fan = "gpu"
)

// Fans lists every fan in a fixed order.
var Fans = []Fan{CPU, GPU}

// ParseFan maps a user supplied name onto a Fan.
func ParseFan(name string) (Fan, bool) {
	switch Fan(name) {
	case CPU, GPU:
		return Fan(name), true
	}

	return "", false
}

// TempTag returns the tag of a fan's temperature sensor.
func TempTag(f Fan) Tag {
	if f == GPU {
		return GPUTemp
	}
	return CPUTemp
}

// DutyTag returns the tag of a fan's manual duty register.
func DutyTag(f Fan) Tag {
	if f == GPU {
		return GPUFanDuty
	}
	return CPUFanDuty
}

// SpeedTags returns the fan speed tags, preferred first.
func SpeedTags(f Fan) []Tag {
	if f == GPU {
		return []Tag{GPUFanSpeed, GPUFanRealtime}
	}
	return []Tag{CPUFanSpeed, CPUFanRealtime}
}

// CurveTempTag is the tag of the temperature byte of a curve slot, counted from 1.
func CurveTempTag(f Fan, slot int) Tag {
	return Tag(string(f) + curveTempPrefix + strconv.Itoa(slot))
}

// CurveDutyTag is the tag of the duty byte of a curve slot, counted from 1.
func CurveDutyTag(f Fan, slot int) Tag {
	return Tag(string(f) + curveDutyPrefix + strconv.Itoa(slot))
}
