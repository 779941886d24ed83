package fan_test

import (
	"testing"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejects(t *testing.T) {
	tests := map[string]fan.Curve{
		"no points":                 fan.NewCurve(),
		"single point":              fan.NewCurve(50, 50),
		"too many points":           fan.NewCurve(10, 0, 20, 10, 30, 20, 40, 30, 50, 40, 60, 50, 70, 60, 80, 70, 90, 80),
		"repeated temperature":      fan.NewCurve(40, 10, 40, 20),
		"decreasing temperature":    fan.NewCurve(60, 10, 50, 20),
		"duty above 100":            fan.NewCurve(40, 10, 60, 101),
		"negative duty":             fan.NewCurve(40, -1, 60, 10),
		"duty decreases":            fan.NewCurve(40, 50, 60, 40),
		"duty decreases after flat": fan.NewCurve(40, 50, 50, 50, 60, 49),
	}

	for name, c := range tests {
		err := fan.Validate(c)
		require.Error(t, err, name)
		assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve), name)
	}
}

func TestValidateAccepts(t *testing.T) {
	curves := []fan.Curve{
		fan.NewCurve(40, 0, 90, 100),
		fan.NewCurve(40, 30, 50, 30, 60, 30),
		fan.NewCurve(10, 0, 20, 10, 30, 20, 40, 30, 50, 40, 60, 50, 70, 60, 80, 70),
		fan.DefaultCurve(),
		fan.SilentCurve(),
		fan.PerformanceCurve(),
	}

	for _, c := range curves {
		assert.NoError(t, fan.Validate(c), c.String())
	}
}

func TestInterpolateClampsOutsideCurve(t *testing.T) {
	c := fan.NewCurve(40, 10, 60, 50, 80, 90)

	for _, temp := range []int{-20, 0, 39, 40} {
		assert.Equal(t, 10, fan.Interpolate(c, temp), "temp %d", temp)
	}
	for _, temp := range []int{80, 81, 100, 255} {
		assert.Equal(t, 90, fan.Interpolate(c, temp), "temp %d", temp)
	}
}

func TestInterpolateLinear(t *testing.T) {
	c := fan.NewCurve(40, 10, 60, 50, 80, 90)

	assert.Equal(t, 30, fan.Interpolate(c, 50))
	assert.Equal(t, 50, fan.Interpolate(c, 60))
	assert.Equal(t, 70, fan.Interpolate(c, 70))
	assert.Equal(t, 12, fan.Interpolate(c, 41))
}

func TestInterpolateBoundedAndMonotonic(t *testing.T) {
	curves := []fan.Curve{
		fan.DefaultCurve(),
		fan.SilentCurve(),
		fan.PerformanceCurve(),
		fan.NewCurve(30, 0, 31, 100),
		fan.NewCurve(20, 5, 45, 5, 70, 33, 71, 34, 99, 97),
	}

	for _, c := range curves {
		first := c.Points[0]
		last := c.Points[len(c.Points)-1]
		prev := fan.Interpolate(c, first.Temperature)

		for temp := first.Temperature; temp <= last.Temperature; temp++ {
			got := fan.Interpolate(c, temp)

			lo, hi := bracket(c, temp)
			assert.GreaterOrEqual(t, got, lo.Duty, "%s at %d", c, temp)
			assert.LessOrEqual(t, got, hi.Duty, "%s at %d", c, temp)
			assert.GreaterOrEqual(t, got, prev, "%s not monotonic at %d", c, temp)

			prev = got
		}
	}
}

func bracket(c fan.Curve, temp int) (fan.Point, fan.Point) {
	for i := 1; i < len(c.Points); i++ {
		if temp <= c.Points[i].Temperature {
			return c.Points[i-1], c.Points[i]
		}
	}
	last := c.Points[len(c.Points)-1]
	return last, last
}

func TestParseCurve(t *testing.T) {
	c, err := fan.ParseCurve("40:0, 50:30,60:50%,70:70")
	require.NoError(t, err)
	assert.Equal(t, fan.NewCurve(40, 0, 50, 30, 60, 50, 70, 70), c)
	assert.Equal(t, "40:0,50:30,60:50,70:70", c.String())

	for _, bad := range []string{"", "40", "40:x", "a:10,50:20", "40:10,30:20", "40:90,50:10"} {
		_, err := fan.ParseCurve(bad)
		assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve), bad)
	}
}

func TestPresets(t *testing.T) {
	for _, name := range []string{"default", "balanced", "silent", "performance", "Silent"} {
		c, ok := fan.Preset(name)
		require.True(t, ok, name)
		assert.NoError(t, fan.Validate(c), name)
	}

	balanced, _ := fan.Preset("balanced")
	assert.True(t, balanced.Equal(fan.DefaultCurve()))

	_, ok := fan.Preset("custom")
	assert.False(t, ok)
}

func TestDutyConversionRoundTrip(t *testing.T) {
	for p := 0; p <= 100; p++ {
		assert.Equal(t, p, fan.RawToPercent(fan.PercentToRaw(p)), "percent %d", p)
	}

	assert.Equal(t, byte(0), fan.PercentToRaw(-10))
	assert.Equal(t, byte(255), fan.PercentToRaw(100))
	assert.Equal(t, byte(255), fan.PercentToRaw(180))
}

func TestModes(t *testing.T) {
	m, err := fan.ParseMode("Advanced")
	require.NoError(t, err)
	assert.Equal(t, fan.ModeAdvanced, m)

	v, ok := m.Value()
	require.True(t, ok)
	assert.Equal(t, byte(3), v)

	_, ok = fan.ModeManual.Value()
	assert.False(t, ok)

	assert.Equal(t, fan.ModeSilent, fan.ModeFromValue(0x11))
	assert.Equal(t, fan.ModeUnknown, fan.ModeFromValue(0x07))

	_, err = fan.ParseMode("turbo")
	assert.True(t, errors.HasCode(err, fan.ErrInvalidArgument))
}
