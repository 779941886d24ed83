package fan

import (
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
)

const (
	MinPoints = 2
	MaxPoints = 8
)

// Point maps a temperature in degrees Celsius to a duty in percent.
type Point struct {
	Temperature int `json:"temperature"`
	Duty        int `json:"duty"`
}

// Curve is an ordered temperature to duty mapping.
type Curve struct {
	Points []Point `json:"points"`
}

// NewCurve builds a curve from alternating temperature and duty values.
func NewCurve(pairs ...int) Curve {
	c := Curve{Points: make([]Point, 0, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		c.Points = append(c.Points, Point{Temperature: pairs[i], Duty: pairs[i+1]})
	}

	return c
}

// Validate checks the point count, strictly increasing temperatures, duty
// bounds and that duty never decreases. Repeated duties are allowed.
func Validate(c Curve) error {
	invalid := func(format string, args ...any) error {
		return errors.New().WithData(ErrInvalidCurve, fmt.Sprintf(format, args...))
	}

	n := len(c.Points)
	if n < MinPoints {
		return invalid("need at least %d points, got %d", MinPoints, n)
	}
	if n > MaxPoints {
		return invalid("at most %d points allowed, got %d", MaxPoints, n)
	}

	for i, p := range c.Points {
		if p.Duty < 0 || p.Duty > 100 {
			return invalid("point %d: duty %d outside [0,100]", i+1, p.Duty)
		}
		if i == 0 {
			continue
		}

		prev := c.Points[i-1]
		if p.Temperature <= prev.Temperature {
			return invalid("point %d: temperature %d does not increase over %d", i+1, p.Temperature, prev.Temperature)
		}
		if p.Duty < prev.Duty {
			return invalid("point %d: duty %d decreases from %d", i+1, p.Duty, prev.Duty)
		}
	}

	return nil
}

// Interpolate returns the duty for temperature t. Between two points the duty
// is linear, truncated towards the lower point; outside the curve it is
// clamped to the nearest endpoint. c must be valid.
func Interpolate(c Curve, t int) int {
	pts := c.Points
	if len(pts) == 0 {
		return 0
	}

	first, last := pts[0], pts[len(pts)-1]
	if t <= first.Temperature {
		return first.Duty
	}
	if t >= last.Temperature {
		return last.Duty
	}

	for i := 1; i < len(pts); i++ {
		hi := pts[i]
		if t > hi.Temperature {
			continue
		}
		lo := pts[i-1]
		return lo.Duty + (t-lo.Temperature)*(hi.Duty-lo.Duty)/(hi.Temperature-lo.Temperature)
	}

	return last.Duty
}

// ParseCurve reads a curve written as "temp:duty,temp:duty,..." and validates it.
func ParseCurve(s string) (Curve, error) {
	errFactory := errors.New()

	var c Curve
	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		temp, duty, ok := strings.Cut(field, ":")
		if !ok {
			return Curve{}, errFactory.WithData(ErrInvalidCurve, fmt.Sprintf("point %d: %q is not temp:duty", i+1, field))
		}

		t, err := strconv.Atoi(strings.TrimSpace(temp))
		if err != nil {
			return Curve{}, errFactory.WithData(ErrInvalidCurve, fmt.Sprintf("point %d: bad temperature %q", i+1, temp))
		}
		d, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(duty, "%")))
		if err != nil {
			return Curve{}, errFactory.WithData(ErrInvalidCurve, fmt.Sprintf("point %d: bad duty %q", i+1, duty))
		}

		c.Points = append(c.Points, Point{Temperature: t, Duty: d})
	}

	if err := Validate(c); err != nil {
		return Curve{}, err
	}

	return c, nil
}

func (c Curve) String() string {
	parts := make([]string, len(c.Points))
	for i, p := range c.Points {
		parts[i] = fmt.Sprintf("%d:%d", p.Temperature, p.Duty)
	}

	return strings.Join(parts, ",")
}

// Equal reports whether both curves have the same points.
func (c Curve) Equal(o Curve) bool {
	if len(c.Points) != len(o.Points) {
		return false
	}
	for i := range c.Points {
		if c.Points[i] != o.Points[i] {
			return false
		}
	}

	return true
}

// DefaultCurve is the balanced preset.
func DefaultCurve() Curve {
	return NewCurve(40, 0, 50, 30, 60, 50, 70, 70, 80, 90, 90, 100)
}

func SilentCurve() Curve {
	return NewCurve(50, 0, 60, 20, 70, 40, 80, 60, 90, 80, 95, 100)
}

func PerformanceCurve() Curve {
	return NewCurve(35, 30, 45, 50, 55, 70, 65, 85, 75, 100, 85, 100)
}

// Preset returns a named preset. "balanced" is an alias of "default".
func Preset(name string) (Curve, bool) {
	switch strings.ToLower(name) {
	case "default", "balanced":
		return DefaultCurve(), true
	case "silent":
		return SilentCurve(), true
	case "performance":
		return PerformanceCurve(), true
	}

	return Curve{}, false
}
