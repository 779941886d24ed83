package fan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/registers"
)

const (
	coolerBoostBit = 0x80

	DefaultInterval = 2 * time.Second
)

// Applied tells how a curve was put into effect.
type Applied int

const (
	AppliedHardware Applied = iota
	AppliedSoftware
)

func (a Applied) String() string {
	if a == AppliedSoftware {
		return "software"
	}
	return "hardware"
}

// Controller drives fan registers through the guard.
type Controller struct {
	guard    *registers.Guard
	lock     *lock.Lock
	log      logger.Logger
	interval time.Duration

	mu    sync.Mutex
	loops map[registers.Fan]*Loop
}

// NewController returns a Controller. interval is the software loop tick.
func NewController(guard *registers.Guard, l *lock.Lock, log logger.Logger, interval time.Duration) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Controller{
		guard:    guard,
		lock:     l,
		log:      log.With("fan"),
		interval: interval,
		loops:    make(map[registers.Fan]*Loop),
	}
}

// ApplyCurve puts curve into effect for f. Hardware curve storage is written
// slot by slot under the write lock; otherwise a software loop is started that
// drives the fan's manual duty register.
func (c *Controller) ApplyCurve(ctx context.Context, f registers.Fan, curve Curve) (Applied, error) {
	if err := Validate(curve); err != nil {
		return AppliedHardware, err
	}

	if c.guard.CurveHardwareBacked(f) {
		c.stopLoop(f)
		err := c.lock.Do(ctx, func(ctx context.Context) error {
			return c.writeCurve(ctx, f, curve)
		})
		return AppliedHardware, err
	}

	if !c.guard.Supports(registers.DutyTag(f)) || !c.guard.Supports(registers.TempTag(f)) {
		return AppliedSoftware, errors.New().WithData(ErrUnsupported,
			fmt.Sprintf("%s fan has neither curve storage nor a manual duty register", f))
	}

	c.startLoop(f, curve)

	return AppliedSoftware, nil
}

// CanApplyCurve reports whether ApplyCurve can put a curve into effect for f,
// in hardware or through a software loop.
func (c *Controller) CanApplyCurve(f registers.Fan) bool {
	if c.guard.CurveHardwareBacked(f) {
		return true
	}
	return c.guard.Supports(registers.DutyTag(f)) && c.guard.Supports(registers.TempTag(f))
}

// writeCurve stores curve in the fan's slots, temperature before duty, padding
// unused slots with the last point. The caller holds the write lock.
func (c *Controller) writeCurve(ctx context.Context, f registers.Fan, curve Curve) error {
	errFactory := errors.New()

	slots := c.guard.Map().CurveSlots(f)
	if len(curve.Points) > len(slots) {
		return errFactory.WithData(ErrInvalidCurve,
			fmt.Sprintf("%d points but the %s fan stores %d", len(curve.Points), f, len(slots)))
	}
	for i, p := range curve.Points {
		if p.Temperature < 0 || p.Temperature > registers.CurveTempMax {
			return errFactory.WithData(ErrInvalidCurve,
				fmt.Sprintf("point %d: temperature %d cannot be stored", i+1, p.Temperature))
		}
	}

	last := curve.Points[len(curve.Points)-1]
	for i, slot := range slots {
		p := last
		if i < len(curve.Points) {
			p = curve.Points[i]
		}

		if err := c.guard.Write(ctx, slot.Temp.Tag, byte(p.Temperature)); err != nil {
			return errFactory.WrapWithData(ErrCurveApplyFailed, err,
				SlotFailure{Fan: f, Slot: slot.Index, Address: slot.Temp.Address, Completed: i})
		}
		if err := c.guard.Write(ctx, slot.Duty.Tag, PercentToRaw(p.Duty)); err != nil {
			return errFactory.WrapWithData(ErrCurveApplyFailed, err,
				SlotFailure{Fan: f, Slot: slot.Index, Address: slot.Duty.Address, Completed: i})
		}
	}

	c.log.Info().Str("fan", string(f)).Str("curve", curve.String()).Msg("Fan curve written")

	return nil
}

// ReadCurve reads the hardware curve of f. It returns nil when the fan has
// no curve storage or the stored points do not form a valid curve.
func (c *Controller) ReadCurve(ctx context.Context, f registers.Fan) (*Curve, error) {
	if !c.guard.CurveHardwareBacked(f) {
		return nil, nil
	}

	var curve Curve
	for _, slot := range c.guard.Map().CurveSlots(f) {
		t, err := c.guard.Read(ctx, slot.Temp.Tag)
		if err != nil {
			return nil, errors.New().Wrap(ErrReadState, err)
		}
		d, err := c.guard.Read(ctx, slot.Duty.Tag)
		if err != nil {
			return nil, errors.New().Wrap(ErrReadState, err)
		}

		p := Point{Temperature: int(t), Duty: RawToPercent(d)}
		if n := len(curve.Points); n > 0 && p.Temperature <= curve.Points[n-1].Temperature {
			break
		}
		curve.Points = append(curve.Points, p)
	}

	if err := Validate(curve); err != nil {
		c.log.Debug().Str("fan", string(f)).Str("curve", curve.String()).Msg("Stored curve is not valid, ignoring")
		return nil, nil
	}

	return &curve, nil
}

// SetManual fixes f at percent, clamped to [0,100]. Models with a manual duty
// register get a single write; others are switched to advanced mode with a
// flat curve. Returns the applied percent.
func (c *Controller) SetManual(ctx context.Context, f registers.Fan, percent int) (int, error) {
	percent = Clamp(percent)
	c.stopLoop(f)

	if e, ok := c.guard.Map().Lookup(registers.DutyTag(f)); ok && c.guard.Supports(e.Tag) {
		if err := c.guard.Write(ctx, e.Tag, dutyToRaw(e, percent)); err != nil {
			return percent, err
		}
		c.log.Info().Str("fan", string(f)).Int("percent", percent).Msg("Manual fan speed set")
		return percent, nil
	}

	if !c.guard.CurveHardwareBacked(f) {
		return percent, errors.New().WithData(ErrUnsupported,
			fmt.Sprintf("%s fan has no manual duty register or curve storage", f))
	}

	err := c.lock.Do(ctx, func(ctx context.Context) error {
		if err := c.SetMode(ctx, ModeAdvanced); err != nil {
			return err
		}
		return c.writeCurve(ctx, f, flatCurve(len(c.guard.Map().CurveSlots(f)), percent))
	})
	if err != nil {
		return percent, err
	}

	c.log.Info().Str("fan", string(f)).Int("percent", percent).Msg("Manual fan speed set through flat curve")

	return percent, nil
}

// flatCurve spreads n points over 0..100 degrees, all at percent.
func flatCurve(n, percent int) Curve {
	if n < MinPoints {
		n = MinPoints
	}

	c := Curve{Points: make([]Point, n)}
	for i := range c.Points {
		c.Points[i] = Point{Temperature: i * registers.CurveTempMax / (n - 1), Duty: percent}
	}

	return c
}

// CoolerBoostValue returns current with only the cooler boost bit changed.
func CoolerBoostValue(current byte, on bool) byte {
	if on {
		return current | coolerBoostBit
	}
	return current &^ coolerBoostBit
}

// SetCoolerBoost switches cooler boost on or off, keeping the other bits of
// the register.
func (c *Controller) SetCoolerBoost(ctx context.Context, on bool) error {
	current, err := c.guard.Read(ctx, registers.CoolerBoost)
	if err != nil {
		return err
	}

	return c.guard.Write(ctx, registers.CoolerBoost, CoolerBoostValue(current, on))
}

// SetMode writes the fan mode register.
func (c *Controller) SetMode(ctx context.Context, m Mode) error {
	v, ok := m.Value()
	if !ok {
		return errors.New().WithData(ErrInvalidArgument, fmt.Sprintf("fan mode %q has no register value", m))
	}

	return c.guard.Write(ctx, registers.FanMode, v)
}

// Reset stops software loops and returns the EC to automatic control with
// cooler boost off.
func (c *Controller) Reset(ctx context.Context) error {
	c.StopLoops()

	return c.lock.Do(ctx, func(ctx context.Context) error {
		if err := c.SetMode(ctx, ModeAuto); err != nil {
			return err
		}
		return c.SetCoolerBoost(ctx, false)
	})
}

// ReadState reads the current fan configuration.
func (c *Controller) ReadState(ctx context.Context) (State, error) {
	errFactory := errors.New()

	var s State

	mode, err := c.guard.Read(ctx, registers.FanMode)
	if err != nil {
		return s, errFactory.Wrap(ErrReadState, err)
	}
	s.Mode = ModeFromValue(mode)

	boost, err := c.guard.Read(ctx, registers.CoolerBoost)
	if err != nil {
		return s, errFactory.Wrap(ErrReadState, err)
	}
	s.CoolerBoost = boost&coolerBoostBit != 0

	if s.CPUCurve, err = c.ReadCurve(ctx, registers.CPU); err != nil {
		return s, err
	}
	if s.GPUCurve, err = c.ReadCurve(ctx, registers.GPU); err != nil {
		return s, err
	}

	return s, nil
}

// ApplyState writes a fan configuration: mode, cooler boost, curves, then
// manual duties, under the write lock. Curves for fans without curve storage
// start a software loop once the hardware writes are done.
func (c *Controller) ApplyState(ctx context.Context, s State) error {
	errFactory := errors.New()

	for _, f := range registers.Fans {
		curve := s.Curve(f)
		if curve == nil {
			continue
		}
		if err := Validate(*curve); err != nil {
			return err
		}
		if !c.CanApplyCurve(f) {
			return errFactory.WithData(ErrUnsupported,
				fmt.Sprintf("%s fan has neither curve storage nor a manual duty register", f))
		}
	}

	software := map[registers.Fan]Curve{}
	err := c.lock.Do(ctx, func(ctx context.Context) error {
		if s.Mode != ModeManual && s.Mode != "" {
			if err := c.SetMode(ctx, s.Mode); err != nil {
				return err
			}
		}
		if err := c.SetCoolerBoost(ctx, s.CoolerBoost); err != nil {
			return err
		}

		for _, f := range registers.Fans {
			curve := s.Curve(f)
			if curve == nil {
				continue
			}
			if !c.guard.CurveHardwareBacked(f) {
				software[f] = *curve
				continue
			}
			c.stopLoop(f)
			if err := c.writeCurve(ctx, f, *curve); err != nil {
				return err
			}
		}

		for _, f := range registers.Fans {
			if p := s.Manual(f); p != nil {
				delete(software, f)
				if _, err := c.SetManual(ctx, f, *p); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range registers.Fans {
		if curve, ok := software[f]; ok {
			c.startLoop(f, curve)
		}
	}

	return nil
}
