package fan

import (
	"context"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/registers"
)

// Loop drives one fan from a curve in software.
type Loop struct {
	fan    registers.Fan
	curve  Curve
	cancel context.CancelFunc
	done   chan struct{}
}

// Fan returns the controlled fan.
func (l *Loop) Fan() registers.Fan { return l.fan }

// Curve returns the curve being followed.
func (l *Loop) Curve() Curve { return l.curve }

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Stop cancels the loop and waits for the current tick to finish.
func (l *Loop) Stop() {
	l.cancel()
	<-l.done
}

// startLoop replaces the loop of f under mu and stops the previous one.
func (c *Controller) startLoop(f registers.Fan, curve Curve) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		fan:    f,
		curve:  curve,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	old := c.loops[f]
	c.loops[f] = l
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	c.log.Info().
		Str("fan", string(f)).
		Str("curve", curve.String()).
		Dur("interval", c.interval).
		Msg("Starting software fan control")

	go c.runLoop(ctx, l)

	return l
}

func (c *Controller) runLoop(ctx context.Context, l *Loop) {
	defer close(l.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tick(ctx, l)
	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Str("fan", string(l.fan)).Msg("Software fan control stopped")
			return
		case <-ticker.C:
			c.tick(ctx, l)
		}
	}
}

func (c *Controller) tick(ctx context.Context, l *Loop) {
	temp, err := c.guard.Read(ctx, registers.TempTag(l.fan))
	if err != nil {
		c.log.Warn().Str("fan", string(l.fan)).Err(err).Msg("Failed to read temperature")
		return
	}

	duty := Interpolate(l.curve, int(temp))
	e, _ := c.guard.Map().Lookup(registers.DutyTag(l.fan))

	err = c.lock.Do(ctx, func(ctx context.Context) error {
		return c.guard.Write(ctx, e.Tag, dutyToRaw(e, duty))
	})
	switch {
	case err == nil:
		c.log.Debug().Str("fan", string(l.fan)).Int("temperature", int(temp)).Int("duty", duty).Msg("Fan duty updated")
	case errors.HasCode(err, errors.ErrApplyInProgress):
		c.log.Debug().Str("fan", string(l.fan)).Msg("Write lock busy, skipping tick")
	default:
		c.log.Warn().Str("fan", string(l.fan)).Err(err).Msg("Failed to write fan duty")
	}
}

func (c *Controller) stopLoop(f registers.Fan) {
	c.mu.Lock()
	l := c.loops[f]
	delete(c.loops, f)
	c.mu.Unlock()

	if l != nil {
		l.Stop()
	}
}

// Loops returns the running software loops.
func (c *Controller) Loops() []*Loop {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Loop, 0, len(c.loops))
	for _, f := range registers.Fans {
		if l, ok := c.loops[f]; ok {
			out = append(out, l)
		}
	}

	return out
}

// StopLoops stops every software loop.
func (c *Controller) StopLoops() {
	for _, f := range registers.Fans {
		c.stopLoop(f)
	}
}
