package scenario

import (
	"context"
	"fmt"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/registers"
)

// Step names reported in Failure.
const (
	StepShiftMode    = "shift_mode"
	StepCoolerBoost  = "cooler_boost"
	StepFanMode      = "fan_mode"
	StepSuperBattery = "super_battery"
	StepReadBack     = "read_back"
	StepFanState     = "fan_state"

	superBatteryBit = 0x01
)

// Options adjusts a transition.
type Options struct {
	// FanOverride replaces the scenario's default fan state.
	FanOverride *fan.State
}

// Status is the observed scenario state.
type Status struct {
	Scenario     Scenario
	ShiftMode    byte
	SuperBattery bool
}

// Machine performs scenario transitions.
type Machine struct {
	guard *registers.Guard
	fans  *fan.Controller
	lock  *lock.Lock
	log   logger.Logger
}

// NewMachine returns a Machine writing through guard.
func NewMachine(guard *registers.Guard, fans *fan.Controller, l *lock.Lock, log logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}

	return &Machine{
		guard: guard,
		fans:  fans,
		lock:  l,
		log:   log.With("scenario"),
	}
}

// List returns the settable scenarios.
func (m *Machine) List() []Scenario {
	return All()
}

type step struct {
	name  string
	tag   registers.Tag
	value byte
}

// Set transitions the EC to target under the write lock. Shift mode, cooler
// boost, fan mode and super battery are written in that order and the shift
// mode is read back. On failure the shift mode is restored once from the
// snapshot taken before the first write.
func (m *Machine) Set(ctx context.Context, target Scenario, opts Options) error {
	errFactory := errors.New()

	settings, ok := SettingsFor(target)
	if !ok {
		return errFactory.WithData(errors.ErrInvalidArgument, "scenario "+string(target))
	}

	fanState, err := m.fanState(settings, opts)
	if err != nil {
		return err
	}

	return m.lock.Do(ctx, func(ctx context.Context) error {
		snapshot, snapErr := m.guard.Read(ctx, registers.ShiftMode)
		if snapErr != nil {
			m.log.Warn().Err(snapErr).Msg("Shift mode unreadable, rollback disabled")
		}

		steps := m.plan(ctx, settings, fanState)

		failure := Failure{Target: target, Expected: settings.ShiftMode, Observed: Unread}
		for _, s := range steps {
			if err := m.guard.Write(ctx, s.tag, s.value); err != nil {
				failure.FailedStep = s.name
				failure.Rollback = m.rollback(ctx, snapshot, snapErr)
				failure.Observed = m.observe(ctx)
				return errFactory.WrapWithData(ErrScenarioApplyFailed, err, failure)
			}
			failure.Completed = append(failure.Completed, s.name)
		}

		observed, err := m.guard.Read(ctx, registers.ShiftMode)
		if err != nil || observed != settings.ShiftMode {
			failure.FailedStep = StepReadBack
			if err == nil {
				failure.Observed = int(observed)
			}
			failure.Rollback = m.rollback(ctx, snapshot, snapErr)

			m.log.Error().
				Str("target", string(target)).
				Str("rollback", string(failure.Rollback)).
				Msg("Scenario read-back mismatch")

			if err != nil {
				return errFactory.WrapWithData(ErrScenarioApplyFailed, err, failure)
			}
			return errFactory.WithData(ErrScenarioApplyFailed, failure)
		}
		failure.Observed = int(observed)

		if err := m.fans.ApplyState(ctx, fanState); err != nil {
			failure.FailedStep = StepFanState
			failure.Rollback = RollbackSkipped
			return errFactory.WrapWithData(ErrScenarioApplyFailed, err, failure)
		}

		m.log.Info().Str("scenario", string(target)).Msg("Scenario applied")

		return nil
	})
}

// fanState returns the fan configuration of a transition. An override without
// a mode keeps the scenario's mode, and its curves must be applicable before
// anything is written. Default curves are kept only for fans with curve
// storage.
func (m *Machine) fanState(settings Settings, opts Options) (fan.State, error) {
	if opts.FanOverride == nil {
		s := settings.Fan.Clone()
		for _, f := range registers.Fans {
			if s.Curve(f) != nil && !m.guard.CurveHardwareBacked(f) {
				m.log.Debug().Str("fan", string(f)).Msg("No curve storage, leaving default curve unset")
				s.SetCurve(f, nil)
			}
		}
		return s, nil
	}

	s := opts.FanOverride.Clone()
	if s.Mode == "" {
		s.Mode = settings.Fan.Mode
	}

	for _, f := range registers.Fans {
		curve := s.Curve(f)
		if curve == nil {
			continue
		}
		if err := fan.Validate(*curve); err != nil {
			return s, err
		}
		if !m.fans.CanApplyCurve(f) {
			return s, errors.New().WithData(fan.ErrUnsupported,
				fmt.Sprintf("%s fan curve cannot be applied on this model", f))
		}
	}

	return s, nil
}

// plan returns the register writes of a transition. The super battery flag
// is set for targets that use it and cleared only when currently set.
func (m *Machine) plan(ctx context.Context, settings Settings, fanState fan.State) []step {
	current, err := m.guard.Read(ctx, registers.CoolerBoost)
	if err != nil {
		m.log.Debug().Err(err).Msg("Cooler boost unreadable, writing the bit alone")
		current = 0
	}
	boost := fan.CoolerBoostValue(current, fanState.CoolerBoost)

	mode, ok := fanState.Mode.Value()
	if !ok {
		mode, _ = fan.ModeAdvanced.Value()
	}

	steps := []step{
		{StepShiftMode, registers.ShiftMode, settings.ShiftMode},
		{StepCoolerBoost, registers.CoolerBoost, boost},
		{StepFanMode, registers.FanMode, mode},
	}

	switch {
	case settings.SuperBattery:
		steps = append(steps, step{StepSuperBattery, registers.SuperBattery, superBatteryBit})
	case m.guard.Supports(registers.SuperBattery):
		current, err := m.guard.Read(ctx, registers.SuperBattery)
		if err == nil && current&superBatteryBit != 0 {
			steps = append(steps, step{StepSuperBattery, registers.SuperBattery, 0})
		}
	}

	return steps
}

func (m *Machine) rollback(ctx context.Context, snapshot byte, snapErr error) Rollback {
	if snapErr != nil {
		return RollbackSkipped
	}

	if err := m.guard.Write(ctx, registers.ShiftMode, snapshot); err != nil {
		m.log.Error().Err(err).Str("shift", ShiftName(snapshot)).Msg("Shift mode rollback failed")
		return RollbackFailed
	}

	return RollbackOK
}

func (m *Machine) observe(ctx context.Context) int {
	v, err := m.guard.Read(ctx, registers.ShiftMode)
	if err != nil {
		return Unread
	}

	return int(v)
}

// Status reads the shift mode and super battery flag and derives the scenario.
func (m *Machine) Status(ctx context.Context) (Status, error) {
	shift, err := m.guard.Read(ctx, registers.ShiftMode)
	if err != nil {
		return Status{}, errors.New().Wrap(ErrReadStatus, err)
	}

	st := Status{ShiftMode: shift}

	if sb, err := m.guard.Read(ctx, registers.SuperBattery); err == nil {
		st.SuperBattery = sb&superBatteryBit != 0
	} else {
		m.log.Debug().Err(err).Msg("Super battery flag unreadable")
	}

	st.Scenario = FromShift(st.ShiftMode, st.SuperBattery)

	return st, nil
}

// SetShiftMode writes the shift mode register directly and verifies it.
func (m *Machine) SetShiftMode(ctx context.Context, value byte) error {
	return m.writeVerified(ctx, registers.ShiftMode, value, 0xFF)
}

// SetSuperBattery toggles the super battery flag and verifies it.
func (m *Machine) SetSuperBattery(ctx context.Context, on bool) error {
	v := byte(0)
	if on {
		v = superBatteryBit
	}

	return m.writeVerified(ctx, registers.SuperBattery, v, superBatteryBit)
}

func (m *Machine) writeVerified(ctx context.Context, tag registers.Tag, value, mask byte) error {
	errFactory := errors.New()

	if err := m.guard.Write(ctx, tag, value); err != nil {
		return err
	}

	got, err := m.guard.Read(ctx, tag)
	if err != nil {
		return errFactory.WrapWithData(ErrScenarioApplyFailed, err, fmt.Sprintf("%s written but unreadable", tag))
	}
	if got&mask != value&mask {
		return errFactory.WithData(ErrScenarioApplyFailed,
			fmt.Sprintf("%s: wrote 0x%02X, read back 0x%02X", tag, value, got))
	}

	m.log.Info().Str("register", string(tag)).Uint8("value", value).Msg("Register set")

	return nil
}
