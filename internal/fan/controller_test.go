package fan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ecctl/internal/ec/ectest"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/registers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msiController(t *testing.T) (*fan.Controller, *ectest.Fake, *lock.Lock) {
	t.Helper()

	tables, err := registers.LoadTables("")
	require.NoError(t, err)
	m, err := registers.Select(tables, registers.Identity{}, "msi-generic")
	require.NoError(t, err)

	backend := ectest.New()
	l := lock.New("")

	return fan.NewController(registers.NewGuard(backend, m, nil), l, nil, 10*time.Millisecond), backend, l
}

// softwareController has no curve storage but manual duty registers.
func softwareController(t *testing.T) (*fan.Controller, *ectest.Fake) {
	t.Helper()

	m, err := registers.NewMap("software", []registers.Entry{
		{Tag: registers.CPUTemp, Address: 0x68, Access: registers.ReadOnly},
		{Tag: registers.FanMode, Address: 0xD4, Access: registers.ReadWrite, Range: registers.SafeRange{Max: 3}},
		{Tag: registers.CoolerBoost, Address: 0x98, Access: registers.ReadWrite, Range: registers.SafeRange{Max: 0xFF}},
		{
			Tag: registers.CPUFanDuty, Address: 0xF1, Access: registers.ReadWrite,
			Range: registers.SafeRange{Max: 150}, Scale: &registers.FanScale{PercentDivisor: 150},
		},
	})
	require.NoError(t, err)

	backend := ectest.New()
	c := fan.NewController(registers.NewGuard(backend, m, nil), lock.New(""), nil, 10*time.Millisecond)
	t.Cleanup(c.StopLoops)

	return c, backend
}

func TestApplyCurveWritesSlotsInOrder(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	curve := fan.NewCurve(40, 0, 60, 50, 80, 100)
	applied, err := c.ApplyCurve(ctx, registers.CPU, curve)
	require.NoError(t, err)
	assert.Equal(t, fan.AppliedHardware, applied)

	want := []ectest.Write{
		{Addr: 0x72, Value: 40}, {Addr: 0x73, Value: 0},
		{Addr: 0x74, Value: 60}, {Addr: 0x75, Value: 128},
		{Addr: 0x76, Value: 80}, {Addr: 0x77, Value: 255},
		// unused slots repeat the last point
		{Addr: 0x78, Value: 80}, {Addr: 0x79, Value: 255},
		{Addr: 0x7A, Value: 80}, {Addr: 0x7B, Value: 255},
		{Addr: 0x7C, Value: 80}, {Addr: 0x7D, Value: 255},
	}
	assert.Equal(t, want, backend.Writes())
}

func TestApplyCurveRoundTripsThroughReadCurve(t *testing.T) {
	c, _, _ := msiController(t)
	ctx := context.Background()

	for _, curve := range []fan.Curve{fan.DefaultCurve(), fan.SilentCurve(), fan.NewCurve(45, 33, 70, 67)} {
		_, err := c.ApplyCurve(ctx, registers.GPU, curve)
		require.NoError(t, err)

		got, err := c.ReadCurve(ctx, registers.GPU)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, curve, *got)
	}
}

func TestApplyCurveRejectsInvalidWithoutWriting(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	_, err := c.ApplyCurve(ctx, registers.CPU, fan.NewCurve(60, 50, 40, 60))
	assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve))

	tooMany := fan.NewCurve(10, 0, 20, 10, 30, 20, 40, 30, 50, 40, 60, 50, 70, 60)
	_, err = c.ApplyCurve(ctx, registers.CPU, tooMany)
	assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve), "more points than hardware slots")

	_, err = c.ApplyCurve(ctx, registers.CPU, fan.NewCurve(40, 0, 120, 100))
	assert.True(t, errors.HasCode(err, fan.ErrInvalidCurve), "temperature beyond slot range")

	assert.Empty(t, backend.Writes())
}

func TestApplyCurveReportsFailedSlot(t *testing.T) {
	c, backend, _ := msiController(t)
	backend.FailWrite(0x77, errors.New().New(errors.ErrIO))

	_, err := c.ApplyCurve(context.Background(), registers.CPU, fan.DefaultCurve())
	require.Error(t, err)
	assert.Equal(t, fan.ErrCurveApplyFailed, errors.CodeOf(err))
	assert.True(t, errors.HasCode(err, errors.ErrIO))

	failure, ok := errors.DataOf[fan.SlotFailure](err)
	require.True(t, ok)
	assert.Equal(t, fan.SlotFailure{Fan: registers.CPU, Slot: 3, Address: 0x77, Completed: 2}, failure)
	assert.Len(t, backend.Writes(), 5)
}

func TestApplyCurveFailsFastWhileLocked(t *testing.T) {
	c, backend, l := msiController(t)

	err := l.Do(context.Background(), func(context.Context) error {
		_, err := c.ApplyCurve(context.Background(), registers.CPU, fan.DefaultCurve())
		return err
	})

	assert.True(t, errors.HasCode(err, errors.ErrApplyInProgress))
	assert.Empty(t, backend.Writes())
}

func TestApplyCurveUnsupportedWithoutStorageOrDuty(t *testing.T) {
	tables, err := registers.LoadTables("")
	require.NoError(t, err)
	m, err := registers.Select(tables, registers.Identity{}, "")
	require.NoError(t, err)

	backend := ectest.New()
	c := fan.NewController(registers.NewGuard(backend, m, nil), lock.New(""), nil, 0)

	_, err = c.ApplyCurve(context.Background(), registers.CPU, fan.DefaultCurve())
	assert.True(t, errors.HasCode(err, fan.ErrUnsupported))
	assert.Empty(t, backend.Writes())
}

func TestSoftwareLoopDrivesDutyRegister(t *testing.T) {
	c, backend := softwareController(t)
	backend.Set(0x68, 60)

	applied, err := c.ApplyCurve(context.Background(), registers.CPU, fan.DefaultCurve())
	require.NoError(t, err)
	assert.Equal(t, fan.AppliedSoftware, applied)
	require.Len(t, c.Loops(), 1)

	// 60C on the default curve is 50%, 75 in a 0..150 register.
	assert.Eventually(t, func() bool { return backend.Get(0xF1) == 75 }, time.Second, 5*time.Millisecond)

	backend.Set(0x68, 90)
	assert.Eventually(t, func() bool { return backend.Get(0xF1) == 150 }, time.Second, 5*time.Millisecond)

	loop := c.Loops()[0]
	c.StopLoops()
	select {
	case <-loop.Done():
	default:
		t.Fatal("loop still running after StopLoops")
	}
	assert.Empty(t, c.Loops())
}

func TestSoftwareLoopSkipsTicksWhileLocked(t *testing.T) {
	m, err := registers.NewMap("software", []registers.Entry{
		{Tag: registers.CPUTemp, Address: 0x68, Access: registers.ReadOnly},
		{Tag: registers.CPUFanDuty, Address: 0xF1, Access: registers.ReadWrite, Range: registers.SafeRange{Max: 255}},
	})
	require.NoError(t, err)

	backend := ectest.New()
	backend.Set(0x68, 90)
	l := lock.New("")
	c := fan.NewController(registers.NewGuard(backend, m, nil), l, nil, 5*time.Millisecond)
	defer c.StopLoops()

	err = l.Do(context.Background(), func(context.Context) error {
		_, err := c.ApplyCurve(context.Background(), registers.CPU, fan.DefaultCurve())
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
		assert.Empty(t, backend.Writes(), "no writes while another sequence holds the lock")
		return nil
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return backend.Get(0xF1) == 255 }, time.Second, 5*time.Millisecond)
}

func TestSetManualClampsBeforeWriting(t *testing.T) {
	c, backend := softwareController(t)
	ctx := context.Background()

	got, err := c.SetManual(ctx, registers.CPU, 140)
	require.NoError(t, err)
	assert.Equal(t, 100, got)
	assert.Equal(t, byte(150), backend.Get(0xF1))

	got, err = c.SetManual(ctx, registers.CPU, -20)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, byte(0), backend.Get(0xF1))
}

func TestSetManualFlatCurveWithoutDutyRegister(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	got, err := c.SetManual(ctx, registers.CPU, 250)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	assert.Equal(t, byte(3), backend.Get(0xD4), "advanced mode")
	for slot := 0; slot < 6; slot++ {
		assert.Equal(t, byte(slot*20), backend.Get(0x72+byte(2*slot)))
		assert.Equal(t, byte(255), backend.Get(0x73+byte(2*slot)))
	}

	curve, err := c.ReadCurve(ctx, registers.CPU)
	require.NoError(t, err)
	require.NotNil(t, curve)
	assert.Equal(t, 100, fan.Interpolate(*curve, 10))
}

func TestCoolerBoostAndMode(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	require.NoError(t, c.SetCoolerBoost(ctx, true))
	assert.Equal(t, byte(0x80), backend.Get(0x98))
	require.NoError(t, c.SetCoolerBoost(ctx, false))
	assert.Equal(t, byte(0x00), backend.Get(0x98))

	require.NoError(t, c.SetMode(ctx, fan.ModeBasic))
	assert.Equal(t, byte(2), backend.Get(0xD4))

	backend.Set(0x98, 0x02)
	require.NoError(t, c.SetCoolerBoost(ctx, true))
	assert.Equal(t, byte(0x82), backend.Get(0x98), "other bits are kept")
	require.NoError(t, c.SetCoolerBoost(ctx, false))
	assert.Equal(t, byte(0x02), backend.Get(0x98))

	err := c.SetMode(ctx, fan.ModeManual)
	assert.True(t, errors.HasCode(err, fan.ErrInvalidArgument))
}

func TestReadStateAndReset(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	cpu := fan.PerformanceCurve()
	require.NoError(t, c.ApplyState(ctx, fan.State{Mode: fan.ModeAdvanced, CoolerBoost: true, CPUCurve: &cpu}))

	s, err := c.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, fan.ModeAdvanced, s.Mode)
	assert.True(t, s.CoolerBoost)
	require.NotNil(t, s.CPUCurve)
	assert.Equal(t, cpu, *s.CPUCurve)
	assert.Nil(t, s.GPUCurve, "zeroed slots are not a curve")

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, byte(0), backend.Get(0xD4))
	assert.Equal(t, byte(0), backend.Get(0x98))
}

func TestApplyStateIsIdempotent(t *testing.T) {
	c, backend, _ := msiController(t)
	ctx := context.Background()

	cpu := fan.SilentCurve()
	gpu := fan.DefaultCurve()
	state := fan.State{Mode: fan.ModeSilent, CPUCurve: &cpu, GPUCurve: &gpu}

	require.NoError(t, c.ApplyState(ctx, state))
	once := backend.Snapshot()

	require.NoError(t, c.ApplyState(ctx, state))
	assert.Equal(t, once, backend.Snapshot())
}

func TestCoolerBoostValue(t *testing.T) {
	tests := []struct {
		current byte
		on      bool
		want    byte
	}{
		{0x00, true, 0x80},
		{0x00, false, 0x00},
		{0x02, true, 0x82},
		{0x82, false, 0x02},
		{0x8F, true, 0x8F},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fan.CoolerBoostValue(tt.current, tt.on), "current 0x%02X on %v", tt.current, tt.on)
	}
}

func TestCoolerBoostUnreadableIsNotWritten(t *testing.T) {
	c, backend, _ := msiController(t)
	backend.FailRead(0x98, errors.New().New(errors.ErrIO))

	require.Error(t, c.SetCoolerBoost(context.Background(), true))
	assert.Empty(t, backend.Writes())
}

func TestApplyStateStartsSoftwareLoop(t *testing.T) {
	c, backend := softwareController(t)
	backend.Set(0x68, 60)
	ctx := context.Background()

	cpu := fan.DefaultCurve()
	require.NoError(t, c.ApplyState(ctx, fan.State{Mode: fan.ModeAdvanced, CPUCurve: &cpu}))

	loops := c.Loops()
	require.Len(t, loops, 1)
	assert.Equal(t, registers.CPU, loops[0].Fan())
	assert.Equal(t, cpu, loops[0].Curve())
	assert.Eventually(t, func() bool { return backend.Get(0xF1) == 75 }, time.Second, 5*time.Millisecond)
}

func TestApplyStateManualDutyReplacesSoftwareCurve(t *testing.T) {
	c, backend := softwareController(t)
	ctx := context.Background()

	cpu := fan.DefaultCurve()
	duty := 40
	require.NoError(t, c.ApplyState(ctx, fan.State{CPUCurve: &cpu, ManualCPU: &duty}))

	assert.Empty(t, c.Loops())
	assert.Equal(t, byte(60), backend.Get(0xF1))
}

func TestApplyStateCurveWithoutStorageOrDutyFails(t *testing.T) {
	tables, err := registers.LoadTables("")
	require.NoError(t, err)
	m, err := registers.Select(tables, registers.Identity{}, "msi-generic")
	require.NoError(t, err)

	backend := ectest.New()
	backend.Unsupport(curveAddresses(0x72)...)
	c := fan.NewController(registers.NewGuard(backend, m, nil), lock.New(""), nil, 0)

	cpu := fan.PerformanceCurve()
	err = c.ApplyState(context.Background(), fan.State{Mode: fan.ModeAdvanced, CoolerBoost: true, CPUCurve: &cpu})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrUnsupported))
	assert.Empty(t, backend.Writes(), "nothing is written before the curve is rejected")
	assert.Empty(t, c.Loops())
	assert.False(t, c.CanApplyCurve(registers.CPU))
	assert.True(t, c.CanApplyCurve(registers.GPU))
}

func TestConcurrentSoftwareCurvesKeepOneLoop(t *testing.T) {
	c, backend := softwareController(t)
	backend.Set(0x68, 60)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ApplyCurve(ctx, registers.CPU, fan.DefaultCurve())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loops := c.Loops()
	require.Len(t, loops, 1)

	c.StopLoops()
	select {
	case <-loops[0].Done():
	default:
		t.Fatal("loop still running after StopLoops")
	}

	backend.ResetWrites()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, backend.Writes(), "no replaced loop keeps writing")
}

// curveAddresses lists the temperature and duty addresses of six slots at base.
func curveAddresses(base byte) []byte {
	out := make([]byte, 0, 12)
	for i := byte(0); i < 12; i++ {
		out = append(out, base+i)
	}
	return out
}
