package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"codeberg.org/mutker/ecctl/internal/sensors"
)

const (
	temperatureWindowSize = 5

	ErrInvalidInterval = errors.ErrInvalidInterval
)

// Recorder persists snapshots.
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
}

// Monitor samples the EC without writing to it.
type Monitor struct {
	guard    *registers.Guard
	host     *sensors.Set
	recorder Recorder
	log      logger.Logger
	now      func() time.Time

	mu          sync.Mutex
	tempHistory map[registers.Fan][]int
}

type Option func(*Monitor)

// WithHostSensors appends host readings to every snapshot.
func WithHostSensors(set *sensors.Set) Option {
	return func(m *Monitor) { m.host = set }
}

// WithRecorder persists every snapshot taken by Run.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func New(guard *registers.Guard, log logger.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = logger.Nop()
	}

	m := &Monitor{
		guard:       guard,
		log:         log.With("monitor"),
		now:         time.Now,
		tempHistory: make(map[registers.Fan][]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Sample reads every monitored register once. Registers that fail to read
// are reported in Snapshot.Missing. The error is non-nil only when ctx is done.
func (m *Monitor) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{Time: m.now().UTC()}

	read := func(tag registers.Tag) (byte, bool) {
		if !m.guard.Map().Has(tag) {
			return 0, false
		}
		v, err := m.guard.Read(ctx, tag)
		if err != nil {
			m.log.Debug().Err(err).Str("tag", string(tag)).Msg("Register read failed")
			s.Missing = append(s.Missing, tag)
			return 0, false
		}
		return v, true
	}

	for _, f := range registers.Fans {
		if v, ok := read(registers.TempTag(f)); ok {
			temp, avg := int(v), m.updateTemperatureHistory(f, int(v))
			if f == registers.GPU {
				s.GPUTemp, s.GPUTempAvg = &temp, &avg
			} else {
				s.CPUTemp, s.CPUTempAvg = &temp, &avg
			}
		}

		reading := m.readFan(f, read)
		if f == registers.GPU {
			s.GPUFan = reading
		} else {
			s.CPUFan = reading
		}
	}

	if v, ok := read(registers.FanMode); ok {
		s.Mode = ptr(fan.ModeFromValue(v))
	}
	if v, ok := read(registers.CoolerBoost); ok {
		s.CoolerBoost = ptr(v&0x80 != 0)
	}
	if v, ok := read(registers.SuperBattery); ok {
		s.SuperBattery = ptr(v&0x01 != 0)
	}

	s.Scenario = scenario.Unknown
	if v, ok := read(registers.ShiftMode); ok {
		s.ShiftMode = ptr(v)
		s.Scenario = scenario.FromShift(v, s.SuperBattery != nil && *s.SuperBattery)
	}

	if m.host != nil {
		s.Host = m.host.Collect(ctx)
	}

	return s, nil
}

// readFan prefers the realtime speed register over the target speed register.
func (m *Monitor) readFan(f registers.Fan, read func(registers.Tag) (byte, bool)) FanReading {
	tags := registers.SpeedTags(f)
	for i := len(tags) - 1; i >= 0; i-- {
		e, ok := m.guard.Map().Lookup(tags[i])
		if !ok {
			continue
		}
		raw, ok := read(tags[i])
		if !ok {
			continue
		}
		return speedReading(e, raw)
	}

	return FanReading{}
}

func speedReading(e registers.Entry, raw byte) FanReading {
	if e.Scale == nil {
		return FanReading{Percent: ptr(fan.RawToPercent(raw))}
	}

	r := FanReading{}
	if e.Scale.PercentDivisor > 0 {
		r.Percent = ptr(int(math.Round(float64(raw) * 100 / e.Scale.PercentDivisor)))
	}
	if e.Scale.RPMMultiplier > 0 {
		r.RPM = ptr(int(raw) * e.Scale.RPMMultiplier)
	}

	return r
}

func (m *Monitor) updateTemperatureHistory(f registers.Fan, temp int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := append(m.tempHistory[f], temp)
	if len(history) > temperatureWindowSize {
		history = history[1:]
	}
	m.tempHistory[f] = history

	sum := 0
	for _, t := range history {
		sum += t
	}

	return sum / len(history)
}

// Run samples immediately and then every interval until ctx is done. A
// non-nil error from fn stops the run and is returned.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, fn func(Snapshot) error) error {
	if interval <= 0 {
		return errors.New().WithData(ErrInvalidInterval, interval.String())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := m.Sample(ctx)
		if err != nil {
			return nil
		}

		if m.recorder != nil {
			if err := m.recorder.Record(ctx, &snap); err != nil {
				m.log.Warn().Err(err).Msg("Failed to record snapshot")
			}
		}

		if err := fn(snap); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
