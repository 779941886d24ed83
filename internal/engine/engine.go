package engine

import (
	"context"
	"time"

	"codeberg.org/mutker/ecctl/internal/config"
	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/metrics"
	"codeberg.org/mutker/ecctl/internal/monitor"
	"codeberg.org/mutker/ecctl/internal/profile"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"codeberg.org/mutker/ecctl/internal/sensors"
)

type options struct {
	backend   ec.Backend
	dmiDir    string
	hwmonRoot string
	log       logger.Logger
}

type Option func(*options)

// WithBackend binds b instead of probing the system transports.
func WithBackend(b ec.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDMIDir reads the machine identity from dir.
func WithDMIDir(dir string) Option {
	return func(o *options) { o.dmiDir = dir }
}

// WithHwmonRoot reads host temperatures below root.
func WithHwmonRoot(root string) Option {
	return func(o *options) { o.hwmonRoot = root }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Engine holds the bound backend and every component built on it. It is
// valid until Close.
type Engine struct {
	Config    *config.Config
	Identity  registers.Identity
	Registers *registers.Map
	Backend   ec.Backend
	Guard     *registers.Guard
	Lock      *lock.Lock
	Fans      *fan.Controller
	Scenarios *scenario.Machine
	Profiles  *profile.Manager
	Sensors   *sensors.Set
	Monitor   *monitor.Monitor

	log logger.Logger
}

// Open detects the machine, binds a backend and assembles the components.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{dmiDir: registers.DefaultDMIDir, log: logger.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With("engine")

	tables, err := registers.LoadTables(cfg.Registers.TableFile)
	if err != nil {
		return nil, err
	}

	id := registers.DetectIdentity(o.dmiDir)
	regs, err := registers.Select(tables, id, cfg.Model)
	if err != nil {
		return nil, err
	}

	backend := o.backend
	if backend == nil {
		candidates, err := ec.Candidates(cfg.Backend, regs.SysfsAttributes())
		if err != nil {
			return nil, err
		}
		if backend, err = ec.Select(ctx, candidates...); err != nil {
			return nil, err
		}
	}

	log.Debug().
		Str("vendor", id.Vendor).
		Str("product", id.Product).
		Str("model", regs.Model()).
		Str("backend", backend.Kind().String()).
		Msg("Engine opened")

	e := &Engine{
		Config:    cfg,
		Identity:  id,
		Registers: regs,
		Backend:   backend,
		Lock:      lock.New(cfg.LockPath),
		log:       log,
	}

	e.Guard = registers.NewGuard(backend, regs, o.log)
	e.Fans = fan.NewController(e.Guard, e.Lock, o.log, time.Duration(cfg.ControlInterval)*time.Second)
	e.Scenarios = scenario.NewMachine(e.Guard, e.Fans, e.Lock, o.log)
	e.Profiles = profile.NewManager(profile.NewFileStore(cfg.ProfilesPath), e.Lock, e.Scenarios, e.Fans, o.log)
	e.Sensors = sensors.NewSet(o.log, hostSources(cfg, o, log)...)
	e.Monitor = e.NewMonitor(nil)

	return e, nil
}

// OpenProfiles returns a profile manager that only touches the store. Save and
// Apply need the hardware and must go through an Engine.
func OpenProfiles(cfg *config.Config, log logger.Logger) *profile.Manager {
	return profile.NewManager(profile.NewFileStore(cfg.ProfilesPath), lock.New(cfg.LockPath), nil, nil, log)
}

func hostSources(cfg *config.Config, o options, log logger.Logger) []sensors.Source {
	var sources []sensors.Source

	if cfg.Sensors.Hwmon {
		sources = append(sources, sensors.NewHwmon(o.hwmonRoot))
	}
	if cfg.Sensors.NVML {
		n, err := sensors.OpenNVML()
		if err != nil {
			log.Warn().Err(err).Msg("NVML unavailable, GPU host sensor disabled")
		} else {
			sources = append(sources, n)
		}
	}

	return sources
}

// NewMonitor returns a monitor with the host sensors attached, recording to
// rec when it is non-nil.
func (e *Engine) NewMonitor(rec monitor.Recorder) *monitor.Monitor {
	opts := []monitor.Option{}
	if e.Sensors.Len() > 0 {
		opts = append(opts, monitor.WithHostSensors(e.Sensors))
	}
	if rec != nil {
		opts = append(opts, monitor.WithRecorder(rec))
	}

	return monitor.New(e.Guard, e.log, opts...)
}

// OpenRecorder opens the snapshot database configured under metrics.
func (e *Engine) OpenRecorder() (metrics.Collector, error) {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = e.Config.Metrics.Enabled
	if e.Config.Metrics.DBPath != "" {
		cfg.DBPath = e.Config.Metrics.DBPath
	}
	cfg.BatchSize = e.Config.Metrics.BatchSize
	cfg.BatchTimeout = e.Config.Metrics.BatchTimeout

	return metrics.NewService(cfg, e.Registers.Model(), e.Backend.Kind().String(), e.log)
}

// Close stops software fan loops and releases the backend and host sensors.
func (e *Engine) Close() error {
	e.Fans.StopLoops()

	var errs []error
	if err := e.Sensors.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.Backend.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrShutdownFailed, errors.Join(errs...))
	}

	return nil
}
