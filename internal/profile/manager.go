package profile

import (
	"context"
	"sort"
	"strings"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/scenario"
)

// Manager owns the profile store and applies profiles to the hardware.
type Manager struct {
	store     *FileStore
	lock      *lock.Lock
	scenarios *scenario.Machine
	fans      *fan.Controller
	log       logger.Logger
	now       func() time.Time
}

func NewManager(store *FileStore, l *lock.Lock, scenarios *scenario.Machine, fans *fan.Controller, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}

	return &Manager{
		store:     store,
		lock:      l,
		scenarios: scenarios,
		fans:      fans,
		log:       log.With("profile"),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

func (m *Manager) load() (*Store, error) {
	return m.store.Load(m.now())
}

// mutate loads, modifies and persists the store under the write lock.
func (m *Manager) mutate(ctx context.Context, fn func(s *Store) error) error {
	return m.lock.Wait(ctx, func(context.Context) error {
		s, err := m.load()
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		return m.store.Save(s)
	})
}

// List returns every profile sorted by name.
func (m *Manager) List() ([]Profile, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}

	out := make([]Profile, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (m *Manager) Get(name string) (Profile, error) {
	s, err := m.load()
	if err != nil {
		return Profile{}, err
	}

	p, ok := s.Profiles[name]
	if !ok {
		return Profile{}, errors.New().WithData(ErrProfileNotFound, name)
	}

	return p.Clone(), nil
}

// Active returns the active profile, or nil when none is recorded.
func (m *Manager) Active() (*Profile, error) {
	s, err := m.load()
	if err != nil {
		return nil, err
	}
	if s.Active == "" {
		return nil, nil
	}

	p := s.Profiles[s.Active].Clone()

	return &p, nil
}

// Create adds a profile based on a scenario.
func (m *Manager) Create(ctx context.Context, name string, base scenario.Scenario) (Profile, error) {
	errFactory := errors.New()

	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, errFactory.WithMessage(ErrInvalidArgument, "profile name is empty")
	}
	if _, ok := scenario.SettingsFor(base); !ok {
		return Profile{}, errFactory.WithData(ErrInvalidArgument, "scenario "+string(base))
	}

	var created Profile
	err := m.mutate(ctx, func(s *Store) error {
		if _, ok := s.Profiles[name]; ok {
			return errFactory.WithData(ErrDuplicateName, name)
		}

		now := m.now()
		p := &Profile{
			Name:         name,
			BaseScenario: base,
			CreatedFrom:  FromScenario,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		s.Profiles[name] = p
		created = p.Clone()

		return nil
	})
	if err != nil {
		return Profile{}, err
	}

	m.log.Info().Str("profile", name).Str("scenario", string(base)).Msg("Profile created")

	return created, nil
}

// Save captures the current hardware state into name, creating it when
// missing. An empty name targets the active profile.
func (m *Manager) Save(ctx context.Context, name string) (Profile, error) {
	errFactory := errors.New()

	status, err := m.scenarios.Status(ctx)
	if err != nil {
		return Profile{}, err
	}
	state, err := m.fans.ReadState(ctx)
	if err != nil {
		return Profile{}, err
	}

	base := status.Scenario
	if base == scenario.Unknown {
		m.log.Warn().Uint8("shift", status.ShiftMode).Msg("Unknown shift mode, saving as balanced")
		base = scenario.Balanced
	}
	if state.Mode == fan.ModeUnknown {
		state.Mode = ""
	}

	var saved Profile
	err = m.mutate(ctx, func(s *Store) error {
		target := strings.TrimSpace(name)
		if target == "" {
			target = s.Active
		}
		if target == "" {
			return errFactory.WithMessage(ErrInvalidArgument, "no profile name given and no active profile")
		}

		now := m.now()
		p, ok := s.Profiles[target]
		if !ok {
			p = &Profile{Name: target, CreatedFrom: FromCurrent, CreatedAt: now}
			s.Profiles[target] = p
		}
		override := state.Clone()
		p.BaseScenario = base
		p.FanOverride = &override
		p.UpdatedAt = now
		saved = p.Clone()

		return nil
	})
	if err != nil {
		return Profile{}, err
	}

	m.log.Info().Str("profile", saved.Name).Msg("Profile saved from current state")

	return saved, nil
}

// SetActive records name as the active profile without touching hardware.
func (m *Manager) SetActive(ctx context.Context, name string) error {
	return m.mutate(ctx, func(s *Store) error {
		if _, ok := s.Profiles[name]; !ok {
			return errors.New().WithData(ErrProfileNotFound, name)
		}
		s.Active = name
		return nil
	})
}

// Apply sets the profile's scenario and fan override under the write lock
// and records it as active. An empty name applies the active profile.
func (m *Manager) Apply(ctx context.Context, name string) (Profile, error) {
	errFactory := errors.New()

	var applied Profile
	err := m.lock.Do(ctx, func(ctx context.Context) error {
		s, err := m.load()
		if err != nil {
			return err
		}

		target := name
		if target == "" {
			target = s.Active
		}
		if target == "" {
			return errFactory.WithMessage(ErrProfileNotFound, "no active profile")
		}

		p, ok := s.Profiles[target]
		if !ok {
			return errFactory.WithData(ErrProfileNotFound, target)
		}
		applied = p.Clone()

		if err := m.scenarios.Set(ctx, p.BaseScenario, scenario.Options{FanOverride: applied.FanOverride}); err != nil {
			return err
		}

		if s.Active != target {
			s.Active = target
			return m.store.Save(s)
		}

		return nil
	})
	if err != nil {
		return Profile{}, err
	}

	m.log.Info().Str("profile", applied.Name).Msg("Profile applied")

	return applied, nil
}

// Delete removes a profile other than the active one.
func (m *Manager) Delete(ctx context.Context, name string) error {
	errFactory := errors.New()

	err := m.mutate(ctx, func(s *Store) error {
		if _, ok := s.Profiles[name]; !ok {
			return errFactory.WithData(ErrProfileNotFound, name)
		}
		if s.Active == name {
			return errFactory.WithData(ErrCannotDeleteActive, name)
		}
		delete(s.Profiles, name)
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info().Str("profile", name).Msg("Profile deleted")

	return nil
}
