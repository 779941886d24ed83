package profile

import (
	"time"

	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/scenario"
)

// StoreVersion is the current on-disk format.
const StoreVersion = 1

// Origin records how a profile was created.
type Origin string

const (
	FromScenario Origin = "scenario"
	FromCurrent  Origin = "current"
)

// Profile is a named scenario with an optional fan override.
type Profile struct {
	Name         string            `json:"name"`
	BaseScenario scenario.Scenario `json:"baseScenario"`
	FanOverride  *fan.State        `json:"fanOverride,omitempty"`
	CreatedFrom  Origin            `json:"createdFrom"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	if p.FanOverride != nil {
		s := p.FanOverride.Clone()
		p.FanOverride = &s
	}
	return p
}

// Store is the persisted set of profiles.
type Store struct {
	Version  int                 `json:"version"`
	Profiles map[string]*Profile `json:"profiles"`
	// Active names an entry of Profiles, or is empty.
	Active string `json:"active,omitempty"`
}

// Seed returns the store used when none exists: one profile per scenario and
// no active profile.
func Seed(now time.Time) *Store {
	s := &Store{Version: StoreVersion, Profiles: make(map[string]*Profile)}
	for _, sc := range scenario.All() {
		name := sc.DisplayName()
		s.Profiles[name] = &Profile{
			Name:         name,
			BaseScenario: sc,
			CreatedFrom:  FromScenario,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	return s
}
