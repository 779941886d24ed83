package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/scenario"
)

// FileStore persists a Store as JSON.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads the store. A missing file yields the seeded store without
// writing it; a file that does not decode or validate is ConfigCorrupt.
func (fs *FileStore) Load(now time.Time) (*Store, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return Seed(now), nil
	}
	if err != nil {
		return nil, errFactory.WrapWithData(ErrPersist, err, fs.path)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Store
	if err := dec.Decode(&s); err != nil {
		return nil, errFactory.WrapWithData(ErrConfigCorrupt, err, fs.path)
	}
	if err := validate(&s); err != nil {
		return nil, errFactory.WrapWithData(ErrConfigCorrupt, err, fs.path)
	}

	return &s, nil
}

func validate(s *Store) error {
	if s.Version < 1 || s.Version > StoreVersion {
		return fmt.Errorf("unsupported version %d", s.Version)
	}
	if s.Profiles == nil {
		return fmt.Errorf("missing profiles")
	}

	for key, p := range s.Profiles {
		if p == nil || p.Name != key {
			return fmt.Errorf("profile %q: name mismatch", key)
		}
		if _, ok := scenario.SettingsFor(p.BaseScenario); !ok {
			return fmt.Errorf("profile %q: unknown scenario %q", key, p.BaseScenario)
		}
		if p.FanOverride != nil {
			for _, c := range []*fan.Curve{p.FanOverride.CPUCurve, p.FanOverride.GPUCurve} {
				if c == nil {
					continue
				}
				if err := fan.Validate(*c); err != nil {
					return fmt.Errorf("profile %q: %w", key, err)
				}
			}
		}
	}

	if s.Active != "" {
		if _, ok := s.Profiles[s.Active]; !ok {
			return fmt.Errorf("active profile %q does not exist", s.Active)
		}
	}

	return nil
}

// Save writes s next to the target file and renames it into place.
func (fs *FileStore) Save(s *Store) error {
	errFactory := errors.New()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errFactory.Wrap(ErrPersist, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errFactory.WrapWithData(ErrPersist, err, dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fs.path)+".*.tmp")
	if err != nil {
		return errFactory.WrapWithData(ErrPersist, err, dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.WrapWithData(ErrPersist, err, tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errFactory.WrapWithData(ErrPersist, err, tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errFactory.WrapWithData(ErrPersist, err, tmp.Name())
	}

	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return errFactory.WrapWithData(ErrPersist, err, fs.path)
	}

	return nil
}
