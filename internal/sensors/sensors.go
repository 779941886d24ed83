package sensors

import (
	"context"

	"codeberg.org/mutker/ecctl/internal/logger"
)

// Reading is one host temperature, independent of the EC.
type Reading struct {
	Source  string  `json:"source"`
	Label   string  `json:"label"`
	Celsius float64 `json:"celsius"`
}

// Source provides host temperature readings.
type Source interface {
	Name() string
	Read(ctx context.Context) ([]Reading, error)
	Close() error
}

// Set collects readings from several sources, skipping the ones that fail.
type Set struct {
	sources []Source
	log     logger.Logger
}

func NewSet(log logger.Logger, sources ...Source) *Set {
	if log == nil {
		log = logger.Nop()
	}

	return &Set{sources: sources, log: log.With("sensors")}
}

// Collect returns the readings of every source that answered.
func (s *Set) Collect(ctx context.Context) []Reading {
	var out []Reading
	for _, src := range s.sources {
		readings, err := src.Read(ctx)
		if err != nil {
			s.log.Debug().Err(err).Str("source", src.Name()).Msg("Host sensor read failed")
			continue
		}
		out = append(out, readings...)
	}

	return out
}

// Len returns the number of sources.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sources)
}

func (s *Set) Close() error {
	var firstErr error
	for _, src := range s.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
