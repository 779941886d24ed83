package main

import (
	"context"

	"codeberg.org/mutker/ecctl/internal/config"
	"codeberg.org/mutker/ecctl/internal/engine"
	"codeberg.org/mutker/ecctl/internal/logger"
	"codeberg.org/mutker/ecctl/internal/profile"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// app carries state shared by every command of one invocation.
type app struct {
	configFile string
	cfg        *config.Config
	eng        *engine.Engine
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(
		config.WithConfigFile(a.configFile),
		config.WithFlags(cmd.Flags()),
	)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Str("profiles", cfg.ProfilesPath).Str("backend", cfg.Backend).Msg("Config loaded")

	a.cfg = cfg

	return nil
}

// engine opens the hardware on first use.
func (a *app) engine(ctx context.Context) (*engine.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}

	e, err := engine.Open(ctx, a.cfg)
	if err != nil {
		return nil, err
	}

	switch {
	case e.Registers.IsFallback():
		pterm.Warning.Printfln("No register table for %q %q, registers are read-only (set model to override)",
			e.Identity.Vendor, e.Identity.Product)
	case !e.Identity.IsMSI():
		pterm.Warning.Printfln("Vendor %q is not MSI, register writes may have no effect", e.Identity.Vendor)
	}
	a.eng = e

	return e, nil
}

// profiles returns a manager that can apply profiles when the hardware is
// already open and works on the store alone otherwise.
func (a *app) profiles() *profile.Manager {
	if a.eng != nil {
		return a.eng.Profiles
	}
	return engine.OpenProfiles(a.cfg, logger.Default())
}

func (a *app) close() {
	if a.eng == nil {
		return
	}
	if err := a.eng.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to release EC backend")
	}
	a.eng = nil
}
