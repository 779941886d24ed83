package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ecctl/internal/config"
	"codeberg.org/mutker/ecctl/internal/ec/ectest"
	"codeberg.org/mutker/ecctl/internal/engine"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dmiDir(t *testing.T, vendor string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sys_vendor"), []byte(vendor+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "product_name"), []byte("GF63 Thin\n"), 0o644))

	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()

	return &config.Config{
		LogLevel:        "info",
		Interval:        1,
		ControlInterval: 1,
		Backend:         "auto",
		ProfilesPath:    filepath.Join(dir, "profiles.json"),
		LockPath:        filepath.Join(dir, "ecctl.lock"),
		Metrics: config.MetricsConfig{
			Enabled:   true,
			DBPath:    filepath.Join(dir, "metrics.db"),
			BatchSize: 1,
		},
	}
}

func TestOpenDetectsMSIAndWires(t *testing.T) {
	backend := ectest.New()
	backend.Set(0xD2, scenario.ShiftComfort)

	e, err := engine.Open(context.Background(), testConfig(t),
		engine.WithBackend(backend),
		engine.WithDMIDir(dmiDir(t, "Micro-Star International Co., Ltd.")),
	)
	require.NoError(t, err)

	assert.True(t, e.Identity.IsMSI())
	assert.Equal(t, "msi-generic", e.Registers.Model())
	assert.False(t, e.Registers.IsFallback())
	assert.Equal(t, 0, e.Sensors.Len())

	ctx := context.Background()
	_, err = e.Profiles.Apply(ctx, "Turbo")
	require.NoError(t, err)

	st, err := e.Scenarios.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenario.Turbo, st.Scenario)

	snap, err := e.Monitor.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenario.Turbo, snap.Scenario)

	require.NoError(t, e.Close())
	assert.True(t, backend.Closed())
}

func TestOpenUnknownVendorUsesFallback(t *testing.T) {
	backend := ectest.New()
	backend.Set(0xD2, scenario.ShiftComfort)

	e, err := engine.Open(context.Background(), testConfig(t),
		engine.WithBackend(backend),
		engine.WithDMIDir(dmiDir(t, "Some Vendor")),
	)
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.Identity.IsMSI())
	assert.True(t, e.Registers.IsFallback())

	ctx := context.Background()
	_, err = e.Profiles.Apply(ctx, "Turbo")
	require.Error(t, err)
	require.Error(t, e.Fans.Reset(ctx))
	assert.Empty(t, backend.Writes(), "the fallback table never writes")

	st, err := e.Scenarios.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenario.Balanced, st.Scenario)
}

func TestOpenUnknownModelOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model = "no-such-model"

	_, err := engine.Open(context.Background(), cfg,
		engine.WithBackend(ectest.New()),
		engine.WithDMIDir(t.TempDir()),
	)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
}

func TestOpenRecorder(t *testing.T) {
	cfg := testConfig(t)

	e, err := engine.Open(context.Background(), cfg,
		engine.WithBackend(ectest.New()),
		engine.WithDMIDir(dmiDir(t, "MSI")),
	)
	require.NoError(t, err)
	defer e.Close()

	rec, err := e.OpenRecorder()
	require.NoError(t, err)

	m := e.NewMonitor(rec)
	snap, err := m.Sample(context.Background())
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), &snap))
	require.NoError(t, rec.Close())

	_, err = os.Stat(cfg.Metrics.DBPath)
	assert.NoError(t, err)
}

func TestOpenHwmonSensors(t *testing.T) {
	root := t.TempDir()
	chip := filepath.Join(root, "hwmon0")
	require.NoError(t, os.MkdirAll(chip, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chip, "name"), []byte("coretemp\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(chip, "temp1_input"), []byte("54000\n"), 0o644))

	cfg := testConfig(t)
	cfg.Sensors.Hwmon = true

	e, err := engine.Open(context.Background(), cfg,
		engine.WithBackend(ectest.New()),
		engine.WithDMIDir(dmiDir(t, "MSI")),
		engine.WithHwmonRoot(root),
	)
	require.NoError(t, err)
	defer e.Close()

	snap, err := e.Monitor.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Host, 1)
	assert.Equal(t, 54.0, snap.Host[0].Celsius)
}

func TestOpenProfilesWithoutHardware(t *testing.T) {
	cfg := testConfig(t)
	m := engine.OpenProfiles(cfg, nil)

	list, err := m.List()
	require.NoError(t, err)
	assert.Len(t, list, len(scenario.All()))

	_, err = m.Create(context.Background(), "Gaming", scenario.Turbo)
	require.NoError(t, err)

	_, err = os.Stat(cfg.ProfilesPath)
	assert.NoError(t, err)
}
