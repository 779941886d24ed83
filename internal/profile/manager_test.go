package profile_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/ecctl/internal/ec/ectest"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/lock"
	"codeberg.org/mutker/ecctl/internal/profile"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager *profile.Manager
	backend *ectest.Fake
	fans    *fan.Controller
	lock    *lock.Lock
	path    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	tables, err := registers.LoadTables("")
	require.NoError(t, err)
	m, err := registers.Select(tables, registers.Identity{}, "msi-generic")
	require.NoError(t, err)

	backend := ectest.New()
	backend.Set(0xD2, scenario.ShiftComfort)

	l := lock.New(filepath.Join(t.TempDir(), "ecctl.lock"))
	guard := registers.NewGuard(backend, m, nil)
	fans := fan.NewController(guard, l, nil, 10*time.Millisecond)
	t.Cleanup(fans.StopLoops)

	path := filepath.Join(t.TempDir(), "ecctl", "profiles.json")
	mgr := profile.NewManager(profile.NewFileStore(path), l, scenario.NewMachine(guard, fans, l, nil), fans, nil)

	return fixture{manager: mgr, backend: backend, fans: fans, lock: l, path: path}
}

func names(ps []profile.Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestSeededStore(t *testing.T) {
	f := newFixture(t)

	ps, err := f.manager.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Balanced", "High Performance", "Silent", "Super Battery", "Turbo"}, names(ps))

	active, err := f.manager.Active()
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = os.Stat(f.path)
	assert.True(t, os.IsNotExist(err), "reading does not create the store")
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.Create(ctx, "Gaming", scenario.Turbo)
	require.NoError(t, err)
	assert.Equal(t, profile.FromScenario, created.CreatedFrom)

	got, err := f.manager.Get("Gaming")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = f.manager.Create(ctx, "Gaming", scenario.Silent)
	assert.True(t, errors.HasCode(err, profile.ErrDuplicateName))

	_, err = f.manager.Create(ctx, "Turbo", scenario.Turbo)
	assert.True(t, errors.HasCode(err, profile.ErrDuplicateName), "seeded names are taken")

	_, err = f.manager.Create(ctx, "  ", scenario.Turbo)
	assert.True(t, errors.HasCode(err, profile.ErrInvalidArgument))

	_, err = f.manager.Get("missing")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))
}

func TestDeleteActiveAndNonActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.SetActive(ctx, "Silent"))

	err := f.manager.Delete(ctx, "Silent")
	assert.True(t, errors.HasCode(err, profile.ErrCannotDeleteActive))

	require.NoError(t, f.manager.Delete(ctx, "Turbo"))
	_, err = f.manager.Get("Turbo")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))

	err = f.manager.Delete(ctx, "Turbo")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))

	err = f.manager.SetActive(ctx, "Turbo")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))
}

func TestApplySetsScenarioAndActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.manager.Apply(ctx, "Turbo")
	require.NoError(t, err)
	assert.Equal(t, scenario.Turbo, p.BaseScenario)
	assert.Equal(t, scenario.ShiftTurbo, f.backend.Get(0xD2))

	active, err := f.manager.Active()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "Turbo", active.Name)

	_, err = f.manager.Apply(ctx, "nope")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))
}

func TestApplyWithoutActive(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Apply(context.Background(), "")
	assert.True(t, errors.HasCode(err, profile.ErrProfileNotFound))
	assert.Empty(t, f.backend.Writes())
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Apply(ctx, "High Performance")
	require.NoError(t, err)
	once := f.backend.Snapshot()
	stored, err := os.ReadFile(f.path)
	require.NoError(t, err)

	_, err = f.manager.Apply(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, once, f.backend.Snapshot())

	again, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestConcurrentApplyFailsFast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.OnWrite(func(byte, byte) {
		once.Do(func() {
			close(started)
			<-release
		})
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Apply(ctx, "Turbo")
		done <- err
	}()

	<-started
	_, err := f.manager.Apply(ctx, "Silent")
	assert.True(t, errors.HasCode(err, errors.ErrApplyInProgress))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, scenario.ShiftTurbo, f.backend.Get(0xD2))
}

func TestSaveCapturesHardware(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Apply(ctx, "High Performance")
	require.NoError(t, err)

	custom := fan.NewCurve(30, 20, 50, 40, 70, 80, 90, 100)
	_, err = f.fans.ApplyCurve(ctx, registers.CPU, custom)
	require.NoError(t, err)

	saved, err := f.manager.Save(ctx, "Mine")
	require.NoError(t, err)
	assert.Equal(t, profile.FromCurrent, saved.CreatedFrom)
	assert.Equal(t, scenario.HighPerformance, saved.BaseScenario)
	require.NotNil(t, saved.FanOverride)
	assert.Equal(t, fan.ModeBasic, saved.FanOverride.Mode)
	require.NotNil(t, saved.FanOverride.CPUCurve)
	assert.Equal(t, custom, *saved.FanOverride.CPUCurve)

	_, err = f.manager.Apply(ctx, "Silent")
	require.NoError(t, err)
	assert.Equal(t, byte(50), f.backend.Get(0x72))

	_, err = f.manager.Apply(ctx, "Mine")
	require.NoError(t, err)
	assert.Equal(t, byte(30), f.backend.Get(0x72))
	assert.Equal(t, scenario.ShiftSport, f.backend.Get(0xD2))
}

func TestSavedUnknownFanModeAppliesScenarioMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.backend.Set(0xD2, scenario.ShiftSport)
	f.backend.Set(0xD4, 0x07)

	saved, err := f.manager.Save(ctx, "Odd")
	require.NoError(t, err)
	require.NotNil(t, saved.FanOverride)
	assert.Empty(t, saved.FanOverride.Mode)

	_, err = f.manager.Apply(ctx, "Odd")
	require.NoError(t, err)
	assert.Equal(t, byte(2), f.backend.Get(0xD4), "high performance uses basic mode")
}

func TestApplyRejectsCurveWithoutStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.fans.ApplyCurve(ctx, registers.CPU, fan.PerformanceCurve())
	require.NoError(t, err)
	_, err = f.manager.Save(ctx, "Curved")
	require.NoError(t, err)

	f.backend.Unsupport(0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D)
	f.backend.ResetWrites()

	_, err = f.manager.Apply(ctx, "Curved")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrUnsupported))
	assert.Empty(t, f.backend.Writes())
	assert.Empty(t, f.fans.Loops())

	active, err := f.manager.Active()
	require.NoError(t, err)
	assert.Nil(t, active, "a rejected profile is not marked active")
}

func TestSaveEmptyNameTargetsActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Save(ctx, "")
	assert.True(t, errors.HasCode(err, profile.ErrInvalidArgument))

	require.NoError(t, f.manager.SetActive(ctx, "Balanced"))
	saved, err := f.manager.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Balanced", saved.Name)
	assert.Equal(t, profile.FromScenario, saved.CreatedFrom, "origin is kept on update")
	assert.NotNil(t, saved.FanOverride)
}

func TestCorruptStoreIsNotReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(f.path), 0o755))
	require.NoError(t, os.WriteFile(f.path, []byte("{"), 0o644))

	_, err := f.manager.List()
	assert.True(t, errors.HasCode(err, profile.ErrConfigCorrupt))

	_, err = f.manager.Create(ctx, "New", scenario.Silent)
	assert.True(t, errors.HasCode(err, profile.ErrConfigCorrupt))

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, "{", string(data))
}
