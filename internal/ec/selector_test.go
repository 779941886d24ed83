package ec_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
	kind ec.Kind
}

func newMockBackend(kind ec.Kind) *mockBackend {
	return &mockBackend{kind: kind}
}

func (m *mockBackend) Kind() ec.Kind { return m.kind }

func (m *mockBackend) Probe(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBackend) ReadByte(ctx context.Context, addr byte) (byte, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(byte), args.Error(1)
}

func (m *mockBackend) WriteByte(ctx context.Context, addr, value byte) error {
	return m.Called(ctx, addr, value).Error(0)
}

func (m *mockBackend) Supports(addr byte) bool {
	return m.Called(addr).Bool(0)
}

func (m *mockBackend) Close() error {
	return m.Called().Error(0)
}

func TestSelectPrefersDirectPort(t *testing.T) {
	port := newMockBackend(ec.DirectPort)
	debugfs := newMockBackend(ec.DebugfsAcpi)
	sysfs := newMockBackend(ec.KernelModuleSysfs)

	port.On("Probe", mock.Anything).Return(nil)

	b, err := ec.Select(context.Background(), port, debugfs, sysfs)
	require.NoError(t, err)
	assert.Equal(t, ec.DirectPort, b.Kind())

	port.AssertExpectations(t)
	debugfs.AssertNotCalled(t, "Probe", mock.Anything)
	sysfs.AssertNotCalled(t, "Probe", mock.Anything)
}

func TestSelectFallsThroughInOrder(t *testing.T) {
	port := newMockBackend(ec.DirectPort)
	debugfs := newMockBackend(ec.DebugfsAcpi)
	sysfs := newMockBackend(ec.KernelModuleSysfs)

	port.On("Probe", mock.Anything).Return(errors.New().New(ec.ErrNotPresent)).Once()
	port.On("Close").Return(nil).Once()
	debugfs.On("Probe", mock.Anything).Return(errors.New().New(ec.ErrNotPresent)).Once()
	debugfs.On("Close").Return(nil).Once()
	sysfs.On("Probe", mock.Anything).Return(nil).Once()

	b, err := ec.Select(context.Background(), port, debugfs, sysfs)
	require.NoError(t, err)
	assert.Equal(t, ec.KernelModuleSysfs, b.Kind())

	port.AssertExpectations(t)
	debugfs.AssertExpectations(t)
	sysfs.AssertExpectations(t)
	sysfs.AssertNotCalled(t, "Close")
}

func TestSelectNoBackendAvailable(t *testing.T) {
	probeErrs := map[ec.Kind]error{
		ec.DirectPort:        errors.New().New(ec.ErrPermissionDenied),
		ec.DebugfsAcpi:       errors.New().New(ec.ErrNotPresent),
		ec.KernelModuleSysfs: errors.New().New(ec.ErrNotPresent),
	}

	candidates := []ec.Backend{}
	for _, kind := range []ec.Kind{ec.DirectPort, ec.DebugfsAcpi, ec.KernelModuleSysfs} {
		m := newMockBackend(kind)
		m.On("Probe", mock.Anything).Return(probeErrs[kind])
		m.On("Close").Return(nil)
		candidates = append(candidates, m)
	}

	b, err := ec.Select(context.Background(), candidates...)
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Equal(t, ec.ErrNoBackendAvailable, errors.CodeOf(err))

	var probeErr *ec.ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, ec.DirectPort, probeErr.Kind)

	for _, c := range candidates {
		c.(*mockBackend).AssertCalled(t, "Close")
	}
}

func TestSelectAllPermissionDenied(t *testing.T) {
	candidates := []ec.Backend{}
	for _, kind := range []ec.Kind{ec.DirectPort, ec.DebugfsAcpi, ec.KernelModuleSysfs} {
		m := newMockBackend(kind)
		m.On("Probe", mock.Anything).Return(errors.New().New(ec.ErrPermissionDenied))
		m.On("Close").Return(nil)
		candidates = append(candidates, m)
	}

	_, err := ec.Select(context.Background(), candidates...)
	require.Error(t, err)
	assert.Equal(t, ec.ErrPermissionDenied, errors.CodeOf(err))
}

func TestCandidatesOrderAndPin(t *testing.T) {
	all, err := ec.Candidates("auto", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ec.DirectPort, all[0].Kind())
	assert.Equal(t, ec.DebugfsAcpi, all[1].Kind())
	assert.Equal(t, ec.KernelModuleSysfs, all[2].Kind())

	pinned, err := ec.Candidates("debugfs", nil)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, ec.DebugfsAcpi, pinned[0].Kind())

	_, err = ec.Candidates("smbus", nil)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
}
