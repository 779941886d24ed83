package ec

import (
	"context"
	"sync"
	"testing"

	"codeberg.org/mutker/ecctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePortDevice emulates the EC command/data port state machine.
type fakePortDevice struct {
	mu       sync.Mutex
	regs     [256]byte
	state    int
	addr     byte
	data     byte
	obf      bool
	ibfStuck bool
	closed   bool
}

const (
	stateIdle = iota
	stateReadAddr
	stateWriteAddr
	stateWriteValue
)

func (d *fakePortDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case portCommand:
		var status byte
		if d.obf {
			status |= statusOBF
		}
		if d.ibfStuck {
			status |= statusIBF
		}
		p[0] = status
	case portData:
		p[0] = d.data
		d.obf = false
	}

	return 1, nil
}

func (d *fakePortDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch off {
	case portCommand:
		switch p[0] {
		case cmdRead:
			d.state = stateReadAddr
		case cmdWrite:
			d.state = stateWriteAddr
		}
	case portData:
		switch d.state {
		case stateReadAddr:
			d.data = d.regs[p[0]]
			d.obf = true
			d.state = stateIdle
		case stateWriteAddr:
			d.addr = p[0]
			d.state = stateWriteValue
		case stateWriteValue:
			d.regs[d.addr] = p[0]
			d.state = stateIdle
		}
	}

	return 1, nil
}

func (d *fakePortDevice) Close() error {
	d.closed = true
	return nil
}

func TestPortReadWriteHandshake(t *testing.T) {
	dev := &fakePortDevice{}
	dev.regs[0xD2] = 0xC1
	p := newPortWithDevice(dev)
	ctx := context.Background()

	require.NoError(t, p.Probe(ctx))

	v, err := p.ReadByte(ctx, 0xD2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC1), v)

	require.NoError(t, p.WriteByte(ctx, 0xD2, 0xC4))
	assert.Equal(t, byte(0xC4), dev.regs[0xD2])

	v, err = p.ReadByte(ctx, 0xD2)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC4), v)

	require.NoError(t, p.Close())
	assert.True(t, dev.closed)
}

func TestPortHandshakeTimeoutIsRetriedThenIOError(t *testing.T) {
	dev := &fakePortDevice{ibfStuck: true}
	p := newPortWithDevice(dev)

	_, err := p.ReadByte(context.Background(), 0x68)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrIO))
	assert.True(t, errors.HasCode(err, ErrBusy), "last transient cause is kept")
}

func TestPortClosedDevice(t *testing.T) {
	p := NewPort("/nonexistent/port")

	err := p.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotPresent))

	_, err = p.ReadByte(context.Background(), 0x68)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrIO))
}
