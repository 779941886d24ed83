package ec

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"codeberg.org/mutker/ecctl/internal/errors"
)

// ACPI embedded controller I/O ports and protocol bits.
const (
	portCommand = 0x66
	portData    = 0x62

	cmdRead  = 0x80
	cmdWrite = 0x81

	statusOBF = 0x01
	statusIBF = 0x02

	handshakeTimeout = 100 * time.Millisecond
	handshakePoll    = 10 * time.Microsecond
)

// portDevice is the byte-addressed I/O port space.
type portDevice interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Port talks to the EC through the raw I/O port device.
type Port struct {
	path string
	dev  portDevice
	mu   sync.Mutex
}

// NewPort returns a DirectPort backend using the device at path.
func NewPort(path string) *Port {
	return &Port{path: path}
}

func newPortWithDevice(dev portDevice) *Port {
	return &Port{path: PortPath, dev: dev}
}

func (p *Port) Kind() Kind { return DirectPort }

// Supports is true for every address: the port protocol reaches the whole
// register space.
func (p *Port) Supports(byte) bool { return true }

func (p *Port) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev == nil {
		f, err := os.OpenFile(p.path, os.O_RDWR, 0)
		if err != nil {
			return classifyOpen(err)
		}
		p.dev = f
	}

	if _, err := p.readPort(portCommand); err != nil {
		return errors.New().Wrap(ErrIO, err)
	}

	return nil
}

func (p *Port) ReadByte(ctx context.Context, addr byte) (byte, error) {
	var value byte
	err := withRetry(ctx, "port read", func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.ready(); err != nil {
			return err
		}
		if err := p.waitInputClear(ctx); err != nil {
			return err
		}
		if err := p.writePort(portCommand, cmdRead); err != nil {
			return err
		}
		if err := p.waitInputClear(ctx); err != nil {
			return err
		}
		if err := p.writePort(portData, addr); err != nil {
			return err
		}
		if err := p.waitOutputFull(ctx); err != nil {
			return err
		}

		v, err := p.readPort(portData)
		if err != nil {
			return err
		}
		value = v

		return nil
	})

	return value, err
}

func (p *Port) WriteByte(ctx context.Context, addr, value byte) error {
	return withRetry(ctx, "port write", func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.ready(); err != nil {
			return err
		}
		if err := p.waitInputClear(ctx); err != nil {
			return err
		}
		if err := p.writePort(portCommand, cmdWrite); err != nil {
			return err
		}
		if err := p.waitInputClear(ctx); err != nil {
			return err
		}
		if err := p.writePort(portData, addr); err != nil {
			return err
		}
		if err := p.waitInputClear(ctx); err != nil {
			return err
		}

		return p.writePort(portData, value)
	})
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev == nil {
		return nil
	}

	err := p.dev.Close()
	p.dev = nil

	return err
}

func (p *Port) ready() error {
	if p.dev == nil {
		return errors.New().WithMessage(ErrIO, "port device not open")
	}

	return nil
}

func (p *Port) waitInputClear(ctx context.Context) error {
	return p.waitStatus(ctx, func(status byte) bool { return status&statusIBF == 0 })
}

func (p *Port) waitOutputFull(ctx context.Context) error {
	return p.waitStatus(ctx, func(status byte) bool { return status&statusOBF != 0 })
}

func (p *Port) waitStatus(ctx context.Context, done func(byte) bool) error {
	deadline := time.Now().Add(handshakeTimeout)
	for {
		status, err := p.readPort(portCommand)
		if err != nil {
			return err
		}
		if done(status) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New().WithData(ErrBusy, status)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		time.Sleep(handshakePoll)
	}
}

func (p *Port) readPort(port int64) (byte, error) {
	buf := []byte{0}
	if _, err := p.dev.ReadAt(buf, port); err != nil {
		return 0, err
	}

	return buf[0], nil
}

func (p *Port) writePort(port int64, value byte) error {
	_, err := p.dev.WriteAt([]byte{value}, port)
	return err
}
