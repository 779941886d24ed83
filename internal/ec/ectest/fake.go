// Package ectest provides an in-memory EC backend with fault injection.
package ectest

import (
	"context"
	"sync"

	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
)

// Write records one register write accepted by the fake.
type Write struct {
	Addr  byte
	Value byte
}

// Fake is a 256 byte register file implementing ec.Backend.
type Fake struct {
	mu sync.Mutex

	kind        ec.Kind
	regs        [256]byte
	writes      []Write
	probeErr    error
	readErr     map[byte]error
	writeErr    map[byte]error
	stuck       map[byte]byte
	unsupported map[byte]bool
	closed      bool
	onWrite     func(addr, value byte)
}

// New returns a fake DirectPort backend with all registers zeroed.
func New() *Fake {
	return &Fake{
		kind:        ec.DirectPort,
		readErr:     make(map[byte]error),
		writeErr:    make(map[byte]error),
		stuck:       make(map[byte]byte),
		unsupported: make(map[byte]bool),
	}
}

// WithKind changes the reported transport kind.
func (f *Fake) WithKind(kind ec.Kind) *Fake {
	f.kind = kind
	return f
}

func (f *Fake) Kind() ec.Kind {
	return f.kind
}

func (f *Fake) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.probeErr
}

func (f *Fake) ReadByte(_ context.Context, addr byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unsupported[addr] {
		return 0, errors.New().WithData(ec.ErrUnsupported, addr)
	}
	if err := f.readErr[addr]; err != nil {
		return 0, err
	}
	if v, ok := f.stuck[addr]; ok {
		return v, nil
	}

	return f.regs[addr], nil
}

func (f *Fake) WriteByte(_ context.Context, addr, value byte) error {
	f.mu.Lock()
	if f.unsupported[addr] {
		f.mu.Unlock()
		return errors.New().WithData(ec.ErrUnsupported, addr)
	}
	if err := f.writeErr[addr]; err != nil {
		f.mu.Unlock()
		return err
	}

	f.regs[addr] = value
	f.writes = append(f.writes, Write{Addr: addr, Value: value})
	hook := f.onWrite
	f.mu.Unlock()

	if hook != nil {
		hook(addr, value)
	}

	return nil
}

func (f *Fake) Supports(addr byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return !f.unsupported[addr]
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// Set stores value without recording a write.
func (f *Fake) Set(addr, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.regs[addr] = value
}

// Get returns the stored register value, ignoring stuck overrides.
func (f *Fake) Get(addr byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.regs[addr]
}

// Writes returns a copy of every accepted write, in order.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Write, len(f.writes))
	copy(out, f.writes)

	return out
}

// ResetWrites clears the write log.
func (f *Fake) ResetWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = nil
}

// Snapshot returns the whole register file.
func (f *Fake) Snapshot() [256]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.regs
}

// FailProbe makes Probe return err.
func (f *Fake) FailProbe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.probeErr = err
}

// FailRead makes reads of addr return err. A nil err clears the fault.
func (f *Fake) FailRead(addr byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.readErr, addr)
		return
	}
	f.readErr[addr] = err
}

// FailWrite makes writes to addr return err. A nil err clears the fault.
func (f *Fake) FailWrite(addr byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.writeErr, addr)
		return
	}
	f.writeErr[addr] = err
}

// Stick makes reads of addr return value regardless of writes, like firmware
// overriding a register.
func (f *Fake) Stick(addr, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stuck[addr] = value
}

// Unstick removes a Stick override.
func (f *Fake) Unstick(addr byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.stuck, addr)
}

// Unsupport hides addr from the transport.
func (f *Fake) Unsupport(addrs ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, addr := range addrs {
		f.unsupported[addr] = true
	}
}

// OnWrite registers a hook called after every accepted write.
func (f *Fake) OnWrite(fn func(addr, value byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onWrite = fn
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}
