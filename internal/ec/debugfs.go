package ec

import (
	"context"
	"os"
)

// Debugfs accesses the EC through the ACPI ec_sys debug file, where the byte
// offset is the register address.
type Debugfs struct {
	path string
}

// NewDebugfs returns a DebugfsAcpi backend for the io file at path.
func NewDebugfs(path string) *Debugfs {
	return &Debugfs{path: path}
}

func (d *Debugfs) Kind() Kind { return DebugfsAcpi }

func (d *Debugfs) Supports(byte) bool { return true }

func (d *Debugfs) Probe(ctx context.Context) error {
	f, err := os.Open(d.path)
	if err != nil {
		return classifyOpen(err)
	}
	defer f.Close()

	buf := []byte{0}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return classifyOpen(err)
	}

	return nil
}

func (d *Debugfs) ReadByte(ctx context.Context, addr byte) (byte, error) {
	var value byte
	err := withRetry(ctx, "debugfs read", func() error {
		f, err := os.Open(d.path)
		if err != nil {
			return classifyOpen(err)
		}
		defer f.Close()

		buf := []byte{0}
		if _, err := f.ReadAt(buf, int64(addr)); err != nil {
			return err
		}
		value = buf[0]

		return nil
	})

	return value, err
}

func (d *Debugfs) WriteByte(ctx context.Context, addr, value byte) error {
	return withRetry(ctx, "debugfs write", func() error {
		f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
		if err != nil {
			return classifyOpen(err)
		}
		defer f.Close()

		_, err = f.WriteAt([]byte{value}, int64(addr))
		return err
	})
}

func (d *Debugfs) Close() error { return nil }
