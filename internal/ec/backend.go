package ec

import (
	"context"
	"os"

	"codeberg.org/mutker/ecctl/internal/errors"
)

// Kind identifies a register transport.
type Kind int

const (
	DirectPort Kind = iota
	DebugfsAcpi
	KernelModuleSysfs
)

// Fixed transport locations.
const (
	PortPath    = "/dev/port"
	DebugfsPath = "/sys/kernel/debug/ec/ec0/io"
	SysfsPath   = "/sys/devices/platform/msi-ec"
)

func (k Kind) String() string {
	switch k {
	case DirectPort:
		return "port"
	case DebugfsAcpi:
		return "debugfs"
	case KernelModuleSysfs:
		return "sysfs"
	default:
		return "unknown"
	}
}

// Backend reads and writes single EC registers over one transport.
type Backend interface {
	Kind() Kind
	// Probe checks that the transport is present and readable. It never writes.
	Probe(ctx context.Context) error
	ReadByte(ctx context.Context, addr byte) (byte, error)
	WriteByte(ctx context.Context, addr, value byte) error
	// Supports reports whether addr is reachable through this transport.
	Supports(addr byte) bool
	Close() error
}

// SysfsAttribute maps one EC address onto a kernel module attribute file.
type SysfsAttribute struct {
	// Name is the attribute path relative to the platform device directory.
	Name string
	// Values maps attribute text to register values. Nil means the file holds
	// a decimal number.
	Values map[string]byte
	// Scale converts a numeric attribute into the raw register value.
	Scale float64
}

func classifyOpen(err error) error {
	errFactory := errors.New()
	if os.IsPermission(err) {
		return errFactory.Wrap(ErrPermissionDenied, err)
	}
	if os.IsNotExist(err) {
		return errFactory.Wrap(ErrNotPresent, err)
	}

	return errFactory.Wrap(ErrIO, err)
}
