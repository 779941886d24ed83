package registers

import (
	"context"

	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
)

// Guard is the only path from the control components to the backend. Writes
// reach the backend only for allowlisted addresses with in-range values;
// reads are limited to allowlisted addresses.
type Guard struct {
	backend ec.Backend
	regs    *Map
	log     logger.Logger
}

// NewGuard binds a register map to a backend.
func NewGuard(backend ec.Backend, regs *Map, log logger.Logger) *Guard {
	if log == nil {
		log = logger.Nop()
	}

	return &Guard{
		backend: backend,
		regs:    regs,
		log:     log.With("guard"),
	}
}

// Map returns the register table the guard enforces.
func (g *Guard) Map() *Map {
	return g.regs
}

// BackendKind returns the bound transport.
func (g *Guard) BackendKind() ec.Kind {
	return g.backend.Kind()
}

// Supports reports whether tag is allowlisted and reachable through the backend.
func (g *Guard) Supports(tag Tag) bool {
	e, ok := g.regs.Lookup(tag)
	return ok && g.backend.Supports(e.Address)
}

// CurveHardwareBacked reports whether every curve slot of fan is curve
// storage reachable through the bound backend.
func (g *Guard) CurveHardwareBacked(f Fan) bool {
	slots := g.regs.CurveSlots(f)
	if len(slots) == 0 {
		return false
	}

	for _, s := range slots {
		if !s.Temp.CurveStorage || !s.Duty.CurveStorage {
			return false
		}
		if !g.backend.Supports(s.Temp.Address) || !g.backend.Supports(s.Duty.Address) {
			return false
		}
	}

	return true
}

// Read returns the value of an allowlisted register.
func (g *Guard) Read(ctx context.Context, tag Tag) (byte, error) {
	e, ok := g.regs.Lookup(tag)
	if !ok {
		return 0, errors.New().WithData(ErrUnknownAddress, Violation{Tag: tag, Reason: "tag not in register table"})
	}

	return g.backend.ReadByte(ctx, e.Address)
}

// ReadAddress returns the value at addr if the address is allowlisted.
func (g *Guard) ReadAddress(ctx context.Context, addr byte) (byte, error) {
	if _, ok := g.regs.ByAddress(addr); !ok {
		return 0, errors.New().WithData(ErrUnknownAddress, Violation{Address: addr, Reason: "address not in register table"})
	}

	return g.backend.ReadByte(ctx, addr)
}

// Write stores value in the register named by tag.
func (g *Guard) Write(ctx context.Context, tag Tag, value byte) error {
	e, ok := g.regs.Lookup(tag)
	if !ok {
		return errors.New().WithData(ErrUnknownAddress, Violation{Tag: tag, Value: value, Reason: "tag not in register table"})
	}

	return g.write(ctx, e, value)
}

// WriteAddress stores value at addr.
func (g *Guard) WriteAddress(ctx context.Context, addr, value byte) error {
	e, ok := g.regs.ByAddress(addr)
	if !ok {
		return errors.New().WithData(ErrUnknownAddress, Violation{Address: addr, Value: value, Reason: "address not in register table"})
	}

	return g.write(ctx, e, value)
}

func (g *Guard) write(ctx context.Context, e Entry, value byte) error {
	errFactory := errors.New()

	if !e.Writable() {
		return errFactory.WithData(ErrUnsafeValueRejected, Violation{
			Tag: e.Tag, Address: e.Address, Value: value, Reason: "register is read-only",
		})
	}
	if !e.Range.Contains(value) {
		return errFactory.WithData(ErrUnsafeValueRejected, Violation{
			Tag: e.Tag, Address: e.Address, Value: value, Reason: "outside safe range " + e.Range.String(),
		})
	}

	if err := g.backend.WriteByte(ctx, e.Address, value); err != nil {
		return err
	}

	g.log.Debug().
		Str("tag", string(e.Tag)).
		Uint8("address", e.Address).
		Uint8("value", value).
		Msg("Register written")

	return nil
}
