package fan

import (
	"fmt"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/registers"
)

const (
	ErrInvalidCurve     = errors.ErrInvalidCurve
	ErrCurveApplyFailed = errors.ErrCurveApplyFailed
	ErrUnsupported      = errors.ErrUnsupported
	ErrInvalidArgument  = errors.ErrInvalidArgument
	ErrReadState        = errors.ErrorCode("fan_read_state_failed")
)

// SlotFailure reports how far a hardware curve write progressed.
type SlotFailure struct {
	Fan     registers.Fan
	Slot    int
	Address byte
	// Completed counts the slots fully written before the failure.
	Completed int
}

func (f SlotFailure) String() string {
	return fmt.Sprintf("%s slot %d (0x%02X), %d slots written", f.Fan, f.Slot, f.Address, f.Completed)
}
