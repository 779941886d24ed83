package registers

import (
	"fmt"

	"codeberg.org/mutker/ecctl/internal/errors"
)

const (
	ErrUnknownAddress      = errors.ErrUnknownAddress
	ErrUnsafeValueRejected = errors.ErrUnsafeValueRejected
	ErrInvalidTable        = errors.ErrorCode("registers_invalid_table")
	ErrLoadTable           = errors.ErrorCode("registers_load_table_failed")
)

// Violation describes a rejected register access.
type Violation struct {
	Tag     Tag
	Address byte
	Value   byte
	Reason  string
}

func (v Violation) String() string {
	if v.Tag == "" {
		return fmt.Sprintf("0x%02X=0x%02X: %s", v.Address, v.Value, v.Reason)
	}
	return fmt.Sprintf("%s (0x%02X)=0x%02X: %s", v.Tag, v.Address, v.Value, v.Reason)
}
