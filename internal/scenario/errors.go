package scenario

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
)

const (
	ErrScenarioApplyFailed = errors.ErrScenarioApplyFailed
	ErrReadStatus          = errors.ErrorCode("scenario_read_status_failed")
)

// Rollback is the outcome of restoring the shift mode after a failed transition.
type Rollback string

const (
	RollbackOK      Rollback = "ok"
	RollbackFailed  Rollback = "failed"
	RollbackSkipped Rollback = "skipped"
)

// Unread marks a register value that could not be read.
const Unread = -1

// Failure reports how far a scenario transition progressed.
type Failure struct {
	Target   Scenario
	Expected byte
	// Observed is the shift mode read back, or Unread.
	Observed   int
	Rollback   Rollback
	Completed  []string
	FailedStep string
}

func (f Failure) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "target %s", f.Target)
	if f.FailedStep != "" {
		fmt.Fprintf(&b, ", failed at %s", f.FailedStep)
	}
	if f.Observed == Unread {
		fmt.Fprintf(&b, ", expected shift %s, observed unreadable", ShiftName(f.Expected))
	} else if byte(f.Observed) != f.Expected {
		fmt.Fprintf(&b, ", expected shift %s, observed %s", ShiftName(f.Expected), ShiftName(byte(f.Observed)))
	}
	fmt.Fprintf(&b, ", completed [%s], rollback %s", strings.Join(f.Completed, " "), f.Rollback)

	return b.String()
}
