package main

import (
	"codeberg.org/mutker/ecctl/internal/ec"
	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/fan"
	"codeberg.org/mutker/ecctl/internal/registers"
	"codeberg.org/mutker/ecctl/internal/scenario"
	"github.com/spf13/cobra"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitBackend  = 3
	exitPerm     = 4
	exitIO       = 5
	exitSafety   = 6
	exitCurve    = 7
	exitScenario = 8
	exitBusy     = 9
	exitProfile  = 10
	exitCorrupt  = 11
)

// exitClasses is checked in order; the first class with a code anywhere in
// the error chain wins.
var exitClasses = []struct {
	exit  int
	codes []errors.ErrorCode
}{
	{exitBusy, []errors.ErrorCode{errors.ErrApplyInProgress}},
	{exitCorrupt, []errors.ErrorCode{errors.ErrConfigCorrupt}},
	{exitProfile, []errors.ErrorCode{errors.ErrProfileNotFound, errors.ErrDuplicateName, errors.ErrCannotDeleteActive}},
	{exitScenario, []errors.ErrorCode{errors.ErrScenarioApplyFailed, scenario.ErrReadStatus}},
	{exitCurve, []errors.ErrorCode{errors.ErrInvalidCurve, errors.ErrCurveApplyFailed}},
	{exitSafety, []errors.ErrorCode{errors.ErrUnknownAddress, errors.ErrUnsafeValueRejected}},
	{exitPerm, []errors.ErrorCode{errors.ErrPermissionDenied}},
	{exitBackend, []errors.ErrorCode{errors.ErrNoBackendAvailable}},
	{exitUsage, []errors.ErrorCode{
		errors.ErrInvalidArgument,
		errors.ErrInvalidConfig,
		errors.ErrReadConfig,
		errors.ErrBindFlags,
		errors.ErrInvalidInterval,
		errors.ErrInvalidLogLevel,
		registers.ErrInvalidTable,
		registers.ErrLoadTable,
	}},
	{exitIO, []errors.ErrorCode{errors.ErrIO, ec.ErrBusy, ec.ErrBadValue, fan.ErrReadState}},
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	for _, class := range exitClasses {
		for _, code := range class.codes {
			if errors.HasCode(err, code) {
				return class.exit
			}
		}
	}

	return exitFailure
}

func usageError(err error) error {
	return errors.New().Wrap(errors.ErrInvalidArgument, err)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
