package ec

import (
	"context"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
	"codeberg.org/mutker/ecctl/internal/logger"
)

// Candidates returns the backends to probe, in order. pin restricts the list
// to a single transport; "" and "auto" keep the full order.
func Candidates(pin string, attrs map[byte]SysfsAttribute) ([]Backend, error) {
	all := []Backend{
		NewPort(PortPath),
		NewDebugfs(DebugfsPath),
		NewSysfs(SysfsPath, attrs),
	}

	pin = strings.ToLower(strings.TrimSpace(pin))
	if pin == "" || pin == "auto" {
		return all, nil
	}

	for _, b := range all {
		if b.Kind().String() == pin {
			return []Backend{b}, nil
		}
	}

	return nil, errors.New().WithData(errors.ErrInvalidConfig, "backend="+pin)
}

// Select probes candidates in order and returns the first usable backend.
// Rejected candidates are closed. When every candidate fails the error is
// PermissionDenied if all failures were permission failures, otherwise
// NoBackendAvailable; both carry every probe error.
func Select(ctx context.Context, candidates ...Backend) (Backend, error) {
	errFactory := errors.New()

	var probeErrs []error
	allPermission := len(candidates) > 0

	for _, b := range candidates {
		err := b.Probe(ctx)
		if err == nil {
			logger.Debug().Str("backend", b.Kind().String()).Msg("Bound EC backend")
			return b, nil
		}

		logger.Debug().Str("backend", b.Kind().String()).Err(err).Msg("EC backend probe failed")

		probeErrs = append(probeErrs, &ProbeError{Kind: b.Kind(), Err: err})
		if !errors.HasCode(err, ErrPermissionDenied) {
			allPermission = false
		}
		_ = b.Close()

		if ctx.Err() != nil {
			allPermission = false
			break
		}
	}

	if allPermission {
		return nil, errFactory.Wrap(ErrPermissionDenied, errors.Join(probeErrs...))
	}

	return nil, errFactory.Wrap(ErrNoBackendAvailable, errors.Join(probeErrs...))
}
