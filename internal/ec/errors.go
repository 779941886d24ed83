package ec

import "codeberg.org/mutker/ecctl/internal/errors"

const (
	// Selection Errors
	ErrNoBackendAvailable = errors.ErrNoBackendAvailable
	ErrPermissionDenied   = errors.ErrPermissionDenied
	ErrNotPresent         = errors.ErrorCode("ec_backend_not_present")

	// Transfer Errors
	ErrIO          = errors.ErrIO
	ErrBusy        = errors.ErrorCode("ec_busy")
	ErrUnsupported = errors.ErrUnsupported
	ErrBadValue    = errors.ErrorCode("ec_bad_attribute_value")
)

// ProbeError records why a candidate backend was rejected.
type ProbeError struct {
	Kind Kind
	Err  error
}

func (e *ProbeError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
