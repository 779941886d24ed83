package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnsupported     ErrorCode = "unsupported_operation"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Backend errors
	ErrNoBackendAvailable ErrorCode = "no_backend_available"
	ErrPermissionDenied   ErrorCode = "permission_denied"
	ErrIO                 ErrorCode = "io_error"

	// Safety errors
	ErrUnknownAddress      ErrorCode = "unknown_address"
	ErrUnsafeValueRejected ErrorCode = "unsafe_value_rejected"

	// Control errors
	ErrInvalidCurve        ErrorCode = "invalid_curve"
	ErrCurveApplyFailed    ErrorCode = "curve_apply_failed"
	ErrScenarioApplyFailed ErrorCode = "scenario_apply_failed"
	ErrApplyInProgress     ErrorCode = "apply_in_progress"

	// Profile errors
	ErrDuplicateName      ErrorCode = "duplicate_name"
	ErrCannotDeleteActive ErrorCode = "cannot_delete_active"
	ErrProfileNotFound    ErrorCode = "profile_not_found"
	ErrConfigCorrupt      ErrorCode = "config_corrupt"

	// Metrics errors
	ErrInitMetrics  ErrorCode = "init_metrics_failed"
	ErrCloseMetrics ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrUnsupported:         "Operation not supported on this machine",
	ErrInvalidConfig:       "Invalid configuration",
	ErrReadConfig:          "Failed to read config file",
	ErrBindFlags:           "Failed to bind flags",
	ErrInvalidInterval:     "Invalid interval value",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrNoBackendAvailable:  "No EC backend available",
	ErrPermissionDenied:    "Permission denied opening EC backend, run as root",
	ErrIO:                  "EC read/write failed",
	ErrUnknownAddress:      "Register address is not in the safety table",
	ErrUnsafeValueRejected: "Register value is outside the safe range",
	ErrInvalidCurve:        "Invalid fan curve",
	ErrCurveApplyFailed:    "Failed to apply fan curve",
	ErrScenarioApplyFailed: "Failed to apply scenario",
	ErrApplyInProgress:     "Another apply is in progress",
	ErrDuplicateName:       "Profile already exists",
	ErrCannotDeleteActive:  "Cannot delete the active profile",
	ErrProfileNotFound:     "Profile not found",
	ErrConfigCorrupt:       "Profile store is corrupt",
	ErrInitMetrics:         "Failed to initialize metrics",
	ErrCloseMetrics:        "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
