package sensors

import (
	"codeberg.org/mutker/ecctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrNotInitialized        = errors.ErrorCode("sensors_not_initialized")
	ErrInitFailed            = errors.ErrorCode("sensors_nvml_init_failed")
	ErrShutdownFailed        = errors.ErrorCode("sensors_nvml_shutdown_failed")
	ErrDeviceCountFailed     = errors.ErrorCode("sensors_nvml_device_count_failed")
	ErrDeviceNotFound        = errors.ErrorCode("sensors_nvml_device_not_found")
	ErrTemperatureReadFailed = errors.ErrorCode("sensors_temperature_read_failed")
	ErrNoHwmon               = errors.ErrorCode("sensors_no_hwmon_device")
)

type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

func isNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
