package sensors

import (
	"context"
	"fmt"

	"codeberg.org/mutker/ecctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// gpuDevice is the part of nvml.Device used here.
type gpuDevice interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
}

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (gpuDevice, error)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !isNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !isNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) GetDevice(index int) (gpuDevice, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !isNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

type namedDevice struct {
	label  string
	device gpuDevice
}

// NVML reads discrete NVIDIA GPU temperatures.
type NVML struct {
	ctrl    nvmlController
	devices []namedDevice
}

// OpenNVML initializes NVML and enumerates GPUs. It fails on hosts without
// the NVIDIA driver.
func OpenNVML() (*NVML, error) {
	return openNVML(&nvmlWrapper{})
}

func openNVML(ctrl nvmlController) (*NVML, error) {
	if err := ctrl.Initialize(); err != nil {
		return nil, err
	}

	count, err := ctrl.GetDeviceCount()
	if err != nil {
		_ = ctrl.Shutdown()
		return nil, err
	}

	n := &NVML{ctrl: ctrl}
	for i := 0; i < count; i++ {
		dev, err := ctrl.GetDevice(i)
		if err != nil {
			continue
		}

		label := fmt.Sprintf("gpu%d", i)
		if name, ret := dev.GetName(); isNVMLSuccess(ret) {
			label = name
		}
		n.devices = append(n.devices, namedDevice{label: label, device: dev})
	}

	return n, nil
}

func (n *NVML) Name() string {
	return "nvml"
}

func (n *NVML) Read(context.Context) ([]Reading, error) {
	errFactory := errors.New()

	out := make([]Reading, 0, len(n.devices))
	for _, d := range n.devices {
		temp, ret := d.device.GetTemperature(nvml.TEMPERATURE_GPU)
		if !isNVMLSuccess(ret) {
			return nil, errFactory.WrapWithData(ErrTemperatureReadFailed, newNVMLError(ret), d.label)
		}
		out = append(out, Reading{Source: n.Name(), Label: d.label, Celsius: float64(temp)})
	}

	return out, nil
}

func (n *NVML) Close() error {
	return n.ctrl.Shutdown()
}
