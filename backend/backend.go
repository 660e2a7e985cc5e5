package backend

import (
	"errors"
	"strings"

	"github.com/gogpu/gemm"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU backend running the kernels
	// on host goroutines.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered. Errors carrying it also match gemm.ErrDeviceUnavailable.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoMatchingDevice is returned by Select when no device satisfies the
	// criteria. Errors carrying it also match gemm.ErrDeviceUnavailable.
	ErrNoMatchingDevice = errors.New("backend: no matching device")
)

// Provider exposes the devices of one backend.
//
// Providers must be registered via Register() and are enumerated in
// priority order by List() and Select().
type Provider interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Devices enumerates the backend's devices. DeviceInfo.Index is the
	// value to pass to Open.
	Devices() ([]gemm.DeviceInfo, error)

	// Open opens the device with the given index. The caller owns the
	// returned device and must Close it.
	Open(index int) (gemm.Device, error)
}

// Criteria selects a device. Zero fields match anything.
type Criteria struct {
	// Backend restricts the search to one backend.
	Backend string

	// NameContains matches a case-insensitive substring of the device name.
	NameContains string

	// Kind restricts the device kind when KindSet is true.
	Kind    gemm.DeviceKind
	KindSet bool

	// MinVectorWidth is the required vector width. Values below
	// gemm.VectorWidth are raised to it.
	MinVectorWidth int
}

// Matches reports whether info satisfies c.
func (c Criteria) Matches(info gemm.DeviceInfo) bool {
	if c.Backend != "" && c.Backend != info.Backend {
		return false
	}
	if c.NameContains != "" &&
		!strings.Contains(strings.ToLower(info.Name), strings.ToLower(c.NameContains)) {
		return false
	}
	if c.KindSet && info.Kind != c.Kind {
		return false
	}
	return info.VectorWidth >= max(c.MinVectorWidth, gemm.VectorWidth)
}

// Capabilities returns the description and capabilities of an open device.
func Capabilities(dev gemm.Device) gemm.DeviceInfo {
	return dev.Info()
}
