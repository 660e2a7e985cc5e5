// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import "fmt"

// DeviceKind classifies a compute device.
type DeviceKind int

const (
	// DeviceKindOther is any device not covered below.
	DeviceKindOther DeviceKind = iota

	// DeviceKindCPU is a host CPU executing kernels in software.
	DeviceKindCPU

	// DeviceKindIntegratedGPU is a GPU sharing memory with the host.
	DeviceKindIntegratedGPU

	// DeviceKindDiscreteGPU is a GPU with dedicated memory.
	DeviceKindDiscreteGPU
)

// String returns the kind name.
func (k DeviceKind) String() string {
	switch k {
	case DeviceKindCPU:
		return "cpu"
	case DeviceKindIntegratedGPU:
		return "integrated-gpu"
	case DeviceKindDiscreteGPU:
		return "discrete-gpu"
	default:
		return "other"
	}
}

// DeviceInfo describes a device and its capabilities.
type DeviceInfo struct {
	// Index is the device's position within its backend.
	Index int

	// Name is the adapter or CPU name.
	Name string

	// Backend is the name of the backend that exposes the device.
	Backend string

	// Kind classifies the device.
	Kind DeviceKind

	// Version is the API or driver version string.
	Version string

	// VectorWidth is the native float32 vector width. The kernels
	// require at least VectorWidth (4).
	VectorWidth int

	// MemoryBytes is the memory available for buffers, 0 if unknown.
	MemoryBytes uint64
}

// String returns a one-line description.
func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s#%d %q (%s, %s, vec%d)", i.Backend, i.Index, i.Name, i.Kind, i.Version, i.VectorWidth)
}

// Buffer is a device-side array of Vec4.
type Buffer interface {
	// Label returns the debug label given at allocation.
	Label() string

	// Len returns the buffer length in vectors.
	Len() int
}

// Fence is the completion barrier of a submitted launch.
type Fence interface {
	// Wait blocks until every work item of the launch has finished and
	// reports the launch outcome. There is no timeout.
	Wait() error
}

// Launch describes one parallel kernel pass.
type Launch struct {
	// EntryPoint names a kernel of the built program.
	EntryPoint string

	// Bindings are the kernel's buffer arguments in binding order
	// (a, b, c for both bundled kernels).
	Bindings []Buffer

	// Params is the uniform parameter block, at most 4 words.
	Params []uint32

	// WorkItems is the number of work items to run.
	WorkItems int
}

// Device is a compute device able to hold buffers and run the kernels of
// one built program. Devices are not required to be safe for concurrent use
// by multiple GEMM calls; Engine serializes its calls.
type Device interface {
	// Info returns the device description and capabilities.
	Info() DeviceInfo

	// Build compiles the program. It is called once per device.
	Build(p Program) error

	// Alloc creates a buffer of the given number of vectors.
	Alloc(label string, vectors int) (Buffer, error)

	// Upload copies src into buf synchronously.
	Upload(buf Buffer, src []Vec4) error

	// Submit starts a launch and returns its completion barrier.
	Submit(l Launch) (Fence, error)

	// Download copies buf into dst synchronously.
	Download(buf Buffer, dst []Vec4) error

	// Free releases a buffer. Freeing a nil or already freed buffer is a no-op.
	Free(buf Buffer)

	// Close releases the device.
	Close() error
}
