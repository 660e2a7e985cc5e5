// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register Vulkan HAL backend

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
)

// init registers the native provider on package import.
func init() {
	backend.Register(backend.BackendNative, func() backend.Provider {
		return Provider{}
	})
}

// Provider exposes the Vulkan adapters of the host.
type Provider struct{}

// Name returns the backend identifier.
func (Provider) Name() string { return backend.BackendNative }

// Devices enumerates the adapters, discrete GPUs first, then integrated
// GPUs, then the rest. DeviceInfo.Index is the adapter's enumeration index.
func (Provider) Devices() ([]gemm.DeviceInfo, error) {
	instance, adapters, err := enumerate()
	if err != nil {
		return nil, err
	}
	defer instance.Destroy()

	out := make([]gemm.DeviceInfo, len(adapters))
	for i := range adapters {
		out[i] = adapterInfo(i, &adapters[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return kindRank(out[i].Kind) < kindRank(out[j].Kind)
	})
	return out, nil
}

// Open opens the adapter with the given enumeration index.
func (Provider) Open(index int) (gemm.Device, error) {
	return Open(index)
}

// Open opens the adapter with the given enumeration index as a device.
// The device owns its HAL instance and destroys it on Close.
func Open(index int) (*Device, error) {
	instance, adapters, err := enumerate()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(adapters) {
		instance.Destroy()
		return nil, fmt.Errorf("%w: native device %d does not exist (%d adapters)",
			gemm.ErrDeviceUnavailable, index, len(adapters))
	}
	selected := &adapters[index]

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open %q: %w", gemm.ErrDeviceUnavailable, selected.Info.Name, err)
	}

	d := &Device{
		info:     adapterInfo(index, selected),
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
	}
	gemm.Logger().Info("native: device opened", "device", d.info.String())
	return d, nil
}

// FromProvider wraps the GPU device of a host application. The provider
// must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. The shared device is not destroyed by Close.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %w", gemm.ErrDeviceUnavailable, ErrNotHALProvider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", gemm.ErrDeviceUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", gemm.ErrDeviceUnavailable)
	}

	d := &Device{
		info: gemm.DeviceInfo{
			Index:       -1,
			Name:        "shared",
			Backend:     backend.BackendNative,
			Kind:        gemm.DeviceKindOther,
			Version:     "vulkan",
			VectorWidth: gemm.VectorWidth,
		},
		device: device,
		queue:  queue,
		shared: true,
	}
	gemm.Logger().Info("native: using shared GPU device")
	return d, nil
}

// enumerate creates a Vulkan instance and lists its adapters.
// The caller owns the instance.
func enumerate() (hal.Instance, []hal.ExposedAdapter, error) {
	vk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, nil, fmt.Errorf("%w: vulkan backend not available", gemm.ErrDeviceUnavailable)
	}
	instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: create instance: %w", gemm.ErrDeviceUnavailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, fmt.Errorf("%w: %w", gemm.ErrDeviceUnavailable, ErrNoAdapters)
	}
	return instance, adapters, nil
}

// adapterInfo builds the capability report from what the adapter exposes.
// MemoryBytes is the largest single buffer the adapter accepts.
func adapterInfo(index int, a *hal.ExposedAdapter) gemm.DeviceInfo {
	name := a.Info.Name
	if v := a.Info.Vendor; v != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(v)) {
		name = strings.TrimSpace(v + " " + name)
	}
	version := strings.TrimSpace(a.Info.Driver + " " + a.Info.DriverInfo)
	if version == "" {
		version = "vulkan"
	}
	return gemm.DeviceInfo{
		Index:       index,
		Name:        name,
		Backend:     backend.BackendNative,
		Kind:        deviceKind(a.Info.DeviceType),
		Version:     version,
		VectorWidth: gemm.VectorWidth,
		MemoryBytes: adapterMemory(a.Capabilities.Limits),
	}
}

func adapterMemory(l gputypes.Limits) uint64 {
	switch {
	case l.MaxBufferSize > 0:
		return l.MaxBufferSize
	case l.MaxStorageBufferBindingSize > 0:
		return l.MaxStorageBufferBindingSize
	default:
		return gputypes.DefaultLimits().MaxBufferSize
	}
}
