// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/internal/shader"
)

// pollInterval bounds one device.Wait call while a fence is awaited.
// Fences are polled until signalled; there is no overall timeout.
const pollInterval = 100 * time.Millisecond

// maxWorkgroups is the per-dimension dispatch limit guaranteed by
// gputypes.DefaultLimits.
const maxWorkgroups = 65535

var (
	// ErrNoAdapters is returned when Vulkan reports no adapter.
	ErrNoAdapters = errors.New("native: no GPU adapters found")

	// ErrNotHALProvider is returned by FromProvider when the provider does
	// not expose HAL types.
	ErrNotHALProvider = errors.New("native: provider does not expose HAL types")
)

// Device is a GPU compute device.
//
// Thread safety: Device is safe for concurrent use. Launches are ordered
// by the device queue.
type Device struct {
	mu sync.Mutex

	info     gemm.DeviceInfo
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// shared devices belong to a host application and are never destroyed.
	shared bool

	res    *shader.Resources
	closed bool
}

// buffer is a device storage buffer.
type buffer struct {
	dev     *Device
	label   string
	buf     hal.Buffer
	vectors int
	freed   bool
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Len() int      { return b.vectors }

// Info returns the device description.
func (d *Device) Info() gemm.DeviceInfo { return d.info }

// Build compiles p to SPIR-V and creates one compute pipeline per entry
// point, sharing a single bind group layout:
//
//	0: uniform params, 1: read-only a, 2: read-only b, 3: read-write c
func (d *Device) Build(p gemm.Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}

	start := time.Now()
	spirv, err := shader.Cached(p.Source)
	if err != nil {
		return &gemm.BuildError{Program: p.Label, Log: err.Error(), Err: err}
	}

	res := &shader.Resources{Device: d.device, Pipelines: make(map[string]hal.ComputePipeline, len(p.EntryPoints))}
	fail := func(step string, err error) error {
		res.Destroy()
		return &gemm.BuildError{Program: p.Label, Log: fmt.Sprintf("%s: %v", step, err), Err: err}
	}

	module, err := shader.CreateModule(d.device, p.Label, spirv)
	if err != nil {
		return fail("create shader module", err)
	}
	res.ShaderModule = module

	bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.Label + "_bgl",
		Entries: bindGroupLayoutEntries(),
	})
	if err != nil {
		return fail("create bind group layout", err)
	}
	res.BindLayouts = append(res.BindLayouts, bgLayout)

	pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		return fail("create pipeline layout", err)
	}
	res.PipelineLayout = pipelineLayout

	for _, ep := range p.EntryPoints {
		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  p.Label + "_" + ep,
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: ep,
			},
		})
		if err != nil {
			return fail("create compute pipeline "+ep, err)
		}
		res.Pipelines[ep] = pipeline
	}

	if d.res != nil {
		d.res.Destroy()
	}
	d.res = res
	gemm.Logger().Debug("native: program built",
		"program", p.Label,
		"entry_points", len(p.EntryPoints),
		"spirv_words", len(spirv),
		"elapsed", time.Since(start))
	return nil
}

func bindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	storage := func(binding uint32, t gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		storage(0, gputypes.BufferBindingTypeUniform),
		storage(1, gputypes.BufferBindingTypeReadOnlyStorage),
		storage(2, gputypes.BufferBindingTypeReadOnlyStorage),
		storage(3, gputypes.BufferBindingTypeStorage),
	}
}

// Alloc creates a storage buffer of the given number of vectors.
func (d *Device) Alloc(label string, vectors int) (gemm.Buffer, error) {
	if vectors <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid length %d", gemm.ErrAllocationFailure, label, vectors)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(vectors) * vectorBytes, //nolint:gosec // vectors > 0
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%d bytes): %w", gemm.ErrAllocationFailure, label, vectors*vectorBytes, err)
	}
	return &buffer{dev: d, label: label, buf: buf, vectors: vectors}, nil
}

// Upload writes src into buf through the queue.
func (d *Device) Upload(buf gemm.Buffer, src []gemm.Vec4) error {
	b, err := d.own(buf, gemm.ErrTransferFailure)
	if err != nil {
		return err
	}
	if len(src) != b.vectors {
		return fmt.Errorf("%w: %s holds %d vectors, got %d", gemm.ErrTransferFailure, b.label, b.vectors, len(src))
	}
	d.queue.WriteBuffer(b.buf, 0, vecsToBytes(src))
	return nil
}

// Submit records one compute pass for the launch and submits it.
// The returned fence releases the launch's transient resources once waited.
func (d *Device) Submit(l gemm.Launch) (gemm.Fence, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errClosed
	}
	var pipeline hal.ComputePipeline
	var layout hal.BindGroupLayout
	if d.res != nil {
		pipeline = d.res.Pipelines[l.EntryPoint]
		if len(d.res.BindLayouts) > 0 {
			layout = d.res.BindLayouts[0]
		}
	}
	d.mu.Unlock()

	if pipeline == nil {
		return nil, fmt.Errorf("%w: entry point %q is not built", gemm.ErrDispatchFailure, l.EntryPoint)
	}
	if len(l.Bindings) != 3 {
		return nil, fmt.Errorf("%w: %s takes 3 bindings, got %d", gemm.ErrDispatchFailure, l.EntryPoint, len(l.Bindings))
	}
	if l.WorkItems <= 0 {
		return nil, fmt.Errorf("%w: %s: %d work items", gemm.ErrDispatchFailure, l.EntryPoint, l.WorkItems)
	}
	wg := workgroups(l.WorkItems)
	if wg > maxWorkgroups {
		return nil, fmt.Errorf("%w: %s: %d workgroups exceed the limit of %d",
			gemm.ErrDispatchFailure, l.EntryPoint, wg, maxWorkgroups)
	}
	bufs := make([]*buffer, len(l.Bindings))
	for i, bb := range l.Bindings {
		b, err := d.own(bb, gemm.ErrDispatchFailure)
		if err != nil {
			return nil, fmt.Errorf("%s binding %d: %w", l.EntryPoint, i, err)
		}
		bufs[i] = b
	}

	f := &fence{dev: d}
	ok := false
	defer func() {
		if !ok {
			f.cleanup()
		}
	}()

	params, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: l.EntryPoint + "_params",
		Size:  paramsBytes,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create params buffer: %w", gemm.ErrDispatchFailure, err)
	}
	f.params = params
	d.queue.WriteBuffer(params, 0, paramsToBytes(l.Params))

	entries := []gputypes.BindGroupEntry{
		{Binding: 0, Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Offset: 0, Size: paramsBytes}},
	}
	for i, b := range bufs {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(i + 1), //nolint:gosec // three bindings
			Resource: gputypes.BufferBinding{
				Buffer: b.buf.NativeHandle(),
				Offset: 0,
				Size:   uint64(b.vectors) * vectorBytes, //nolint:gosec // vectors > 0
			},
		})
	}
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   l.EntryPoint + "_bg",
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create bind group: %w", gemm.ErrDispatchFailure, err)
	}
	f.bindGroup = bg

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: l.EntryPoint})
	if err != nil {
		return nil, fmt.Errorf("%w: create command encoder: %w", gemm.ErrDispatchFailure, err)
	}
	if err := encoder.BeginEncoding(l.EntryPoint); err != nil {
		return nil, fmt.Errorf("%w: begin encoding: %w", gemm.ErrDispatchFailure, err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: l.EntryPoint})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(wg, 1, 1)
	pass.End()
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("%w: end encoding: %w", gemm.ErrDispatchFailure, err)
	}
	f.cmdBuf = cmdBuf

	halFence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("%w: create fence: %w", gemm.ErrDispatchFailure, err)
	}
	f.fence = halFence
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, halFence, 1); err != nil {
		return nil, fmt.Errorf("%w: submit: %w", gemm.ErrDispatchFailure, err)
	}

	gemm.Logger().Debug("native: launch submitted",
		"entry", l.EntryPoint,
		"work_items", l.WorkItems,
		"workgroups", wg)
	ok = true
	return f, nil
}

// Download copies buf into dst through a mappable staging buffer.
func (d *Device) Download(buf gemm.Buffer, dst []gemm.Vec4) error {
	b, err := d.own(buf, gemm.ErrTransferFailure)
	if err != nil {
		return err
	}
	if len(dst) != b.vectors {
		return fmt.Errorf("%w: %s holds %d vectors, got room for %d", gemm.ErrTransferFailure, b.label, b.vectors, len(dst))
	}
	size := uint64(b.vectors) * vectorBytes //nolint:gosec // vectors > 0

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: create staging buffer: %w", gemm.ErrTransferFailure, err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.label + "_readback"})
	if err != nil {
		return fmt.Errorf("%w: create command encoder: %w", gemm.ErrTransferFailure, err)
	}
	if err := encoder.BeginEncoding(b.label + "_readback"); err != nil {
		return fmt.Errorf("%w: begin encoding: %w", gemm.ErrTransferFailure, err)
	}
	encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%w: end encoding: %w", gemm.ErrTransferFailure, err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	halFence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: create fence: %w", gemm.ErrTransferFailure, err)
	}
	defer d.device.DestroyFence(halFence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, halFence, 1); err != nil {
		return fmt.Errorf("%w: submit: %w", gemm.ErrTransferFailure, err)
	}
	if err := d.waitFence(halFence); err != nil {
		if errors.Is(err, gemm.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", gemm.ErrTransferFailure, err)
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("%w: readback: %w", gemm.ErrTransferFailure, err)
	}
	bytesToVecs(readback, dst)
	return nil
}

// Free destroys a buffer. Freeing nil, a foreign buffer or an already
// freed buffer does nothing.
func (d *Device) Free(buf gemm.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.dev != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.freed || d.closed {
		return
	}
	b.freed = true
	d.device.DestroyBuffer(b.buf)
	b.buf = nil
}

// Close destroys the pipelines and, unless the device is shared, the
// device and instance.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.res != nil {
		d.res.Destroy()
		d.res = nil
	}
	if !d.shared && d.device != nil {
		d.device.Destroy()
	}
	d.device = nil
	d.queue = nil
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	gemm.Logger().Info("native: device closed", "device", d.info.String(), "shared", d.shared)
	return nil
}

// waitFence polls until the fence reaches value 1.
func (d *Device) waitFence(f hal.Fence) error {
	d.mu.Lock()
	dev := d.device
	d.mu.Unlock()
	if dev == nil {
		return errClosed
	}
	for {
		ok, err := dev.Wait(f, 1, pollInterval)
		if err != nil {
			return fmt.Errorf("wait for GPU: %w", err)
		}
		if ok {
			return nil
		}
	}
}

var errClosed = fmt.Errorf("%w: native device closed", gemm.ErrDeviceUnavailable)

// own checks that buf is a live buffer of d. Failures are tagged with
// kind, except use after Close which is gemm.ErrDeviceUnavailable.
func (d *Device) own(buf gemm.Buffer, kind error) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: buffer %T does not belong to the native device", kind, buf)
	}
	if b.dev != d {
		return nil, fmt.Errorf("%w: buffer %q belongs to another device", kind, b.label)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}
	if b.freed {
		return nil, fmt.Errorf("%w: buffer %q already freed", kind, b.label)
	}
	return b, nil
}

// fence tracks one submitted launch and its transient resources.
type fence struct {
	dev       *Device
	params    hal.Buffer
	bindGroup hal.BindGroup
	cmdBuf    hal.CommandBuffer
	fence     hal.Fence

	once sync.Once
	err  error
}

// Wait blocks until the GPU signals the launch, then releases its
// transient resources. Later calls return the first result.
func (f *fence) Wait() error {
	f.once.Do(func() {
		defer f.cleanup()
		err := f.dev.waitFence(f.fence)
		switch {
		case errors.Is(err, gemm.ErrDeviceUnavailable):
			f.err = err
		case err != nil:
			f.err = fmt.Errorf("%w: %w", gemm.ErrDispatchFailure, err)
		}
	})
	return f.err
}

func (f *fence) cleanup() {
	f.dev.mu.Lock()
	dev := f.dev.device
	f.dev.mu.Unlock()
	if dev == nil {
		return
	}
	if f.fence != nil {
		dev.DestroyFence(f.fence)
		f.fence = nil
	}
	if f.cmdBuf != nil {
		dev.FreeCommandBuffer(f.cmdBuf)
		f.cmdBuf = nil
	}
	if f.bindGroup != nil {
		dev.DestroyBindGroup(f.bindGroup)
		f.bindGroup = nil
	}
	if f.params != nil {
		dev.DestroyBuffer(f.params)
		f.params = nil
	}
}
