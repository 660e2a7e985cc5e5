// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package software provides a gemm.Device that runs the kernels on host
// goroutines.
//
// The device executes the Go form of each kernel (gemm.TileKernel,
// gemm.TriadKernel) on a work-stealing worker pool, so it produces the
// same per-element float32 arithmetic as the WGSL kernels. It is always
// available and registers itself as backend "software" on import:
//
//	import _ "github.com/gogpu/gemm/backend/software"
package software

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/internal/memory"
	"github.com/gogpu/gemm/internal/parallel"
	"github.com/gogpu/gemm/internal/shader"
)

// vectorBytes is the size of one gemm.Vec4.
const vectorBytes = gemm.VectorWidth * 4

// Device is a CPU compute device.
//
// Buffers are host slices accounted against an optional memory limit.
// Submit runs the launch asynchronously on the worker pool; a launch whose
// work items panic fails as a whole and leaves its output binding
// untouched. A launch reads its bindings as they were at Submit, so later
// uploads do not affect it.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	info   gemm.DeviceInfo
	opts   options
	pool   *parallel.WorkerPool
	budget *memory.Budget

	program  string
	entries  map[string]kernel
	inflight sync.WaitGroup
	closed   bool
}

// buffer is a host-side vector slab.
type buffer struct {
	dev   *Device
	label string
	data  []gemm.Vec4
	id    memory.ID
	freed bool
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Len() int      { return len(b.data) }

// fence is signalled when a launch has finished.
type fence struct {
	done chan struct{}
	err  error
}

func (f *fence) Wait() error {
	<-f.done
	return f.err
}

// New creates a software device.
func New(opts ...Option) *Device {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	pool := parallel.NewWorkerPool(o.workers)

	d := &Device{
		info:   describe(o, pool.Workers()),
		opts:   o,
		pool:   pool,
		budget: memory.NewBudget(o.memoryLimit),
	}
	gemm.Logger().Info("software: device opened", "device", d.info.String())
	return d
}

// Info returns the device description.
func (d *Device) Info() gemm.DeviceInfo { return d.info }

// Build prepares p for launches. Every entry point must have a Go
// implementation and appear in the source; with WithShaderValidation the
// source must also compile.
func (d *Device) Build(p gemm.Program) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errClosed
	}

	if len(p.EntryPoints) == 0 {
		return &gemm.BuildError{Program: p.Label, Log: "program declares no entry points"}
	}
	var missing []string
	entries := make(map[string]kernel, len(p.EntryPoints))
	for _, ep := range p.EntryPoints {
		k, ok := kernels[ep]
		if !ok || !strings.Contains(p.Source, "fn "+ep+"(") {
			missing = append(missing, ep)
			continue
		}
		entries[ep] = k
	}
	if len(missing) > 0 {
		return &gemm.BuildError{
			Program: p.Label,
			Log:     fmt.Sprintf("entry points not found: %s", strings.Join(missing, ", ")),
		}
	}

	if d.opts.shaderValidation {
		start := time.Now()
		words, err := shader.Cached(p.Source)
		if err != nil {
			return &gemm.BuildError{Program: p.Label, Log: err.Error(), Err: err}
		}
		gemm.Logger().Debug("software: shader validated",
			"program", p.Label, "spirv_words", len(words), "elapsed", time.Since(start))
	}

	d.program = p.Label
	d.entries = entries
	return nil
}

// Alloc creates a zeroed buffer of the given number of vectors.
func (d *Device) Alloc(label string, vectors int) (gemm.Buffer, error) {
	if vectors <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid length %d", gemm.ErrAllocationFailure, label, vectors)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errClosed
	}

	id, err := d.budget.Reserve(label, uint64(vectors)*vectorBytes) //nolint:gosec // vectors > 0
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gemm.ErrAllocationFailure, err)
	}
	return &buffer{dev: d, label: label, data: make([]gemm.Vec4, vectors), id: id}, nil
}

// Upload copies src into buf. len(src) must equal buf.Len().
func (d *Device) Upload(buf gemm.Buffer, src []gemm.Vec4) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.ownLocked(buf, gemm.ErrTransferFailure)
	if err != nil {
		return err
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("%w: %s holds %d vectors, got %d", gemm.ErrTransferFailure, b.label, len(b.data), len(src))
	}
	copy(b.data, src)
	return nil
}

// Download copies buf into dst. len(dst) must equal buf.Len().
func (d *Device) Download(buf gemm.Buffer, dst []gemm.Vec4) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.ownLocked(buf, gemm.ErrTransferFailure)
	if err != nil {
		return err
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("%w: %s holds %d vectors, got room for %d", gemm.ErrTransferFailure, b.label, len(b.data), len(dst))
	}
	copy(dst, b.data)
	return nil
}

// Submit validates the launch and starts it on the worker pool. The last
// binding is the output; it is written only if every work item completes.
func (d *Device) Submit(l gemm.Launch) (gemm.Fence, error) {
	d.mu.Lock()
	outBuf, snap, err := d.snapshotLocked(l)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	k := d.entries[l.EntryPoint]
	d.inflight.Add(1)
	d.mu.Unlock()

	in, out := snap[:len(snap)-1], snap[len(snap)-1]
	run, err := k(l, in, out)
	if err != nil {
		d.inflight.Done()
		return nil, fmt.Errorf("%w: %s: %v", gemm.ErrDispatchFailure, l.EntryPoint, err) //nolint:errorlint
	}

	f := &fence{done: make(chan struct{})}
	go func() {
		defer d.inflight.Done()
		defer close(f.done)
		start := time.Now()
		if err := d.pool.Run(l.WorkItems, d.opts.batch, run); err != nil {
			f.err = fmt.Errorf("%w: %s: %w", gemm.ErrDispatchFailure, l.EntryPoint, err)
			return
		}
		d.mu.Lock()
		copy(outBuf.data, out)
		d.mu.Unlock()
		gemm.Logger().Debug("software: launch complete",
			"entry", l.EntryPoint,
			"work_items", l.WorkItems,
			"elapsed", time.Since(start))
	}()
	return f, nil
}

// Free releases a buffer. Freeing nil, a foreign buffer or an already
// freed buffer does nothing.
func (d *Device) Free(buf gemm.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.dev != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.freed {
		return
	}
	b.freed = true
	b.data = nil
	d.budget.Release(b.id)
}

// MemoryStats reports the bytes held by live buffers.
func (d *Device) MemoryStats() memory.Stats {
	return d.budget.Stats()
}

// Close waits for submitted launches and stops the worker pool.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.entries = nil
	d.mu.Unlock()

	d.inflight.Wait()
	d.pool.Close()
	if labels := d.budget.Labels(); len(labels) > 0 {
		gemm.Logger().Warn("software: buffers live at close", "labels", labels)
	}
	d.budget.Close()
	return nil
}

var errClosed = fmt.Errorf("%w: software device closed", gemm.ErrDeviceUnavailable)

// snapshotLocked validates l and copies its bindings. The last copy is
// the output, to be published into the returned buffer. d.mu must be held.
func (d *Device) snapshotLocked(l gemm.Launch) (*buffer, [][]gemm.Vec4, error) {
	if d.closed {
		return nil, nil, errClosed
	}
	if _, ok := d.entries[l.EntryPoint]; !ok {
		return nil, nil, fmt.Errorf("%w: entry point %q is not built", gemm.ErrDispatchFailure, l.EntryPoint)
	}
	if len(l.Bindings) != 3 {
		return nil, nil, fmt.Errorf("%w: %s takes 3 bindings, got %d", gemm.ErrDispatchFailure, l.EntryPoint, len(l.Bindings))
	}

	var outBuf *buffer
	snap := make([][]gemm.Vec4, len(l.Bindings))
	for i, bb := range l.Bindings {
		b, err := d.ownLocked(bb, gemm.ErrDispatchFailure)
		if err != nil {
			return nil, nil, fmt.Errorf("%s binding %d: %w", l.EntryPoint, i, err)
		}
		snap[i] = append([]gemm.Vec4(nil), b.data...)
		outBuf = b
	}
	return outBuf, snap, nil
}

// ownLocked checks that buf is a live buffer of d. Failures are tagged
// with kind, except use after Close which is gemm.ErrDeviceUnavailable.
// d.mu must be held.
func (d *Device) ownLocked(buf gemm.Buffer, kind error) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: buffer %T does not belong to the software device", kind, buf)
	}
	if b.dev != d {
		return nil, fmt.Errorf("%w: buffer %q belongs to another device", kind, b.label)
	}
	if d.closed {
		return nil, errClosed
	}
	if b.freed {
		return nil, fmt.Errorf("%w: buffer %q already freed", kind, b.label)
	}
	return b, nil
}
