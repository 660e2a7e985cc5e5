// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"fmt"
	"time"
)

// DispatchDescriptor holds the device resources of one GEMM call.
// It is created by Dispatcher.Allocate and must be released with
// Dispatcher.Release once the result has been downloaded.
type DispatchDescriptor struct {
	Device    Device
	A, B, C   Buffer
	Shape     Shape
	WorkItems int

	released bool
}

// Released reports whether the descriptor's buffers have been freed.
func (d *DispatchDescriptor) Released() bool { return d.released }

// Dispatcher owns the device-side resources for GEMM calls on one device.
//
// Upload, Dispatch and Download are strictly ordered: Dispatch returns
// only after the launch's completion barrier. A Dispatcher runs one call at
// a time; concurrent callers need their own descriptors and must not share
// them.
type Dispatcher struct {
	dev Device
}

// NewDispatcher creates a dispatcher for dev. dev must already have the
// kernel program built.
func NewDispatcher(dev Device) *Dispatcher {
	return &Dispatcher{dev: dev}
}

// Allocate creates the A, B and C buffers for shape s.
// On failure no buffer is left allocated.
func (d *Dispatcher) Allocate(s Shape) (*DispatchDescriptor, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	sizes := s.BufferSizes()
	desc := &DispatchDescriptor{Device: d.dev, Shape: s, WorkItems: s.WorkItems()}

	specs := []struct {
		target *Buffer
		label  string
		n      int
	}{
		{&desc.A, "gemm_a", sizes.A},
		{&desc.B, "gemm_b", sizes.B},
		{&desc.C, "gemm_c", sizes.C},
	}
	for _, sp := range specs {
		buf, err := d.dev.Alloc(sp.label, sp.n)
		if err != nil {
			d.Release(desc)
			return nil, classify(ErrAllocationFailure, "allocate "+sp.label, err)
		}
		*sp.target = buf
	}

	Logger().Debug("gemm: buffers allocated",
		"shape", s.String(),
		"a_vectors", sizes.A,
		"b_vectors", sizes.B,
		"c_vectors", sizes.C,
		"bytes", sizes.Total())
	return desc, nil
}

// Upload copies the packed A and B operands to the device.
func (d *Dispatcher) Upload(desc *DispatchDescriptor, a, b []Vec4) error {
	if err := d.checkLive(desc); err != nil {
		return err
	}
	sizes := desc.Shape.BufferSizes()
	if len(a) != sizes.A || len(b) != sizes.B {
		return fmt.Errorf("%w: packed operands have %d and %d vectors, want %d and %d",
			ErrTransferFailure, len(a), len(b), sizes.A, sizes.B)
	}
	if err := d.dev.Upload(desc.A, a); err != nil {
		return classify(ErrTransferFailure, "upload A", err)
	}
	if err := d.dev.Upload(desc.B, b); err != nil {
		return classify(ErrTransferFailure, "upload B", err)
	}
	return nil
}

// Dispatch submits the tiled GEMM pass, one work item per output tile,
// and blocks on its completion barrier.
func (d *Dispatcher) Dispatch(desc *DispatchDescriptor) error {
	if err := d.checkLive(desc); err != nil {
		return err
	}
	start := time.Now()
	fence, err := d.dev.Submit(Launch{
		EntryPoint: EntryGEMM,
		Bindings:   []Buffer{desc.A, desc.B, desc.C},
		Params:     desc.Shape.Params(),
		WorkItems:  desc.WorkItems,
	})
	if err != nil {
		return classify(ErrDispatchFailure, "submit", err)
	}
	if err := fence.Wait(); err != nil {
		return classify(ErrDispatchFailure, "wait", err)
	}
	Logger().Debug("gemm: dispatch complete",
		"shape", desc.Shape.String(),
		"work_items", desc.WorkItems,
		"elapsed", time.Since(start))
	return nil
}

// Download copies the packed result from the device.
func (d *Dispatcher) Download(desc *DispatchDescriptor) ([]Vec4, error) {
	if err := d.checkLive(desc); err != nil {
		return nil, err
	}
	out := make([]Vec4, desc.Shape.BufferSizes().C)
	if err := d.dev.Download(desc.C, out); err != nil {
		return nil, classify(ErrTransferFailure, "download C", err)
	}
	return out, nil
}

// Release frees the descriptor's buffers. It is safe to call more than
// once; later calls do nothing.
func (d *Dispatcher) Release(desc *DispatchDescriptor) {
	if desc == nil || desc.released {
		return
	}
	for _, b := range []Buffer{desc.C, desc.B, desc.A} {
		if b != nil {
			d.dev.Free(b)
		}
	}
	desc.A, desc.B, desc.C = nil, nil, nil
	desc.released = true
}

// Run performs one complete call: allocate, upload, dispatch, download.
// The buffers are released on every return path.
func (d *Dispatcher) Run(s Shape, a, b []Vec4) ([]Vec4, error) {
	desc, err := d.Allocate(s)
	if err != nil {
		return nil, err
	}
	defer d.Release(desc)

	if err := d.Upload(desc, a, b); err != nil {
		return nil, err
	}
	if err := d.Dispatch(desc); err != nil {
		return nil, err
	}
	return d.Download(desc)
}

// RunTriad computes c = a + s·b on the device. It shares the dispatcher's
// ordering and release guarantees with Run.
func (d *Dispatcher) RunTriad(a, b []Vec4, s float32) ([]Vec4, error) {
	if len(a) == 0 || len(a) != len(b) {
		return nil, fmt.Errorf("%w: triad operands have %d and %d vectors", ErrShapeMismatch, len(a), len(b))
	}
	n := len(a)
	var bufs [3]Buffer
	defer func() {
		for _, buf := range bufs {
			if buf != nil {
				d.dev.Free(buf)
			}
		}
	}()
	for i, label := range []string{"triad_a", "triad_b", "triad_c"} {
		buf, err := d.dev.Alloc(label, n)
		if err != nil {
			return nil, classify(ErrAllocationFailure, "allocate "+label, err)
		}
		bufs[i] = buf
	}
	if err := d.dev.Upload(bufs[0], a); err != nil {
		return nil, classify(ErrTransferFailure, "upload triad_a", err)
	}
	if err := d.dev.Upload(bufs[1], b); err != nil {
		return nil, classify(ErrTransferFailure, "upload triad_b", err)
	}
	fence, err := d.dev.Submit(Launch{
		EntryPoint: EntryTriad,
		Bindings:   bufs[:],
		Params:     TriadParams(n, s),
		WorkItems:  n,
	})
	if err != nil {
		return nil, classify(ErrDispatchFailure, "submit triad", err)
	}
	if err := fence.Wait(); err != nil {
		return nil, classify(ErrDispatchFailure, "wait triad", err)
	}
	out := make([]Vec4, n)
	if err := d.dev.Download(bufs[2], out); err != nil {
		return nil, classify(ErrTransferFailure, "download triad_c", err)
	}
	return out, nil
}

func (d *Dispatcher) checkLive(desc *DispatchDescriptor) error {
	if desc == nil || desc.released {
		return fmt.Errorf("%w: descriptor already released", ErrDispatchFailure)
	}
	return nil
}
