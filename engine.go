// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"fmt"
	"sync"
	"time"
)

// Engine multiplies matrices on one device.
//
// NewEngine builds the kernel program once; every Multiply then creates,
// uses and releases its own device buffers, so no state survives between
// calls. Calls on one Engine are serialized. Independent engines on
// independent devices may run concurrently.
type Engine struct {
	mu     sync.Mutex
	dev    Device
	disp   *Dispatcher
	opts   options
	closed bool
}

// NewEngine builds the kernel program on dev and returns an engine bound
// to it. It fails with ErrDeviceUnavailable for a nil device, with
// ErrDeviceUnavailable if the device's vector width is below 4, and with a
// *BuildError (matching ErrBuildFailure) if the program does not build.
func NewEngine(dev Device, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: no device", ErrDeviceUnavailable)
	}
	info := dev.Info()
	if info.VectorWidth < VectorWidth {
		return nil, fmt.Errorf("%w: %s has vector width %d, need %d",
			ErrDeviceUnavailable, info.Name, info.VectorWidth, VectorWidth)
	}

	prog := KernelProgram()
	if o.programHook != nil {
		prog = o.programHook(prog)
	}
	start := time.Now()
	if err := dev.Build(prog); err != nil {
		return nil, classify(ErrBuildFailure, "build "+prog.Label, err)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}
	Logger().Info("gemm: kernel program built",
		"device", info.String(),
		"program", prog.Label,
		"elapsed", time.Since(start))

	return &Engine{dev: dev, disp: NewDispatcher(dev), opts: o}, nil
}

// Device returns the engine's device.
func (e *Engine) Device() Device { return e.dev }

// Multiply returns a·b. a is M×K, b is K×N; M must be a multiple of 4, N of
// 8 and K of 4, otherwise ErrShapeMismatch is returned before any device
// work. Device failures are returned as the matching error kind and never
// come with a partial result.
func (e *Engine) Multiply(a, b *Matrix) (*Matrix, error) {
	s, err := ShapeOf(a, b)
	if err != nil {
		return nil, err
	}
	pa, err := PackA(a)
	if err != nil {
		return nil, err
	}
	pb, err := PackB(b)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: engine closed", ErrDeviceUnavailable)
	}

	pc, err := e.disp.Run(s, pa, pb)
	if err != nil {
		return nil, err
	}
	c, err := UnpackC(pc, s.M, s.N)
	if err != nil {
		return nil, err
	}

	if e.opts.verify {
		if err := verify(c, a, b, e.opts.verifyTol); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Triad returns a + s·b computed on the device. len(a) must equal len(b)
// and be a positive multiple of 4.
func (e *Engine) Triad(a, b []float32, s float32) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: triad operands have lengths %d and %d", ErrShapeMismatch, len(a), len(b))
	}
	pa, err := PackVector(a)
	if err != nil {
		return nil, err
	}
	pb, err := PackVector(b)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("%w: engine closed", ErrDeviceUnavailable)
	}

	pc, err := e.disp.RunTriad(pa, pb, s)
	if err != nil {
		return nil, err
	}
	return UnpackVector(pc), nil
}

// Close marks the engine unusable and, with WithOwnedDevice, closes the
// device. Close is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.opts.ownsDevice {
		return e.dev.Close()
	}
	return nil
}

func verify(c, a, b *Matrix, tol float64) error {
	want, err := NaiveMultiply(a, b)
	if err != nil {
		return err
	}
	maxErr, row, col := MaxRelError(c, want)
	if row < 0 {
		return fmt.Errorf("%w: result is %v, want %v", ErrDispatchFailure, c, want)
	}
	if maxErr > tol {
		return fmt.Errorf("%w: result differs from reference at (%d,%d): got %g want %g (rel %.3g > %.3g)",
			ErrDispatchFailure, row, col, c.At(row, col), want.At(row, col), maxErr, tol)
	}
	return nil
}
