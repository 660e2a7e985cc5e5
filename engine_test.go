// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func newTestEngine(t *testing.T, dev *mockDevice, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(dev, opts...)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestNewEngineBuildsOnce(t *testing.T) {
	dev := newMockDevice()
	eng := newTestEngine(t, dev)
	for range 3 {
		if _, err := eng.Multiply(NewMatrix(4, 4), NewMatrix(4, 8)); err != nil {
			t.Fatalf("Multiply() error = %v", err)
		}
	}
	if len(dev.built) != 1 || dev.built[0].Label != KernelProgram().Label {
		t.Errorf("built = %+v, want the kernel program once", dev.built)
	}
	if eng.Device() != dev {
		t.Error("Device() should return the engine's device")
	}
}

func TestNewEngineErrors(t *testing.T) {
	narrow := newMockDevice()
	narrow.info.VectorWidth = 2

	failing := newMockDevice()
	failing.buildErr = &BuildError{Program: "gemm_kernels", Log: "error: unknown identifier"}

	untyped := newMockDevice()
	untyped.buildErr = errors.New("driver crashed")

	tests := []struct {
		name string
		dev  Device
		want error
	}{
		{"nil device", nil, ErrDeviceUnavailable},
		{"narrow vectors", narrow, ErrDeviceUnavailable},
		{"build error", failing, ErrBuildFailure},
		{"untyped build error", untyped, ErrBuildFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := NewEngine(tt.dev)
			if eng != nil || !errors.Is(err, tt.want) {
				t.Errorf("NewEngine() = %v, %v; want nil, %v", eng, err, tt.want)
			}
		})
	}

	var be *BuildError
	_, err := NewEngine(failing)
	if !errors.As(err, &be) || be.Log != "error: unknown identifier" {
		t.Errorf("build failure should carry the log, got %v", err)
	}
}

func TestEngineMultiply(t *testing.T) {
	eng := newTestEngine(t, newMockDevice())
	rng := rand.New(rand.NewPCG(21, 22))
	a := smallIntMatrix(rng, 12, 16)
	b := smallIntMatrix(rng, 16, 24)
	a0, b0 := a.Clone(), b.Clone()

	got, err := eng.Multiply(a, b)
	if err != nil {
		t.Fatalf("Multiply() error = %v", err)
	}
	want, _ := NaiveMultiply(a, b)
	if !got.Equal(want) {
		t.Error("Multiply() differs from the scalar reference")
	}
	if !a.Equal(a0) || !b.Equal(b0) {
		t.Error("Multiply() modified its inputs")
	}
}

// TestEngineShapeMismatchBeforeDevice checks that invalid shapes never
// reach the device.
func TestEngineShapeMismatchBeforeDevice(t *testing.T) {
	tests := []struct {
		name    string
		m, k, n int
	}{
		{"M%4", 6, 4, 8},
		{"N%8", 4, 4, 12},
		{"K%4", 4, 6, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMockDevice()
			eng := newTestEngine(t, dev)
			_, err := eng.Multiply(NewMatrix(tt.m, tt.k), NewMatrix(tt.k, tt.n))
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("Multiply() error = %v, want ErrShapeMismatch", err)
			}
			if dev.allocs != 0 || len(dev.launches) != 0 {
				t.Errorf("device touched: %d allocs, %d launches", dev.allocs, len(dev.launches))
			}
		})
	}
}

func TestEngineDispatchFailureNoResult(t *testing.T) {
	dev := newMockDevice()
	eng := newTestEngine(t, dev)
	dev.waitErr = errors.New("device lost")

	c, err := eng.Multiply(NewMatrix(4, 4), NewMatrix(4, 8))
	if c != nil || !errors.Is(err, ErrDispatchFailure) {
		t.Errorf("Multiply() = %v, %v; want nil, ErrDispatchFailure", c, err)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d buffers left allocated", len(dev.live))
	}
}

func TestEngineVerify(t *testing.T) {
	dev := newMockDevice()
	dev.corrupt = true
	a, b := indexMatrix(4, 4), indexMatrix(4, 8)

	plain := newTestEngine(t, dev)
	if _, err := plain.Multiply(a, b); err != nil {
		t.Errorf("Multiply() without verification error = %v", err)
	}

	checked := newTestEngine(t, dev, WithVerify(0))
	if _, err := checked.Multiply(a, b); !errors.Is(err, ErrDispatchFailure) {
		t.Errorf("Multiply() with verification error = %v, want ErrDispatchFailure", err)
	}

	dev.corrupt = false
	if _, err := checked.Multiply(a, b); err != nil {
		t.Errorf("Multiply() of a correct device error = %v", err)
	}
}

func TestEngineTriad(t *testing.T) {
	eng := newTestEngine(t, newMockDevice())
	a := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float32{8, 7, 6, 5, 4, 3, 2, 1}

	got, err := eng.Triad(a, b, 2)
	if err != nil {
		t.Fatalf("Triad() error = %v", err)
	}
	for i := range a {
		if want := a[i] + 2*b[i]; got[i] != want {
			t.Errorf("c[%d] = %g, want %g", i, got[i], want)
		}
	}

	for _, bad := range [][2][]float32{{a, b[:4]}, {a[:3], b[:3]}} {
		if _, err := eng.Triad(bad[0], bad[1], 2); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("Triad(%d, %d) error = %v, want ErrShapeMismatch", len(bad[0]), len(bad[1]), err)
		}
	}
}

func TestEngineClose(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		wantClose bool
	}{
		{"borrowed device", nil, false},
		{"owned device", []Option{WithOwnedDevice()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMockDevice()
			eng, err := NewEngine(dev, tt.opts...)
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}
			if err := eng.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if err := eng.Close(); err != nil {
				t.Fatalf("second Close() error = %v", err)
			}
			if dev.closed != tt.wantClose {
				t.Errorf("device closed = %v, want %v", dev.closed, tt.wantClose)
			}
			if _, err := eng.Multiply(NewMatrix(4, 4), NewMatrix(4, 8)); !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("Multiply() after Close error = %v, want ErrDeviceUnavailable", err)
			}
			if _, err := eng.Triad(make([]float32, 4), make([]float32, 4), 1); !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("Triad() after Close error = %v, want ErrDeviceUnavailable", err)
			}
		})
	}
}

func TestWithProgram(t *testing.T) {
	dev := newMockDevice()
	newTestEngine(t, dev, WithProgram(func(p Program) Program {
		p.Label = "custom"
		return p
	}))
	if len(dev.built) != 1 || dev.built[0].Label != "custom" {
		t.Errorf("built = %+v, want label custom", dev.built)
	}
}

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.verify || o.ownsDevice || o.logger != nil || o.programHook != nil {
		t.Errorf("defaultOptions() = %+v, want everything off", o)
	}
	if o.verifyTol != 1e-5 {
		t.Errorf("verifyTol = %g, want 1e-5", o.verifyTol)
	}
	WithVerify(1e-3)(&o)
	if !o.verify || o.verifyTol != 1e-3 {
		t.Errorf("WithVerify(1e-3) = %+v", o)
	}
}

func BenchmarkEngineMultiply(b *testing.B) {
	eng, err := NewEngine(newMockDevice())
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	x := randomMatrix(rng, 64, 64)
	y := randomMatrix(rng, 64, 64)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := eng.Multiply(x, y); err != nil {
			b.Fatal(err)
		}
	}
}
