// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"errors"
	"io"
	"testing"
)

func packedOperands(t *testing.T, s Shape) (pa, pb []Vec4) {
	t.Helper()
	pa, err := PackA(indexMatrix(s.M, s.K))
	if err != nil {
		t.Fatalf("PackA() error = %v", err)
	}
	pb, err = PackB(indexMatrix(s.K, s.N))
	if err != nil {
		t.Fatalf("PackB() error = %v", err)
	}
	return pa, pb
}

func TestDispatcherRun(t *testing.T) {
	dev := newMockDevice()
	d := NewDispatcher(dev)
	s := Shape{M: 8, N: 16, K: 8}
	pa, pb := packedOperands(t, s)

	pc, err := d.Run(s, pa, pb)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got, _ := UnpackC(pc, s.M, s.N)
	want, _ := NaiveMultiply(indexMatrix(s.M, s.K), indexMatrix(s.K, s.N))
	if !got.Equal(want) {
		t.Error("Run() result differs from the scalar reference")
	}

	if len(dev.launches) != 1 {
		t.Fatalf("launches = %d, want 1", len(dev.launches))
	}
	l := dev.launches[0]
	if l.EntryPoint != EntryGEMM || l.WorkItems != 4 || len(l.Bindings) != 3 {
		t.Errorf("launch = %+v", l)
	}
	if len(dev.live) != 0 || dev.frees != 3 {
		t.Errorf("after Run: %d live buffers, %d frees; want 0 and 3", len(dev.live), dev.frees)
	}
}

func TestDispatcherAllocate(t *testing.T) {
	dev := newMockDevice()
	d := NewDispatcher(dev)
	desc, err := d.Allocate(Shape{M: 4, N: 8, K: 12})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if desc.A.Len() != 12 || desc.B.Len() != 24 || desc.C.Len() != 8 {
		t.Errorf("buffer lengths = %d, %d, %d; want 12, 24, 8", desc.A.Len(), desc.B.Len(), desc.C.Len())
	}
	if desc.WorkItems != 1 || desc.Device != dev {
		t.Errorf("descriptor = %+v", desc)
	}

	d.Release(desc)
	d.Release(desc)
	if !desc.Released() || dev.frees != 3 {
		t.Errorf("Release twice: released=%v frees=%d, want true and 3", desc.Released(), dev.frees)
	}
	d.Release(nil)
}

func TestDispatcherAllocateShapeMismatch(t *testing.T) {
	dev := newMockDevice()
	if _, err := NewDispatcher(dev).Allocate(Shape{M: 4, N: 4, K: 4}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Allocate() error = %v, want ErrShapeMismatch", err)
	}
	if dev.allocs != 0 {
		t.Errorf("allocs = %d, want 0", dev.allocs)
	}
}

// TestDispatcherAllocationFailureReleases checks that buffers allocated
// before a failing one are freed.
func TestDispatcherAllocationFailureReleases(t *testing.T) {
	for _, label := range []string{"gemm_a", "gemm_b", "gemm_c"} {
		t.Run(label, func(t *testing.T) {
			dev := newMockDevice()
			dev.allocErr = map[string]error{label: errors.New("out of memory")}
			_, err := NewDispatcher(dev).Allocate(Shape{M: 4, N: 8, K: 4})
			if !errors.Is(err, ErrAllocationFailure) {
				t.Errorf("Allocate() error = %v, want ErrAllocationFailure", err)
			}
			if len(dev.live) != 0 {
				t.Errorf("%d buffers left allocated", len(dev.live))
			}
		})
	}
}

func TestDispatcherErrorKinds(t *testing.T) {
	s := Shape{M: 4, N: 8, K: 4}
	tests := []struct {
		name  string
		setup func(*mockDevice)
		want  error
	}{
		{"upload", func(d *mockDevice) { d.uploadErr = io.ErrShortWrite }, ErrTransferFailure},
		{"submit", func(d *mockDevice) { d.submitErr = errors.New("pipeline missing") }, ErrDispatchFailure},
		{"wait", func(d *mockDevice) { d.waitErr = errors.New("device lost") }, ErrDispatchFailure},
		{"download", func(d *mockDevice) { d.downloadErr = io.ErrUnexpectedEOF }, ErrTransferFailure},
		{"typed device error", func(d *mockDevice) { d.submitErr = ErrDeviceUnavailable }, ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMockDevice()
			tt.setup(dev)
			pa, pb := packedOperands(t, s)

			out, err := NewDispatcher(dev).Run(s, pa, pb)
			if out != nil {
				t.Error("Run() returned a result with an error")
			}
			kinds := kindsOf(err)
			if len(kinds) != 1 || kinds[0] != tt.want {
				t.Errorf("Run() error = %v matches %v, want only %v", err, kinds, tt.want)
			}
			if len(dev.live) != 0 {
				t.Errorf("%d buffers left allocated", len(dev.live))
			}
		})
	}
}

func TestDispatcherUploadLengthMismatch(t *testing.T) {
	dev := newMockDevice()
	d := NewDispatcher(dev)
	desc, err := d.Allocate(Shape{M: 4, N: 8, K: 4})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	defer d.Release(desc)

	if err := d.Upload(desc, make([]Vec4, 3), make([]Vec4, 8)); !errors.Is(err, ErrTransferFailure) {
		t.Errorf("Upload() error = %v, want ErrTransferFailure", err)
	}
}

func TestDispatcherUseAfterRelease(t *testing.T) {
	dev := newMockDevice()
	d := NewDispatcher(dev)
	desc, err := d.Allocate(Shape{M: 4, N: 8, K: 4})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	d.Release(desc)

	if err := d.Upload(desc, nil, nil); !errors.Is(err, ErrDispatchFailure) {
		t.Errorf("Upload() error = %v, want ErrDispatchFailure", err)
	}
	if err := d.Dispatch(desc); !errors.Is(err, ErrDispatchFailure) {
		t.Errorf("Dispatch() error = %v, want ErrDispatchFailure", err)
	}
	if _, err := d.Download(desc); !errors.Is(err, ErrDispatchFailure) {
		t.Errorf("Download() error = %v, want ErrDispatchFailure", err)
	}
	if len(dev.launches) != 0 {
		t.Error("a released descriptor reached the device")
	}
}

func TestDispatcherRunTriad(t *testing.T) {
	dev := newMockDevice()
	a := []Vec4{{1, 2, 3, 4}, {5, 6, 7, 8}}
	b := []Vec4{{1, 1, 1, 1}, {2, 2, 2, 2}}

	c, err := NewDispatcher(dev).RunTriad(a, b, 3)
	if err != nil {
		t.Fatalf("RunTriad() error = %v", err)
	}
	if c[0] != (Vec4{4, 5, 6, 7}) || c[1] != (Vec4{11, 12, 13, 14}) {
		t.Errorf("RunTriad() = %v", c)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d buffers left allocated", len(dev.live))
	}

	if _, err := NewDispatcher(dev).RunTriad(a, b[:1], 3); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("RunTriad(mismatched) error = %v, want ErrShapeMismatch", err)
	}

	dev.allocErr = map[string]error{"triad_c": errors.New("no memory")}
	if _, err := NewDispatcher(dev).RunTriad(a, b, 3); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("RunTriad() error = %v, want ErrAllocationFailure", err)
	}
	if len(dev.live) != 0 {
		t.Errorf("%d buffers left after allocation failure", len(dev.live))
	}
}
