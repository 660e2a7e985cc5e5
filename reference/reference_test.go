// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package reference

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/gemm"
)

func TestNaiveWorkedExample(t *testing.T) {
	a, b := WorkedExample(2, 3, 2)
	// A = [0 2 4; 1 3 5], B = [0 3; 1 4; 2 5]
	if a.At(1, 2) != 5 || b.At(2, 1) != 5 {
		t.Fatalf("WorkedExample numbering: A[1][2]=%g B[2][1]=%g, want 5", a.At(1, 2), b.At(2, 1))
	}
	got, err := Naive(a, b)
	if err != nil {
		t.Fatalf("Naive() error = %v", err)
	}
	want := []float32{10, 28, 13, 40}
	for i, w := range want {
		if got.Data[i] != w {
			t.Errorf("c[%d] = %g, want %g", i, got.Data[i], w)
		}
	}
}

func TestTensorWorkedExampleExact(t *testing.T) {
	a, b := WorkedExample(4, 8, 8)
	want, _ := Naive(a, b)
	got, err := Tensor(a, b)
	if err != nil {
		t.Fatalf("Tensor() error = %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Tensor() differs from Naive() on integer inputs")
	}
}

func TestTensorMatchesNaive(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tests := []struct{ m, k, n int }{
		{1, 1, 1},
		{4, 8, 8},
		{3, 5, 7},
		{32, 16, 24},
	}
	for _, tt := range tests {
		a := Random(rng, tt.m, tt.k)
		b := Random(rng, tt.k, tt.n)

		want, err := Naive(a, b)
		if err != nil {
			t.Fatalf("Naive() error = %v", err)
		}
		got, err := Tensor(a, b)
		if err != nil {
			t.Fatalf("Tensor() error = %v", err)
		}
		if got.Rows != tt.m || got.Cols != tt.n {
			t.Fatalf("Tensor() = %v, want %dx%d", got, tt.m, tt.n)
		}
		if e, r, c := MaxRelError(got, want); e >= 1e-5 {
			t.Errorf("%dx%dx%d: rel error %g at (%d,%d)", tt.m, tt.k, tt.n, e, r, c)
		}
	}
}

func TestTensorLeavesInputsUntouched(t *testing.T) {
	a, b := WorkedExample(4, 4, 8)
	a0, b0 := a.Clone(), b.Clone()
	if _, err := Tensor(a, b); err != nil {
		t.Fatalf("Tensor() error = %v", err)
	}
	if !a.Equal(a0) || !b.Equal(b0) {
		t.Error("Tensor() modified its inputs")
	}
}

func TestTensorShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		a, b *gemm.Matrix
	}{
		{"inner", gemm.NewMatrix(2, 3), gemm.NewMatrix(4, 2)},
		{"nil", nil, gemm.NewMatrix(2, 2)},
		{"empty", gemm.NewMatrix(0, 0), gemm.NewMatrix(2, 2)},
		{"short data", &gemm.Matrix{Rows: 2, Cols: 2, Data: make([]float32, 3)}, gemm.NewMatrix(2, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Tensor(tt.a, tt.b); !errors.Is(err, gemm.ErrShapeMismatch) {
				t.Errorf("Tensor() error = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestRandomRange(t *testing.T) {
	m := Random(rand.New(rand.NewPCG(1, 2)), 16, 16)
	for i, v := range m.Data {
		if v < -1 || v >= 1 {
			t.Fatalf("Data[%d] = %g outside [-1, 1)", i, v)
		}
	}
}
