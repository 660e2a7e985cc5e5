// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package reference provides host-side reference products and test inputs
// for checking gemm engines.
//
// Naive is the scalar triple loop. Tensor computes the same product with
// gorgonia.org/tensor as an independent second opinion.
package reference

import (
	"fmt"
	"math/rand/v2"

	"gorgonia.org/tensor"

	"github.com/gogpu/gemm"
)

// Naive computes a·b with the scalar triple loop.
func Naive(a, b *gemm.Matrix) (*gemm.Matrix, error) {
	return gemm.NaiveMultiply(a, b)
}

// Tensor computes a·b with gorgonia's dense matrix multiply.
// The inputs are copied; a and b are not modified.
func Tensor(a, b *gemm.Matrix) (*gemm.Matrix, error) {
	if err := check(a, "A"); err != nil {
		return nil, err
	}
	if err := check(b, "B"); err != nil {
		return nil, err
	}
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("%w: A is %dx%d but B is %dx%d",
			gemm.ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}

	ta := tensor.New(tensor.WithShape(a.Rows, a.Cols), tensor.WithBacking(a.Clone().Data))
	tb := tensor.New(tensor.WithShape(b.Rows, b.Cols), tensor.WithBacking(b.Clone().Data))
	tc, err := tensor.MatMul(ta, tb)
	if err != nil {
		return nil, fmt.Errorf("reference: matmul: %w", err)
	}
	data, ok := tc.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("reference: matmul returned %T", tc.Data())
	}
	out := make([]float32, len(data))
	copy(out, data)
	return gemm.NewMatrixFrom(a.Rows, b.Cols, out)
}

// MaxRelError returns the largest |got-want| / max(|want|, 1) and where it
// occurs.
func MaxRelError(got, want *gemm.Matrix) (maxErr float64, row, col int) {
	return gemm.MaxRelError(got, want)
}

// WorkedExample returns the index-numbered input pair used by the
// minimal-case check: elements are numbered column by column, so
// A[i][j] = j*m + i and B[i][j] = j*k + i. Products of small shapes are
// exact in float32.
func WorkedExample(m, k, n int) (a, b *gemm.Matrix) {
	a = gemm.NewMatrix(m, k)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			a.Set(i, j, float32(j*m+i))
		}
	}
	b = gemm.NewMatrix(k, n)
	for i := 0; i < k; i++ {
		for j := 0; j < n; j++ {
			b.Set(i, j, float32(j*k+i))
		}
	}
	return a, b
}

// Random returns a rows×cols matrix of uniform values in [-1, 1).
func Random(rng *rand.Rand, rows, cols int) *gemm.Matrix {
	m := gemm.NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

func check(m *gemm.Matrix, name string) error {
	if m == nil {
		return fmt.Errorf("%w: %s is nil", gemm.ErrShapeMismatch, name)
	}
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %s is %dx%d with %d values",
			gemm.ErrShapeMismatch, name, m.Rows, m.Cols, len(m.Data))
	}
	return nil
}
