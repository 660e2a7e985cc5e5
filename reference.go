// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"fmt"
	"math"
)

// NaiveMultiply computes a·b with the scalar triple loop, accumulating in
// float32 in K order. It accepts any compatible dimensions and is the
// reference the tiled kernels are checked against.
func NaiveMultiply(a, b *Matrix) (*Matrix, error) {
	if err := a.validate("A"); err != nil {
		return nil, err
	}
	if err := b.validate("B"); err != nil {
		return nil, err
	}
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("%w: A is %dx%d but B is %dx%d", ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	c := NewMatrix(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			var sum float32
			for k := 0; k < a.Cols; k++ {
				sum += a.Data[i*a.Cols+k] * b.Data[k*b.Cols+j]
			}
			c.Data[i*c.Cols+j] = sum
		}
	}
	return c, nil
}

// MaxRelError returns the largest |got-want| / max(|want|, 1) over all
// elements, and the row and column where it occurs. Mismatched dimensions
// yield +Inf.
func MaxRelError(got, want *Matrix) (maxErr float64, row, col int) {
	if got == nil || want == nil || got.Rows != want.Rows || got.Cols != want.Cols ||
		len(got.Data) != len(want.Data) {
		return math.Inf(1), -1, -1
	}
	row, col = -1, -1
	for i, w := range want.Data {
		g := got.Data[i]
		d := math.Abs(float64(g) - float64(w))
		den := math.Max(math.Abs(float64(w)), 1)
		e := d / den
		if math.IsNaN(e) {
			e = math.Inf(1)
		}
		if e > maxErr || row < 0 {
			maxErr = e
			row, col = i/want.Cols, i%want.Cols
		}
	}
	return maxErr, row, col
}
