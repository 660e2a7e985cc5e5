// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import "fmt"

// PackA packs an M×K matrix row by row into vectors of 4 consecutive
// K-columns. Vector i·(K/4)+j holds A[i, 4j..4j+3].
//
// M must be a multiple of 4 and K a multiple of 4.
func PackA(a *Matrix) ([]Vec4, error) {
	if err := a.validate("A"); err != nil {
		return nil, err
	}
	if a.Rows%TileM != 0 || a.Cols%VectorWidth != 0 {
		return nil, fmt.Errorf("%w: A is %dx%d, want rows%%%d == 0 and cols%%%d == 0",
			ErrShapeMismatch, a.Rows, a.Cols, TileM, VectorWidth)
	}
	return packRows(a), nil
}

// PackB packs a K×N matrix column by column. Vector c·(K/4)+j holds
// B[4j..4j+3, c], so the K/4 vectors of one logical column are contiguous
// and the 8 columns of one output tile form one contiguous block.
//
// N must be a multiple of 8 and K a multiple of 4.
func PackB(b *Matrix) ([]Vec4, error) {
	if err := b.validate("B"); err != nil {
		return nil, err
	}
	if b.Cols%TileN != 0 || b.Rows%VectorWidth != 0 {
		return nil, fmt.Errorf("%w: B is %dx%d, want rows%%%d == 0 and cols%%%d == 0",
			ErrShapeMismatch, b.Rows, b.Cols, VectorWidth, TileN)
	}
	k, n := b.Rows, b.Cols
	kv := k / VectorWidth
	out := make([]Vec4, n*kv)
	for c := 0; c < n; c++ {
		for j := 0; j < kv; j++ {
			var v Vec4
			for l := range VectorWidth {
				v[l] = b.Data[(j*VectorWidth+l)*n+c]
			}
			out[c*kv+j] = v
		}
	}
	return out, nil
}

// PackC packs an M×N matrix in the output layout, the inverse of UnpackC.
// Vector i·(N/4)+j holds C[i, 4j..4j+3].
func PackC(c *Matrix) ([]Vec4, error) {
	if err := c.validate("C"); err != nil {
		return nil, err
	}
	if c.Rows%TileM != 0 || c.Cols%TileN != 0 {
		return nil, fmt.Errorf("%w: C is %dx%d, want rows%%%d == 0 and cols%%%d == 0",
			ErrShapeMismatch, c.Rows, c.Cols, TileM, TileN)
	}
	return packRows(c), nil
}

// UnpackC expands packed output vectors into a rows×cols matrix.
// Vector i·(cols/4)+j becomes C[i, 4j..4j+3].
func UnpackC(buf []Vec4, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 || rows%TileM != 0 || cols%TileN != 0 {
		return nil, fmt.Errorf("%w: cannot unpack a %dx%d result", ErrShapeMismatch, rows, cols)
	}
	if len(buf) != rows*cols/VectorWidth {
		return nil, fmt.Errorf("%w: %d vectors for a %dx%d result", ErrShapeMismatch, len(buf), rows, cols)
	}
	m := NewMatrix(rows, cols)
	for i, v := range buf {
		copy(m.Data[i*VectorWidth:], v[:])
	}
	return m, nil
}

// PackVector packs a flat slice into vectors. len(x) must be a multiple of 4.
func PackVector(x []float32) ([]Vec4, error) {
	if len(x) == 0 || len(x)%VectorWidth != 0 {
		return nil, fmt.Errorf("%w: vector length %d is not a positive multiple of %d",
			ErrShapeMismatch, len(x), VectorWidth)
	}
	out := make([]Vec4, len(x)/VectorWidth)
	for i := range out {
		copy(out[i][:], x[i*VectorWidth:])
	}
	return out, nil
}

// UnpackVector flattens vectors back into a float slice.
func UnpackVector(buf []Vec4) []float32 {
	out := make([]float32, len(buf)*VectorWidth)
	for i, v := range buf {
		copy(out[i*VectorWidth:], v[:])
	}
	return out
}

// packRows is the row-major vector packing shared by A and C. Row-major
// storage of 4-aligned rows is already in vector order, so this is a copy.
func packRows(m *Matrix) []Vec4 {
	out := make([]Vec4, len(m.Data)/VectorWidth)
	for i := range out {
		copy(out[i][:], m.Data[i*VectorWidth:])
	}
	return out
}
