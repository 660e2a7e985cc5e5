// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import "fmt"

// Matrix is a dense row-major matrix of float32 values.
//
// Matrices passed to Engine.Multiply are read-only inputs and outlive the
// call; the result is a fresh Matrix owned by the caller.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// NewMatrixFrom wraps data as a rows×cols matrix without copying.
// It returns ErrShapeMismatch if len(data) != rows*cols.
func NewMatrixFrom(rows, cols int, data []float32) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for a %dx%d matrix", ErrShapeMismatch, len(data), rows, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float32 { return m.Data[i*m.Cols+j] }

// Set stores v at row i, column j.
func (m *Matrix) Set(i, j int, v float32) { m.Data[i*m.Cols+j] = v }

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{Rows: m.Rows, Cols: m.Cols, Data: make([]float32, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// Equal reports whether m and o have the same dimensions and bit-identical
// elements.
func (m *Matrix) Equal(o *Matrix) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Rows != o.Rows || m.Cols != o.Cols || len(m.Data) != len(o.Data) {
		return false
	}
	for i, v := range m.Data {
		if v != o.Data[i] {
			return false
		}
	}
	return true
}

// String returns a short description such as "Matrix[4x8]".
func (m *Matrix) String() string {
	return fmt.Sprintf("Matrix[%dx%d]", m.Rows, m.Cols)
}

// validate checks that the backing slice matches the dimensions.
func (m *Matrix) validate(name string) error {
	if m == nil {
		return fmt.Errorf("%w: %s is nil", ErrShapeMismatch, name)
	}
	if m.Rows <= 0 || m.Cols <= 0 || len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("%w: %s is %dx%d with %d values", ErrShapeMismatch, name, m.Rows, m.Cols, len(m.Data))
	}
	return nil
}
