// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import "fmt"

// Tile geometry. One work item computes a TileM×TileN block of the output
// using VectorWidth-lane dot products. TileN is two vector groups wide.
const (
	TileM       = 4
	TileN       = 8
	VectorWidth = 4
)

// Lane positions inside a Vec4. An output vector's lanes map to four
// consecutive columns: W to the base column, X to +1, Y to +2, Z to +3.
const (
	LaneW = iota
	LaneX
	LaneY
	LaneZ
)

// Vec4 is a packed 4-lane float vector, the unit moved to and from devices.
type Vec4 [VectorWidth]float32

// Dot returns the 4-lane dot product of v and o, summed in lane order.
func (v Vec4) Dot(o Vec4) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] + v[3]*o[3]
}

// Shape holds the dimensions of one product C(M×N) = A(M×K) · B(K×N).
type Shape struct {
	M, N, K int
}

// ShapeOf returns the product shape of a and b.
// It fails with ErrShapeMismatch if the inner dimensions differ or the
// result violates the tile preconditions.
func ShapeOf(a, b *Matrix) (Shape, error) {
	if err := a.validate("A"); err != nil {
		return Shape{}, err
	}
	if err := b.validate("B"); err != nil {
		return Shape{}, err
	}
	if a.Cols != b.Rows {
		return Shape{}, fmt.Errorf("%w: A is %dx%d but B is %dx%d", ErrShapeMismatch, a.Rows, a.Cols, b.Rows, b.Cols)
	}
	s := Shape{M: a.Rows, N: b.Cols, K: a.Cols}
	return s, s.Validate()
}

// Validate checks M%4 == 0, N%8 == 0 and K%4 == 0 with all dimensions positive.
func (s Shape) Validate() error {
	if s.M <= 0 || s.N <= 0 || s.K <= 0 {
		return fmt.Errorf("%w: %v has a non-positive dimension", ErrShapeMismatch, s)
	}
	if s.M%TileM != 0 {
		return fmt.Errorf("%w: M=%d is not a multiple of %d", ErrShapeMismatch, s.M, TileM)
	}
	if s.N%TileN != 0 {
		return fmt.Errorf("%w: N=%d is not a multiple of %d", ErrShapeMismatch, s.N, TileN)
	}
	if s.K%VectorWidth != 0 {
		return fmt.Errorf("%w: K=%d is not a multiple of %d", ErrShapeMismatch, s.K, VectorWidth)
	}
	return nil
}

// WorkItems returns the number of output tiles, (M/4)·(N/8).
func (s Shape) WorkItems() int {
	return (s.M / TileM) * (s.N / TileN)
}

// BufferSizes returns the packed lengths of A, B and C in vectors.
func (s Shape) BufferSizes() BufferSizes {
	return BufferSizes{
		A: s.M * s.K / VectorWidth,
		B: s.N * s.K / VectorWidth,
		C: s.M * s.N / VectorWidth,
	}
}

// Params encodes the shape as the kernel's uniform parameter block.
func (s Shape) Params() []uint32 {
	return []uint32{uint32(s.M), uint32(s.N), uint32(s.K), 0} //nolint:gosec // validated dimensions
}

// String returns "MxNxK".
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.M, s.N, s.K)
}

// BufferSizes holds packed buffer lengths, in vectors.
type BufferSizes struct {
	A, B, C int
}

// Total returns the sum of the three lengths in bytes.
func (b BufferSizes) Total() uint64 {
	return uint64(b.A+b.B+b.C) * VectorWidth * 4 //nolint:gosec // lengths are non-negative
}

// Rect is a half-open rectangle of output elements [Row0,Row1)×[Col0,Col1).
type Rect struct {
	Row0, Row1 int
	Col0, Col1 int
}

// Overlaps reports whether r and o share at least one element.
func (r Rect) Overlaps(o Rect) bool {
	return r.Row0 < o.Row1 && o.Row0 < r.Row1 && r.Col0 < o.Col1 && o.Col0 < r.Col1
}

// TileBounds returns the output rectangle written by work item g. A shape
// narrower than one tile has no work items and yields the empty Rect.
func TileBounds(g int, s Shape) Rect {
	tilesN := s.N / TileN
	if tilesN <= 0 {
		return Rect{}
	}
	m0 := (g / tilesN) * TileM
	n0 := (g % tilesN) * TileN
	return Rect{Row0: m0, Row1: m0 + TileM, Col0: n0, Col1: n0 + TileN}
}
