// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	_ "embed"
	"math"
)

// Kernel entry points defined by the kernel program.
const (
	EntryGEMM  = "gemm"
	EntryTriad = "triad"
)

// WorkgroupSize is the number of work items per workgroup in the WGSL
// kernels. Devices round dispatches up to a multiple of it; the kernels
// discard the excess invocations.
const WorkgroupSize = 64

//go:embed shaders/kernels.wgsl
var kernelSource string

// Program is a kernel source compiled once against a device.
type Program struct {
	// Label identifies the program in logs and build errors.
	Label string

	// Source is WGSL text.
	Source string

	// EntryPoints lists the compute entry points the device must expose.
	EntryPoints []string
}

// KernelProgram returns the program holding the tiled GEMM and triad kernels.
func KernelProgram() Program {
	return Program{
		Label:       "gemm_kernels",
		Source:      kernelSource,
		EntryPoints: []string{EntryGEMM, EntryTriad},
	}
}

// TileKernel computes the 4×8 output tile of work item g.
//
// For each of the 4 tile rows and each of the 2 vector groups it
// accumulates K/4 dot products per output lane; lane l of the vector
// stored at column group n0/4+grp receives the dot products against the
// packed B column n0 + 4·grp + l. Accumulation is plain float32 in K order.
//
// s must pass Validate, and a, b and c must be packed with PackA, PackB
// and the PackC layout for s. A shape narrower than one tile writes
// nothing. Work items write disjoint output vectors and may run
// concurrently.
func TileKernel(g int, a, b, c []Vec4, s Shape) {
	tilesN := s.N / TileN
	if tilesN <= 0 {
		return
	}
	tileCol := g % tilesN
	tileRow := g / tilesN
	kv := s.K / VectorWidth
	nv := s.N / VectorWidth

	aBase := tileRow * TileM * kv
	bBase := tileCol * TileN * kv
	cBase := tileRow*TileM*nv + tileCol*(TileN/VectorWidth)

	for m := 0; m < TileM; m++ {
		aRow := a[aBase+m*kv : aBase+(m+1)*kv]
		for grp := 0; grp < TileN/VectorWidth; grp++ {
			col := bBase + grp*VectorWidth*kv
			var acc Vec4
			for i, av := range aRow {
				acc[LaneW] += av.Dot(b[col+i])
				acc[LaneX] += av.Dot(b[col+kv+i])
				acc[LaneY] += av.Dot(b[col+2*kv+i])
				acc[LaneZ] += av.Dot(b[col+3*kv+i])
			}
			c[cBase+m*nv+grp] = acc
		}
	}
}

// TriadKernel computes c[g] = a[g] + s·b[g].
func TriadKernel(g int, a, b, c []Vec4, s float32) {
	av, bv := a[g], b[g]
	c[g] = Vec4{av[0] + s*bv[0], av[1] + s*bv[1], av[2] + s*bv[2], av[3] + s*bv[3]}
}

// TriadParams encodes the triad uniform block: vector count and the bit
// pattern of the scalar.
func TriadParams(vectors int, s float32) []uint32 {
	return []uint32{uint32(vectors), 0, 0, math.Float32bits(s)} //nolint:gosec // vectors is a buffer length
}

// TriadScalar decodes the scalar of a block produced by TriadParams.
func TriadScalar(p []uint32) float32 {
	if len(p) < 4 {
		return 0
	}
	return math.Float32frombits(p[3])
}

// ShapeFromParams decodes a GEMM uniform block produced by Shape.Params.
func ShapeFromParams(p []uint32) Shape {
	if len(p) < 3 {
		return Shape{}
	}
	return Shape{M: int(p[0]), N: int(p[1]), K: int(p[2])}
}
