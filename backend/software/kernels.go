// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"

	"github.com/gogpu/gemm"
)

// kernel prepares one launch. It checks the launch against its bindings
// and returns the per-range body; out is the output binding's scratch copy.
type kernel func(l gemm.Launch, in [][]gemm.Vec4, out []gemm.Vec4) (func(lo, hi int), error)

// kernels holds the Go implementation of every entry point of
// gemm.KernelProgram.
var kernels = map[string]kernel{
	gemm.EntryGEMM:  gemmKernel,
	gemm.EntryTriad: triadKernel,
}

func gemmKernel(l gemm.Launch, in [][]gemm.Vec4, out []gemm.Vec4) (func(lo, hi int), error) {
	s := gemm.ShapeFromParams(l.Params)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if l.WorkItems != s.WorkItems() {
		return nil, fmt.Errorf("%d work items for shape %v, want %d", l.WorkItems, s, s.WorkItems())
	}
	sizes := s.BufferSizes()
	if len(in[0]) < sizes.A || len(in[1]) < sizes.B || len(out) < sizes.C {
		return nil, fmt.Errorf("bindings hold %d, %d and %d vectors, shape %v needs %d, %d and %d",
			len(in[0]), len(in[1]), len(out), s, sizes.A, sizes.B, sizes.C)
	}
	a, b := in[0], in[1]
	return func(lo, hi int) {
		for g := lo; g < hi; g++ {
			gemm.TileKernel(g, a, b, out, s)
		}
	}, nil
}

func triadKernel(l gemm.Launch, in [][]gemm.Vec4, out []gemm.Vec4) (func(lo, hi int), error) {
	if len(l.Params) < 4 {
		return nil, fmt.Errorf("triad needs 4 parameter words, got %d", len(l.Params))
	}
	n := int(l.Params[0])
	if l.WorkItems != n {
		return nil, fmt.Errorf("%d work items for %d vectors", l.WorkItems, n)
	}
	if len(in[0]) < n || len(in[1]) < n || len(out) < n {
		return nil, fmt.Errorf("bindings hold %d, %d and %d vectors, need %d", len(in[0]), len(in[1]), len(out), n)
	}
	s := gemm.TriadScalar(l.Params)
	a, b := in[0], in[1]
	return func(lo, hi int) {
		for g := lo; g < hi; g++ {
			gemm.TriadKernel(g, a, b, out, s)
		}
	}, nil
}
