// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gemm"
)

// vectorBytes is the size of one vec4<f32> in a storage buffer.
const vectorBytes = gemm.VectorWidth * 4

// paramsBytes is the size of the Params uniform block.
const paramsBytes = 16

// vecsToBytes encodes vectors as little-endian f32 lanes.
func vecsToBytes(src []gemm.Vec4) []byte {
	out := make([]byte, len(src)*vectorBytes)
	for i, v := range src {
		for l, f := range v {
			binary.LittleEndian.PutUint32(out[i*vectorBytes+l*4:], math.Float32bits(f))
		}
	}
	return out
}

// bytesToVecs decodes little-endian f32 lanes into dst.
func bytesToVecs(src []byte, dst []gemm.Vec4) {
	for i := range dst {
		for l := range dst[i] {
			dst[i][l] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*vectorBytes+l*4:]))
		}
	}
}

// paramsToBytes encodes the uniform block, zero-padded to 4 words.
func paramsToBytes(p []uint32) []byte {
	out := make([]byte, paramsBytes)
	for i := 0; i < len(p) && i < paramsBytes/4; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], p[i])
	}
	return out
}

// workgroups returns the 1D workgroup count covering n work items.
func workgroups(n int) uint32 {
	return uint32((n + gemm.WorkgroupSize - 1) / gemm.WorkgroupSize) //nolint:gosec // bounded by maxWorkgroups
}

// deviceKind maps the adapter type to a gemm.DeviceKind.
func deviceKind(t gputypes.DeviceType) gemm.DeviceKind {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gemm.DeviceKindDiscreteGPU
	case gputypes.DeviceTypeIntegratedGPU:
		return gemm.DeviceKindIntegratedGPU
	default:
		return gemm.DeviceKindOther
	}
}

// kindRank orders adapters for selection: discrete, integrated, others.
func kindRank(k gemm.DeviceKind) int {
	switch k {
	case gemm.DeviceKindDiscreteGPU:
		return 0
	case gemm.DeviceKindIntegratedGPU:
		return 1
	default:
		return 2
	}
}
