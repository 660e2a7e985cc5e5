// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
)

// version identifies the Go kernel implementation in DeviceInfo.
const version = "go-kernels/1"

// simdLevel returns the widest float32 SIMD extension of the host and its
// width in lanes. The width never drops below 4; every supported Go target
// has at least 128-bit vectors or emulates them in the kernels.
func simdLevel() (name string, width int) {
	switch runtime.GOARCH {
	case "amd64", "386":
		switch {
		case cpu.X86.HasAVX512F:
			return "AVX512", 16
		case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
			return "AVX2", 8
		case cpu.X86.HasAVX:
			return "AVX", 8
		case cpu.X86.HasSSE41 || cpu.X86.HasSSE42:
			return "SSE4", 4
		}
	case "arm64":
		if cpu.ARM64.HasSVE {
			return "SVE", 4
		}
		if cpu.ARM64.HasASIMD {
			return "ASIMD", 4
		}
	}
	return "scalar", 4
}

// cpuName describes the host, e.g. "amd64 AVX2 (16 threads)".
func cpuName(level string, workers int) string {
	return fmt.Sprintf("%s %s (%d threads)", runtime.GOARCH, level, workers)
}

// describe returns the DeviceInfo of a device opened with o.
func describe(o options, workers int) gemm.DeviceInfo {
	level, width := simdLevel()
	return gemm.DeviceInfo{
		Index:       0,
		Name:        cpuName(level, workers),
		Backend:     backend.BackendSoftware,
		Kind:        gemm.DeviceKindCPU,
		Version:     version,
		VectorWidth: width,
		MemoryBytes: o.memoryLimit,
	}
}
