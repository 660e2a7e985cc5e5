// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gemm is a tiled matrix-multiplication offload engine.
//
// # Overview
//
// gemm packs two dense float32 matrices into 4-lane vector layouts, uploads
// them to a compute device, runs one parallel pass in which every work item
// produces a 4×8 tile of the output with 4-wide dot products, downloads the
// result and unpacks it.
//
//	import (
//	    "github.com/gogpu/gemm"
//	    "github.com/gogpu/gemm/backend"
//	    _ "github.com/gogpu/gemm/backend/software"
//	)
//
//	dev, err := backend.Select(backend.Criteria{})
//	if err != nil { ... }
//	eng, err := gemm.NewEngine(dev, gemm.WithOwnedDevice())
//	if err != nil { ... }
//	defer eng.Close()
//
//	c, err := eng.Multiply(a, b) // a: M×K, b: K×N
//
// # Shapes
//
// M must be a multiple of 4, N a multiple of 8 and K a multiple of 4.
// Other shapes fail with ErrShapeMismatch before any device work.
//
// # Layouts
//
//   - A (PackA): vector i·(K/4)+j holds A[i, 4j..4j+3]
//   - B (PackB): vector c·(K/4)+j holds B[4j..4j+3, c]
//   - C (UnpackC): vector i·(N/4)+j holds C[i, 4j..4j+3]
//
// Work item g computes rows 4·(g div N/8) .. +4 and columns 8·(g mod N/8) .. +8.
// Lane W, X, Y, Z of an output vector holds four consecutive columns.
//
// # Devices
//
// A Device holds buffers and runs the kernels of KernelProgram. The
// backend package is the device directory; backend/software runs the
// kernels on host goroutines and backend/native runs the WGSL kernels on a
// Vulkan GPU through gogpu/wgpu.
//
// # Errors
//
// Failures match one of ErrShapeMismatch, ErrDeviceUnavailable,
// ErrBuildFailure, ErrAllocationFailure, ErrTransferFailure or
// ErrDispatchFailure. They are fatal for the call; the caller decides
// whether to retry.
package gemm
