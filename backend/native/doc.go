// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native provides a gemm.Device backed by a Vulkan GPU through the
// Pure Go gogpu/wgpu HAL.
//
// The WGSL kernel program is compiled to SPIR-V with gogpu/naga and built
// into one compute pipeline per entry point. Buffers live in device memory;
// results are read back through a mappable staging buffer.
//
// Importing the package registers backend "native":
//
//	import _ "github.com/gogpu/gemm/backend/native"
//
// A host application that already owns a GPU device can share it:
//
//	dev, err := native.FromProvider(provider)
//
// The package is excluded from builds with the nogpu tag.
package native
