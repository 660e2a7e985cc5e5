// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

// Option configures a software Device.
type Option func(*options)

type options struct {
	workers          int
	batch            int
	memoryLimit      uint64
	shaderValidation bool
}

// WithWorkers sets the number of worker goroutines. 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBatch sets how many work items one worker runs per batch.
// 0 picks a batch size from the launch size.
func WithBatch(n int) Option {
	return func(o *options) {
		o.batch = n
	}
}

// WithMemoryLimit caps the bytes of live buffers. Allocations beyond it
// fail with gemm.ErrAllocationFailure. 0 means unlimited.
func WithMemoryLimit(bytes uint64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithShaderValidation makes Build compile the WGSL source with naga and
// fail with the compiler diagnostic if it does not compile.
func WithShaderValidation(enabled bool) Option {
	return func(o *options) {
		o.shaderValidation = enabled
	}
}
