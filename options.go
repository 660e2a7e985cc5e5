// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import "log/slog"

// Option configures an Engine during creation.
//
// Example:
//
//	eng, err := gemm.NewEngine(dev, gemm.WithOwnedDevice(), gemm.WithVerify(1e-5))
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	logger      *slog.Logger
	ownsDevice  bool
	verify      bool
	verifyTol   float64
	programHook func(Program) Program
}

func defaultOptions() options {
	return options{verifyTol: 1e-5}
}

// WithLogger sets the package logger, equivalent to calling SetLogger
// once NewEngine has built the kernel program. The logger is process-wide;
// a NewEngine that fails leaves it unchanged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOwnedDevice makes Engine.Close close the device.
func WithOwnedDevice() Option {
	return func(o *options) {
		o.ownsDevice = true
	}
}

// WithVerify makes every Multiply compare the device result against the
// scalar reference product and fail with ErrDispatchFailure if any element's
// relative error exceeds tol. Verification runs on the host and costs a
// full M·N·K product; use it for bring-up and tests.
func WithVerify(tol float64) Option {
	return func(o *options) {
		o.verify = true
		if tol > 0 {
			o.verifyTol = tol
		}
	}
}

// WithProgram replaces the kernel program before it is built. The
// replacement must keep the entry points of KernelProgram.
func WithProgram(fn func(Program) Program) Option {
	return func(o *options) {
		o.programHook = fn
	}
}
