// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the engine, the dispatcher and the
// bundled devices matches exactly one of these with errors.Is. All of them
// are fatal for the call that produced them; nothing is retried internally.
var (
	// ErrShapeMismatch reports a dimension or tile-divisibility violation.
	// It is always detected before any device interaction.
	ErrShapeMismatch = errors.New("gemm: shape mismatch")

	// ErrDeviceUnavailable is returned when no usable device exists or a
	// device is used after Close.
	ErrDeviceUnavailable = errors.New("gemm: device unavailable")

	// ErrBuildFailure is returned when the kernel program fails to compile.
	// The concrete error is a *BuildError carrying the compiler log.
	ErrBuildFailure = errors.New("gemm: kernel build failed")

	// ErrAllocationFailure is returned when the device rejects a buffer.
	ErrAllocationFailure = errors.New("gemm: buffer allocation failed")

	// ErrTransferFailure is returned when a host/device copy fails.
	ErrTransferFailure = errors.New("gemm: transfer failed")

	// ErrDispatchFailure is returned when the device rejects or fails a
	// kernel launch. No partial result is ever returned with it.
	ErrDispatchFailure = errors.New("gemm: dispatch failed")
)

// BuildError describes a kernel build failure.
type BuildError struct {
	// Program is the label of the program being built.
	Program string

	// Log is the diagnostic reported by the compiler or device.
	Log string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("gemm: build %q failed: %v", e.Program, e.Err)
	}
	return fmt.Sprintf("gemm: build %q failed: %s", e.Program, e.Log)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error { return e.Err }

// Is reports ErrBuildFailure as a match.
func (e *BuildError) Is(target error) bool { return target == ErrBuildFailure }

// classify wraps err with kind unless err already matches one of the
// error kinds. It lets the dispatcher attribute untyped device errors to
// the step that failed without double-tagging typed ones.
func classify(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{
		ErrShapeMismatch, ErrDeviceUnavailable, ErrBuildFailure,
		ErrAllocationFailure, ErrTransferFailure, ErrDispatchFailure,
	} {
		if errors.Is(err, k) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
