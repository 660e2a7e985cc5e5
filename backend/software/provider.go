// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package software

import (
	"fmt"
	"runtime"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
)

// init registers the software provider on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() backend.Provider {
		return NewProvider()
	})
}

// Provider exposes the host CPU as device 0.
type Provider struct {
	opts []Option
}

// NewProvider creates a provider whose devices are opened with opts.
func NewProvider(opts ...Option) *Provider {
	return &Provider{opts: opts}
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return backend.BackendSoftware }

// Devices returns the single CPU device.
func (p *Provider) Devices() ([]gemm.DeviceInfo, error) {
	var o options
	for _, opt := range p.opts {
		opt(&o)
	}
	workers := o.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return []gemm.DeviceInfo{describe(o, workers)}, nil
}

// Open opens the CPU device. Only index 0 exists.
func (p *Provider) Open(index int) (gemm.Device, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: software device %d does not exist", gemm.ErrDeviceUnavailable, index)
	}
	return New(p.opts...), nil
}
