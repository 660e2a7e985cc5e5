// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shader compiles WGSL kernels and tracks the HAL objects built
// from them.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// ErrInvalidSPIRV is returned when the compiler output is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("shader: invalid SPIR-V output")

// Compile compiles WGSL source to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	words, err := Words(spirvBytes)
	if err != nil {
		return nil, err
	}
	return words, nil
}

// Words converts a little-endian SPIR-V byte stream to 32-bit words and
// checks the magic number.
func Words(spirv []byte) ([]uint32, error) {
	if len(spirv) < 4 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	if words[0] != SPIRVMagic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// CreateModule creates a HAL shader module from SPIR-V words.
func CreateModule(device hal.Device, label string, spirv []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
}

// Resources holds the HAL objects of one built kernel program.
type Resources struct {
	Device         hal.Device
	ShaderModule   hal.ShaderModule
	PipelineLayout hal.PipelineLayout
	BindLayouts    []hal.BindGroupLayout
	Pipelines      map[string]hal.ComputePipeline
}

// Destroy releases the resources in reverse creation order.
// It is safe to call on a partially built or already destroyed set.
func (r *Resources) Destroy() {
	if r == nil || r.Device == nil {
		return
	}

	for name, p := range r.Pipelines {
		if p != nil {
			r.Device.DestroyComputePipeline(p)
		}
		delete(r.Pipelines, name)
	}

	if r.PipelineLayout != nil {
		r.Device.DestroyPipelineLayout(r.PipelineLayout)
		r.PipelineLayout = nil
	}

	for i, l := range r.BindLayouts {
		if l != nil {
			r.Device.DestroyBindGroupLayout(l)
		}
		r.BindLayouts[i] = nil
	}
	r.BindLayouts = r.BindLayouts[:0]

	if r.ShaderModule != nil {
		r.Device.DestroyShaderModule(r.ShaderModule)
		r.ShaderModule = nil
	}
}
