// Package backend is the device directory of the gemm engine.
//
// Backends register a Provider from an init() function; importing a
// backend package makes its devices visible here:
//
//	import _ "github.com/gogpu/gemm/backend/software"
//	import _ "github.com/gogpu/gemm/backend/native"
//
// # Device Enumeration
//
// List returns every device of every registered backend, highest priority
// backend first:
//
//	for _, info := range backend.List() {
//		fmt.Println(info)
//	}
//
// # Device Selection
//
// Select opens the first device that satisfies a Criteria. The zero
// Criteria matches any device able to run the kernels:
//
//	dev, err := backend.Select(backend.Criteria{
//		Kind:    gemm.DeviceKindDiscreteGPU,
//		KindSet: true,
//	})
//
// Open picks a device by backend name and index instead.
//
// # Available Backends
//
//   - "native": Vulkan GPUs via gogpu/wgpu (build tag !nogpu)
//   - "software": host CPU, always available
package backend
