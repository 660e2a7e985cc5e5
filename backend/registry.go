package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/gemm"
)

// ProviderFactory creates a provider instance.
type ProviderFactory func() Provider

// registry holds registered providers.
var (
	registryMu sync.RWMutex
	providers  = make(map[string]ProviderFactory)
	// Priority order for device selection (first match wins).
	// Native > Software (software is the fallback).
	backendPriority = []string{BackendNative, BackendSoftware}
)

// Register registers a provider factory with the given name.
// This is typically called from init() functions in backend packages.
// If a provider with the same name is already registered, it will be replaced.
func Register(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = factory
}

// Unregister removes a provider from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(providers, name)
}

// Available returns the registered backend names in priority order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return orderedNamesLocked()
}

// IsRegistered checks if a provider with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := providers[name]
	return ok
}

// Get returns a provider instance by name.
// Returns nil if the backend is not registered.
func Get(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := providers[name]
	if !ok {
		return nil
	}
	return factory()
}

// List enumerates the devices of every registered backend in priority
// order. A backend whose enumeration fails is skipped and logged.
func List() []gemm.DeviceInfo {
	var out []gemm.DeviceInfo
	for _, p := range snapshot() {
		devs, err := p.Devices()
		if err != nil {
			gemm.Logger().Warn("backend: device enumeration failed",
				"backend", p.Name(), "err", err)
			continue
		}
		out = append(out, devs...)
	}
	return out
}

// Open opens device index of the named backend.
func Open(name string, index int) (gemm.Device, error) {
	p := Get(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %w: %q", gemm.ErrDeviceUnavailable, ErrBackendNotAvailable, name)
	}
	return p.Open(index)
}

// Select opens the first device, in priority order, that matches c.
// It returns an error matching gemm.ErrDeviceUnavailable when nothing
// matches. Devices narrower than gemm.VectorWidth never match.
func Select(c Criteria) (gemm.Device, error) {
	if c.Backend != "" && !IsRegistered(c.Backend) {
		return nil, fmt.Errorf("%w: %w: %q", gemm.ErrDeviceUnavailable, ErrBackendNotAvailable, c.Backend)
	}

	var lastErr error
	for _, p := range snapshot() {
		if c.Backend != "" && p.Name() != c.Backend {
			continue
		}
		devs, err := p.Devices()
		if err != nil {
			gemm.Logger().Warn("backend: device enumeration failed",
				"backend", p.Name(), "err", err)
			lastErr = err
			continue
		}
		for _, info := range devs {
			if !c.Matches(info) {
				continue
			}
			dev, err := p.Open(info.Index)
			if err != nil {
				gemm.Logger().Warn("backend: device open failed",
					"device", info.String(), "err", err)
				lastErr = err
				continue
			}
			gemm.Logger().Info("backend: device selected", "device", info.String())
			return dev, nil
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w: last error: %w", gemm.ErrDeviceUnavailable, ErrNoMatchingDevice, lastErr)
	}
	return nil, fmt.Errorf("%w: %w", gemm.ErrDeviceUnavailable, ErrNoMatchingDevice)
}

// Default opens the best available device.
func Default() (gemm.Device, error) {
	return Select(Criteria{})
}

// snapshot instantiates the registered providers in priority order.
func snapshot() []Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := orderedNamesLocked()
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p := providers[name](); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// orderedNamesLocked returns priority backends first, then the rest by name.
// Caller must hold registryMu.
func orderedNamesLocked() []string {
	names := make([]string, 0, len(providers))
	seen := make(map[string]bool, len(providers))
	for _, name := range backendPriority {
		if _, ok := providers[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range providers {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
