package g3d

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Backend names accepted by Config.Backend, in the order the automatic
// selection prefers them.
const (
	BackendVulkan = "vulkan"
	BackendMetal  = "metal"
	BackendDX12   = "dx12"
	BackendGL     = "gl"
	BackendNoop   = "noop"
	BackendAuto   = "auto"
)

var backendVariants = []struct {
	name    string
	variant gputypes.Backend
}{
	{BackendVulkan, gputypes.BackendVulkan},
	{BackendMetal, gputypes.BackendMetal},
	{BackendDX12, gputypes.BackendDX12},
	{BackendGL, gputypes.BackendGL},
	{BackendNoop, gputypes.BackendEmpty},
}

// backends returns a registry of the hal backends linked into the binary.
// Backends register themselves when their package is imported.
func backends() *gpucontext.Registry[hal.Backend] {
	names := make([]string, len(backendVariants))
	for i, v := range backendVariants {
		names[i] = v.name
	}
	reg := gpucontext.NewRegistry[hal.Backend](gpucontext.WithPriority(names...))
	for _, v := range backendVariants {
		b, ok := hal.GetBackend(v.variant)
		if !ok {
			continue
		}
		reg.Register(v.name, func() hal.Backend { return b })
	}
	return reg
}

// AvailableBackends lists the registered backend names.
func AvailableBackends() []string {
	return backends().Available()
}

// SelectBackend returns the backend called name. An empty name or "auto"
// selects the best registered backend.
func SelectBackend(name string) (hal.Backend, string, error) {
	reg := backends()
	if reg.Count() == 0 {
		return nil, "", ErrNoBackend
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == BackendAuto {
		return reg.Best(), reg.BestName(), nil
	}
	if !reg.Has(name) {
		return nil, "", fmt.Errorf("%w: %q (available: %s)",
			ErrUnknownBackend, name, strings.Join(reg.Available(), ", "))
	}
	return reg.Get(name), name, nil
}
