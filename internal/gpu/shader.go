package gpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}

// ShaderCache compiles each distinct WGSL source once per device.
// It is safe for concurrent use.
type ShaderCache struct {
	device hal.Device

	mu      sync.Mutex
	modules map[uint64]hal.ShaderModule
}

// NewShaderCache creates an empty cache for device.
func NewShaderCache(device hal.Device) *ShaderCache {
	return &ShaderCache{
		device:  device,
		modules: make(map[uint64]hal.ShaderModule),
	}
}

// Module returns the module for source, compiling it on first use.
func (c *ShaderCache) Module(label, source string) (hal.ShaderModule, error) {
	key := xxhash.Sum64String(source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[key]; ok {
		return m, nil
	}
	code, err := CompileWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, label)
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %q: %w", label, err)
	}
	c.modules[key] = m
	slogger().Debug("gpu: shader compiled", "label", label, "words", len(code), "key", key)
	return m, nil
}

// Len returns the number of cached modules.
func (c *ShaderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules)
}

// Destroy releases every cached module.
func (c *ShaderCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, m := range c.modules {
		c.device.DestroyShaderModule(m)
		delete(c.modules, key)
	}
}
