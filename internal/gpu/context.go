package gpu

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Setup errors.
var (
	// ErrNoAdapter is returned when the instance exposes no usable adapter.
	ErrNoAdapter = errors.New("gpu: no compatible adapter found")

	// ErrNilBackend is returned when Open is called without a backend.
	ErrNilBackend = errors.New("gpu: backend is nil")

	// ErrContextClosed is returned when using a closed RenderContext.
	ErrContextClosed = errors.New("gpu: render context closed")
)

// ContextConfig describes how a RenderContext is opened.
type ContextConfig struct {
	// Display and Window are the native handles passed to CreateSurface.
	// Headless backends ignore them.
	Display uintptr
	Window  uintptr

	// Features requested from the adapter.
	Features gputypes.Features

	// Limits requested from the adapter. Zero means the adapter's limits.
	Limits gputypes.Limits

	// Debug enables backend validation where supported.
	Debug bool

	// Allocator configures allocation budget accounting.
	Allocator AllocatorConfig
}

// RenderContext bundles the device-level handles every component needs.
// It replaces process-wide singletons: construct one per window and pass it
// to the swapchain, the scheduler, the staging helpers and the resources.
type RenderContext struct {
	Instance     hal.Instance
	Adapter      hal.Adapter
	AdapterInfo  gputypes.AdapterInfo
	Capabilities hal.Capabilities
	Device       hal.Device
	Queue        hal.Queue
	Surface      hal.Surface

	// Allocator tracks the bytes held by buffers and images.
	Allocator *Allocator

	shaders *ShaderCache
	closed  bool
}

// Open creates an instance on backend, a surface for the configured window,
// picks an adapter and opens a device on it.
func Open(backend hal.Backend, cfg ContextConfig) (*RenderContext, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	flags := gputypes.InstanceFlags(0)
	if cfg.Debug {
		flags = gputypes.InstanceFlagsDebug
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << backend.Variant(),
		Flags:    flags,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create %s instance: %w", backend.Variant(), err)
	}

	surface, err := instance.CreateSurface(cfg.Display, cfg.Window)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: create surface: %w", err)
	}

	exposed, ok := pickAdapter(instance.EnumerateAdapters(surface))
	if !ok {
		surface.Destroy()
		instance.Destroy()
		return nil, ErrNoAdapter
	}

	limits := cfg.Limits
	if limits == (gputypes.Limits{}) {
		limits = exposed.Capabilities.Limits
	}
	open, err := exposed.Adapter.Open(cfg.Features, limits)
	if err != nil {
		surface.Destroy()
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device on %q: %w", exposed.Info.Name, err)
	}

	rc := &RenderContext{
		Instance:     instance,
		Adapter:      exposed.Adapter,
		AdapterInfo:  exposed.Info,
		Capabilities: exposed.Capabilities,
		Device:       open.Device,
		Queue:        &syncQueue{Queue: open.Queue},
		Surface:      surface,
		Allocator:    NewAllocator(cfg.Allocator),
	}
	rc.shaders = NewShaderCache(rc.Device)

	slogger().Info("gpu: adapter selected",
		"name", exposed.Info.Name,
		"vendor", exposed.Info.Vendor,
		"type", deviceTypeName(exposed.Info.DeviceType),
		"backend", exposed.Info.Backend.String())

	return rc, nil
}

// syncQueue serializes submissions and polls. Loader workers run one-shot
// transfers from several goroutines while the render loop waits on fences.
type syncQueue struct {
	hal.Queue
	mu sync.Mutex
}

func (q *syncQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Queue.Submit(cmds)
}

func (q *syncQueue) PollCompleted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Queue.PollCompleted()
}

func (q *syncQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Queue.WriteBuffer(buffer, offset, data)
}

func (q *syncQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Queue.WriteTexture(dst, data, layout, size)
}

func (q *syncQueue) Present(surface hal.Surface, texture hal.SurfaceTexture, damage []image.Rectangle) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.Queue.Present(surface, texture, damage)
}

// pickAdapter prefers discrete over integrated over anything else, keeping
// enumeration order within a class.
func pickAdapter(adapters []hal.ExposedAdapter) (hal.ExposedAdapter, bool) {
	if len(adapters) == 0 {
		return hal.ExposedAdapter{}, false
	}
	rank := func(t gputypes.DeviceType) int {
		switch t {
		case gputypes.DeviceTypeDiscreteGPU:
			return 0
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		case gputypes.DeviceTypeVirtualGPU:
			return 2
		case gputypes.DeviceTypeCPU:
			return 3
		default:
			return 4
		}
	}
	sorted := slices.Clone(adapters)
	slices.SortStableFunc(sorted, func(a, b hal.ExposedAdapter) int {
		return rank(a.Info.DeviceType) - rank(b.Info.DeviceType)
	})
	return sorted[0], true
}

func deviceTypeName(t gputypes.DeviceType) string {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return "discrete"
	case gputypes.DeviceTypeIntegratedGPU:
		return "integrated"
	case gputypes.DeviceTypeVirtualGPU:
		return "virtual"
	case gputypes.DeviceTypeCPU:
		return "cpu"
	default:
		return "other"
	}
}

// SurfaceCapabilities queries what the surface supports on this adapter.
func (rc *RenderContext) SurfaceCapabilities() *hal.SurfaceCapabilities {
	return rc.Adapter.SurfaceCapabilities(rc.Surface)
}

// ShaderModule returns the compiled module for a WGSL source, compiling it
// on first use.
func (rc *RenderContext) ShaderModule(label, wgsl string) (hal.ShaderModule, error) {
	if rc.closed {
		return nil, ErrContextClosed
	}
	return rc.shaders.Module(label, wgsl)
}

// WaitIdle blocks until the device finished all submitted work.
func (rc *RenderContext) WaitIdle() error {
	if rc.closed {
		return ErrContextClosed
	}
	if err := rc.Device.WaitIdle(); err != nil {
		return fmt.Errorf("gpu: wait idle: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (rc *RenderContext) Closed() bool { return rc.closed }

// Close waits for the device and releases every handle in reverse creation
// order. Resources created from the context must be destroyed first.
func (rc *RenderContext) Close() {
	if rc.closed {
		return
	}
	rc.closed = true

	if err := rc.Device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on close", "err", err)
	}
	rc.shaders.Destroy()
	if stats := rc.Allocator.Stats(); stats.Buffers+stats.Images > 0 {
		slogger().Warn("gpu: allocations outstanding at close", "stats", stats.String())
	}
	rc.Device.Destroy()
	rc.Surface.Destroy()
	rc.Adapter.Destroy()
	rc.Instance.Destroy()
}

// Provider exposes the context through the gpucontext.DeviceProvider
// interface for host frameworks that share the device.
func (rc *RenderContext) Provider(surfaceFormat gputypes.TextureFormat) gpucontext.DeviceProvider {
	return &deviceProvider{rc: rc, format: surfaceFormat}
}

type deviceProvider struct {
	rc     *RenderContext
	format gputypes.TextureFormat
}

func (p *deviceProvider) Device() gpucontext.Device { return p.rc.Device }
func (p *deviceProvider) Queue() gpucontext.Queue { return p.rc.Queue }
func (p *deviceProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p *deviceProvider) Adapter() gpucontext.Adapter { return p.rc.Adapter }
func (p *deviceProvider) AdapterInfo() gpucontext.AdapterInfo {
	info := gpucontext.AdapterInfo{Name: p.rc.AdapterInfo.Name}
	switch p.rc.AdapterInfo.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.Type = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.Type = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		info.Type = gpucontext.AdapterTypeSoftware
	default:
		info.Type = gpucontext.AdapterTypeUnknown
	}
	return info
}
