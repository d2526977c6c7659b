package g3d

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/internal/frame"
	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/internal/scene"
	"github.com/gogpu/g3d/internal/swapchain"
	"github.com/gogpu/g3d/resource"
)

// DefaultMaterialName is the registry name of the material drawn for meshes
// without one.
const DefaultMaterialName = "__default"

// ClearColor is the background of every frame.
var ClearColor = gputypes.Color{R: 0.02, G: 0.02, B: 0.03, A: 1}

// drawItem is one entry of the flat draw list.
type drawItem struct {
	mesh      *scene.Mesh
	material  *scene.Material
	transform *scene.Transform
	index     uint32
}

// Engine owns the device, the swapchain, the frame scheduler and the
// resource library of one window, and draws a flat list of models.
//
// Engine methods other than NotifyResized and Resize must be called from
// the render goroutine.
type Engine struct {
	cfg    Config
	window gpucontext.WindowProvider

	rc       *gpu.RenderContext
	lib      *scene.Library
	loader   *scene.Loader
	sc       *swapchain.Manager
	sched    *frame.Scheduler
	uniforms *uniforms
	pipeline *meshPipeline

	defaultMaterial *resource.Ref[*scene.Material]

	models []*scene.Model
	draws  []drawItem

	camera       CameraUniform
	lookAt       *Camera
	cameraExtent swapchain.Extent

	// size is the framebuffer size reported by Resize, packed as w<<32|h.
	size   atomic.Uint64
	closed atomic.Bool
}

// New opens a device on the configured backend and creates the swapchain,
// the frame slots and the mesh pipeline.
func New(opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		SetLogger(o.logger)
	}

	cfg := o.cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if level, ok, _ := cfg.logLevel(); ok && o.logger == nil {
		SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}
	presentMode, _ := cfg.presentMode()

	width, height := cfg.Width, cfg.Height
	if o.window != nil {
		if w, h := swapchain.FramebufferSize(o.window); w > 0 && h > 0 {
			width, height = w, h
		}
	}

	backend := o.backend
	if backend == nil {
		b, name, err := SelectBackend(cfg.Backend)
		if err != nil {
			return nil, err
		}
		backend = b
		cfg.Backend = name
	}

	rc, err := gpu.Open(backend, gpu.ContextConfig{
		Display:   o.display,
		Window:    o.handle,
		Debug:     cfg.Debug,
		Allocator: gpu.AllocatorConfig{MaxMemoryMB: cfg.MemoryBudgetMB},
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.checkLimits(rc.Capabilities.Limits); err != nil {
		rc.Close()
		return nil, err
	}

	e := &Engine{cfg: cfg, window: o.window, rc: rc}
	e.size.Store(packSize(width, height))
	if err := e.init(o, width, height, presentMode); err != nil {
		e.Close()
		return nil, err
	}
	if o.events != nil {
		o.events.OnResize(func(w, h int) {
			if w >= 0 && h >= 0 {
				e.Resize(uint32(w), uint32(h)) //nolint:gosec // G115: checked non-negative
			}
		})
	}

	Logger().Info("g3d: engine ready",
		"backend", cfg.Backend,
		"width", width, "height", height,
		"frames_in_flight", cfg.FramesInFlight,
		"material_limit", cfg.MaterialLimit)
	return e, nil
}

func (e *Engine) init(o options, width, height uint32, presentMode hal.PresentMode) error {
	var err error
	e.lib, err = scene.NewLibrary(e.rc, &resource.IDAllocator{})
	if err != nil {
		return err
	}
	e.loader = scene.NewLoader(e.lib, o.importer, scene.LoaderConfig{
		Workers:      e.cfg.LoaderWorkers,
		StagingSize:  e.cfg.StagingSize,
		ExpandOnLoad: e.cfg.ExpandOnLoad,
	})

	e.sc = swapchain.New(e.rc, swapchain.Config{
		MinImageCount: e.cfg.MinImageCount,
		MaxImageCount: e.cfg.MaxImageCount,
		PresentMode:   presentMode,
		Window:        o.window,
		Size:          e.framebufferSize,
		WaitEvents:    o.wait,
	})
	if err := e.sc.Create(width, height); err != nil {
		return err
	}

	e.uniforms, err = newUniforms(e.rc, e.cfg.FramesInFlight, e.cfg.MaterialLimit, e.cfg.DrawLimit)
	if err != nil {
		return err
	}
	e.pipeline, err = newMeshPipeline(e.rc, e.lib.MaterialLayout(), e.uniforms, e.sc.Format())
	if err != nil {
		return err
	}

	e.defaultMaterial, err = e.lib.CreateMaterial(DefaultMaterialName, scene.MaterialProps{
		Diffuse:   [3]float32{0.8, 0.8, 0.8},
		Specular:  [3]float32{0.2, 0.2, 0.2},
		Shininess: 32,
		IOR:       1,
	}, [scene.SlotCount]*resource.Ref[*scene.Texture]{})
	if err != nil {
		return err
	}

	e.sched, err = frame.New(e.rc, e.sc, frame.Config{
		FramesInFlight: e.cfg.FramesInFlight,
		Update:         e.update,
		Size:           e.framebufferSize,
	})
	if err != nil {
		return err
	}
	return e.LookAt(DefaultCamera())
}

func packSize(w, h uint32) uint64 { return uint64(w)<<32 | uint64(h) }

// framebufferSize is the size the swapchain is recreated at.
func (e *Engine) framebufferSize() (uint32, uint32) {
	if e.window != nil {
		return swapchain.FramebufferSize(e.window)
	}
	s := e.size.Load()
	return uint32(s >> 32), uint32(s) //nolint:gosec // G115: unpacking two uint32
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Library returns the resource registries.
func (e *Engine) Library() *scene.Library { return e.lib }

// Loader returns the model loader.
func (e *Engine) Loader() *scene.Loader { return e.loader }

// DefaultMaterial returns the material of meshes without one.
func (e *Engine) DefaultMaterial() *Material { return e.defaultMaterial.Value() }

// Extent returns the current framebuffer size.
func (e *Engine) Extent() (width, height uint32) {
	ext := e.sc.Extent()
	return ext.Width, ext.Height
}

// Format returns the swapchain format.
func (e *Engine) Format() gputypes.TextureFormat { return e.sc.Format() }

// DeviceProvider exposes the device to host frameworks sharing it.
func (e *Engine) DeviceProvider() gpucontext.DeviceProvider {
	return e.rc.Provider(e.sc.Format())
}

// NotifyResized requests a swapchain recreation after the next present.
// Safe to call from any goroutine.
func (e *Engine) NotifyResized() { e.sched.NotifyResized() }

// Resize records the new framebuffer size and requests a recreation. Safe
// to call from any goroutine. With a window the window's size wins.
func (e *Engine) Resize(width, height uint32) {
	if e.closed.Load() {
		return
	}
	e.size.Store(packSize(width, height))
	e.sched.NotifyResized()
}

// SetCamera uploads explicit camera matrices. It replaces a LookAt camera.
func (e *Engine) SetCamera(c CameraUniform) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.uniforms.setCamera(c); err != nil {
		return err
	}
	e.camera = c
	e.lookAt = nil
	return nil
}

// LookAt uploads a perspective camera whose aspect ratio follows the
// framebuffer.
func (e *Engine) LookAt(c Camera) error {
	if e.closed.Load() {
		return ErrClosed
	}
	ext := e.sc.Extent()
	u := c.Uniform(aspect(ext))
	if err := e.uniforms.setCamera(u); err != nil {
		return err
	}
	e.camera = u
	e.lookAt = &c
	e.cameraExtent = ext
	return nil
}

// Camera returns the camera last uploaded.
func (e *Engine) Camera() CameraUniform { return e.camera }

func aspect(ext swapchain.Extent) float32 {
	if ext.Height == 0 {
		return 1
	}
	return float32(ext.Width) / float32(ext.Height)
}

// LoadModel imports path, loads its materials and meshes and adds the model
// to the draw list.
func (e *Engine) LoadModel(ctx context.Context, path string) (*Model, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	m, err := e.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := e.AddModel(m); err != nil {
		m.Release()
		return nil, err
	}
	Logger().Info("g3d: model loaded", "name", m.Name(), "meshes", m.Len())
	return m, nil
}

// AddModel appends the meshes of m to the draw list. The engine takes
// ownership of m: RemoveModel or Close releases it. On error m is left to
// the caller.
func (e *Engine) AddModel(m *Model) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if slices.Contains(e.models, m) {
		return nil
	}
	meshes := m.Meshes()
	if n := len(e.draws) + len(meshes); n > e.cfg.DrawLimit {
		return fmt.Errorf("g3d: add model %q: %w: %d of %d meshes", m.Name(), ErrDrawLimit, n, e.cfg.DrawLimit)
	}
	added := make([]drawItem, 0, len(meshes))
	for _, mesh := range meshes {
		mat := mesh.Material()
		if mat == nil {
			mat = e.defaultMaterial.Value()
		}
		idx, err := e.uniforms.acquire(mat)
		if err != nil {
			for _, d := range added {
				e.uniforms.release(d.material)
			}
			return fmt.Errorf("g3d: add model %q: %w", m.Name(), err)
		}
		added = append(added, drawItem{mesh: mesh, material: mat, transform: m.Transform(), index: idx})
	}
	e.models = append(e.models, m)
	e.draws = append(e.draws, added...)
	return nil
}

// RemoveModel takes m off the draw list and releases it. The device is
// waited first so no in-flight frame still reads its buffers.
func (e *Engine) RemoveModel(m *Model) error {
	if e.closed.Load() {
		return ErrClosed
	}
	i := slices.Index(e.models, m)
	if i < 0 {
		return nil
	}
	if err := e.rc.WaitIdle(); err != nil {
		return err
	}
	e.models = slices.Delete(e.models, i, i+1)
	e.rebuildDraws()
	m.Release()
	return nil
}

// rebuildDraws recomputes the draw list from the models, keeping material
// array elements of materials still in use.
func (e *Engine) rebuildDraws() {
	old := e.draws
	e.draws = nil
	for _, m := range e.models {
		for _, mesh := range m.Meshes() {
			mat := mesh.Material()
			if mat == nil {
				mat = e.defaultMaterial.Value()
			}
			// Cannot fail: every material here already holds an element.
			idx, _ := e.uniforms.acquire(mat)
			e.draws = append(e.draws, drawItem{mesh: mesh, material: mat, transform: m.Transform(), index: idx})
		}
	}
	for _, d := range old {
		e.uniforms.release(d.material)
	}
}

// Models returns the models on the draw list.
func (e *Engine) Models() []*Model { return slices.Clone(e.models) }

// DrawCount returns the number of meshes drawn per frame.
func (e *Engine) DrawCount() int { return len(e.draws) }

// UpdateMaterial uploads the current properties and maps of m. It reports
// whether m is drawn.
func (e *Engine) UpdateMaterial(m *Material) bool {
	return e.uniforms.refresh(m)
}

// ObjectAt maps a value of the object id target to the mesh drawn there.
// Zero is the background.
func (e *Engine) ObjectAt(id uint32) (*Mesh, bool) {
	if id == 0 || int(id) > len(e.draws) {
		return nil, false
	}
	return e.draws[id-1].mesh, true
}

// update runs for each frame after the slot's fence was waited.
func (e *Engine) update(slot int) error {
	if e.lookAt != nil {
		if ext := e.sc.Extent(); ext != e.cameraExtent {
			if err := e.LookAt(*e.lookAt); err != nil {
				return err
			}
		}
	}
	e.uniforms.setTransforms(e.draws)
	return e.uniforms.flush(slot)
}

// DrawFrame renders the draw list, then runs draw in the same frame. draw
// may be nil.
func (e *Engine) DrawFrame(draw DrawFunc) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.sched.DrawFrame(func(f *frame.Frame) error {
		if err := e.record(f); err != nil {
			return err
		}
		if draw != nil {
			return draw(f)
		}
		return nil
	})
}

// Run draws frames until ctx is done or n frames were rendered. n <= 0
// runs until ctx is done.
func (e *Engine) Run(ctx context.Context, n int, draw DrawFunc) error {
	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.DrawFrame(draw); err != nil {
			return err
		}
	}
	return nil
}

// record encodes the scene pass.
func (e *Engine) record(f *frame.Frame) error {
	if err := e.pipeline.build(e.sc.Format()); err != nil {
		return err
	}
	pass := f.Recorder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "scene",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       f.View,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: ClearColor,
			},
			{
				View:       f.IDMap.View(),
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: gputypes.Color{},
			},
		},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            f.Depth.View(),
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	e.drawScene(pass, f.Slot, f.Extent)
	pass.End()
	return nil
}

// drawScene binds the pipeline and draws every mesh. The first instance of
// each draw carries its draw list position and material element.
func (e *Engine) drawScene(pass hal.RenderPassEncoder, slot int, ext swapchain.Extent) {
	pass.SetViewport(0, 0, float32(ext.Width), float32(ext.Height), 0, 1)
	pass.SetScissorRect(0, 0, ext.Width, ext.Height)
	pass.SetPipeline(e.pipeline.pipeline)
	pass.SetBindGroup(frameGroup, e.pipeline.frameGroups[slot], nil)

	limit := uint32(e.cfg.MaterialLimit) //nolint:gosec // G115: validated positive
	var bound *scene.Material
	for i, d := range e.draws {
		if d.material != bound {
			pass.SetBindGroup(materialGroup, d.material.BindGroup(), nil)
			bound = d.material
		}
		d.mesh.Draw(pass, uint32(i)*limit+d.index) //nolint:gosec // G115: draw count is bounded by memory
	}
}

// Stats reports frame counters and memory use.
type Stats struct {
	Frames     frame.Stats
	Memory     gpu.MemoryStats
	Generation uint64
	Draws      int
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:     e.sched.Stats(),
		Memory:     e.rc.Allocator.Stats(),
		Generation: e.sc.Generation(),
		Draws:      len(e.draws),
	}
}

// Close waits for the device and releases everything in reverse creation
// order. Safe to call more than once.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	if e.sched != nil {
		e.sched.Destroy()
	} else if err := e.rc.WaitIdle(); err != nil {
		Logger().Warn("g3d: wait idle on close", "err", err)
	}
	for _, d := range e.draws {
		e.uniforms.release(d.material)
	}
	e.draws = nil
	for _, m := range e.models {
		m.Release()
	}
	e.models = nil
	e.defaultMaterial.Release()
	e.defaultMaterial = nil
	if e.pipeline != nil {
		e.pipeline.destroy()
	}
	if e.uniforms != nil {
		e.uniforms.destroy()
	}
	if e.sc != nil {
		e.sc.Destroy()
	}
	if e.lib != nil {
		e.lib.Close()
	}
	e.rc.Close()
	Logger().Info("g3d: engine closed")
}
