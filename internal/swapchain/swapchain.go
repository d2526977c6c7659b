// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package swapchain owns the presentation surface configuration and every
// resource whose size follows it.
//
// A Manager moves through Uninitialized, Ready, Stale and Destroyed. Create
// configures the surface and builds one generation of per-image resources:
// view slots, submit semaphores, and the depth and id-map attachments.
// Recreate destroys that generation and builds the next one, blocking while
// the window has a zero-sized framebuffer.
package swapchain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/internal/gpu"
)

// Errors returned by the Manager.
var (
	// ErrOutOfDate is returned by Acquire when the surface no longer matches
	// the window. The caller recreates and skips the frame.
	ErrOutOfDate = errors.New("swapchain: surface out of date")

	// ErrStaleImage is returned by Present for an image acquired before the
	// last recreation.
	ErrStaleImage = errors.New("swapchain: image belongs to an older generation")

	// ErrPresentModeUnsupported is returned when the surface cannot present
	// with the configured mode.
	ErrPresentModeUnsupported = errors.New("swapchain: present mode not supported")

	// ErrNoSurfaceFormat is returned when the surface reports no formats.
	ErrNoSurfaceFormat = errors.New("swapchain: surface reports no formats")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current state.
	ErrInvalidState = errors.New("swapchain: invalid state")

	// ErrZeroExtent is returned by Recreate for a zero size when there is
	// nothing to poll for a new one.
	ErrZeroExtent = errors.New("swapchain: zero extent without a size source")
)

// State is the lifecycle state of a Manager.
type State uint8

// Manager states.
const (
	StateUninitialized State = iota
	StateReady
	StateStale
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReady:
		return "Ready"
	case StateStale:
		return "Stale"
	case StateDestroyed:
		return "Destroyed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Default image count bounds. The hal surfaces do not report them.
const (
	DefaultMinImageCount = 2
	DefaultMaxImageCount = 3
)

// Config controls surface configuration.
type Config struct {
	// MinImageCount and MaxImageCount bound the number of swapchain images.
	// Zero selects the defaults.
	MinImageCount uint32
	MaxImageCount uint32

	// PreferredFormat is used when the surface supports it; otherwise the
	// first reported format is used.
	PreferredFormat gputypes.TextureFormat

	// PresentMode must be supported by the surface. Zero selects FIFO.
	PresentMode hal.PresentMode

	// Window is polled for the framebuffer size while recreating at zero
	// size.
	Window gpucontext.WindowProvider

	// Size is polled instead of Window when there is no window, e.g. for
	// hosts that report sizes through callbacks. With neither a zero size
	// fails with ErrZeroExtent.
	Size func() (width, height uint32)

	// WaitEvents blocks until the windowing system delivered events.
	// Nil sleeps for a short interval.
	WaitEvents func()
}

// DefaultConfig returns the configuration used by the engine.
func DefaultConfig() Config {
	return Config{
		MinImageCount:   DefaultMinImageCount,
		MaxImageCount:   DefaultMaxImageCount,
		PreferredFormat: gputypes.TextureFormatBGRA8UnormSrgb,
		PresentMode:     hal.PresentModeFifo,
	}
}

// Extent is a framebuffer size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Image is an acquired swapchain image.
type Image struct {
	Index      uint32
	Texture    hal.SurfaceTexture
	View       hal.TextureView
	Generation uint64
	Suboptimal bool
}

// generation holds every resource that is rebuilt on recreation.
type generation struct {
	views   []hal.TextureView
	submit  []*gpu.Semaphore
	depth   *gpu.Image
	idMap   *gpu.Image
	extent  Extent
	counter uint64
}

// Manager owns the surface configuration. It is used from the render
// goroutine only.
type Manager struct {
	rc  *gpu.RenderContext
	cfg Config

	state      State
	format     gputypes.TextureFormat
	imageCount uint32
	acquired   uint64
	generation uint64
	gen        *generation
}

// New returns an uninitialized manager.
func New(rc *gpu.RenderContext, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MinImageCount == 0 {
		cfg.MinImageCount = def.MinImageCount
	}
	if cfg.MaxImageCount == 0 {
		cfg.MaxImageCount = def.MaxImageCount
	}
	if cfg.MaxImageCount < cfg.MinImageCount {
		cfg.MaxImageCount = cfg.MinImageCount
	}
	if cfg.PreferredFormat == gputypes.TextureFormatUndefined {
		cfg.PreferredFormat = def.PreferredFormat
	}
	if cfg.PresentMode == gputypes.PresentModeUndefined {
		cfg.PresentMode = def.PresentMode
	}
	if cfg.WaitEvents == nil {
		cfg.WaitEvents = func() { time.Sleep(10 * time.Millisecond) }
	}
	return &Manager{rc: rc, cfg: cfg}
}

// Create configures the surface at width x height.
func (m *Manager) Create(width, height uint32) error {
	if m.state != StateUninitialized {
		return fmt.Errorf("%w: Create in state %s", ErrInvalidState, m.state)
	}
	if err := m.build(width, height); err != nil {
		return err
	}
	gpu.Logger().Info("swapchain: created",
		"width", width, "height", height,
		"format", m.format, "images", m.imageCount)
	return nil
}

// build configures the surface and creates the next generation.
func (m *Manager) build(width, height uint32) error {
	caps := m.rc.SurfaceCapabilities()
	if caps == nil || len(caps.Formats) == 0 {
		return ErrNoSurfaceFormat
	}

	format := caps.Formats[0]
	if slices.Contains(caps.Formats, m.cfg.PreferredFormat) {
		format = m.cfg.PreferredFormat
	}
	if !slices.Contains(caps.PresentModes, m.cfg.PresentMode) {
		return fmt.Errorf("%w: %v", ErrPresentModeUnsupported, m.cfg.PresentMode)
	}
	alpha := hal.CompositeAlphaModeOpaque
	if len(caps.AlphaModes) > 0 && !slices.Contains(caps.AlphaModes, alpha) {
		alpha = caps.AlphaModes[0]
	}

	count := min(m.cfg.MinImageCount+1, m.cfg.MaxImageCount)

	err := m.rc.Surface.Configure(m.rc.Device, &hal.SurfaceConfiguration{
		Width:       width,
		Height:      height,
		Format:      format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: m.cfg.PresentMode,
		AlphaMode:   alpha,
	})
	if err != nil {
		return fmt.Errorf("swapchain: configure %dx%d: %w", width, height, err)
	}

	gen := &generation{
		views:   make([]hal.TextureView, count),
		submit:  make([]*gpu.Semaphore, count),
		extent:  Extent{Width: width, Height: height},
		counter: m.generation + 1,
	}
	for i := range gen.submit {
		gen.submit[i] = gpu.NewSemaphore(fmt.Sprintf("submit %d/%d", gen.counter, i))
	}

	gen.depth, err = gpu.CreateImage(m.rc, gpu.ImageDesc{
		Label:  "swapchain depth",
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatDepth32Float,
		Usage:  gputypes.TextureUsageRenderAttachment,
		Aspect: gputypes.TextureAspectDepthOnly,
	})
	if err != nil {
		m.rc.Surface.Unconfigure(m.rc.Device)
		return err
	}
	gen.idMap, err = gpu.CreateImage(m.rc, gpu.ImageDesc{
		Label:  "swapchain id map",
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatR32Uint,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		gen.depth.Destroy()
		m.rc.Surface.Unconfigure(m.rc.Device)
		return err
	}

	m.gen = gen
	m.format = format
	m.imageCount = count
	m.generation = gen.counter
	m.acquired = 0
	m.state = StateReady
	return nil
}

// release destroys the current generation.
func (m *Manager) release() {
	if m.gen == nil {
		return
	}
	for i, v := range m.gen.views {
		if v != nil {
			m.rc.Device.DestroyTextureView(v)
			m.gen.views[i] = nil
		}
	}
	m.gen.depth.Destroy()
	m.gen.idMap.Destroy()
	m.gen = nil
}

// MarkStale records that the surface no longer matches the window.
func (m *Manager) MarkStale() {
	if m.state == StateReady {
		m.state = StateStale
		gpu.Logger().Debug("swapchain: marked stale", "generation", m.generation)
	}
}

// Recreate rebuilds the surface and the per-generation resources at the
// given size. While either dimension is zero it waits for events and polls
// the window again. In-flight work is waited before anything is destroyed.
func (m *Manager) Recreate(width, height uint32) error {
	if m.state == StateUninitialized || m.state == StateDestroyed {
		return fmt.Errorf("%w: Recreate in state %s", ErrInvalidState, m.state)
	}
	for width == 0 || height == 0 {
		if m.cfg.Window == nil && m.cfg.Size == nil {
			return fmt.Errorf("%w: %dx%d", ErrZeroExtent, width, height)
		}
		m.cfg.WaitEvents()
		width, height = m.windowSize()
	}

	if err := m.rc.WaitIdle(); err != nil {
		return err
	}
	m.release()
	m.rc.Surface.Unconfigure(m.rc.Device)
	if err := m.build(width, height); err != nil {
		return err
	}
	gpu.Logger().Info("swapchain: recreated",
		"width", width, "height", height, "generation", m.generation)
	return nil
}

// windowSize polls the framebuffer size in pixels.
func (m *Manager) windowSize() (uint32, uint32) {
	if m.cfg.Window != nil {
		return FramebufferSize(m.cfg.Window)
	}
	return m.cfg.Size()
}

// FramebufferSize converts a window's logical size into pixels.
func FramebufferSize(w gpucontext.WindowProvider) (uint32, uint32) {
	lw, lh := w.Size()
	scale := w.ScaleFactor()
	if scale <= 0 {
		scale = 1
	}
	pw := max(int(float64(lw)*scale+0.5), 0)
	ph := max(int(float64(lh)*scale+0.5), 0)
	return uint32(pw), uint32(ph) //nolint:gosec // G115: clamped to non-negative
}

// Acquire returns the next image. A suboptimal image is returned and marks
// the manager stale; an outdated surface marks it stale and returns
// ErrOutOfDate.
func (m *Manager) Acquire() (Image, error) {
	if m.state != StateReady && m.state != StateStale {
		return Image{}, fmt.Errorf("%w: Acquire in state %s", ErrInvalidState, m.state)
	}
	if m.gen == nil {
		return Image{}, fmt.Errorf("%w: Acquire after failed recreation", ErrInvalidState)
	}
	acq, err := m.rc.Surface.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) {
			m.MarkStale()
			return Image{}, ErrOutOfDate
		}
		return Image{}, fmt.Errorf("swapchain: acquire: %w", err)
	}

	index := uint32(m.acquired % uint64(m.imageCount)) //nolint:gosec // G115: bounded by imageCount
	view, err := m.rc.Device.CreateTextureView(acq.Texture, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("swapchain view %d", index),
		Format:          m.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		m.rc.Surface.DiscardTexture(acq.Texture)
		return Image{}, fmt.Errorf("swapchain: create view %d: %w", index, err)
	}
	if old := m.gen.views[index]; old != nil {
		m.rc.Device.DestroyTextureView(old)
	}
	m.gen.views[index] = view
	m.acquired++

	if acq.Suboptimal {
		gpu.Logger().Warn("swapchain: suboptimal image", "index", index)
		m.MarkStale()
	}
	return Image{
		Index:      index,
		Texture:    acq.Texture,
		View:       view,
		Generation: m.generation,
		Suboptimal: acq.Suboptimal,
	}, nil
}

// Discard gives an acquired image back without presenting it.
func (m *Manager) Discard(img Image) {
	if img.Generation == m.generation && img.Texture != nil {
		m.rc.Surface.DiscardTexture(img.Texture)
	}
}

// Present queues img for presentation. needsRecreate reports an outdated
// surface; the error is nil in that case.
func (m *Manager) Present(img Image) (needsRecreate bool, err error) {
	if img.Generation != m.generation {
		return false, fmt.Errorf("%w: image of generation %d, current %d",
			ErrStaleImage, img.Generation, m.generation)
	}
	if err := m.rc.Queue.Present(m.rc.Surface, img.Texture, nil); err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) {
			m.MarkStale()
			return true, nil
		}
		return false, fmt.Errorf("swapchain: present image %d: %w", img.Index, err)
	}
	return m.state == StateStale, nil
}

// Destroy waits for the device, releases the generation and unconfigures
// the surface.
func (m *Manager) Destroy() {
	if m.state == StateDestroyed {
		return
	}
	if m.state != StateUninitialized {
		if err := m.rc.WaitIdle(); err != nil {
			gpu.Logger().Warn("swapchain: wait idle on destroy", "err", err)
		}
		m.release()
		m.rc.Surface.Unconfigure(m.rc.Device)
	}
	m.state = StateDestroyed
}

// State returns the lifecycle state.
func (m *Manager) State() State { return m.state }

// Format returns the configured surface format.
func (m *Manager) Format() gputypes.TextureFormat { return m.format }

// PresentMode returns the configured present mode.
func (m *Manager) PresentMode() hal.PresentMode { return m.cfg.PresentMode }

// ImageCount returns the number of swapchain images.
func (m *Manager) ImageCount() uint32 { return m.imageCount }

// Generation returns the generation counter, incremented on every build.
func (m *Manager) Generation() uint64 { return m.generation }

// Extent returns the framebuffer size of the current generation.
func (m *Manager) Extent() Extent {
	if m.gen == nil {
		return Extent{}
	}
	return m.gen.extent
}

// Views returns the per-image view slots. A slot is nil until its image was
// acquired in the current generation.
func (m *Manager) Views() []hal.TextureView {
	if m.gen == nil {
		return nil
	}
	return m.gen.views
}

// SubmitSemaphore returns the semaphore signaled by the submission that
// renders into image index.
func (m *Manager) SubmitSemaphore(index uint32) *gpu.Semaphore {
	return m.gen.submit[index]
}

// Depth returns the depth attachment.
func (m *Manager) Depth() *gpu.Image {
	if m.gen == nil {
		return nil
	}
	return m.gen.depth
}

// IDMap returns the object id attachment.
func (m *Manager) IDMap() *gpu.Image {
	if m.gen == nil {
		return nil
	}
	return m.gen.idMap
}
