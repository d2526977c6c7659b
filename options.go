package g3d

import (
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Option configures an Engine during creation.
//
// Example:
//
//	// Headless engine on the best registered backend
//	e, err := g3d.New(g3d.WithConfig(cfg))
//
//	// Window-backed engine
//	e, err := g3d.New(
//	    g3d.WithWindow(win),
//	    g3d.WithEventSource(events),
//	    g3d.WithSurfaceHandles(display, handle),
//	)
type Option func(*options)

// options holds optional configuration for Engine creation.
type options struct {
	cfg      Config
	backend  hal.Backend
	window   gpucontext.WindowProvider
	events   gpucontext.EventSource
	importer Importer
	logger   *slog.Logger
	display  uintptr
	handle   uintptr
	wait     func()
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithBackend selects the backend by name, overriding Config.Backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.cfg.Backend = name
	}
}

// WithHALBackend uses b instead of looking a backend up by name.
func WithHALBackend(b hal.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithFramesInFlight sets the number of frames recorded ahead of the GPU.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.cfg.FramesInFlight = n
	}
}

// WithMaterialLimit sets the length of the material uniform array.
func WithMaterialLimit(n int) Option {
	return func(o *options) {
		o.cfg.MaterialLimit = n
	}
}

// WithDrawLimit sets the number of meshes the draw list holds.
func WithDrawLimit(n int) Option {
	return func(o *options) {
		o.cfg.DrawLimit = n
	}
}

// WithWindow sets the window the swapchain follows. Its size replaces
// Config.Width and Config.Height, and it is polled while the window is
// minimized.
func WithWindow(w gpucontext.WindowProvider) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithEventSource subscribes the engine to resize events.
func WithEventSource(events gpucontext.EventSource) Option {
	return func(o *options) {
		o.events = events
	}
}

// WithSurfaceHandles passes the native display and window handles to the
// backend's surface. Headless backends ignore them.
func WithSurfaceHandles(display, window uintptr) Option {
	return func(o *options) {
		o.display = display
		o.handle = window
	}
}

// WithWaitEvents sets the function that blocks until the windowing system
// delivered events while the window is minimized.
func WithWaitEvents(wait func()) Option {
	return func(o *options) {
		o.wait = wait
	}
}

// WithImporter sets the model importer used by LoadModel.
func WithImporter(imp Importer) Option {
	return func(o *options) {
		o.importer = imp
	}
}

// WithLogger installs l with SetLogger before the engine is created.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
