package g3d

import "errors"

// Errors returned by the engine.
var (
	// ErrClosed is returned when using an engine after Close.
	ErrClosed = errors.New("g3d: engine closed")

	// ErrInvalidConfig is returned by Config.Validate and New for a
	// configuration that cannot be used.
	ErrInvalidConfig = errors.New("g3d: invalid config")

	// ErrUnknownBackend is returned when the configured backend is not
	// registered in this process.
	ErrUnknownBackend = errors.New("g3d: unknown backend")

	// ErrNoBackend is returned when no hal backend is registered at all.
	// Import github.com/gogpu/wgpu/hal/allbackends or a single backend.
	ErrNoBackend = errors.New("g3d: no backend registered")

	// ErrMaterialLimit is returned when more distinct materials are drawn
	// than the material uniform array holds.
	ErrMaterialLimit = errors.New("g3d: material limit reached")

	// ErrDrawLimit is returned when the draw list would hold more meshes
	// than the transform array.
	ErrDrawLimit = errors.New("g3d: draw limit reached")

	// ErrSingularMatrix is returned when inverting a matrix without inverse.
	ErrSingularMatrix = errors.New("g3d: matrix is not invertible")
)
