// Package g3d is a real-time 3D renderer core for Go.
//
// # Overview
//
// g3d draws indexed meshes with textured materials on the explicit GPU API
// of gogpu/wgpu (hal). It keeps several frames in flight, recreates the
// swapchain when the window changes size, and manages GPU-backed assets
// through reference-counted registries that deduplicate them by name.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/g3d"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	e, err := g3d.New(g3d.WithImporter(objImporter))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	if _, err := e.LoadModel(ctx, "assets/sponza.obj"); err != nil {
//	    log.Fatal(err)
//	}
//	e.LookAt(g3d.Camera{Eye: g3d.Vec3{0, 2, 6}, Up: g3d.Vec3{0, 1, 0}, FovY: 0.8, Near: 0.1, Far: 200})
//	err = e.Run(ctx, 0, nil)
//
// # Backends
//
// Backends register themselves when their package is imported. Config.Backend
// selects one by name ("vulkan", "metal", "dx12", "gl", "noop"); "auto"
// picks the first registered one in that order. The noop backend renders
// nothing and is what the tests run on.
//
// # Frames
//
// Each frame waits on the fence of its slot, uploads the camera and material
// blocks the slot has not seen yet, acquires a swapchain image, records the
// scene pass and the caller's DrawFunc, submits and presents. An out-of-date
// surface skips the frame and recreates the swapchain; NotifyResized and
// Resize request a recreation after the next present.
//
// # Object ids
//
// The scene pass writes an object id per pixel to an R32Uint target next to
// the color image. ObjectAt maps an id back to the mesh; zero is the
// background.
//
// # Logging
//
// g3d is silent by default. SetLogger installs a log/slog logger for the
// engine and its internal packages.
package g3d
