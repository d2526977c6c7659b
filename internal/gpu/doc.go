// Package gpu wraps the explicit GPU API (gogpu/wgpu hal) for the renderer.
//
// This is an internal package. It owns everything that talks to the device
// directly:
//
//   - RenderContext: instance, adapter, device, queue and surface bundled
//     together and passed into every component constructor
//   - Fence and Semaphore: host-side synchronization built on the queue's
//     submission index
//   - Barrier and Recorder: the layout-transition protocol expressed as
//     explicit (old layout, new layout, src stage/access, dst stage/access)
//     tuples, translated into hal texture usage transitions
//   - Buffer, Image and Allocator: allocation helpers with budget accounting
//   - StagingBuffer and Transfer: synchronous CPU to GPU uploads through a
//     host-visible buffer and a one-shot command buffer
//   - ShaderCache: WGSL compiled to SPIR-V with gogpu/naga
//
// # Synchronization Model
//
// The hal queue reports a monotonically increasing submission index for
// every Submit and the highest completed index through PollCompleted. A
// Fence remembers the index of the submission it guards and is signaled once
// the queue has completed it. Waits never time out.
//
// Nothing in this package is safe for concurrent use unless documented
// otherwise; the render loop drives it from one goroutine and each loader
// worker owns its own StagingBuffer and Transfer.
package gpu
