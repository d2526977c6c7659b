// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame runs the per-frame acquire, record, submit and present
// sequence over a fixed number of frames in flight.
//
// Each in-flight slot owns a command encoder, an acquire semaphore and a
// fence created signaled. DrawFrame waits on the slot fence before touching
// anything the slot's previous submission may still read, so per-slot
// uniform buffers can be rewritten in the update hook.
package frame

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/internal/swapchain"
)

// DefaultFramesInFlight is the number of slots when none is configured.
const DefaultFramesInFlight = 2

// ErrDestroyed is returned by DrawFrame after Destroy.
var ErrDestroyed = errors.New("frame: scheduler destroyed")

// SlotState is the lifecycle state of a frame slot.
type SlotState uint8

// Slot states.
const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "Idle"
	case SlotRecording:
		return "Recording"
	case SlotSubmitted:
		return "Submitted"
	default:
		return fmt.Sprintf("SlotState(%d)", uint8(s))
	}
}

// Slot holds the resources of one frame in flight.
type Slot struct {
	index    int
	encoder  hal.CommandEncoder
	recorder *gpu.Recorder
	acquire  *gpu.Semaphore
	fence    *gpu.Fence
	cmd      hal.CommandBuffer
	state    SlotState
}

// Index returns the slot index.
func (s *Slot) Index() int { return s.index }

// State returns the slot state.
func (s *Slot) State() SlotState { return s.state }

// Fence returns the fence guarding the slot's last submission.
func (s *Slot) Fence() *gpu.Fence { return s.fence }

// AcquireSemaphore returns the semaphore signaled when the slot's image is
// ready to be rendered.
func (s *Slot) AcquireSemaphore() *gpu.Semaphore { return s.acquire }

// Recorder returns the slot's command recorder.
func (s *Slot) Recorder() *gpu.Recorder { return s.recorder }

// Frame is what the draw callback records into.
type Frame struct {
	Recorder   *gpu.Recorder
	Slot       int
	ImageIndex uint32
	Target     hal.SurfaceTexture
	View       hal.TextureView
	Depth      *gpu.Image
	IDMap      *gpu.Image
	Extent     swapchain.Extent
	Number     uint64
}

// DrawFunc records the frame's rendering commands.
type DrawFunc func(*Frame) error

// UpdateFunc runs after the slot fence was waited and before recording.
type UpdateFunc func(slot int) error

// Config configures a Scheduler.
type Config struct {
	// FramesInFlight is the number of slots. Zero selects the default.
	FramesInFlight int

	// Update is called for each frame with the slot index. May be nil.
	Update UpdateFunc

	// Size returns the framebuffer size used for recreation. Nil keeps the
	// current extent.
	Size func() (width, height uint32)
}

// Stats counts frames by outcome.
type Stats struct {
	Presented  uint64
	Skipped    uint64
	Recreated  uint64
	Submitted  uint64
	FenceWaits uint64
}

// Scheduler drives frames. It is used from the render goroutine only;
// NotifyResized may be called from any goroutine.
type Scheduler struct {
	rc  *gpu.RenderContext
	sc  *swapchain.Manager
	cfg Config

	slots     []*Slot
	current   int
	frames    uint64
	resized   atomic.Bool
	stats     Stats
	destroyed bool
}

// New creates the slots. Fences are created signaled so the first wait on
// every slot returns at once.
func New(rc *gpu.RenderContext, sc *swapchain.Manager, cfg Config) (*Scheduler, error) {
	if cfg.FramesInFlight <= 0 {
		cfg.FramesInFlight = DefaultFramesInFlight
	}
	s := &Scheduler{rc: rc, sc: sc, cfg: cfg}
	for i := range cfg.FramesInFlight {
		enc, err := rc.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
			Label: fmt.Sprintf("frame %d", i),
		})
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("frame: create encoder for slot %d: %w", i, err)
		}
		s.slots = append(s.slots, &Slot{
			index:    i,
			encoder:  enc,
			recorder: gpu.NewRecorder(enc),
			acquire:  gpu.NewSemaphore(fmt.Sprintf("acquire %d", i)),
			fence:    gpu.NewFence(rc.Queue, fmt.Sprintf("in flight %d", i), true),
		})
	}
	return s, nil
}

// FramesInFlight returns the number of slots.
func (s *Scheduler) FramesInFlight() int { return len(s.slots) }

// Current returns the index of the slot the next frame uses.
func (s *Scheduler) Current() int { return s.current }

// Slot returns slot i.
func (s *Scheduler) Slot(i int) *Slot { return s.slots[i] }

// Stats returns the frame counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// NotifyResized requests a swapchain recreation after the next present.
func (s *Scheduler) NotifyResized() { s.resized.Store(true) }

// Resized reports whether a resize notification is pending.
func (s *Scheduler) Resized() bool { return s.resized.Load() }

// DrawFrame renders one frame with draw. A frame whose image could not be
// acquired because the surface went out of date is skipped after
// recreating the swapchain; that is not an error.
func (s *Scheduler) DrawFrame(draw DrawFunc) error {
	if s.destroyed {
		return ErrDestroyed
	}
	slot := s.slots[s.current]
	log := gpu.Logger()

	if err := slot.fence.Wait(); err != nil {
		return fmt.Errorf("frame: wait slot %d: %w", slot.index, err)
	}
	s.stats.FenceWaits++
	if slot.cmd != nil {
		slot.recorder.Reset(slot.cmd)
		s.rc.Device.FreeCommandBuffer(slot.cmd)
		slot.cmd = nil
	}
	slot.state = SlotIdle

	if s.cfg.Update != nil {
		if err := s.cfg.Update(slot.index); err != nil {
			return fmt.Errorf("frame: update slot %d: %w", slot.index, err)
		}
	}

	img, err := s.sc.Acquire()
	if errors.Is(err, swapchain.ErrOutOfDate) {
		s.stats.Skipped++
		log.Debug("frame: skipped, surface out of date", "slot", slot.index)
		return s.recreate()
	}
	if err != nil {
		return err
	}
	if err := slot.acquire.Signal(); err != nil {
		return err
	}

	prev := slot.fence.Submission()
	slot.fence.Reset()

	cmd, err := s.record(slot, img, draw)
	if err != nil {
		slot.fence.Restore(prev)
		slot.acquire.Discard()
		s.sc.Discard(img)
		slot.state = SlotIdle
		return err
	}

	if err := slot.acquire.Wait(); err != nil {
		return err
	}
	submitSem := s.sc.SubmitSemaphore(img.Index)
	if err := submitSem.Signal(); err != nil {
		return err
	}
	sub, err := s.rc.Queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		submitSem.Discard()
		slot.fence.Restore(prev)
		s.rc.Device.FreeCommandBuffer(cmd)
		s.sc.Discard(img)
		slot.state = SlotIdle
		return fmt.Errorf("frame: submit slot %d: %w", slot.index, err)
	}
	slot.fence.Attach(sub)
	slot.cmd = cmd
	slot.state = SlotSubmitted
	s.stats.Submitted++
	s.frames++
	s.current = (s.current + 1) % len(s.slots)

	if err := submitSem.Wait(); err != nil {
		return err
	}
	needsRecreate, err := s.sc.Present(img)
	if err != nil {
		return err
	}
	s.stats.Presented++
	if s.resized.Swap(false) || needsRecreate {
		return s.recreate()
	}
	return nil
}

// record fills the slot's command buffer for img.
func (s *Scheduler) record(slot *Slot, img swapchain.Image, draw DrawFunc) (hal.CommandBuffer, error) {
	rec := slot.recorder
	if err := rec.Begin(fmt.Sprintf("frame %d", s.frames)); err != nil {
		return nil, err
	}
	slot.state = SlotRecording

	rec.Barrier(gpu.ColorAttachmentBarrier(img.Texture))
	if draw != nil {
		f := &Frame{
			Recorder:   rec,
			Slot:       slot.index,
			ImageIndex: img.Index,
			Target:     img.Texture,
			View:       img.View,
			Depth:      s.sc.Depth(),
			IDMap:      s.sc.IDMap(),
			Extent:     s.sc.Extent(),
			Number:     s.frames,
		}
		if err := draw(f); err != nil {
			rec.Discard()
			return nil, fmt.Errorf("frame: draw: %w", err)
		}
	}
	rec.Barrier(gpu.PresentBarrier(img.Texture))
	return rec.Finish()
}

func (s *Scheduler) recreate() error {
	w, h := s.sc.Extent().Width, s.sc.Extent().Height
	if s.cfg.Size != nil {
		w, h = s.cfg.Size()
	}
	s.resized.Store(false)
	if err := s.sc.Recreate(w, h); err != nil {
		return fmt.Errorf("frame: recreate swapchain: %w", err)
	}
	s.stats.Recreated++
	return nil
}

// Destroy waits for the device and releases the slots. The swapchain is
// owned by the caller.
func (s *Scheduler) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	if err := s.rc.WaitIdle(); err != nil {
		gpu.Logger().Warn("frame: wait idle on destroy", "err", err)
	}
	for _, slot := range s.slots {
		slot.recorder.Discard()
		if slot.cmd != nil {
			s.rc.Device.FreeCommandBuffer(slot.cmd)
			slot.cmd = nil
		}
		slot.encoder.Destroy()
	}
}
