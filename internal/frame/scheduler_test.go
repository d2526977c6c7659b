// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/internal/swapchain"
)

// slowQueue completes submissions a few polls after they were made and
// fails Present with queued errors.
type slowQueue struct {
	noop.Queue
	submitted   uint64
	completed   uint64
	lag         int
	polls       int
	presentErrs []error
	presents    int
}

func (q *slowQueue) Submit(_ []hal.CommandBuffer) (uint64, error) {
	q.submitted++
	q.polls = 0
	return q.submitted, nil
}

func (q *slowQueue) PollCompleted() uint64 {
	q.polls++
	if q.polls > q.lag {
		q.completed = q.submitted
	}
	return q.completed
}

func (q *slowQueue) Present(s hal.Surface, t hal.SurfaceTexture, r []image.Rectangle) error {
	q.presents++
	if len(q.presentErrs) > 0 {
		err := q.presentErrs[0]
		q.presentErrs = q.presentErrs[1:]
		return err
	}
	return nil
}

// outdatedSurface fails the next acquires with ErrSurfaceOutdated.
type outdatedSurface struct {
	noop.Surface
	outdated int
}

func (s *outdatedSurface) AcquireTexture(f hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	if s.outdated > 0 {
		s.outdated--
		return nil, hal.ErrSurfaceOutdated
	}
	return s.Surface.AcquireTexture(f)
}

type fixture struct {
	rc      *gpu.RenderContext
	sc      *swapchain.Manager
	sched   *Scheduler
	queue   *slowQueue
	surface *outdatedSurface
}

func newFixture(t *testing.T, n int, update UpdateFunc) *fixture {
	t.Helper()
	rc, err := gpu.Open(noop.API{}, gpu.ContextConfig{})
	require.NoError(t, err)
	f := &fixture{rc: rc, queue: &slowQueue{lag: 2}, surface: &outdatedSurface{}}
	rc.Queue = f.queue
	rc.Surface = f.surface

	f.sc = swapchain.New(rc, swapchain.Config{})
	require.NoError(t, f.sc.Create(800, 600))
	f.sched, err = New(rc, f.sc, Config{FramesInFlight: n, Update: update})
	require.NoError(t, err)

	t.Cleanup(func() {
		f.sched.Destroy()
		f.sc.Destroy()
		rc.Close()
	})
	return f
}

// Scenario: 3*N frames with N slots.
func TestSlotsRotate(t *testing.T) {
	const n = 3
	var f *fixture
	var lastSubmission [n]uint64
	var updates []int

	f = newFixture(t, n, func(slot int) error {
		fence := f.sched.Slot(slot).Fence()
		assert.True(t, fence.Signaled(), "slot %d reused before its fence signaled", slot)
		assert.GreaterOrEqual(t, f.queue.completed, lastSubmission[slot])
		updates = append(updates, slot)
		return nil
	})

	for i := range 3 * n {
		before := f.sched.Current()
		assert.Equal(t, i%n, before)
		require.NoError(t, f.sched.DrawFrame(func(fr *Frame) error {
			assert.Equal(t, before, fr.Slot)
			assert.Equal(t, SlotRecording, f.sched.Slot(fr.Slot).State())
			return nil
		}))
		lastSubmission[before] = f.sched.Slot(before).Fence().Submission()
		assert.Equal(t, SlotSubmitted, f.sched.Slot(before).State())
		assert.Equal(t, (before+1)%n, f.sched.Current())
	}

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2}, updates)
	stats := f.sched.Stats()
	assert.Equal(t, uint64(3*n), stats.Submitted)
	assert.Equal(t, uint64(3*n), stats.Presented)
	assert.Equal(t, 3*n, f.queue.presents)
}

func TestFrameBarriers(t *testing.T) {
	f := newFixture(t, 2, nil)

	var seen *gpu.Recorder
	require.NoError(t, f.sched.DrawFrame(func(fr *Frame) error {
		seen = fr.Recorder
		assert.NotNil(t, fr.View)
		assert.Equal(t, swapchain.Extent{Width: 800, Height: 600}, fr.Extent)
		assert.Same(t, f.sc.Depth(), fr.Depth)
		assert.Same(t, f.sc.IDMap(), fr.IDMap)
		return nil
	}))

	barriers := seen.Barriers()
	require.Len(t, barriers, 2)
	assert.Equal(t, gpu.ColorAttachmentBarrier(nil), barriers[0].Tuple())
	assert.Equal(t, gpu.PresentBarrier(nil), barriers[1].Tuple())
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.surface.outdated = 1

	drawn := false
	require.NoError(t, f.sched.DrawFrame(func(*Frame) error {
		drawn = true
		return nil
	}))

	assert.False(t, drawn)
	assert.Equal(t, 0, f.sched.Current(), "slot index unchanged")
	assert.Zero(t, f.queue.submitted)
	assert.Zero(t, f.queue.presents)
	assert.Equal(t, uint64(2), f.sc.Generation())
	assert.Equal(t, swapchain.StateReady, f.sc.State())
	assert.True(t, f.sched.Slot(0).Fence().Signaled())

	stats := f.sched.Stats()
	assert.Equal(t, uint64(1), stats.Skipped)
	assert.Equal(t, uint64(1), stats.Recreated)

	require.NoError(t, f.sched.DrawFrame(nil))
	assert.Equal(t, 1, f.sched.Current())
}

func TestPresentOutOfDateRecreates(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.queue.presentErrs = []error{hal.ErrSurfaceOutdated}

	require.NoError(t, f.sched.DrawFrame(nil))
	assert.Equal(t, 1, f.sched.Current(), "submitted frame advances")
	assert.Equal(t, uint64(2), f.sc.Generation())
	assert.Equal(t, swapchain.StateReady, f.sc.State())
}

func TestResizeFlag(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.sched.cfg.Size = func() (uint32, uint32) { return 1024, 768 }

	f.sched.NotifyResized()
	assert.True(t, f.sched.Resized())
	require.NoError(t, f.sched.DrawFrame(nil))

	assert.False(t, f.sched.Resized())
	assert.Equal(t, swapchain.Extent{Width: 1024, Height: 768}, f.sc.Extent())
	assert.Equal(t, uint64(2), f.sc.Generation())

	require.NoError(t, f.sched.DrawFrame(nil))
	assert.Equal(t, uint64(2), f.sc.Generation(), "no recreation without a new notification")
}

func TestPresentErrorIsFatal(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.queue.presentErrs = []error{hal.ErrDeviceLost}

	err := f.sched.DrawFrame(nil)
	assert.ErrorIs(t, err, hal.ErrDeviceLost)
	assert.Equal(t, 1, f.sched.Current())
}

func TestDrawErrorLeavesSlotReusable(t *testing.T) {
	f := newFixture(t, 2, nil)
	boom := errors.New("boom")

	err := f.sched.DrawFrame(func(*Frame) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, f.sched.Current())
	assert.Zero(t, f.queue.submitted)
	assert.True(t, f.sched.Slot(0).Fence().Signaled())
	assert.False(t, f.sched.Slot(0).AcquireSemaphore().Signaled())

	require.NoError(t, f.sched.DrawFrame(nil))
	assert.Equal(t, 1, f.sched.Current())
}

func TestUpdateError(t *testing.T) {
	boom := errors.New("uniforms")
	f := newFixture(t, 2, func(int) error { return boom })

	assert.ErrorIs(t, f.sched.DrawFrame(nil), boom)
	assert.Equal(t, 0, f.sched.Current())
}

func TestDefaultsAndDestroy(t *testing.T) {
	f := newFixture(t, 0, nil)
	assert.Equal(t, DefaultFramesInFlight, f.sched.FramesInFlight())

	f.sched.Destroy()
	f.sched.Destroy()
	assert.ErrorIs(t, f.sched.DrawFrame(nil), ErrDestroyed)
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "Idle", SlotIdle.String())
	assert.Equal(t, "Submitted", SlotSubmitted.String())
	assert.Equal(t, "SlotState(7)", SlotState(7).String())
}
