package gpu

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// Synchronization errors.
var (
	// ErrFenceNotSubmitted is returned when waiting on an unsignaled fence
	// that guards no submission. The wait could never finish.
	ErrFenceNotSubmitted = errors.New("gpu: wait on fence with no pending submission")

	// ErrSemaphoreNotSignaled is returned when a wait consumes a semaphore
	// that no operation signaled.
	ErrSemaphoreNotSignaled = errors.New("gpu: semaphore waited before it was signaled")

	// ErrSemaphoreAlreadySignaled is returned when signaling a binary
	// semaphore that has not been consumed yet.
	ErrSemaphoreAlreadySignaled = errors.New("gpu: semaphore signaled twice without a wait")
)

const (
	fenceSpinPolls   = 64
	fenceMaxInterval = time.Millisecond
)

// Fence tracks completion of one queue submission.
//
// The hal queue hands out a monotonically increasing submission index on
// Submit; Attach records it and Wait polls the queue until that index is
// completed. A fence created signaled lets the first Wait of a frame slot
// return immediately.
type Fence struct {
	queue    hal.Queue
	label    string
	target   uint64
	signaled bool
	signals  uint64
}

// NewFence creates a fence on queue.
func NewFence(queue hal.Queue, label string, signaled bool) *Fence {
	return &Fence{queue: queue, label: label, signaled: signaled}
}

// Attach makes the fence guard the submission with the given index.
func (f *Fence) Attach(submission uint64) {
	f.target = submission
	f.signaled = false
}

// Status reports whether the fence is signaled without blocking.
func (f *Fence) Status() bool {
	if f.signaled {
		return true
	}
	if f.target != 0 && f.queue.PollCompleted() >= f.target {
		f.signal()
	}
	return f.signaled
}

// Wait blocks until the guarded submission completes. There is no timeout.
func (f *Fence) Wait() error {
	if f.signaled {
		return nil
	}
	if f.target == 0 {
		return fmt.Errorf("%w (%s)", ErrFenceNotSubmitted, f.label)
	}

	interval := time.Microsecond
	for polls := 0; f.queue.PollCompleted() < f.target; polls++ {
		if polls < fenceSpinPolls {
			runtime.Gosched()
			continue
		}
		time.Sleep(interval)
		if interval < fenceMaxInterval {
			interval *= 2
		}
	}
	f.signal()
	return nil
}

func (f *Fence) signal() {
	f.signaled = true
	f.signals++
}

// Reset returns the fence to the unsignaled state without a submission.
func (f *Fence) Reset() {
	f.signaled = false
	f.target = 0
}

// Restore undoes a Reset for a frame that was not submitted: the fence
// guards prev again, or is signaled when prev is 0.
func (f *Fence) Restore(prev uint64) {
	if prev == 0 {
		f.signaled = true
		return
	}
	f.Attach(prev)
}

// Signaled reports the last observed state.
func (f *Fence) Signaled() bool { return f.signaled }

// Signals returns how many times the fence was observed signaled.
func (f *Fence) Signals() uint64 { return f.signals }

// Submission returns the guarded submission index, 0 if none.
func (f *Fence) Submission() uint64 { return f.target }

// Semaphore is a host-side binary semaphore.
//
// The hal backend performs the device-side GPU-GPU synchronization of
// acquire, submit and present internally. Semaphore mirrors those edges so
// the frame loop can verify their order: each Signal must be matched by
// exactly one Wait before the next Signal.
type Semaphore struct {
	label    string
	signaled bool
	signals  uint64
}

// NewSemaphore creates an unsignaled semaphore.
func NewSemaphore(label string) *Semaphore {
	return &Semaphore{label: label}
}

// Signal marks the semaphore signaled.
func (s *Semaphore) Signal() error {
	if s.signaled {
		return fmt.Errorf("%w (%s)", ErrSemaphoreAlreadySignaled, s.label)
	}
	s.signaled = true
	s.signals++
	return nil
}

// Wait consumes the signal.
func (s *Semaphore) Wait() error {
	if !s.signaled {
		return fmt.Errorf("%w (%s)", ErrSemaphoreNotSignaled, s.label)
	}
	s.signaled = false
	return nil
}

// Signaled reports whether a signal is pending.
func (s *Semaphore) Signaled() bool { return s.signaled }

// Signals returns the total number of signals.
func (s *Semaphore) Signals() uint64 { return s.signals }

// Label returns the debug label.
func (s *Semaphore) Label() string { return s.label }

// Discard drops a pending signal. Used when the image it guarded was given
// back to the surface without being presented.
func (s *Semaphore) Discard() { s.signaled = false }
