// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"math"
	"sync/atomic"
)

// ErrIDSpaceExhausted is returned when an IDAllocator has issued every
// non-zero 32-bit value.
var ErrIDSpaceExhausted = errors.New("resource: id space exhausted")

// IDAllocator issues strictly increasing, non-zero 32-bit identifiers.
// Zero is never returned and no value is issued twice.
//
// IDAllocator is safe for concurrent use. The zero value is ready to use.
type IDAllocator struct {
	last atomic.Uint32
}

// Next returns the next identifier.
func (a *IDAllocator) Next() (uint32, error) {
	for {
		cur := a.last.Load()
		if cur == math.MaxUint32 {
			return 0, ErrIDSpaceExhausted
		}
		if a.last.CompareAndSwap(cur, cur+1) {
			return cur + 1, nil
		}
	}
}

// Last returns the most recently issued identifier, or 0 if none was issued.
func (a *IDAllocator) Last() uint32 {
	return a.last.Load()
}

var globalIDs IDAllocator

// GlobalIDs returns the process-wide allocator used by registries that were
// not given one with WithIDAllocator.
func GlobalIDs() *IDAllocator {
	return &globalIDs
}
