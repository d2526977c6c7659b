// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"runtime"
	"sync/atomic"
)

// entry is the registry's weak record of a resource. The registry keeps it
// in its id map; only Refs hold strong counts on it.
type entry[T Managed] struct {
	value      T
	strong     atomic.Int64
	reg        *Registry[T]
	name       string
	categoryID uint32
	globalID   uint32
}

// tryRetain adds a strong count unless the entry already expired.
// An expired entry is never revived.
func (e *entry[T]) tryRetain() bool {
	for {
		n := e.strong.Load()
		if n <= 0 {
			return false
		}
		if e.strong.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *entry[T]) drop() {
	if e.strong.Add(-1) == 0 {
		e.reg.release(e)
	}
}

// refState is allocated separately from Ref so the leak check can observe it
// after the Ref itself became unreachable.
type refState struct {
	released atomic.Bool
}

type leakInfo struct {
	state *refState
	kind  string
	name  string
}

func reportLeak(info leakInfo) {
	if !info.state.released.Load() {
		slogger().Warn("resource: reference garbage collected without Release",
			"kind", info.kind, "name", info.name)
	}
}

// Ref is one strong owner of a registered resource.
//
// A Ref must be released exactly once. Release is idempotent per Ref, so a
// deferred Release after an explicit one is harmless. Use Clone to hand
// ownership to another holder.
type Ref[T Managed] struct {
	e     *entry[T]
	state *refState
}

func newRef[T Managed](e *entry[T]) *Ref[T] {
	r := &Ref[T]{e: e, state: &refState{}}
	runtime.AddCleanup(r, reportLeak, leakInfo{state: r.state, kind: e.reg.kind, name: e.name})
	return r
}

// Value returns the referenced resource, or the zero T after Release.
func (r *Ref[T]) Value() T {
	if r == nil || r.state.released.Load() {
		var zero T
		return zero
	}
	return r.e.value
}

// Name returns the registered name.
func (r *Ref[T]) Name() string { return r.e.name }

// CategoryID returns the registry-scoped id.
func (r *Ref[T]) CategoryID() uint32 { return r.e.categoryID }

// GlobalID returns the cross-registry id.
func (r *Ref[T]) GlobalID() uint32 { return r.e.globalID }

// Count returns the current number of strong owners of the resource.
func (r *Ref[T]) Count() int64 { return r.e.strong.Load() }

// Released reports whether Release was called on this Ref.
func (r *Ref[T]) Released() bool { return r.state.released.Load() }

// Clone returns a new strong owner of the same resource.
// Cloning a released Ref returns nil.
func (r *Ref[T]) Clone() *Ref[T] {
	if r == nil || r.state.released.Load() {
		return nil
	}
	r.e.strong.Add(1)
	return newRef(r.e)
}

// Release gives up this owner's share. When the last owner releases, the
// resource is removed from its registry and destroyed on the calling
// goroutine.
func (r *Ref[T]) Release() {
	if r == nil {
		return
	}
	if r.state.released.CompareAndSwap(false, true) {
		r.e.drop()
	}
}
