// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"sync/atomic"
)

// Managed is implemented by every type a Registry can hold.
//
// Types satisfy it by embedding Base and providing Destroy, which frees the
// GPU objects (and releases any Refs) the resource owns. Destroy is called
// exactly once, after the resource has been removed from its registry.
type Managed interface {
	base() *Base
	Destroy()
}

// Base carries the identity a registry assigns to a resource.
// Embed it by value in managed types.
type Base struct {
	categoryID uint32
	globalID   uint32
	name       string

	// registered is cleared by the deleter, possibly on another goroutine.
	registered atomic.Bool
}

func (b *Base) base() *Base { return b }

// CategoryID returns the id unique within the resource's registry.
// It is 0 until the resource is registered.
func (b *Base) CategoryID() uint32 { return b.categoryID }

// GlobalID returns the id unique across all registries sharing an
// IDAllocator. It is 0 until the resource is registered.
func (b *Base) GlobalID() uint32 { return b.globalID }

// Name returns the registered name.
func (b *Base) Name() string { return b.name }

// Registered reports whether the resource is currently indexed by a registry.
func (b *Base) Registered() bool { return b.registered.Load() }

// Valid reports whether both ids are assigned and the name is non-empty.
func (b *Base) Valid() bool {
	return b.categoryID != 0 && b.globalID != 0 && b.name != ""
}

// String formats the identity the way freed-resource log lines print it.
func (b *Base) String() string {
	return fmt.Sprintf("%s (%d | %d)", b.name, b.categoryID, b.globalID)
}

func (b *Base) bind(name string, categoryID, globalID uint32) {
	b.name = name
	b.categoryID = categoryID
	b.globalID = globalID
	b.registered.Store(true)
}
