// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource implements the lifecycle manager for GPU-backed assets.
//
// A [Registry] indexes resources of one kind (textures, meshes, materials,
// render-target bundles) by name and by a category id, and deduplicates
// creation: a second [Registry.Register] under a live name fails with
// [ErrDuplicateName].
//
// # Ownership
//
// The registry never owns what it indexes. Register returns the first strong
// reference ([Ref]); more owners are created with [Ref.Clone], and every Ref
// must be released exactly once with [Ref.Release]. When the last strong
// reference goes away the registry erases the name and id entries and only
// then calls the resource's Destroy method, so a concurrent Register for the
// same name never observes a half-destroyed object.
//
//	textures := resource.NewRegistry[*Texture]("texture")
//
//	ref, err := textures.Register("dummy", func() (*Texture, error) {
//	    return newTexture(1, 1, magenta)
//	})
//	if err != nil {
//	    return err
//	}
//	defer ref.Release()
//
//	if again, ok := textures.Get("dummy"); ok {
//	    defer again.Release()
//	}
//
// # Identity
//
// Every registered resource carries two ids in its embedded [Base]: a
// category id unique within its registry (starting at 1) and a global id
// unique across all registries sharing an [IDAllocator]. Zero is reserved for
// "unassigned" in both.
//
// # Thread Safety
//
// Registries, Refs and IDAllocators are safe for concurrent use. The registry
// mutex guards only the id counter and the two maps; construction callbacks
// run outside it.
package resource
