// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/wgpu/hal"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// linearSuffix distinguishes the sRGB-expanded copy of a texture file from
// the file loaded as is.
const linearSuffix = "#linear"

// Library bundles the resource registries of one engine with the objects
// every material shares: the dummy texture, the material layout and the
// sampler. All registries draw global ids from the same allocator.
type Library struct {
	rc  *gpu.RenderContext
	ids *resource.IDAllocator

	Textures  *resource.Registry[*Texture]
	Meshes    *resource.Registry[*Mesh]
	Materials *resource.Registry[*Material]
	Targets   *resource.Registry[*GBuffer]

	dummy   *resource.Ref[*Texture]
	layout  hal.BindGroupLayout
	sampler hal.Sampler
}

// NewLibrary creates the registries on ids, which may be nil for a private
// allocator, and the shared material objects.
func NewLibrary(rc *gpu.RenderContext, ids *resource.IDAllocator) (*Library, error) {
	if ids == nil {
		ids = &resource.IDAllocator{}
	}
	l := &Library{
		rc:        rc,
		ids:       ids,
		Textures:  resource.NewRegistry[*Texture]("texture", resource.WithIDAllocator(ids)),
		Meshes:    resource.NewRegistry[*Mesh]("mesh", resource.WithIDAllocator(ids)),
		Materials: resource.NewRegistry[*Material]("material", resource.WithIDAllocator(ids)),
		Targets:   resource.NewRegistry[*GBuffer]("g-buffer", resource.WithIDAllocator(ids)),
	}

	var err error
	l.dummy, err = l.Textures.Register(DummyTextureName, func() (*Texture, error) {
		return NewDummyTexture(rc, nil)
	})
	if err != nil {
		return nil, err
	}
	l.layout, err = NewMaterialLayout(rc.Device)
	if err != nil {
		l.Close()
		return nil, err
	}
	l.sampler, err = gpu.CreateSampler(rc, "material")
	if err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// IDs returns the allocator shared by the registries.
func (l *Library) IDs() *resource.IDAllocator { return l.ids }

// Dummy returns the placeholder texture.
func (l *Library) Dummy() *Texture { return l.dummy.Value() }

// MaterialLayout returns the bind group layout of every material.
func (l *Library) MaterialLayout() hal.BindGroupLayout { return l.layout }

// Sampler returns the sampler shared by all materials.
func (l *Library) Sampler() hal.Sampler { return l.sampler }

// AssetName normalizes a file path into a registry name: cleaned, slash
// separated and in Unicode NFC, so the same file reached through different
// spellings dedups to one resource.
func AssetName(path string) string {
	return norm.NFC.String(filepath.ToSlash(filepath.Clean(path)))
}

// EmbeddedName returns the registry name of a texture embedded in a model
// file, derived from its content.
func EmbeddedName(data []byte) string {
	return fmt.Sprintf("embedded:%016x", xxhash.Sum64(data))
}

// LoadTexture returns the texture for the image file at path, loading it on
// first use. staging may be nil.
func (l *Library) LoadTexture(staging *gpu.StagingBuffer, path string, expand bool) (*resource.Ref[*Texture], error) {
	name := AssetName(path)
	if expand {
		name += linearSuffix
	}
	return l.Textures.Acquire(name, func() (*Texture, error) {
		return LoadTexture(l.rc, staging, path, expand)
	})
}

// EmbeddedTexture returns the texture decoded from in-memory image data,
// loading it on first use. staging may be nil.
func (l *Library) EmbeddedTexture(staging *gpu.StagingBuffer, data []byte, expand bool) (*resource.Ref[*Texture], error) {
	name := EmbeddedName(data)
	if expand {
		name += linearSuffix
	}
	return l.Textures.Acquire(name, func() (*Texture, error) {
		img, err := DecodeImageBytes(data)
		if err != nil {
			return nil, err
		}
		return ImageTexture(l.rc, staging, name, img, expand)
	})
}

// CreateMaterial registers and binds a material. It takes ownership of the
// texture refs, also on failure.
func (l *Library) CreateMaterial(name string, props MaterialProps, textures [SlotCount]*resource.Ref[*Texture]) (*resource.Ref[*Material], error) {
	constructed := false
	construct := l.materialConstructor(props, textures)
	ref, err := l.Materials.Register(name, func() (*Material, error) {
		constructed = true
		return construct()
	})
	if !constructed {
		releaseTextures(textures)
	}
	return ref, err
}

// AcquireMaterial returns the live material named name or creates it like
// CreateMaterial. When the material exists the texture refs are released.
func (l *Library) AcquireMaterial(name string, props MaterialProps, textures [SlotCount]*resource.Ref[*Texture]) (*resource.Ref[*Material], error) {
	constructed := false
	construct := l.materialConstructor(props, textures)
	ref, err := l.Materials.Acquire(name, func() (*Material, error) {
		constructed = true
		return construct()
	})
	if !constructed {
		releaseTextures(textures)
	}
	return ref, err
}

func (l *Library) materialConstructor(props MaterialProps, textures [SlotCount]*resource.Ref[*Texture]) func() (*Material, error) {
	return func() (*Material, error) {
		m := NewMaterial(props, textures)
		if err := m.Bind(l.rc.Device, l.layout, l.sampler, l.Dummy()); err != nil {
			m.Destroy()
			return nil, err
		}
		return m, nil
	}
}

func releaseTextures(textures [SlotCount]*resource.Ref[*Texture]) {
	for _, t := range textures {
		t.Release()
	}
}

// CreateMesh registers a mesh. It takes ownership of material, also on
// failure.
func (l *Library) CreateMesh(name string, vertices []Vertex, indices []uint32, material *resource.Ref[*Material]) (*resource.Ref[*Mesh], error) {
	constructed := false
	ref, err := l.Meshes.Register(name, func() (*Mesh, error) {
		constructed = true
		return NewMesh(l.rc, vertices, indices, material)
	})
	if !constructed {
		material.Release()
	}
	return ref, err
}

// AcquireMesh returns the live mesh named name or creates it like
// CreateMesh. When the mesh exists material is released.
func (l *Library) AcquireMesh(name string, vertices []Vertex, indices []uint32, material *resource.Ref[*Material]) (*resource.Ref[*Mesh], error) {
	constructed := false
	ref, err := l.Meshes.Acquire(name, func() (*Mesh, error) {
		constructed = true
		return NewMesh(l.rc, vertices, indices, material)
	})
	if !constructed {
		material.Release()
	}
	return ref, err
}

// CreateGBuffer registers a render-target bundle named name.
func (l *Library) CreateGBuffer(name string, width, height uint32) (*resource.Ref[*GBuffer], error) {
	return l.Targets.Register(name, func() (*GBuffer, error) {
		return newGBuffer(l.rc, l.Textures, name, width, height)
	})
}

// TransientGBuffer registers a render-target bundle under a unique
// generated name.
func (l *Library) TransientGBuffer(width, height uint32) (*resource.Ref[*GBuffer], error) {
	return l.CreateGBuffer("gbuffer-"+uuid.NewString(), width, height)
}

// Close releases the shared objects. Resources still referenced elsewhere
// are reported and stay alive until their last owner releases them.
func (l *Library) Close() {
	if l.sampler != nil {
		l.rc.Device.DestroySampler(l.sampler)
		l.sampler = nil
	}
	if l.layout != nil {
		l.rc.Device.DestroyBindGroupLayout(l.layout)
		l.layout = nil
	}
	l.dummy.Release()
	l.dummy = nil

	for _, r := range []interface {
		Kind() string
		Len() int
		Names() []string
	}{l.Textures, l.Meshes, l.Materials, l.Targets} {
		if n := r.Len(); n > 0 {
			gpu.Logger().Warn("scene: resources outlive library", "kind", r.Kind(), "count", n, "names", r.Names())
		}
	}
}
