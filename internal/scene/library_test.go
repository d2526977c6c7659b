// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bytes"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/g3d/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "assets/tex.png", "assets/tex.png"},
		{"dot segments", "assets/./models/../tex.png", "assets/tex.png"},
		{"nfc", "cafe\u0301.png", "caf\u00e9.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssetName(tt.in))
		})
	}
}

func TestEmbeddedName(t *testing.T) {
	a := EmbeddedName([]byte("one"))
	assert.True(t, strings.HasPrefix(a, "embedded:"))
	assert.Len(t, a, len("embedded:")+16)
	assert.Equal(t, a, EmbeddedName([]byte("one")))
	assert.NotEqual(t, a, EmbeddedName([]byte("two")))
}

func TestLibrarySharesGlobalIDs(t *testing.T) {
	ids := &resource.IDAllocator{}
	lib, err := NewLibrary(openNoop(t), ids)
	require.NoError(t, err)
	defer lib.Close()
	assert.Same(t, ids, lib.IDs())

	mat, err := lib.CreateMaterial("m", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	defer mat.Release()
	vertices, indices := triangle()
	mesh, err := lib.CreateMesh("tri", vertices, indices, mat.Clone())
	require.NoError(t, err)
	defer mesh.Release()

	dummy, ok := lib.Textures.Get(DummyTextureName)
	require.True(t, ok)
	defer dummy.Release()

	assert.Equal(t, uint32(1), dummy.GlobalID())
	assert.Equal(t, uint32(2), mat.GlobalID())
	assert.Equal(t, uint32(3), mesh.GlobalID())
	assert.Equal(t, uint32(1), mat.CategoryID(), "category ids are per registry")
	assert.Equal(t, uint32(1), mesh.CategoryID())
	assert.Equal(t, uint32(3), ids.Last())

	assert.Same(t, mat.Value(), mesh.Value().Material())
}

func TestLibraryLoadTextureDedup(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	path := writePNG(t, dir, "stone.png", 2, 2)

	a, err := lib.LoadTexture(nil, path, false)
	require.NoError(t, err)
	defer a.Release()
	b, err := lib.LoadTexture(nil, filepath.Join(dir, ".", "stone.png"), false)
	require.NoError(t, err)
	defer b.Release()

	assert.Same(t, a.Value(), b.Value())
	assert.Equal(t, int64(2), a.Count())

	linear, err := lib.LoadTexture(nil, path, true)
	require.NoError(t, err)
	defer linear.Release()
	assert.NotSame(t, a.Value(), linear.Value())
	assert.Equal(t, AssetName(path)+"#linear", linear.Name())
	assert.Equal(t, 3, lib.Textures.Len())
}

func TestLibraryEmbeddedTexture(t *testing.T) {
	lib := newLibrary(t)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(2, 2)))

	a, err := lib.EmbeddedTexture(nil, buf.Bytes(), false)
	require.NoError(t, err)
	defer a.Release()
	b, err := lib.EmbeddedTexture(nil, buf.Bytes(), false)
	require.NoError(t, err)
	defer b.Release()

	assert.Equal(t, EmbeddedName(buf.Bytes()), a.Name())
	assert.Same(t, a.Value(), b.Value())

	_, err = lib.EmbeddedTexture(nil, []byte("garbage"), false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, 2, lib.Textures.Len())
}

func TestLibraryMeshDedup(t *testing.T) {
	lib := newLibrary(t)
	vertices, indices := triangle()
	mat, err := lib.CreateMaterial("m", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	defer mat.Release()

	a, err := lib.AcquireMesh("tri", vertices, indices, mat.Clone())
	require.NoError(t, err)
	defer a.Release()
	b, err := lib.AcquireMesh("tri", nil, nil, mat.Clone())
	require.NoError(t, err)
	defer b.Release()

	assert.Same(t, a.Value(), b.Value())
	assert.Equal(t, int64(2), mat.Count(), "the second material share is released")

	_, err = lib.CreateMesh("tri", vertices, indices, mat.Clone())
	assert.ErrorIs(t, err, resource.ErrDuplicateName)
	_, err = lib.CreateMesh("empty", nil, nil, mat.Clone())
	assert.ErrorIs(t, err, ErrEmptyMesh)
	assert.Equal(t, int64(2), mat.Count())
	assert.Equal(t, 1, lib.Meshes.Len())
}

func TestLibraryCloseReportsLiveResources(t *testing.T) {
	rc := openNoop(t)
	lib, err := NewLibrary(rc, nil)
	require.NoError(t, err)

	mat, err := lib.CreateMaterial("survivor", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	lib.Close()

	assert.Nil(t, lib.Sampler())
	assert.Nil(t, lib.MaterialLayout())
	assert.Equal(t, 1, lib.Materials.Len())
	assert.Zero(t, lib.Textures.Len())

	mat.Release()
	assert.Zero(t, lib.Materials.Len())
}

func TestLibraryDummyTextureLookup(t *testing.T) {
	lib := newLibrary(t)

	ref, ok := lib.Textures.Get(DummyTextureName)
	require.True(t, ok)
	defer ref.Release()
	assert.Equal(t, []byte{255, 0, 255, 255}, ref.Value().Pixels())
	assert.Same(t, lib.Dummy(), ref.Value())
	assert.True(t, ref.Value().Valid())
}
