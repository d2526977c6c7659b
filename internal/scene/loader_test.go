// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boxImporter describes a textured crate, an untextured floor and a mesh
// whose material has no name.
func boxImporter(t *testing.T, embedded []byte) ImporterFunc {
	t.Helper()
	return func(_ context.Context, _ string) (*ModelData, error) {
		vertices, indices := triangle()
		return &ModelData{
			Materials: []MaterialData{
				{
					Name:  "crate",
					Props: MaterialProps{Diffuse: [3]float32{0.5, 0.5, 0.5}, Shininess: 16},
					Maps: [SlotCount]string{
						SlotDiffuse: "textures/crate.png",
						SlotNormal:  EmbeddedPrefix + "0",
					},
				},
				{Name: ""},
				{Name: "floor", Props: MaterialProps{Diffuse: [3]float32{1, 1, 1}}},
			},
			Meshes: []MeshData{
				{Name: "crate", Vertices: vertices, Indices: indices, Material: 0},
				{Vertices: vertices, Indices: indices, Material: 2},
				{Name: "orphan", Vertices: vertices, Indices: indices, Material: 1},
			},
			Embedded: map[string][]byte{"0": embedded},
		}, nil
	}
}

func embeddedPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(2, 2)))
	return buf.Bytes()
}

func TestLoaderLoad(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	writePNG(t, dir, "textures/crate.png", 4, 4)
	blob := embeddedPNG(t)
	path := filepath.Join(dir, "box.obj")

	loader := NewLoader(lib, boxImporter(t, blob), LoaderConfig{Workers: 2, StagingSize: 1 << 12})
	model, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, AssetName(path), model.Name())
	require.Equal(t, 3, model.Len())
	assert.Equal(t, "crate", model.Mesh(0).Name())
	assert.Equal(t, AssetName(path)+"#1", model.Mesh(1).Name())
	assert.Nil(t, model.Mesh(2).Material(), "unnamed materials are skipped")

	crate := model.Mesh(0).Material()
	require.NotNil(t, crate)
	assert.Equal(t, "crate", crate.Name())
	assert.Equal(t, uint32(SlotDiffuse), crate.MapHandle(SlotDiffuse))
	assert.Equal(t, uint32(SlotNormal), crate.MapHandle(SlotNormal))
	assert.Equal(t, uint32(SlotInvalid), crate.MapHandle(SlotSpecular))
	normal, err := crate.Texture(SlotNormal)
	require.NoError(t, err)
	assert.Equal(t, EmbeddedName(blob), normal.Name())
	assert.Equal(t, "floor", model.Mesh(1).Material().Name())

	assert.Equal(t, 2, lib.Materials.Len())
	assert.Equal(t, 3, lib.Textures.Len(), "dummy, crate and embedded")

	model.Release()
	assert.Zero(t, lib.Meshes.Len())
	assert.Zero(t, lib.Materials.Len())
	assert.Equal(t, []string{DummyTextureName}, lib.Textures.Names())
}

func TestLoaderReusesMeshes(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	writePNG(t, dir, "textures/crate.png", 4, 4)
	path := filepath.Join(dir, "box.obj")
	loader := NewLoader(lib, boxImporter(t, embeddedPNG(t)), LoaderConfig{Workers: 1})

	first, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	defer first.Release()
	second, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	defer second.Release()

	for i := range first.Len() {
		assert.Same(t, first.Mesh(i), second.Mesh(i))
	}
	assert.Equal(t, 3, lib.Meshes.Len())
	assert.Equal(t, 2, lib.Materials.Len())
}

func TestLoaderExpandOnLoad(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	writePNG(t, dir, "textures/crate.png", 4, 4)
	path := filepath.Join(dir, "box.obj")
	blob := embeddedPNG(t)
	loader := NewLoader(lib, boxImporter(t, blob), LoaderConfig{ExpandOnLoad: true})

	model, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	defer model.Release()

	crate := model.Mesh(0).Material()
	assert.InDelta(t, 0.21404, crate.Props().Diffuse[0], 1e-4)
	assert.Equal(t, float32(16), crate.Props().Shininess)

	diffuse, err := crate.Texture(SlotDiffuse)
	require.NoError(t, err)
	assert.Equal(t, AssetName(filepath.Join(dir, "textures/crate.png"))+"#linear", diffuse.Name())
	normal, err := crate.Texture(SlotNormal)
	require.NoError(t, err)
	assert.Equal(t, EmbeddedName(blob), normal.Name(), "normal maps are not expanded")
}

func TestLoaderFailureReleasesEverything(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "box.obj")

	// crate.png is missing.
	loader := NewLoader(lib, boxImporter(t, embeddedPNG(t)), LoaderConfig{Workers: 3})
	_, err := loader.Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `material "crate" diffuse map`)

	assert.Zero(t, lib.Meshes.Len())
	assert.Zero(t, lib.Materials.Len())
	assert.Equal(t, []string{DummyTextureName}, lib.Textures.Names())
}

func TestLoaderMissingEmbedded(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	writePNG(t, dir, "textures/crate.png", 4, 4)

	loader := NewLoader(lib, boxImporter(t, nil), LoaderConfig{})
	_, err := loader.Load(context.Background(), filepath.Join(dir, "box.obj"))
	assert.ErrorIs(t, err, ErrEmptyData)
	assert.Zero(t, lib.Materials.Len())
}

func TestLoaderImportError(t *testing.T) {
	lib := newLibrary(t)
	boom := errors.New("truncated file")
	loader := NewLoader(lib, ImporterFunc(func(context.Context, string) (*ModelData, error) {
		return nil, boom
	}), LoaderConfig{})

	_, err := loader.Load(context.Background(), "broken.obj")
	assert.ErrorIs(t, err, boom)

	_, err = NewLoader(lib, nil, LoaderConfig{}).Load(context.Background(), "x.obj")
	assert.ErrorIs(t, err, ErrNoImporter)
}

func TestLoaderCanceled(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	writePNG(t, dir, "textures/crate.png", 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader(lib, boxImporter(t, embeddedPNG(t)), LoaderConfig{})
	_, err := loader.Load(ctx, filepath.Join(dir, "box.obj"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lib.Meshes.Len())
	assert.Equal(t, []string{DummyTextureName}, lib.Textures.Names())
}

func TestLoaderDefaults(t *testing.T) {
	lib := newLibrary(t)
	loader := NewLoader(lib, nil, LoaderConfig{})
	assert.Equal(t, runtime.NumCPU(), loader.Workers())
	assert.Equal(t, uint64(DefaultStagingSize), loader.cfg.StagingSize)
}
