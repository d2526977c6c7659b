// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/gogpu/g3d/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := NewLibrary(openNoop(t), nil)
	require.NoError(t, err)
	t.Cleanup(lib.Close)
	return lib
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "diffuse", SlotDiffuse.String())
	assert.Equal(t, "shininess", SlotShininess.String())
	assert.Equal(t, "invalid", SlotInvalid.String())
	assert.Equal(t, "Slot(9)", Slot(9).String())
}

func TestEncodeUniformWithoutTextures(t *testing.T) {
	m := NewMaterial(MaterialProps{
		Diffuse:     [3]float32{0.1, 0.2, 0.3},
		Specular:    [3]float32{0.4, 0.5, 0.6},
		Emission:    [3]float32{1, 2, 3},
		Attenuation: [3]float32{7, 8, 9},
		Shininess:   32,
		IOR:         1.5,
	}, [SlotCount]*resource.Ref[*Texture]{})

	buf := make([]byte, MaterialUniformSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	m.EncodeUniform(buf)

	floats := []struct {
		off  int
		want float32
	}{
		{0, 0.1}, {4, 0.2}, {8, 0.3}, {12, 32},
		{16, 0.4}, {20, 0.5}, {24, 0.6}, {28, 1.5},
		{32, 1}, {36, 2}, {40, 3},
		{48, 7}, {52, 8}, {56, 9},
	}
	for _, f := range floats {
		assert.Equal(t, f.want, f32At(buf, f.off), "offset %d", f.off)
	}
	for _, off := range []int{44, 60, 64, 68} {
		assert.Equal(t, uint32(SlotInvalid), u32At(buf, off), "map handle at %d", off)
	}
	assert.Zero(t, u32At(buf, 72))
	assert.Zero(t, u32At(buf, 76))
}

func TestEncodeUniformMapHandles(t *testing.T) {
	lib := newLibrary(t)
	dir := t.TempDir()
	diffuse, err := lib.LoadTexture(nil, writePNG(t, dir, "d.png", 2, 2), false)
	require.NoError(t, err)
	normal, err := lib.LoadTexture(nil, writePNG(t, dir, "n.png", 2, 2), false)
	require.NoError(t, err)

	ref, err := lib.CreateMaterial("brick", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{
		SlotDiffuse: diffuse,
		SlotNormal:  normal,
	})
	require.NoError(t, err)
	defer ref.Release()
	m := ref.Value()

	assert.Equal(t, uint32(0), m.MapHandle(SlotDiffuse))
	assert.Equal(t, uint32(SlotInvalid), m.MapHandle(SlotSpecular))
	assert.Equal(t, uint32(2), m.MapHandle(SlotNormal))
	assert.Equal(t, uint32(SlotInvalid), m.MapHandle(SlotInvalid))

	buf := make([]byte, MaterialUniformSize)
	m.EncodeUniform(buf)
	assert.Equal(t, uint32(0), u32At(buf, 44))
	assert.Equal(t, uint32(SlotInvalid), u32At(buf, 60))
	assert.Equal(t, uint32(SlotInvalid), u32At(buf, 64))
	assert.Equal(t, uint32(2), u32At(buf, 68))

	assert.NotNil(t, m.BindGroup())
	tex, err := m.Texture(SlotDiffuse)
	require.NoError(t, err)
	assert.Equal(t, "d.png", filepath.Base(tex.Source()))
}

func TestMaterialInvalidSlot(t *testing.T) {
	m := NewMaterial(MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{})

	_, err := m.Texture(SlotInvalid)
	assert.ErrorIs(t, err, ErrInvalidSlot)
	assert.ErrorIs(t, m.SetTexture(Slot(SlotCount), nil), ErrInvalidSlot)

	tex, err := m.Texture(SlotSpecular)
	require.NoError(t, err)
	assert.Nil(t, tex)
}

func TestMaterialOwnsTextures(t *testing.T) {
	lib := newLibrary(t)
	path := writePNG(t, t.TempDir(), "albedo.png", 2, 2)

	tex, err := lib.LoadTexture(nil, path, false)
	require.NoError(t, err)
	extra := tex.Clone()
	assert.Equal(t, int64(2), tex.Count())

	ref, err := lib.CreateMaterial("wood", MaterialProps{Shininess: 8}, [SlotCount]*resource.Ref[*Texture]{SlotDiffuse: tex})
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Textures.Len(), "dummy and albedo")

	// Replacing the slot releases the material's share.
	require.NoError(t, ref.Value().SetTexture(SlotDiffuse, nil))
	assert.Equal(t, int64(1), extra.Count())
	require.NoError(t, ref.Value().Bind(lib.rc.Device, lib.MaterialLayout(), lib.Sampler(), lib.Dummy()))

	require.NoError(t, ref.Value().SetTexture(SlotSpecular, extra))
	ref.Release()
	assert.Equal(t, 1, lib.Textures.Len(), "releasing the material frees its textures")
	assert.Zero(t, lib.Materials.Len())
}

func TestCreateMaterialDuplicateReleasesTextures(t *testing.T) {
	lib := newLibrary(t)
	path := writePNG(t, t.TempDir(), "a.png", 2, 2)

	first, err := lib.CreateMaterial("dup", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	defer first.Release()

	tex, err := lib.LoadTexture(nil, path, false)
	require.NoError(t, err)
	_, err = lib.CreateMaterial("dup", MaterialProps{}, [SlotCount]*resource.Ref[*Texture]{SlotDiffuse: tex})
	assert.ErrorIs(t, err, resource.ErrDuplicateName)
	assert.True(t, tex.Released())
	assert.Equal(t, 1, lib.Textures.Len())
}

func TestAcquireMaterialKeepsExisting(t *testing.T) {
	lib := newLibrary(t)

	a, err := lib.AcquireMaterial("shared", MaterialProps{Shininess: 4}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	defer a.Release()
	b, err := lib.AcquireMaterial("shared", MaterialProps{Shininess: 99}, [SlotCount]*resource.Ref[*Texture]{})
	require.NoError(t, err)
	defer b.Release()

	assert.Same(t, a.Value(), b.Value())
	assert.Equal(t, float32(4), b.Value().Props().Shininess)
	assert.Equal(t, int64(2), a.Count())
}
