// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"strings"
	"testing"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barrierStrings(bs []gpu.Barrier) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.String())
	}
	return out
}

func TestCreateGBuffer(t *testing.T) {
	lib := newLibrary(t)

	ref, err := lib.CreateGBuffer("main", 64, 32)
	require.NoError(t, err)
	g := ref.Value()

	assert.Equal(t, uint32(64), g.Width())
	assert.Equal(t, uint32(32), g.Height())
	assert.Equal(t, []string{
		DummyTextureName,
		"main_albedo",
		"main_depth",
		"main_normal",
		"main_obj_id",
		"main_shading_target",
	}, lib.Textures.Names())

	targets := []struct {
		tex    *Texture
		format gputypes.TextureFormat
	}{
		{g.Albedo(), AlbedoFormat},
		{g.Normal(), NormalFormat},
		{g.Depth(), DepthFormat},
		{g.Objects(), ObjectFormat},
		{g.Shading(), ShadingFormat},
	}
	for _, tt := range targets {
		assert.Equal(t, tt.format, tt.tex.Format(), tt.tex.Name())
		assert.Equal(t, uint32(64), tt.tex.Width())
		assert.Nil(t, tt.tex.Pixels())
	}
	assert.Equal(t, gputypes.TextureAspectDepthOnly, g.Depth().Image().Aspect())
	assert.Equal(t, gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc, g.Objects().Image().Usage())
	assert.NotZero(t, g.Albedo().Image().Usage()&gputypes.TextureUsageTextureBinding)

	ref.Release()
	assert.Equal(t, []string{DummyTextureName}, lib.Textures.Names())
	assert.Zero(t, lib.Targets.Len())
	assert.Equal(t, 1, lib.rc.Allocator.Stats().Images, "only the dummy texture stays allocated")
}

func TestGBufferTransitions(t *testing.T) {
	lib := newLibrary(t)
	ref, err := lib.CreateGBuffer("frame", 8, 8)
	require.NoError(t, err)
	defer ref.Release()
	g := ref.Value()

	tr, err := lib.rc.BeginTransfer("transitions")
	require.NoError(t, err)
	rec := tr.Recorder()
	g.TransitionToGather(rec)
	g.TransitionToShade(rec)
	g.TransitionToBlit(rec)

	assert.Equal(t, []string{
		"ShaderReadOnlyOptimal -> ColorAttachmentOptimal, FragmentShader/ShaderRead -> ColorAttachmentOutput/ColorAttachmentWrite",
		"ColorAttachmentOptimal -> ShaderReadOnlyOptimal, ColorAttachmentOutput/ColorAttachmentWrite -> FragmentShader/ShaderRead",
		"ColorAttachmentOptimal -> TransferSrcOptimal, ColorAttachmentOutput/ColorAttachmentWrite -> Blit/TransferRead",
	}, barrierStrings(rec.Barriers()))
	assert.Same(t, g.Albedo().Image().Raw(), rec.Barriers()[0].Texture)
	assert.Same(t, g.Shading().Image().Raw(), rec.Barriers()[2].Texture)
	require.NoError(t, tr.SubmitAndWait())
}

func TestGBufferDuplicateName(t *testing.T) {
	lib := newLibrary(t)
	ref, err := lib.CreateGBuffer("hud", 4, 4)
	require.NoError(t, err)
	defer ref.Release()

	_, err = lib.CreateGBuffer("hud", 4, 4)
	assert.ErrorIs(t, err, resource.ErrDuplicateName)
	assert.Equal(t, 1, lib.Targets.Len())
	assert.Equal(t, 6, lib.Textures.Len())
}

func TestGBufferTargetNameTaken(t *testing.T) {
	lib := newLibrary(t)
	squatter, err := lib.Textures.Register("pass_depth", func() (*Texture, error) {
		return NewDummyTexture(lib.rc, nil)
	})
	require.NoError(t, err)
	defer squatter.Release()

	_, err = lib.CreateGBuffer("pass", 4, 4)
	assert.ErrorIs(t, err, resource.ErrDuplicateName)
	assert.Equal(t, []string{DummyTextureName, "pass_depth"}, lib.Textures.Names(),
		"targets created before the failure are released")
}

func TestTransientGBuffer(t *testing.T) {
	lib := newLibrary(t)

	a, err := lib.TransientGBuffer(4, 4)
	require.NoError(t, err)
	defer a.Release()
	b, err := lib.TransientGBuffer(4, 4)
	require.NoError(t, err)
	defer b.Release()

	assert.True(t, strings.HasPrefix(a.Name(), "gbuffer-"))
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Equal(t, 2, lib.Targets.Len())
}
