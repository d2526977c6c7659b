// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openNoop(t *testing.T) *gpu.RenderContext {
	t.Helper()
	rc, err := gpu.Open(noop.API{}, gpu.ContextConfig{})
	require.NoError(t, err)
	t.Cleanup(rc.Close)
	return rc
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, checker(w, h)))
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestDummyTexture(t *testing.T) {
	rc := openNoop(t)

	tex, err := NewDummyTexture(rc, nil)
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, uint32(1), tex.Width())
	assert.Equal(t, uint32(1), tex.Height())
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, tex.Format())
	assert.Equal(t, []byte{255, 0, 255, 255}, tex.Pixels())

	img, err := tex.RGBA()
	require.NoError(t, err)
	assert.Equal(t, []byte{255, 0, 255, 255}, img.Pix, "magenta is symmetric under the BGRA swizzle")

	stats := rc.Allocator.Stats()
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, uint64(4), stats.UsedBytes, "the staging buffer is gone after the upload")
}

func TestNewTextureSharedStaging(t *testing.T) {
	rc := openNoop(t)
	staging, err := gpu.NewStagingBuffer(rc, 1<<16)
	require.NoError(t, err)
	defer func() { require.NoError(t, staging.Destroy()) }()

	tex, err := NewTexture(rc, staging, TextureDesc{
		Label:  "bgra",
		Width:  2,
		Height: 1,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Pixels: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	})
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, uint64(1), staging.Cycles())
	tuples := make([]string, 0, 2)
	for _, b := range staging.Barriers() {
		tuples = append(tuples, b.String())
	}
	assert.Equal(t, []string{
		"Undefined -> TransferDstOptimal, TopOfPipe/None -> Transfer/TransferWrite",
		"TransferDstOptimal -> ShaderReadOnlyOptimal, Transfer/TransferWrite -> FragmentShader/ShaderRead",
	}, tuples)

	img, err := tex.RGBA()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, img.Pix)
}

func TestNewTextureErrors(t *testing.T) {
	rc := openNoop(t)

	_, err := NewTexture(rc, nil, TextureDesc{
		Label: "short", Width: 2, Height: 2,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Pixels: make([]byte, 4),
	})
	assert.ErrorContains(t, err, "want 16")

	_, err = NewTexture(rc, nil, TextureDesc{Label: "empty", Format: gputypes.TextureFormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpu.ErrInvalidImageSize)

	assert.Zero(t, rc.Allocator.Stats().UsedBytes, "failed textures free their memory")
}

func TestRenderTargetHasNoPixels(t *testing.T) {
	rc := openNoop(t)

	tex, err := NewTexture(rc, nil, TextureDesc{
		Label: "target", Width: 8, Height: 8,
		Format: gputypes.TextureFormatRGBA16Float,
		Usage:  gputypes.TextureUsageRenderAttachment,
	})
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Nil(t, tex.Pixels())
	_, err = tex.RGBA()
	assert.Error(t, err)
	assert.Equal(t, uint64(8*8*8), rc.Allocator.Stats().UsedBytes)
}

func TestImageTextureExpand(t *testing.T) {
	rc := openNoop(t)
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	copy(src.Pix, []byte{128, 128, 128, 255})

	plain, err := ImageTexture(rc, nil, "plain", src, false)
	require.NoError(t, err)
	defer plain.Destroy()
	linear, err := ImageTexture(rc, nil, "linear", src, true)
	require.NoError(t, err)
	defer linear.Destroy()

	assert.Equal(t, gputypes.TextureFormatRGBA8UnormSrgb, plain.Format())
	assert.Equal(t, []byte{128, 128, 128, 255}, plain.Pixels())
	assert.Equal(t, []byte{55, 55, 55, 255}, linear.Pixels())
	assert.Equal(t, []byte{128, 128, 128, 255}, src.Pix, "source texels are not modified")
}

func TestLoadTextureAndEncodeWebP(t *testing.T) {
	rc := openNoop(t)
	path := writePNG(t, t.TempDir(), "checker.png", 4, 4)

	tex, err := LoadTexture(rc, nil, path, false)
	require.NoError(t, err)
	defer tex.Destroy()

	assert.Equal(t, path, tex.Source())
	assert.Equal(t, uint32(4), tex.Width())

	var buf bytes.Buffer
	require.NoError(t, tex.EncodeWebP(&buf))
	back, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, tex.Pixels(), back.Pix)
}

func TestTextureDestroyFreesMemory(t *testing.T) {
	rc := openNoop(t)
	tex, err := NewDummyTexture(rc, nil)
	require.NoError(t, err)

	tex.Destroy()
	assert.True(t, tex.Image().Destroyed())
	assert.Zero(t, rc.Allocator.Stats().Images)
}
