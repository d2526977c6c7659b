// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"image"
	"io"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DummyColor is the texel of the placeholder bound to unused material slots.
var DummyColor = [4]uint8{255, 0, 255, 255}

// DummyTextureName is the registry name of the placeholder texture.
const DummyTextureName = "__dummy"

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage // 0 means sampled and copy destination
	Aspect gputypes.TextureAspect

	// Pixels are tightly packed rows uploaded through staging. Render
	// targets leave it empty.
	Pixels []byte
}

// Texture is a managed 2D image. Sampled textures keep their host copy of
// the texels for debug dumps.
type Texture struct {
	resource.Base

	image  *gpu.Image
	pixels []byte
	source string
}

// NewTexture creates the image described by desc and uploads its pixels.
// staging may be nil, in which case a staging buffer sized for this upload
// is created and destroyed around it.
func NewTexture(rc *gpu.RenderContext, staging *gpu.StagingBuffer, desc TextureDesc) (*Texture, error) {
	usage := desc.Usage
	if usage == 0 {
		usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	}
	img, err := gpu.CreateImage(rc, gpu.ImageDesc{
		Label:  desc.Label,
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
		Usage:  usage,
		Aspect: desc.Aspect,
	})
	if err != nil {
		return nil, err
	}
	t := &Texture{image: img, pixels: desc.Pixels}
	if len(desc.Pixels) == 0 {
		return t, nil
	}

	want := uint64(desc.Width) * uint64(desc.Height) * uint64(gpu.BytesPerPixel(desc.Format))
	if uint64(len(desc.Pixels)) != want {
		img.Destroy()
		return nil, fmt.Errorf("scene: texture %q has %d bytes of pixels, want %d", desc.Label, len(desc.Pixels), want)
	}

	if staging == nil {
		own, err := gpu.NewStagingBuffer(rc, gpu.ImageUploadSize(rc, desc.Width, desc.Height, desc.Format))
		if err != nil {
			img.Destroy()
			return nil, err
		}
		defer func() { _ = own.Destroy() }()
		staging = own
	}
	if err := staging.Upload(gpu.ImageUpload(img, desc.Pixels)); err != nil {
		img.Destroy()
		return nil, fmt.Errorf("scene: upload texture %q: %w", desc.Label, err)
	}
	return t, nil
}

// NewDummyTexture creates the 1x1 placeholder texture.
func NewDummyTexture(rc *gpu.RenderContext, staging *gpu.StagingBuffer) (*Texture, error) {
	return NewTexture(rc, staging, TextureDesc{
		Label:  DummyTextureName,
		Width:  1,
		Height: 1,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Pixels: DummyColor[:],
	})
}

// ImageTexture creates a sampled RGBA texture from decoded texels.
// The image is scaled down to the device's 2D texture limit and, when
// expand is set, converted from sRGB to linear before upload.
func ImageTexture(rc *gpu.RenderContext, staging *gpu.StagingBuffer, label string, img *image.RGBA, expand bool) (*Texture, error) {
	img = FitToLimit(img, rc.Capabilities.Limits.MaxTextureDimension2D)
	pix := img.Pix
	if expand {
		pix = append([]byte(nil), pix...)
		ExpandPixels(pix)
	}
	b := img.Bounds()
	w := uint32(b.Dx()) //nolint:gosec // G115: image sides are positive
	h := uint32(b.Dy()) //nolint:gosec // G115: image sides are positive
	if staging != nil && gpu.ImageUploadSize(rc, w, h, gputypes.TextureFormatRGBA8UnormSrgb) > staging.Size() {
		staging = nil
	}
	return NewTexture(rc, staging, TextureDesc{
		Label:  label,
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8UnormSrgb,
		Pixels: pix,
	})
}

// LoadTexture decodes the image file at path into a sampled texture.
func LoadTexture(rc *gpu.RenderContext, staging *gpu.StagingBuffer, path string, expand bool) (*Texture, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	t, err := ImageTexture(rc, staging, path, img, expand)
	if err != nil {
		return nil, err
	}
	t.source = path
	return t, nil
}

// Image returns the GPU image.
func (t *Texture) Image() *gpu.Image { return t.image }

// View returns the default view of the image.
func (t *Texture) View() hal.TextureView { return t.image.View() }

// Width returns the width in texels.
func (t *Texture) Width() uint32 { return t.image.Width() }

// Height returns the height in texels.
func (t *Texture) Height() uint32 { return t.image.Height() }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.image.Format() }

// Pixels returns the host copy of the uploaded texels, nil for targets.
func (t *Texture) Pixels() []byte { return t.pixels }

// Source returns the file the texture was loaded from, if any.
func (t *Texture) Source() string { return t.source }

// RGBA returns the host texels as an image. BGRA textures are swizzled.
func (t *Texture) RGBA() (*image.RGBA, error) {
	if len(t.pixels) == 0 {
		return nil, fmt.Errorf("scene: texture %q has no host pixels", t.image.Label())
	}
	w, h := int(t.Width()), int(t.Height())
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch t.Format() {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		copy(img.Pix, t.pixels)
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		for i := 0; i+3 < len(t.pixels); i += 4 {
			img.Pix[i+0] = t.pixels[i+2]
			img.Pix[i+1] = t.pixels[i+1]
			img.Pix[i+2] = t.pixels[i+0]
			img.Pix[i+3] = t.pixels[i+3]
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, t.Format())
	}
	return img, nil
}

// EncodeWebP writes the host texels as lossless WebP.
func (t *Texture) EncodeWebP(w io.Writer) error {
	img, err := t.RGBA()
	if err != nil {
		return err
	}
	return EncodeWebP(w, img)
}

// Destroy releases the GPU image.
func (t *Texture) Destroy() {
	t.image.Destroy()
	t.pixels = nil
}
