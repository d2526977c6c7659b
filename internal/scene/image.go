// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// Image errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not registered.
	ErrUnsupportedFormat = errors.New("scene: unsupported image format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("scene: empty image data")
)

// LoadImage decodes the image file at path into RGBA texels.
// PNG, JPEG, BMP, WebP and TGA are recognized by content.
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("scene: open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return img, nil
}

// DecodeImageBytes decodes an in-memory image, as embedded by model files.
func DecodeImageBytes(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return DecodeImage(bytes.NewReader(data))
}

// decoders maps leading magic bytes to a decoder. The tga package registers
// itself with image.RegisterFormat under an empty magic that matches any
// input, so image.Decode cannot be used while it is linked.
var decoders = []struct {
	name   string
	match  func([]byte) bool
	decode func(io.Reader) (image.Image, error)
}{
	{"png", prefix("\x89PNG\r\n\x1a\n"), png.Decode},
	{"jpeg", prefix("\xff\xd8\xff"), jpeg.Decode},
	{"bmp", prefix("BM"), bmp.Decode},
	{"webp", func(b []byte) bool {
		return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP"
	}, webp.Decode},
}

func prefix(magic string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(magic)) }
}

// DecodeImage decodes an image from r. PNG, JPEG, BMP and WebP are
// recognized by their magic bytes; anything else is tried as TGA, which has
// no signature.
func DecodeImage(r io.Reader) (*image.RGBA, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("scene: read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	for _, d := range decoders {
		if !d.match(data) {
			continue
		}
		img, err := d.decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("scene: decode %s: %w", d.name, err)
		}
		return toRGBA(img), nil
	}
	img, err := tga.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return toRGBA(img), nil
}

// toRGBA returns img as a tightly packed *image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// FitToLimit scales img down so neither side exceeds limit, keeping the
// aspect ratio. Images within the limit are returned unchanged.
func FitToLimit(img *image.RGBA, limit uint32) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if limit == 0 || (uint32(w) <= limit && uint32(h) <= limit) { //nolint:gosec // G115: image sides are positive
		return img
	}
	scale := float64(limit) / float64(max(w, h))
	dw := max(1, int(math.Floor(float64(w)*scale)))
	dh := max(1, int(math.Floor(float64(h)*scale)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Expand converts one sRGB encoded channel in [0, 1] to linear.
// Values outside [0, 1] are clamped.
func Expand(u float32) float32 {
	switch {
	case u <= 0:
		return 0
	case u >= 1:
		return 1
	case u <= 0.04045:
		return u / 12.92
	default:
		return float32(math.Pow(float64((u+0.055)/1.055), 2.4))
	}
}

// Expand3 applies Expand to each component.
func Expand3(v [3]float32) [3]float32 {
	return [3]float32{Expand(v[0]), Expand(v[1]), Expand(v[2])}
}

var expandTable = func() (t [256]uint8) {
	for i := range t {
		t[i] = uint8(Expand(float32(i)/255) * 255)
	}
	return t
}()

// ExpandPixels converts every 8-bit channel of pix from sRGB to linear in
// place.
func ExpandPixels(pix []byte) {
	for i, v := range pix {
		pix[i] = expandTable[v]
	}
}

// EncodeWebP writes img as lossless WebP.
func EncodeWebP(w io.Writer, img image.Image) error {
	if err := nativewebp.Encode(w, img, nil); err != nil {
		return fmt.Errorf("scene: encode webp: %w", err)
	}
	return nil
}
