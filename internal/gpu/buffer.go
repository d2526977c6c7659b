package gpu

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer and image errors.
var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrInvalidBufferSize is returned when buffer size is invalid.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrBufferAlreadyMapped is returned when mapping a mapped buffer.
	ErrBufferAlreadyMapped = errors.New("gpu: buffer is already mapped")

	// ErrBufferNotMapped is returned when accessing data of an unmapped buffer.
	ErrBufferNotMapped = errors.New("gpu: buffer is not mapped")

	// ErrMapUsageMismatch is returned when mapping a buffer without map usage.
	ErrMapUsageMismatch = errors.New("gpu: buffer usage does not allow mapping")

	// ErrInvalidWriteRange is returned when a write overruns the buffer.
	ErrInvalidWriteRange = errors.New("gpu: write range out of bounds")

	// ErrInvalidImageSize is returned for zero sized images.
	ErrInvalidImageSize = errors.New("gpu: invalid image size")
)

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a device buffer with its memory accounting.
type Buffer struct {
	rc     *RenderContext
	raw    hal.Buffer
	alloc  *Allocation
	label  string
	size   uint64
	usage  gputypes.BufferUsage
	mapped []byte
}

// CreateBuffer creates a buffer and accounts it in rc.Allocator.
func CreateBuffer(rc *RenderContext, desc BufferDesc) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: %q has size 0", ErrInvalidBufferSize, desc.Label)
	}
	alloc, err := rc.Allocator.Reserve(AllocationBuffer, desc.Label, desc.Size)
	if err != nil {
		return nil, err
	}
	raw, err := rc.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		_ = rc.Allocator.Free(alloc)
		return nil, fmt.Errorf("gpu: create buffer %q: %w", desc.Label, err)
	}
	return &Buffer{
		rc:    rc,
		raw:   raw,
		alloc: alloc,
		label: desc.Label,
		size:  desc.Size,
		usage: desc.Usage,
	}, nil
}

// Raw returns the hal buffer.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool { return b.raw == nil }

// Map maps the whole buffer into host memory and returns it. The slice is
// valid until Unmap.
func (b *Buffer) Map() ([]byte, error) {
	if b.raw == nil {
		return nil, ErrBufferDestroyed
	}
	if b.mapped != nil {
		return nil, ErrBufferAlreadyMapped
	}
	if b.usage&(gputypes.BufferUsageMapWrite|gputypes.BufferUsageMapRead) == 0 {
		return nil, fmt.Errorf("%w (%q)", ErrMapUsageMismatch, b.label)
	}
	m, err := b.rc.Device.MapBuffer(b.raw, 0, b.size)
	if err != nil {
		return nil, fmt.Errorf("gpu: map buffer %q: %w", b.label, err)
	}
	b.mapped = unsafe.Slice((*byte)(m.Ptr), b.size)
	return b.mapped, nil
}

// Mapped returns the mapped memory, nil if the buffer is not mapped.
func (b *Buffer) Mapped() []byte { return b.mapped }

// Unmap releases the host mapping.
func (b *Buffer) Unmap() error {
	if b.mapped == nil {
		return ErrBufferNotMapped
	}
	b.mapped = nil
	if err := b.rc.Device.UnmapBuffer(b.raw); err != nil {
		return fmt.Errorf("gpu: unmap buffer %q: %w", b.label, err)
	}
	return nil
}

// Write copies data into the buffer at offset through the queue.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.raw == nil {
		return ErrBufferDestroyed
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: %q [%d, %d) of %d",
			ErrInvalidWriteRange, b.label, offset, offset+uint64(len(data)), b.size)
	}
	if err := b.rc.Queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("gpu: write buffer %q: %w", b.label, err)
	}
	return nil
}

// Destroy releases the buffer. Safe to call more than once.
func (b *Buffer) Destroy() {
	if b.raw == nil {
		return
	}
	if b.mapped != nil {
		_ = b.Unmap()
	}
	b.rc.Device.DestroyBuffer(b.raw)
	b.raw = nil
	if err := b.rc.Allocator.Free(b.alloc); err != nil {
		slogger().Warn("gpu: free buffer", "label", b.label, "err", err)
	}
}

// ImageDesc describes a 2D image to create.
type ImageDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	MipLevels uint32 // 0 means 1
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage
	Aspect    gputypes.TextureAspect // 0 means all
}

// Image is a 2D texture with a default view over all its mip levels.
type Image struct {
	rc     *RenderContext
	raw    hal.Texture
	view   hal.TextureView
	alloc  *Allocation
	label  string
	width  uint32
	height uint32
	mips   uint32
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
	aspect gputypes.TextureAspect
}

// CreateImage creates an image with a view and accounts it in rc.Allocator.
func CreateImage(rc *RenderContext, desc ImageDesc) (*Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: %q is %dx%d", ErrInvalidImageSize, desc.Label, desc.Width, desc.Height)
	}
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	aspect := desc.Aspect
	if aspect == gputypes.TextureAspectUndefined {
		aspect = gputypes.TextureAspectAll
	}

	alloc, err := rc.Allocator.Reserve(AllocationImage, desc.Label, imageBytes(desc.Width, desc.Height, mips, desc.Format))
	if err != nil {
		return nil, err
	}
	raw, err := rc.Device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		_ = rc.Allocator.Free(alloc)
		return nil, fmt.Errorf("gpu: create image %q: %w", desc.Label, err)
	}
	view, err := rc.Device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:           desc.Label + " view",
		Format:          desc.Format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspect,
		MipLevelCount:   mips,
		ArrayLayerCount: 1,
	})
	if err != nil {
		rc.Device.DestroyTexture(raw)
		_ = rc.Allocator.Free(alloc)
		return nil, fmt.Errorf("gpu: create view of %q: %w", desc.Label, err)
	}
	return &Image{
		rc:     rc,
		raw:    raw,
		view:   view,
		alloc:  alloc,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		mips:   mips,
		format: desc.Format,
		usage:  desc.Usage,
		aspect: aspect,
	}, nil
}

// imageBytes estimates the bytes of an image with a full mip chain.
func imageBytes(width, height, mips uint32, format gputypes.TextureFormat) uint64 {
	bpp := uint64(BytesPerPixel(format))
	var total uint64
	w, h := uint64(width), uint64(height)
	for range mips {
		total += w * h * bpp
		w = max(w/2, 1)
		h = max(h/2, 1)
	}
	return total
}

// BytesPerPixel returns the texel size of the formats the renderer uses.
func BytesPerPixel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

// Raw returns the hal texture.
func (i *Image) Raw() hal.Texture { return i.raw }

// View returns the default view.
func (i *Image) View() hal.TextureView { return i.view }

// Width returns the width in texels.
func (i *Image) Width() uint32 { return i.width }

// Height returns the height in texels.
func (i *Image) Height() uint32 { return i.height }

// MipLevels returns the number of mip levels.
func (i *Image) MipLevels() uint32 { return i.mips }

// Format returns the texel format.
func (i *Image) Format() gputypes.TextureFormat { return i.format }

// Usage returns the usage flags.
func (i *Image) Usage() gputypes.TextureUsage { return i.usage }

// Aspect returns the aspect of the default view.
func (i *Image) Aspect() gputypes.TextureAspect { return i.aspect }

// Label returns the debug label.
func (i *Image) Label() string { return i.label }

// Destroyed reports whether Destroy was called.
func (i *Image) Destroyed() bool { return i.raw == nil }

// Destroy releases the view and the image. Safe to call more than once.
func (i *Image) Destroy() {
	if i.raw == nil {
		return
	}
	i.rc.Device.DestroyTextureView(i.view)
	i.rc.Device.DestroyTexture(i.raw)
	i.view = nil
	i.raw = nil
	if err := i.rc.Allocator.Free(i.alloc); err != nil {
		slogger().Warn("gpu: free image", "label", i.label, "err", err)
	}
}

// CreateSampler creates the linear, repeating sampler used for material
// textures.
func CreateSampler(rc *RenderContext, label string) (hal.Sampler, error) {
	s, err := rc.Device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %q: %w", label, err)
	}
	return s, nil
}
