package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Staging errors.
var (
	// ErrStagingTooSmall is returned for an upload larger than the staging
	// buffer.
	ErrStagingTooSmall = errors.New("gpu: upload does not fit into staging buffer")

	// ErrStagingInFlight is returned when destroying a staging buffer whose
	// last cycle has not been waited.
	ErrStagingInFlight = errors.New("gpu: staging buffer destroyed while a transfer is in flight")

	// ErrEmptyUpload is returned for an upload without data or destination.
	ErrEmptyUpload = errors.New("gpu: empty upload")

	// ErrUploadSize is returned for image data whose length is not
	// width*height*bytesPerPixel of the destination.
	ErrUploadSize = errors.New("gpu: image upload size mismatch")
)

// Transfer is a one-shot command submission. Every transfer is waited
// synchronously by SubmitAndWait.
type Transfer struct {
	rc       *RenderContext
	encoder  hal.CommandEncoder
	recorder *Recorder
	fence    *Fence
	done     bool
}

// BeginTransfer creates an encoder and starts recording a transfer.
func (rc *RenderContext) BeginTransfer(label string) (*Transfer, error) {
	if rc.closed {
		return nil, ErrContextClosed
	}
	enc, err := rc.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("gpu: create transfer encoder %q: %w", label, err)
	}
	rec := NewRecorder(enc)
	if err := rec.Begin(label); err != nil {
		enc.Destroy()
		return nil, err
	}
	return &Transfer{
		rc:       rc,
		encoder:  enc,
		recorder: rec,
		fence:    NewFence(rc.Queue, label, false),
	}, nil
}

// Recorder returns the recorder of the transfer.
func (t *Transfer) Recorder() *Recorder { return t.recorder }

// SubmitAndWait ends the recording, submits it and blocks until the queue
// completed it. The encoder is destroyed afterwards.
func (t *Transfer) SubmitAndWait() error {
	if t.done {
		return ErrNotRecording
	}
	t.done = true
	defer t.encoder.Destroy()

	cmd, err := t.recorder.Finish()
	if err != nil {
		return err
	}
	defer t.rc.Device.FreeCommandBuffer(cmd)

	sub, err := t.rc.Queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fmt.Errorf("gpu: submit transfer: %w", err)
	}
	t.fence.Attach(sub)
	return t.fence.Wait()
}

// Discard abandons the transfer.
func (t *Transfer) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.recorder.Discard()
	t.encoder.Destroy()
}

// Upload is one copy from host memory to a device buffer or image.
type Upload struct {
	Data []byte

	// Buffer destination.
	Buffer *Buffer
	Offset uint64

	// Image destination: the first mip level of Image, tightly packed rows.
	Image *Image
}

// BufferUpload copies data into dst at offset.
func BufferUpload(dst *Buffer, offset uint64, data []byte) Upload {
	return Upload{Data: data, Buffer: dst, Offset: offset}
}

// ImageUpload copies tightly packed texel rows into the first mip level of
// dst.
func ImageUpload(dst *Image, data []byte) Upload {
	return Upload{Data: data, Image: dst}
}

func (u Upload) label() string {
	if u.Image != nil {
		return u.Image.Label()
	}
	if u.Buffer != nil {
		return u.Buffer.Label()
	}
	return ""
}

// StagingBuffer is a host-visible buffer mapped for its whole lifetime that
// feeds uploads through one-shot transfers. A StagingBuffer is not safe for
// concurrent use; parallel loaders own one each.
type StagingBuffer struct {
	rc       *RenderContext
	buf      *Buffer
	mapped   []byte
	inFlight *Fence
	cycles   uint64
	barriers []Barrier

	offsetAlign uint64
	pitchAlign  uint64
}

// NewStagingBuffer creates a staging buffer of size bytes.
func NewStagingBuffer(rc *RenderContext, size uint64) (*StagingBuffer, error) {
	buf, err := CreateBuffer(rc, BufferDesc{
		Label: "staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	mapped, err := buf.Map()
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	return &StagingBuffer{
		rc:          rc,
		buf:         buf,
		mapped:      mapped,
		offsetAlign: max(rc.Capabilities.AlignmentsMask.BufferCopyOffset, 1),
		pitchAlign:  max(rc.Capabilities.AlignmentsMask.BufferCopyPitch, 1),
	}, nil
}

// Size returns the capacity in bytes.
func (s *StagingBuffer) Size() uint64 { return s.buf.Size() }

// Cycles returns how many transfers the buffer has fed.
func (s *StagingBuffer) Cycles() uint64 { return s.cycles }

// Barriers returns the transitions recorded by the last cycle.
func (s *StagingBuffer) Barriers() []Barrier { return s.barriers }

// Bytes returns the mapped region.
func (s *StagingBuffer) Bytes() []byte { return s.mapped }

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}

// footprint returns the staged size of u and the padded row pitch for
// image uploads.
func (s *StagingBuffer) footprint(u Upload) (size, pitch uint64) {
	if u.Image == nil {
		return uint64(len(u.Data)), 0
	}
	row := uint64(u.Image.Width()) * uint64(BytesPerPixel(u.Image.Format()))
	pitch = alignUp(row, s.pitchAlign)
	return pitch * uint64(u.Image.Height()), pitch
}

// ImageUploadSize returns the staging bytes an upload into a width x height
// image of format needs on rc, row padding included.
func ImageUploadSize(rc *RenderContext, width, height uint32, format gputypes.TextureFormat) uint64 {
	row := uint64(width) * uint64(BytesPerPixel(format))
	return alignUp(row, max(rc.Capabilities.AlignmentsMask.BufferCopyPitch, 1)) * uint64(height)
}

type stagedCopy struct {
	upload Upload
	offset uint64
	pitch  uint64
}

// Upload runs a single upload. See UploadBatch.
func (s *StagingBuffer) Upload(u Upload) error {
	return s.UploadBatch([]Upload{u})
}

// UploadBatch packs the uploads into the staging region and flushes a
// transfer whenever the next upload does not fit. It returns after the last
// transfer completed.
func (s *StagingBuffer) UploadBatch(uploads []Upload) error {
	var pending []stagedCopy
	var cursor uint64

	for _, u := range uploads {
		if (u.Buffer == nil && u.Image == nil) || len(u.Data) == 0 {
			return fmt.Errorf("%w (%q)", ErrEmptyUpload, u.label())
		}
		if img := u.Image; img != nil {
			want := uint64(img.Width()) * uint64(img.Height()) * uint64(BytesPerPixel(img.Format()))
			if uint64(len(u.Data)) != want {
				return fmt.Errorf("%w: %q has %d bytes, want %d",
					ErrUploadSize, u.label(), len(u.Data), want)
			}
		}
		size, pitch := s.footprint(u)
		if size > s.Size() {
			return fmt.Errorf("%w: %q needs %d bytes, staging holds %d",
				ErrStagingTooSmall, u.label(), size, s.Size())
		}
		if u.Buffer != nil && u.Offset+uint64(len(u.Data)) > u.Buffer.Size() {
			return fmt.Errorf("%w: %q [%d, %d) of %d", ErrInvalidWriteRange,
				u.label(), u.Offset, u.Offset+uint64(len(u.Data)), u.Buffer.Size())
		}

		offset := alignUp(cursor, s.offsetAlign)
		if offset+size > s.Size() {
			if err := s.flush(pending); err != nil {
				return err
			}
			pending = pending[:0]
			offset = 0
		}
		s.stage(u, offset, pitch)
		pending = append(pending, stagedCopy{upload: u, offset: offset, pitch: pitch})
		cursor = offset + size
	}
	return s.flush(pending)
}

// stage writes the upload bytes into the mapped region.
func (s *StagingBuffer) stage(u Upload, offset, pitch uint64) {
	if u.Image == nil {
		copy(s.mapped[offset:], u.Data)
		return
	}
	row := uint64(u.Image.Width()) * uint64(BytesPerPixel(u.Image.Format()))
	for y := uint64(0); y < uint64(u.Image.Height()); y++ {
		copy(s.mapped[offset+y*pitch:], u.Data[y*row:(y+1)*row])
	}
}

// flush records one transfer for the staged copies and waits for it.
func (s *StagingBuffer) flush(copies []stagedCopy) error {
	if len(copies) == 0 {
		return nil
	}
	t, err := s.rc.BeginTransfer("staging upload")
	if err != nil {
		return err
	}
	rec := t.Recorder()
	for _, c := range copies {
		if img := c.upload.Image; img != nil {
			pre := TransferDstBarrier(img.Raw())
			pre.MipLevels = img.MipLevels()
			rec.Barrier(pre)
			rec.CopyBufferToImage(s.buf.Raw(), img.Raw(), []hal.BufferTextureCopy{{
				BufferLayout: hal.ImageDataLayout{
					Offset:       c.offset,
					BytesPerRow:  uint32(c.pitch), //nolint:gosec // G115: pitch bounded by staging size
					RowsPerImage: img.Height(),
				},
				TextureBase: hal.ImageCopyTexture{
					Texture: img.Raw(),
					Aspect:  gputypes.TextureAspectAll,
				},
				Size: hal.Extent3D{Width: img.Width(), Height: img.Height(), DepthOrArrayLayers: 1},
			}})
			post := ShaderReadBarrier(img.Raw())
			post.MipLevels = img.MipLevels()
			rec.Barrier(post)
			continue
		}
		rec.CopyBuffer(s.buf.Raw(), c.upload.Buffer.Raw(), c.offset, c.upload.Offset, uint64(len(c.upload.Data)))
	}

	s.barriers = append(s.barriers[:0], rec.Barriers()...)
	s.inFlight = t.fence
	if err := t.SubmitAndWait(); err != nil {
		if t.fence.Submission() == 0 {
			// Never reached the queue.
			s.inFlight = nil
		}
		return err
	}
	s.inFlight = nil
	s.cycles++
	slogger().Debug("gpu: staging cycle", "copies", len(copies), "cycle", s.cycles)
	return nil
}

// Destroy unmaps and frees the staging buffer.
func (s *StagingBuffer) Destroy() error {
	if s.buf.Destroyed() {
		return nil
	}
	if s.inFlight != nil && !s.inFlight.Status() {
		return ErrStagingInFlight
	}
	s.mapped = nil
	s.buf.Destroy()
	return nil
}
