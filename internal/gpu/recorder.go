package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Recorder errors.
var (
	// ErrNotRecording is returned when finishing a recorder that was not begun.
	ErrNotRecording = errors.New("gpu: command recorder is not recording")

	// ErrAlreadyRecording is returned by Begin on a recorder that is recording.
	ErrAlreadyRecording = errors.New("gpu: command recorder is already recording")
)

// Recorder records commands into a reusable hal command encoder and keeps
// the barriers of the current recording in order.
type Recorder struct {
	encoder   hal.CommandEncoder
	label     string
	recording bool
	barriers  []Barrier
	begins    uint64
}

// NewRecorder wraps encoder. The recorder does not own the encoder.
func NewRecorder(encoder hal.CommandEncoder) *Recorder {
	return &Recorder{encoder: encoder}
}

// Begin resets the barrier log and starts a recording.
func (r *Recorder) Begin(label string) error {
	if r.recording {
		return fmt.Errorf("%w (%s)", ErrAlreadyRecording, r.label)
	}
	if err := r.encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("gpu: begin encoding %q: %w", label, err)
	}
	r.label = label
	r.recording = true
	r.barriers = r.barriers[:0]
	r.begins++
	return nil
}

// Recording reports whether Begin was called without Finish or Discard.
func (r *Recorder) Recording() bool { return r.recording }

// Begins returns how many recordings were started.
func (r *Recorder) Begins() uint64 { return r.begins }

// Encoder returns the underlying encoder for commands the recorder does not
// wrap.
func (r *Recorder) Encoder() hal.CommandEncoder { return r.encoder }

// Barrier records layout transitions in order.
func (r *Recorder) Barrier(barriers ...Barrier) {
	native := make([]hal.TextureBarrier, 0, len(barriers))
	for _, b := range barriers {
		r.barriers = append(r.barriers, b)
		slogger().Debug("gpu: barrier", "recording", r.label, "transition", b.String())
		if hb, ok := b.halBarrier(); ok {
			native = append(native, hb)
		}
	}
	if len(native) > 0 {
		r.encoder.TransitionTextures(native)
	}
}

// Barriers returns the transitions recorded since Begin.
func (r *Recorder) Barriers() []Barrier { return r.barriers }

// CopyBuffer records a buffer to buffer copy.
func (r *Recorder) CopyBuffer(src, dst hal.Buffer, srcOffset, dstOffset, size uint64) {
	r.encoder.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}})
}

// CopyBufferToImage records a buffer to image copy.
func (r *Recorder) CopyBufferToImage(src hal.Buffer, dst hal.Texture, regions []hal.BufferTextureCopy) {
	r.encoder.CopyBufferToTexture(src, dst, regions)
}

// BeginRenderPass starts a render pass in the current recording.
func (r *Recorder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	return r.encoder.BeginRenderPass(desc)
}

// Finish ends the recording and returns the command buffer.
func (r *Recorder) Finish() (hal.CommandBuffer, error) {
	if !r.recording {
		return nil, ErrNotRecording
	}
	r.recording = false
	cmd, err := r.encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end encoding %q: %w", r.label, err)
	}
	return cmd, nil
}

// Reset recycles the encoder and the command buffers it produced. The
// buffers must have completed on the GPU.
func (r *Recorder) Reset(completed ...hal.CommandBuffer) {
	r.encoder.ResetAll(completed)
}

// Discard abandons the current recording.
func (r *Recorder) Discard() {
	if r.recording {
		r.encoder.DiscardEncoding()
		r.recording = false
	}
}
