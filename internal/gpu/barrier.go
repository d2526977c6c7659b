package gpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Layout is the access mode an image is in between barriers.
type Layout uint8

// Image layouts.
const (
	LayoutUndefined Layout = iota
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutTransferSrc
	LayoutTransferDst
	LayoutShaderReadOnly
	LayoutPresentSrc
)

var layoutNames = [...]string{
	LayoutUndefined:       "Undefined",
	LayoutColorAttachment: "ColorAttachmentOptimal",
	LayoutDepthAttachment: "DepthAttachmentOptimal",
	LayoutTransferSrc:     "TransferSrcOptimal",
	LayoutTransferDst:     "TransferDstOptimal",
	LayoutShaderReadOnly:  "ShaderReadOnlyOptimal",
	LayoutPresentSrc:      "PresentSrc",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// usage maps a layout to the hal texture usage the backends derive the
// native layout from. PresentSrc has no usage: the backend moves swapchain
// images into the present layout itself when the render pass ends.
func (l Layout) usage() (gputypes.TextureUsage, bool) {
	switch l {
	case LayoutUndefined:
		return gputypes.TextureUsageNone, true
	case LayoutColorAttachment, LayoutDepthAttachment:
		return gputypes.TextureUsageRenderAttachment, true
	case LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc, true
	case LayoutTransferDst:
		return gputypes.TextureUsageCopyDst, true
	case LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding, true
	default:
		return 0, false
	}
}

// Stage is a set of pipeline stages.
type Stage uint32

// Pipeline stages.
const (
	StageNone                  Stage = 0
	StageTopOfPipe             Stage = 1 << 0
	StageFragmentShader        Stage = 1 << 1
	StageEarlyFragmentTests    Stage = 1 << 2
	StageColorAttachmentOutput Stage = 1 << 3
	StageTransfer              Stage = 1 << 4
	StageBlit                  Stage = 1 << 5
	StageBottomOfPipe          Stage = 1 << 6
)

var stageNames = []struct {
	bit  Stage
	name string
}{
	{StageTopOfPipe, "TopOfPipe"},
	{StageFragmentShader, "FragmentShader"},
	{StageEarlyFragmentTests, "EarlyFragmentTests"},
	{StageColorAttachmentOutput, "ColorAttachmentOutput"},
	{StageTransfer, "Transfer"},
	{StageBlit, "Blit"},
	{StageBottomOfPipe, "BottomOfPipe"},
}

func (s Stage) String() string {
	if s == StageNone {
		return "None"
	}
	var parts []string
	for _, n := range stageNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Access is a set of memory access types.
type Access uint32

// Memory accesses.
const (
	AccessNone                 Access = 0
	AccessShaderRead           Access = 1 << 0
	AccessColorAttachmentWrite Access = 1 << 1
	AccessDepthStencilWrite    Access = 1 << 2
	AccessTransferRead         Access = 1 << 3
	AccessTransferWrite        Access = 1 << 4
)

var accessNames = []struct {
	bit  Access
	name string
}{
	{AccessShaderRead, "ShaderRead"},
	{AccessColorAttachmentWrite, "ColorAttachmentWrite"},
	{AccessDepthStencilWrite, "DepthStencilWrite"},
	{AccessTransferRead, "TransferRead"},
	{AccessTransferWrite, "TransferWrite"},
}

func (a Access) String() string {
	if a == AccessNone {
		return "None"
	}
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Barrier is one image layout transition with its execution and memory
// dependency. The tuples are part of the rendering protocol: each transition
// the renderer performs is built by one of the constructors below.
type Barrier struct {
	Texture   hal.Texture
	Aspect    gputypes.TextureAspect
	MipLevels uint32 // 0 means 1
	OldLayout Layout
	NewLayout Layout
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
}

// String formats the transition tuple.
func (b Barrier) String() string {
	return fmt.Sprintf("%s -> %s, %s/%s -> %s/%s",
		b.OldLayout, b.NewLayout, b.SrcStage, b.SrcAccess, b.DstStage, b.DstAccess)
}

// Tuple returns the barrier without its texture, for comparisons.
func (b Barrier) Tuple() Barrier {
	b.Texture = nil
	return b
}

// ColorAttachmentBarrier prepares an acquired swapchain image for rendering.
func ColorAttachmentBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutUndefined,
		NewLayout: LayoutColorAttachment,
		SrcStage:  StageColorAttachmentOutput | StageTopOfPipe,
		SrcAccess: AccessNone,
		DstStage:  StageColorAttachmentOutput,
		DstAccess: AccessColorAttachmentWrite,
	}
}

// PresentBarrier hands a rendered swapchain image to presentation.
func PresentBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutColorAttachment,
		NewLayout: LayoutPresentSrc,
		SrcStage:  StageColorAttachmentOutput,
		SrcAccess: AccessColorAttachmentWrite,
		DstStage:  StageBottomOfPipe,
		DstAccess: AccessNone,
	}
}

// TransferDstBarrier prepares a fresh image to receive a staging copy.
func TransferDstBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutUndefined,
		NewLayout: LayoutTransferDst,
		SrcStage:  StageTopOfPipe,
		SrcAccess: AccessNone,
		DstStage:  StageTransfer,
		DstAccess: AccessTransferWrite,
	}
}

// ShaderReadBarrier makes copied image data visible to fragment shaders.
func ShaderReadBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutTransferDst,
		NewLayout: LayoutShaderReadOnly,
		SrcStage:  StageTransfer,
		SrcAccess: AccessTransferWrite,
		DstStage:  StageFragmentShader,
		DstAccess: AccessShaderRead,
	}
}

// AttachmentInitBarrier moves a freshly created render target into the
// color attachment layout.
func AttachmentInitBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutUndefined,
		NewLayout: LayoutColorAttachment,
		SrcStage:  StageTopOfPipe,
		SrcAccess: AccessNone,
		DstStage:  StageColorAttachmentOutput,
		DstAccess: AccessColorAttachmentWrite,
	}
}

// GatherBarrier turns a sampled G-buffer target back into a color
// attachment for the geometry pass.
func GatherBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutShaderReadOnly,
		NewLayout: LayoutColorAttachment,
		SrcStage:  StageFragmentShader,
		SrcAccess: AccessShaderRead,
		DstStage:  StageColorAttachmentOutput,
		DstAccess: AccessColorAttachmentWrite,
	}
}

// ShadeBarrier makes a written G-buffer target readable by the shading pass.
func ShadeBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutColorAttachment,
		NewLayout: LayoutShaderReadOnly,
		SrcStage:  StageColorAttachmentOutput,
		SrcAccess: AccessColorAttachmentWrite,
		DstStage:  StageFragmentShader,
		DstAccess: AccessShaderRead,
	}
}

// BlitSourceBarrier prepares a shaded target to be blitted to the swapchain.
func BlitSourceBarrier(tex hal.Texture) Barrier {
	return Barrier{
		Texture:   tex,
		Aspect:    gputypes.TextureAspectAll,
		OldLayout: LayoutColorAttachment,
		NewLayout: LayoutTransferSrc,
		SrcStage:  StageColorAttachmentOutput,
		SrcAccess: AccessColorAttachmentWrite,
		DstStage:  StageBlit,
		DstAccess: AccessTransferRead,
	}
}

// halBarrier translates b for hal.CommandEncoder.TransitionTextures.
// It reports false for transitions the backend performs implicitly.
func (b Barrier) halBarrier() (hal.TextureBarrier, bool) {
	oldUsage, ok := b.OldLayout.usage()
	if !ok {
		return hal.TextureBarrier{}, false
	}
	newUsage, ok := b.NewLayout.usage()
	if !ok {
		return hal.TextureBarrier{}, false
	}
	aspect := b.Aspect
	if aspect == gputypes.TextureAspectUndefined {
		aspect = gputypes.TextureAspectAll
	}
	mips := b.MipLevels
	if mips == 0 {
		mips = 1
	}
	return hal.TextureBarrier{
		Texture: b.Texture,
		Range: hal.TextureRange{
			Aspect:          aspect,
			MipLevelCount:   mips,
			ArrayLayerCount: 1,
		},
		Usage: hal.TextureUsageTransition{
			OldUsage: oldUsage,
			NewUsage: newUsage,
		},
	}, true
}
