// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/gputypes"
)

// G-buffer sub-texture name suffixes.
const (
	AlbedoSuffix  = "_albedo"
	NormalSuffix  = "_normal"
	DepthSuffix   = "_depth"
	ObjectSuffix  = "_obj_id"
	ShadingSuffix = "_shading_target"
)

// G-buffer formats.
const (
	AlbedoFormat  = gputypes.TextureFormatRGBA8Unorm
	NormalFormat  = gputypes.TextureFormatRGBA16Float
	DepthFormat   = gputypes.TextureFormatDepth32Float
	ObjectFormat  = gputypes.TextureFormatR32Uint
	ShadingFormat = gputypes.TextureFormatRGBA8Unorm
)

const attachmentUsage = gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageCopySrc

// GBuffer is a bundle of render targets for deferred shading. Each target
// is registered in the texture registry under the bundle name plus a
// suffix; the bundle holds the strong references.
type GBuffer struct {
	resource.Base

	width, height uint32

	albedo  *resource.Ref[*Texture]
	normal  *resource.Ref[*Texture]
	depth   *resource.Ref[*Texture]
	objects *resource.Ref[*Texture]
	shading *resource.Ref[*Texture]
}

type targetSpec struct {
	dst    **resource.Ref[*Texture]
	suffix string
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
	aspect gputypes.TextureAspect
}

// newGBuffer registers the targets of a bundle named name and moves the
// albedo and object id maps into the color attachment layout.
func newGBuffer(rc *gpu.RenderContext, textures *resource.Registry[*Texture], name string, width, height uint32) (*GBuffer, error) {
	g := &GBuffer{width: width, height: height}
	specs := []targetSpec{
		{&g.albedo, AlbedoSuffix, AlbedoFormat, attachmentUsage, 0},
		{&g.normal, NormalSuffix, NormalFormat, attachmentUsage, 0},
		{&g.depth, DepthSuffix, DepthFormat,
			gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment,
			gputypes.TextureAspectDepthOnly},
		{&g.objects, ObjectSuffix, ObjectFormat,
			gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc, 0},
		{&g.shading, ShadingSuffix, ShadingFormat,
			gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc, 0},
	}
	for _, s := range specs {
		label := name + s.suffix
		ref, err := textures.Register(label, func() (*Texture, error) {
			return NewTexture(rc, nil, TextureDesc{
				Label:  label,
				Width:  width,
				Height: height,
				Format: s.format,
				Usage:  s.usage,
				Aspect: s.aspect,
			})
		})
		if err != nil {
			g.Destroy()
			return nil, fmt.Errorf("scene: g-buffer %q: %w", name, err)
		}
		*s.dst = ref
	}

	t, err := rc.BeginTransfer("g-buffer init")
	if err != nil {
		g.Destroy()
		return nil, err
	}
	t.Recorder().Barrier(
		gpu.AttachmentInitBarrier(g.Albedo().Image().Raw()),
		gpu.AttachmentInitBarrier(g.Objects().Image().Raw()),
	)
	if err := t.SubmitAndWait(); err != nil {
		g.Destroy()
		return nil, fmt.Errorf("scene: g-buffer %q init: %w", name, err)
	}
	return g, nil
}

// Width returns the width of every target.
func (g *GBuffer) Width() uint32 { return g.width }

// Height returns the height of every target.
func (g *GBuffer) Height() uint32 { return g.height }

// Albedo returns the albedo target.
func (g *GBuffer) Albedo() *Texture { return g.albedo.Value() }

// Normal returns the normal target.
func (g *GBuffer) Normal() *Texture { return g.normal.Value() }

// Depth returns the depth target.
func (g *GBuffer) Depth() *Texture { return g.depth.Value() }

// Objects returns the object id target.
func (g *GBuffer) Objects() *Texture { return g.objects.Value() }

// Shading returns the shading target blitted to the swapchain.
func (g *GBuffer) Shading() *Texture { return g.shading.Value() }

// TransitionToGather prepares the targets for the geometry pass.
func (g *GBuffer) TransitionToGather(rec *gpu.Recorder) {
	rec.Barrier(gpu.GatherBarrier(g.Albedo().Image().Raw()))
}

// TransitionToShade makes the geometry pass output readable by shading.
func (g *GBuffer) TransitionToShade(rec *gpu.Recorder) {
	rec.Barrier(gpu.ShadeBarrier(g.Albedo().Image().Raw()))
}

// TransitionToBlit prepares the shading target to be blitted.
func (g *GBuffer) TransitionToBlit(rec *gpu.Recorder) {
	rec.Barrier(gpu.BlitSourceBarrier(g.Shading().Image().Raw()))
}

// Destroy releases the targets. A target is freed once no other holder
// references it.
func (g *GBuffer) Destroy() {
	for _, ref := range []**resource.Ref[*Texture]{&g.albedo, &g.normal, &g.depth, &g.objects, &g.shading} {
		(*ref).Release()
		*ref = nil
	}
}
