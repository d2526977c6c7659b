package g3d

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/internal/scene"
)

// Bind group indices of the mesh pipeline.
const (
	frameGroup    = 0
	materialGroup = 1
)

// Frame bind group bindings.
const (
	cameraBinding     = 0
	materialsBinding  = 1
	transformsBinding = 2
)

// idMapFormat is the format of the object id target.
const idMapFormat = gputypes.TextureFormatR32Uint

// meshPipeline draws scene meshes into the swapchain image and the id map.
type meshPipeline struct {
	rc *gpu.RenderContext

	frameLayout hal.BindGroupLayout
	layout      hal.PipelineLayout
	shader      hal.ShaderModule
	pipeline    hal.RenderPipeline
	format      gputypes.TextureFormat

	// frameGroups holds one bind group per frame slot.
	frameGroups []hal.BindGroup
}

func newMeshPipeline(rc *gpu.RenderContext, materialLayout hal.BindGroupLayout, u *uniforms, format gputypes.TextureFormat) (*meshPipeline, error) {
	p := &meshPipeline{rc: rc}
	if err := p.init(materialLayout, u); err != nil {
		p.destroy()
		return nil, err
	}
	if err := p.build(format); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *meshPipeline) init(materialLayout hal.BindGroupLayout, u *uniforms) error {
	device := p.rc.Device

	// Binding 0: camera (vertex+fragment)
	// Binding 1: material array (fragment)
	// Binding 2: per-draw transforms (vertex)
	frameLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "frame",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    cameraBinding,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    materialsBinding,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    transformsBinding,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("g3d: create frame layout: %w", err)
	}
	p.frameLayout = frameLayout

	for i := range u.camera {
		group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("frame %d", i),
			Layout: p.frameLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: cameraBinding, Resource: gputypes.BufferBinding{
					Buffer: u.camera[i].Raw().NativeHandle(), Offset: 0, Size: u.camera[i].Size(),
				}},
				{Binding: materialsBinding, Resource: gputypes.BufferBinding{
					Buffer: u.materials[i].Raw().NativeHandle(), Offset: 0, Size: u.materials[i].Size(),
				}},
				{Binding: transformsBinding, Resource: gputypes.BufferBinding{
					Buffer: u.transforms[i].Raw().NativeHandle(), Offset: 0, Size: u.transforms[i].Size(),
				}},
			},
		})
		if err != nil {
			return fmt.Errorf("g3d: create frame bind group %d: %w", i, err)
		}
		p.frameGroups = append(p.frameGroups, group)
	}

	layout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "mesh",
		BindGroupLayouts: []hal.BindGroupLayout{p.frameLayout, materialLayout},
	})
	if err != nil {
		return fmt.Errorf("g3d: create mesh pipeline layout: %w", err)
	}
	p.layout = layout

	p.shader, err = p.rc.ShaderModule("mesh", meshShaderSource(u.limit))
	if err != nil {
		return fmt.Errorf("g3d: mesh shader: %w", err)
	}
	return nil
}

// build creates the pipeline for a swapchain format. It is a no-op when the
// format did not change.
func (p *meshPipeline) build(format gputypes.TextureFormat) error {
	if p.pipeline != nil && p.format == format {
		return nil
	}
	pipeline, err := p.rc.Device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "mesh",
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers:    []gputypes.VertexBufferLayout{scene.VertexLayout()},
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: format, WriteMask: gputypes.ColorWriteMaskAll},
				{Format: idMapFormat, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth32Float,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
		},
		// Front faces are counter-clockwise, the zero FrontFace.
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeBack,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("g3d: create mesh pipeline for %v: %w", format, err)
	}
	if p.pipeline != nil {
		p.rc.Device.DestroyRenderPipeline(p.pipeline)
	}
	p.pipeline = pipeline
	p.format = format
	return nil
}

// destroy releases the pipeline objects. The shader module belongs to the
// context cache.
func (p *meshPipeline) destroy() {
	device := p.rc.Device
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	for _, g := range p.frameGroups {
		device.DestroyBindGroup(g)
	}
	p.frameGroups = nil
	if p.frameLayout != nil {
		device.DestroyBindGroupLayout(p.frameLayout)
		p.frameLayout = nil
	}
}
