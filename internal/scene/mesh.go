// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrEmptyMesh is returned when creating a mesh without vertices or indices.
var ErrEmptyMesh = errors.New("scene: mesh has no vertices or indices")

// Vertex is the interleaved vertex format of every mesh.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	Tangent  [3]float32
	UV       [2]float32
}

// VertexSize is the byte stride of Vertex.
const VertexSize = uint64(unsafe.Sizeof(Vertex{}))

// VertexLayout describes Vertex to a render pipeline.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexSize,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: uint64(unsafe.Offsetof(Vertex{}.Position)), ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: uint64(unsafe.Offsetof(Vertex{}.Normal)), ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x3, Offset: uint64(unsafe.Offsetof(Vertex{}.Tangent)), ShaderLocation: 2},
			{Format: gputypes.VertexFormatFloat32x2, Offset: uint64(unsafe.Offsetof(Vertex{}.UV)), ShaderLocation: 3},
		},
	}
}

// Mesh is an indexed triangle list in device-local vertex and index
// buffers. It holds a strong reference on its material.
type Mesh struct {
	resource.Base

	vertices []Vertex
	indices  []uint32
	material *resource.Ref[*Material]

	vertexBuf *gpu.Buffer
	indexBuf  *gpu.Buffer

	stagingCycles uint64
}

// NewMesh creates the buffers of a mesh and stages the geometry into them.
// The mesh takes ownership of material, which may be nil.
//
// A staging buffer sized to the larger of the two buffers feeds both in two
// transfer cycles.
func NewMesh(rc *gpu.RenderContext, vertices []Vertex, indices []uint32, material *resource.Ref[*Material]) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		material.Release()
		return nil, ErrEmptyMesh
	}
	m := &Mesh{vertices: vertices, indices: indices, material: material}

	vbData := unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), uint64(len(vertices))*VertexSize)
	ibData := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)

	var err error
	m.vertexBuf, err = gpu.CreateBuffer(rc, gpu.BufferDesc{
		Label: "mesh vertices",
		Size:  uint64(len(vbData)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		m.Destroy()
		return nil, err
	}
	m.indexBuf, err = gpu.CreateBuffer(rc, gpu.BufferDesc{
		Label: "mesh indices",
		Size:  uint64(len(ibData)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		m.Destroy()
		return nil, err
	}

	staging, err := gpu.NewStagingBuffer(rc, uint64(max(len(vbData), len(ibData))))
	if err != nil {
		m.Destroy()
		return nil, err
	}
	defer func() { _ = staging.Destroy() }()

	if err := staging.UploadBatch([]gpu.Upload{
		gpu.BufferUpload(m.vertexBuf, 0, vbData),
		gpu.BufferUpload(m.indexBuf, 0, ibData),
	}); err != nil {
		m.Destroy()
		return nil, fmt.Errorf("scene: stage mesh: %w", err)
	}
	m.stagingCycles = staging.Cycles()
	return m, nil
}

// Vertices returns the host copy of the vertices.
func (m *Mesh) Vertices() []Vertex { return m.vertices }

// Indices returns the host copy of the indices.
func (m *Mesh) Indices() []uint32 { return m.indices }

// Material returns the mesh material, nil if none.
func (m *Mesh) Material() *Material { return m.material.Value() }

// VertexBuffer returns the device vertex buffer.
func (m *Mesh) VertexBuffer() *gpu.Buffer { return m.vertexBuf }

// IndexBuffer returns the device index buffer.
func (m *Mesh) IndexBuffer() *gpu.Buffer { return m.indexBuf }

// StagingCycles returns how many transfers staged the geometry.
func (m *Mesh) StagingCycles() uint64 { return m.stagingCycles }

// Draw binds the buffers and records one indexed draw. firstInstance carries
// the material index to the shader.
func (m *Mesh) Draw(pass hal.RenderPassEncoder, firstInstance uint32) {
	pass.SetVertexBuffer(0, m.vertexBuf.Raw(), 0)
	pass.SetIndexBuffer(m.indexBuf.Raw(), gputypes.IndexFormatUint32, 0)
	pass.DrawIndexed(uint32(len(m.indices)), 1, 0, 0, firstInstance) //nolint:gosec // G115: index count fits the buffer size
}

// Destroy frees the buffers and releases the material.
func (m *Mesh) Destroy() {
	if m.vertexBuf != nil {
		m.vertexBuf.Destroy()
	}
	if m.indexBuf != nil {
		m.indexBuf.Destroy()
	}
	m.material.Release()
	m.material = nil
}
