// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracePass records the draw calls of a render pass.
type tracePass struct {
	noop.RenderPassEncoder
	calls []string
}

func (p *tracePass) SetVertexBuffer(slot uint32, _ hal.Buffer, offset uint64) {
	p.calls = append(p.calls, fmt.Sprintf("vb %d@%d", slot, offset))
}

func (p *tracePass) SetIndexBuffer(_ hal.Buffer, format gputypes.IndexFormat, offset uint64) {
	p.calls = append(p.calls, fmt.Sprintf("ib %v@%d", format, offset))
}

func (p *tracePass) DrawIndexed(count, instances, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.calls = append(p.calls, fmt.Sprintf("draw %d %d %d %d %d", count, instances, firstIndex, baseVertex, firstInstance))
}

func (p *tracePass) SetBindGroup(index uint32, _ hal.BindGroup, _ []uint32) {
	p.calls = append(p.calls, fmt.Sprintf("bind %d", index))
}

func triangle() ([]Vertex, []uint32) {
	return []Vertex{
		{Position: [3]float32{0, 1, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0.5, 0}},
		{Position: [3]float32{-1, -1, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0, 1}},
		{Position: [3]float32{1, -1, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{1, 1}},
	}, []uint32{0, 1, 2}
}

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, uint64(44), VertexSize)

	layout := VertexLayout()
	assert.Equal(t, VertexSize, layout.ArrayStride)
	require.Len(t, layout.Attributes, 4)

	offsets := []uint64{0, 12, 24, 36}
	for i, a := range layout.Attributes {
		assert.Equal(t, uint32(i), a.ShaderLocation) //nolint:gosec // G115: test index
		assert.Equal(t, offsets[i], a.Offset)
	}
	assert.Equal(t, gputypes.VertexFormatFloat32x2, layout.Attributes[3].Format)
}

func TestNewMeshStagesInTwoCycles(t *testing.T) {
	rc := openNoop(t)
	vertices, indices := triangle()

	m, err := NewMesh(rc, vertices, indices, nil)
	require.NoError(t, err)
	defer m.Destroy()

	assert.Equal(t, uint64(2), m.StagingCycles())
	assert.Equal(t, 3*VertexSize, m.VertexBuffer().Size())
	assert.Equal(t, uint64(12), m.IndexBuffer().Size())
	assert.Equal(t, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst, m.VertexBuffer().Usage())
	assert.Equal(t, gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst, m.IndexBuffer().Usage())
	assert.Nil(t, m.Material())

	stats := rc.Allocator.Stats()
	assert.Equal(t, 2, stats.Buffers, "the staging buffer is released after staging")
}

func TestMeshDraw(t *testing.T) {
	rc := openNoop(t)
	vertices, indices := triangle()
	m, err := NewMesh(rc, vertices, indices, nil)
	require.NoError(t, err)
	defer m.Destroy()

	pass := &tracePass{}
	m.Draw(pass, 7)
	assert.Equal(t, []string{
		"vb 0@0",
		fmt.Sprintf("ib %v@0", gputypes.IndexFormatUint32),
		"draw 3 1 0 0 7",
	}, pass.calls)
}

func TestNewMeshEmpty(t *testing.T) {
	rc := openNoop(t)
	vertices, _ := triangle()

	_, err := NewMesh(rc, vertices, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyMesh)
	_, err = NewMesh(rc, nil, []uint32{0}, nil)
	assert.ErrorIs(t, err, ErrEmptyMesh)
	assert.Zero(t, rc.Allocator.Stats().Buffers)
}

func TestMeshDestroyFreesBuffers(t *testing.T) {
	rc := openNoop(t)
	vertices, indices := triangle()
	m, err := NewMesh(rc, vertices, indices, nil)
	require.NoError(t, err)

	m.Destroy()
	assert.True(t, m.VertexBuffer().Destroyed())
	assert.True(t, m.IndexBuffer().Destroyed())
	assert.Zero(t, rc.Allocator.Stats().Buffers)
}
