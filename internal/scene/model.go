// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"github.com/gogpu/g3d/resource"
)

// Model is a named list of meshes placed by one transform. It owns one
// strong reference per mesh.
type Model struct {
	name      string
	meshes    []*resource.Ref[*Mesh]
	transform *Transform
}

// NewModel takes ownership of meshes. The model starts at the identity
// transform.
func NewModel(name string, meshes []*resource.Ref[*Mesh]) *Model {
	return &Model{name: name, meshes: meshes, transform: NewTransform()}
}

// Name returns the model name, usually its source path.
func (m *Model) Name() string { return m.name }

// Transform returns the transform applied to every mesh of the model.
func (m *Model) Transform() *Transform { return m.transform }

// Len returns the number of meshes.
func (m *Model) Len() int { return len(m.meshes) }

// Mesh returns the i-th mesh.
func (m *Model) Mesh(i int) *Mesh { return m.meshes[i].Value() }

// Meshes returns the live meshes in order.
func (m *Model) Meshes() []*Mesh {
	out := make([]*Mesh, 0, len(m.meshes))
	for _, r := range m.meshes {
		if mesh := r.Value(); mesh != nil {
			out = append(out, mesh)
		}
	}
	return out
}

// Release gives up the model's mesh references.
func (m *Model) Release() {
	for _, r := range m.meshes {
		r.Release()
	}
	m.meshes = nil
}
