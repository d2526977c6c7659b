// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"math"
)

// TransformUniformSize is the byte size of one encoded transform: the model
// matrix followed by the normal matrix as three padded columns.
const TransformUniformSize = 64 + 48

// Transform places a model in the world as translation * rotation * scale.
// The matrices are recomputed on every change. The zero value is not ready
// for use; call NewTransform.
type Transform struct {
	translation [3]float32
	rotation    [3]float32
	scale       [3]float32

	model  [16]float32
	normal [9]float32
}

// NewTransform returns the identity transform.
func NewTransform() *Transform {
	t := &Transform{scale: [3]float32{1, 1, 1}}
	t.apply()
	return t
}

// Translation returns the translation.
func (t *Transform) Translation() [3]float32 { return t.translation }

// Rotation returns the Euler angles in radians.
func (t *Transform) Rotation() [3]float32 { return t.rotation }

// Scale returns the per-axis scale.
func (t *Transform) Scale() [3]float32 { return t.scale }

// SetTranslation replaces the translation.
func (t *Transform) SetTranslation(v [3]float32) {
	t.translation = v
	t.apply()
}

// Translate adds v to the translation.
func (t *Transform) Translate(v [3]float32) {
	t.SetTranslation(add3(t.translation, v))
}

// SetRotation replaces the rotation. Angles are radians around X, Y and Z,
// applied in that order.
func (t *Transform) SetRotation(v [3]float32) {
	t.rotation = v
	t.apply()
}

// Rotate adds v to the Euler angles.
func (t *Transform) Rotate(v [3]float32) {
	t.SetRotation(add3(t.rotation, v))
}

// SetScale replaces the scale.
func (t *Transform) SetScale(v [3]float32) {
	t.scale = v
	t.apply()
}

// Model returns the column-major model matrix.
func (t *Transform) Model() [16]float32 { return t.model }

// Normal returns the column-major inverse transpose of the model matrix's
// upper 3x3.
func (t *Transform) Normal() [9]float32 { return t.normal }

func add3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// apply rebuilds both matrices. The rotation is Rz * Ry * Rx.
func (t *Transform) apply() {
	sx, cx := sincos(t.rotation[0])
	sy, cy := sincos(t.rotation[1])
	sz, cz := sincos(t.rotation[2])

	// Columns of Rz * Ry * Rx.
	r := [3][3]float32{
		{cy * cz, cy * sz, -sy},
		{sx*sy*cz - cx*sz, sx*sy*sz + cx*cz, sx * cy},
		{cx*sy*cz + sx*sz, cx*sy*sz - sx*cz, cx * cy},
	}

	for c := range 3 {
		for k := range 3 {
			t.model[c*4+k] = r[c][k] * t.scale[c]
			// (R*S)^-T = R * S^-1. A zero scale collapses its column.
			var inv float32
			if t.scale[c] != 0 {
				inv = 1 / t.scale[c]
			}
			t.normal[c*3+k] = r[c][k] * inv
		}
		t.model[c*4+3] = 0
	}
	t.model[12], t.model[13], t.model[14], t.model[15] = t.translation[0], t.translation[1], t.translation[2], 1
}

func sincos(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(s), float32(c)
}

// EncodeUniform writes the transform block to dst.
func (t *Transform) EncodeUniform(dst []byte) {
	_ = dst[TransformUniformSize-1]
	le := binary.LittleEndian
	for i, v := range t.model {
		le.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	off := 64
	for c := range 3 {
		for k := range 3 {
			le.PutUint32(dst[off:], math.Float32bits(t.normal[c*3+k]))
			off += 4
		}
		le.PutUint32(dst[off:], 0)
		off += 4
	}
}
