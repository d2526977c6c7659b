// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/g3d/resource"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Slot is a material texture binding.
type Slot uint8

// Material texture slots.
const (
	SlotDiffuse   Slot = 0
	SlotSpecular  Slot = 1
	SlotNormal    Slot = 2
	SlotShininess Slot = 3

	// SlotInvalid marks a map handle with no texture bound.
	SlotInvalid Slot = 255
)

// SlotCount is the number of texture slots of a material.
const SlotCount = 4

// SamplerBinding is the binding index of the shared sampler in the
// material bind group; textures use bindings 0 to SlotCount-1.
const SamplerBinding = SlotCount

var slotNames = [SlotCount]string{"diffuse", "specular", "normal", "shininess"}

func (s Slot) String() string {
	if s < SlotCount {
		return slotNames[s]
	}
	if s == SlotInvalid {
		return "invalid"
	}
	return fmt.Sprintf("Slot(%d)", uint8(s))
}

// ErrInvalidSlot is returned when addressing a texture slot out of range.
var ErrInvalidSlot = errors.New("scene: invalid material texture slot")

// MaterialProps are the scalar material parameters.
type MaterialProps struct {
	Diffuse     [3]float32
	Specular    [3]float32
	Emission    [3]float32
	Attenuation [3]float32
	Shininess   float32
	IOR         float32
}

// MaterialUniformSize is the byte size of one encoded material block.
const MaterialUniformSize = 80

// Material is a set of scalar parameters and up to four textures, bound as
// one bind group. It holds strong references on its textures.
type Material struct {
	resource.Base

	props    MaterialProps
	textures [SlotCount]*resource.Ref[*Texture]

	device    hal.Device
	bindGroup hal.BindGroup
}

// NewMaterial creates an unbound material. It takes ownership of the
// non-nil texture refs.
func NewMaterial(props MaterialProps, textures [SlotCount]*resource.Ref[*Texture]) *Material {
	return &Material{props: props, textures: textures}
}

// Props returns the scalar parameters.
func (m *Material) Props() MaterialProps { return m.props }

// SetProps replaces the scalar parameters.
func (m *Material) SetProps(p MaterialProps) { m.props = p }

// Texture returns the texture in slot, nil when empty.
func (m *Material) Texture(slot Slot) (*Texture, error) {
	if slot >= SlotCount {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlot, slot)
	}
	return m.textures[slot].Value(), nil
}

// SetTexture puts tex into slot, releasing the previous texture. The
// material takes ownership of tex. Call Bind afterwards to update the bind
// group.
func (m *Material) SetTexture(slot Slot, tex *resource.Ref[*Texture]) error {
	if slot >= SlotCount {
		tex.Release()
		return fmt.Errorf("%w: %v", ErrInvalidSlot, slot)
	}
	m.textures[slot].Release()
	m.textures[slot] = tex
	return nil
}

// MapHandle returns the shader-side handle of slot: the slot index when a
// texture is bound, SlotInvalid otherwise.
func (m *Material) MapHandle(slot Slot) uint32 {
	if slot < SlotCount && m.textures[slot] != nil {
		return uint32(slot)
	}
	return uint32(SlotInvalid)
}

// EncodeUniform writes the 80-byte std140 block of the material to dst.
func (m *Material) EncodeUniform(dst []byte) {
	_ = dst[MaterialUniformSize-1]
	le := binary.LittleEndian
	putVec3 := func(off int, v [3]float32) {
		le.PutUint32(dst[off:], math.Float32bits(v[0]))
		le.PutUint32(dst[off+4:], math.Float32bits(v[1]))
		le.PutUint32(dst[off+8:], math.Float32bits(v[2]))
	}
	p := m.props
	putVec3(0, p.Diffuse)
	le.PutUint32(dst[12:], math.Float32bits(p.Shininess))
	putVec3(16, p.Specular)
	le.PutUint32(dst[28:], math.Float32bits(p.IOR))
	putVec3(32, p.Emission)
	le.PutUint32(dst[44:], m.MapHandle(SlotDiffuse))
	putVec3(48, p.Attenuation)
	le.PutUint32(dst[60:], m.MapHandle(SlotSpecular))
	le.PutUint32(dst[64:], m.MapHandle(SlotShininess))
	le.PutUint32(dst[68:], m.MapHandle(SlotNormal))
	le.PutUint32(dst[72:], 0)
	le.PutUint32(dst[76:], 0)
}

// NewMaterialLayout creates the material bind group layout: one sampled
// texture per slot and the shared sampler, all fragment visible.
func NewMaterialLayout(device hal.Device) (hal.BindGroupLayout, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, SlotCount+1)
	for i := range uint32(SlotCount) {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    i,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    SamplerBinding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "material",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("scene: create material layout: %w", err)
	}
	return layout, nil
}

// Bind (re)creates the material bind group. Empty slots get dummy.
func (m *Material) Bind(device hal.Device, layout hal.BindGroupLayout, sampler hal.Sampler, dummy *Texture) error {
	entries := make([]gputypes.BindGroupEntry, 0, SlotCount+1)
	for i, ref := range m.textures {
		tex := ref.Value()
		if tex == nil {
			tex = dummy
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // G115: i < SlotCount
			Resource: gputypes.TextureViewBinding{TextureView: tex.View().NativeHandle()},
		})
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  SamplerBinding,
		Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
	})

	group, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "material " + m.Name(),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("scene: bind material %q: %w", m.Name(), err)
	}
	m.releaseBindGroup()
	m.device = device
	m.bindGroup = group
	return nil
}

// BindGroup returns the bind group created by Bind, nil before.
func (m *Material) BindGroup() hal.BindGroup { return m.bindGroup }

func (m *Material) releaseBindGroup() {
	if m.bindGroup != nil {
		m.device.DestroyBindGroup(m.bindGroup)
		m.bindGroup = nil
	}
}

// Destroy frees the bind group and releases the textures.
func (m *Material) Destroy() {
	m.releaseBindGroup()
	for i := range m.textures {
		m.textures[i].Release()
		m.textures[i] = nil
	}
}
