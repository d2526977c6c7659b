package g3d

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/g3d/internal/gpu"
	"github.com/gogpu/g3d/internal/scene"
)

// CameraUniformSize is the byte size of the camera block: view, projection,
// view-projection and its inverse, then the eye position padded to 16.
const CameraUniformSize = 4*64 + 16

// CameraUniform is the camera as the shaders see it.
type CameraUniform struct {
	View Mat4
	Proj Mat4
	Eye  Vec3
}

// Encode writes the camera block to dst. The view-projection matrix and its
// inverse are derived from View and Proj.
func (c CameraUniform) Encode(dst []byte) error {
	_ = dst[CameraUniformSize-1]
	viewProj := c.Proj.Multiply(c.View)
	inv, err := viewProj.Invert()
	if err != nil {
		return fmt.Errorf("g3d: camera: %w", err)
	}
	le := binary.LittleEndian
	off := 0
	for _, m := range [...]Mat4{c.View, c.Proj, viewProj, inv} {
		for _, v := range m {
			le.PutUint32(dst[off:], math.Float32bits(v))
			off += 4
		}
	}
	for _, v := range c.Eye {
		le.PutUint32(dst[off:], math.Float32bits(v))
		off += 4
	}
	le.PutUint32(dst[off:], 0)
	return nil
}

// Camera places a perspective viewer looking at a target.
type Camera struct {
	Eye    Vec3
	Target Vec3
	Up     Vec3

	// FovY is the vertical field of view in radians.
	FovY float32
	Near float32
	Far  float32
}

// DefaultCamera looks at the origin from +Z.
func DefaultCamera() Camera {
	return Camera{
		Eye:  Vec3{0, 0, 3},
		Up:   Vec3{0, 1, 0},
		FovY: math.Pi / 4,
		Near: 0.1,
		Far:  100,
	}
}

// Uniform returns the camera matrices for the aspect ratio.
func (c Camera) Uniform(aspect float32) CameraUniform {
	if aspect <= 0 {
		aspect = 1
	}
	return CameraUniform{
		View: LookAt(c.Eye, c.Target, c.Up),
		Proj: Perspective(c.FovY, aspect, c.Near, c.Far),
		Eye:  c.Eye,
	}
}

// uniforms holds the camera, material and transform blocks of every frame
// slot. The CPU copy is written immediately; each slot's buffers are
// refreshed from it in flush, after the slot's fence was waited.
type uniforms struct {
	limit     int
	drawLimit int

	camera     []*gpu.Buffer
	materials  []*gpu.Buffer
	transforms []*gpu.Buffer

	cameraData     [CameraUniformSize]byte
	materialData   []byte
	transformData  []byte
	transformLen   int
	cameraDirty    []bool
	materialDirty  []bool
	transformDirty []bool

	// index maps a material to its array element; users counts the draw
	// list entries referencing it.
	index map[*scene.Material]uint32
	users map[*scene.Material]int
	free  []uint32
	next  uint32
}

func newUniforms(rc *gpu.RenderContext, slots, limit, drawLimit int) (*uniforms, error) {
	u := &uniforms{
		limit:          limit,
		drawLimit:      drawLimit,
		materialData:   make([]byte, limit*scene.MaterialUniformSize),
		transformData:  make([]byte, drawLimit*scene.TransformUniformSize),
		cameraDirty:    make([]bool, slots),
		materialDirty:  make([]bool, slots),
		transformDirty: make([]bool, slots),
		index:          make(map[*scene.Material]uint32),
		users:          make(map[*scene.Material]int),
	}
	for i := range slots {
		u.materialDirty[i] = true
		cam, err := gpu.CreateBuffer(rc, gpu.BufferDesc{
			Label: fmt.Sprintf("camera %d", i),
			Size:  CameraUniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			u.destroy()
			return nil, err
		}
		u.camera = append(u.camera, cam)
		mat, err := gpu.CreateBuffer(rc, gpu.BufferDesc{
			Label: fmt.Sprintf("materials %d", i),
			Size:  uint64(len(u.materialData)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			u.destroy()
			return nil, err
		}
		u.materials = append(u.materials, mat)
		tr, err := gpu.CreateBuffer(rc, gpu.BufferDesc{
			Label: fmt.Sprintf("transforms %d", i),
			Size:  uint64(len(u.transformData)),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			u.destroy()
			return nil, err
		}
		u.transforms = append(u.transforms, tr)
	}
	return u, nil
}

func (u *uniforms) setCamera(c CameraUniform) error {
	if err := c.Encode(u.cameraData[:]); err != nil {
		return err
	}
	for i := range u.cameraDirty {
		u.cameraDirty[i] = true
	}
	return nil
}

// acquire returns the array element of m, assigning one on first use.
func (u *uniforms) acquire(m *scene.Material) (uint32, error) {
	if idx, ok := u.index[m]; ok {
		u.users[m]++
		return idx, nil
	}
	var idx uint32
	switch {
	case len(u.free) > 0:
		idx = u.free[len(u.free)-1]
		u.free = u.free[:len(u.free)-1]
	case int(u.next) < u.limit:
		idx = u.next
		u.next++
	default:
		return 0, fmt.Errorf("%w: %d materials", ErrMaterialLimit, u.limit)
	}
	u.index[m] = idx
	u.users[m] = 1
	u.encode(m, idx)
	return idx, nil
}

// release drops one use of m and frees its element after the last.
func (u *uniforms) release(m *scene.Material) {
	n, ok := u.users[m]
	if !ok {
		return
	}
	if n > 1 {
		u.users[m] = n - 1
		return
	}
	u.free = append(u.free, u.index[m])
	delete(u.users, m)
	delete(u.index, m)
}

// refresh re-encodes m after its properties or maps changed.
func (u *uniforms) refresh(m *scene.Material) bool {
	idx, ok := u.index[m]
	if ok {
		u.encode(m, idx)
	}
	return ok
}

func (u *uniforms) encode(m *scene.Material, idx uint32) {
	off := int(idx) * scene.MaterialUniformSize
	m.EncodeUniform(u.materialData[off : off+scene.MaterialUniformSize])
	for i := range u.materialDirty {
		u.materialDirty[i] = true
	}
}

// setTransforms encodes the transform of every draw at its draw list
// position. Slots are marked dirty only when a block changed.
func (u *uniforms) setTransforms(draws []drawItem) {
	var block [scene.TransformUniformSize]byte
	n := len(draws) * scene.TransformUniformSize
	changed := n != u.transformLen
	for i, d := range draws {
		d.transform.EncodeUniform(block[:])
		dst := u.transformData[i*scene.TransformUniformSize : (i+1)*scene.TransformUniformSize]
		if !bytes.Equal(dst, block[:]) {
			copy(dst, block[:])
			changed = true
		}
	}
	u.transformLen = n
	if changed {
		for i := range u.transformDirty {
			u.transformDirty[i] = true
		}
	}
}

// flush uploads the blocks slot has not seen yet.
func (u *uniforms) flush(slot int) error {
	if u.cameraDirty[slot] {
		if err := u.camera[slot].Write(0, u.cameraData[:]); err != nil {
			return err
		}
		u.cameraDirty[slot] = false
	}
	if u.materialDirty[slot] {
		if err := u.materials[slot].Write(0, u.materialData); err != nil {
			return err
		}
		u.materialDirty[slot] = false
	}
	if u.transformDirty[slot] {
		if u.transformLen > 0 {
			if err := u.transforms[slot].Write(0, u.transformData[:u.transformLen]); err != nil {
				return err
			}
		}
		u.transformDirty[slot] = false
	}
	return nil
}

func (u *uniforms) destroy() {
	for _, b := range u.camera {
		b.Destroy()
	}
	for _, b := range u.materials {
		b.Destroy()
	}
	for _, b := range u.transforms {
		b.Destroy()
	}
	u.camera, u.materials, u.transforms = nil, nil, nil
}
