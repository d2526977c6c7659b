package g3d

import "math"

// Vec3 is a 3-component vector.
type Vec3 [3]float32

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := float32(math.Sqrt(float64(v.Dot(v))))
	if l == 0 {
		return v
	}
	return Vec3{v[0] / l, v[1] / l, v[2] / l}
}

// Mat4 is a 4x4 matrix stored column-major, the layout WGSL expects:
//
//	| m[0] m[4] m[8]  m[12] |
//	| m[1] m[5] m[9]  m[13] |
//	| m[2] m[6] m[10] m[14] |
//	| m[3] m[7] m[11] m[15] |
type Mat4 [16]float32

// Identity4 returns the identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate4 creates a translation matrix.
func Translate4(x, y, z float32) Mat4 {
	m := Identity4()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale4 creates a scaling matrix.
func Scale4(x, y, z float32) Mat4 {
	m := Identity4()
	m[0], m[5], m[10] = x, y, z
	return m
}

// RotateY creates a rotation around the Y axis (angle in radians).
func RotateY(angle float32) Mat4 {
	sin, cos := math.Sincos(float64(angle))
	s, c := float32(sin), float32(cos)
	m := Identity4()
	m[0], m[2] = c, -s
	m[8], m[10] = s, c
	return m
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float32 { return m[c*4+r] }

// Multiply multiplies two matrices (m * other).
func (m Mat4) Multiply(other Mat4) Mat4 {
	var out Mat4
	for c := range 4 {
		for r := range 4 {
			var sum float32
			for k := range 4 {
				sum += m[k*4+r] * other[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// TransformPoint applies the transformation to a point and divides by w.
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	x := m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12]
	y := m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13]
	z := m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14]
	w := m[3]*p[0] + m[7]*p[1] + m[11]*p[2] + m[15]
	if w != 0 && w != 1 {
		x, y, z = x/w, y/w, z/w
	}
	return Vec3{x, y, z}
}

// Invert returns the inverse matrix, or ErrSingularMatrix.
func (m Mat4) Invert() (Mat4, error) {
	// The flat array read row-major is the transpose, and the inverse of
	// the transpose is the transpose of the inverse, so the row-major
	// cofactor expansion applies unchanged.
	var a [4][4]float64
	for i, v := range m {
		a[i/4][i%4] = float64(v)
	}
	s0 := a[0][0]*a[1][1] - a[1][0]*a[0][1]
	s1 := a[0][0]*a[1][2] - a[1][0]*a[0][2]
	s2 := a[0][0]*a[1][3] - a[1][0]*a[0][3]
	s3 := a[0][1]*a[1][2] - a[1][1]*a[0][2]
	s4 := a[0][1]*a[1][3] - a[1][1]*a[0][3]
	s5 := a[0][2]*a[1][3] - a[1][2]*a[0][3]
	c5 := a[2][2]*a[3][3] - a[3][2]*a[2][3]
	c4 := a[2][1]*a[3][3] - a[3][1]*a[2][3]
	c3 := a[2][1]*a[3][2] - a[3][1]*a[2][2]
	c2 := a[2][0]*a[3][3] - a[3][0]*a[2][3]
	c1 := a[2][0]*a[3][2] - a[3][0]*a[2][2]
	c0 := a[2][0]*a[3][1] - a[3][0]*a[2][1]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if math.Abs(det) < 1e-12 {
		return Mat4{}, ErrSingularMatrix
	}
	inv := 1 / det

	b := [16]float64{
		a[1][1]*c5 - a[1][2]*c4 + a[1][3]*c3,
		-a[0][1]*c5 + a[0][2]*c4 - a[0][3]*c3,
		a[3][1]*s5 - a[3][2]*s4 + a[3][3]*s3,
		-a[2][1]*s5 + a[2][2]*s4 - a[2][3]*s3,

		-a[1][0]*c5 + a[1][2]*c2 - a[1][3]*c1,
		a[0][0]*c5 - a[0][2]*c2 + a[0][3]*c1,
		-a[3][0]*s5 + a[3][2]*s2 - a[3][3]*s1,
		a[2][0]*s5 - a[2][2]*s2 + a[2][3]*s1,

		a[1][0]*c4 - a[1][1]*c2 + a[1][3]*c0,
		-a[0][0]*c4 + a[0][1]*c2 - a[0][3]*c0,
		a[3][0]*s4 - a[3][1]*s2 + a[3][3]*s0,
		-a[2][0]*s4 + a[2][1]*s2 - a[2][3]*s0,

		-a[1][0]*c3 + a[1][1]*c1 - a[1][2]*c0,
		a[0][0]*c3 - a[0][1]*c1 + a[0][2]*c0,
		-a[3][0]*s3 + a[3][1]*s1 - a[3][2]*s0,
		a[2][0]*s3 - a[2][1]*s1 + a[2][2]*s0,
	}
	var out Mat4
	for i, v := range b {
		out[i] = float32(v * inv)
	}
	return out, nil
}

// IsIdentity returns true if the matrix is the identity matrix.
func (m Mat4) IsIdentity() bool { return m == Identity4() }

// LookAt creates a right-handed view matrix looking from eye at center.
func LookAt(eye, center, up Vec3) Mat4 {
	f := center.Sub(eye).Normalize()
	s := f.Cross(up).Normalize()
	u := s.Cross(f)
	return Mat4{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1,
	}
}

// Perspective creates a right-handed projection with depth mapped to
// [0, 1]. fovY is in radians.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	t := float32(math.Tan(float64(fovY) / 2))
	var m Mat4
	m[0] = 1 / (aspect * t)
	m[5] = 1 / t
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = -(far * near) / (far - near)
	return m
}
