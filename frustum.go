package sdfmarch

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// Rows of the matrix returned by [Frustum]. The order is part of the kernel contract.
const (
	RowTopLeft = iota
	RowTopRight
	RowBottomRight
	RowBottomLeft
)

// Frustum returns a matrix whose rows are the view space directions to the four
// corners of the view frustum at unit distance, in the order top-left, top-right,
// bottom-right, bottom-left. The camera looks down -Z. fov is the vertical field of view in degrees.
func Frustum(fov, aspect float32) ms3.Mat4 {
	r := math32.Tan(fov * 0.5 * math32.Pi / 180)
	right := ms3.Vec{X: r * aspect}
	up := ms3.Vec{Y: r}
	forward := ms3.Vec{Z: -1}

	var corners [4]ms3.Vec
	corners[RowTopLeft] = ms3.Add(ms3.Sub(forward, right), up)
	corners[RowTopRight] = ms3.Add(ms3.Add(forward, right), up)
	corners[RowBottomRight] = ms3.Sub(ms3.Add(forward, right), up)
	corners[RowBottomLeft] = ms3.Sub(ms3.Sub(forward, right), up)
	var rows [16]float32
	for i, c := range corners {
		rows[4*i] = c.X
		rows[4*i+1] = c.Y
		rows[4*i+2] = c.Z
	}
	return ms3.NewMat4(rows[:])
}

// FrustumCorner returns row i of a frustum matrix as a direction.
func FrustumCorner(frustum ms3.Mat4, i int) ms3.Vec {
	a := frustum.Array()
	return ms3.Vec{X: a[4*i], Y: a[4*i+1], Z: a[4*i+2]}
}

// Camera holds the intrinsics and placement of the rendering camera for one frame.
type Camera struct {
	// FieldOfView is the vertical field of view in degrees.
	FieldOfView float32
	// Aspect is the viewport width divided by its height.
	Aspect float32
	// CameraToWorld transforms view space to world space.
	CameraToWorld ms3.Mat4
}

// LookAt returns a camera-to-world matrix for a camera at eye looking at target.
// View space looks down -Z with +Y up.
func LookAt(eye, target, up ms3.Vec) ms3.Mat4 {
	f := ms3.Sub(target, eye)
	if ms3.Norm(f) < epstol {
		f = ms3.Vec{Z: -1}
	}
	f = ms3.Unit(f)
	r := ms3.Cross(f, up)
	if ms3.Norm(r) < epstol {
		// up is parallel to view direction, pick any perpendicular.
		r = ms3.Cross(f, ms3.Vec{X: 1})
		if ms3.Norm(r) < epstol {
			r = ms3.Cross(f, ms3.Vec{Z: 1})
		}
	}
	r = ms3.Unit(r)
	u := ms3.Cross(r, f)
	return ms3.NewMat4([]float32{
		r.X, u.X, -f.X, eye.X,
		r.Y, u.Y, -f.Y, eye.Y,
		r.Z, u.Z, -f.Z, eye.Z,
		0, 0, 0, 1,
	})
}

// Position returns the camera's world position.
func (c *Camera) Position() ms3.Vec {
	a := c.CameraToWorld.Array()
	return ms3.Vec{X: a[3], Y: a[7], Z: a[11]}
}

// DirectionToWorld transforms a view space direction to world space, ignoring translation.
func (c *Camera) DirectionToWorld(v ms3.Vec) ms3.Vec {
	return MulDirection(c.CameraToWorld, v)
}

// MulDirection multiplies the upper 3x3 part of m with v.
func MulDirection(m ms3.Mat4, v ms3.Vec) ms3.Vec {
	a := m.Array()
	return ms3.Vec{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z,
		Y: a[4]*v.X + a[5]*v.Y + a[6]*v.Z,
		Z: a[8]*v.X + a[9]*v.Y + a[10]*v.Z,
	}
}
