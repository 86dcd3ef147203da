package glrender

import (
	"errors"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Vertex is a corner of a [Quad].
type Vertex struct {
	TexCoord ms2.Vec
	// Pos holds the position in the quad's ortho space in X and Y.
	// Z is the row of the frustum matrix holding the corner's ray.
	Pos ms3.Vec
}

// Quad is a rectangle drawn as a triangle fan in vertex order under an orthographic projection.
type Quad struct {
	Ortho    ms3.Mat4
	Vertices [4]Vertex
}

// FullScreenQuad returns the quad covering the whole render target. Vertices are in order
// bottom-left, bottom-right, top-right, top-left and each carries the frustum
// row of its corner ray: 3, 2, 1 and 0 respectively.
func FullScreenQuad() Quad {
	return Quad{
		Ortho: Ortho(0, 1, 0, 1, -1, 100),
		Vertices: [4]Vertex{
			{TexCoord: ms2.Vec{X: 0, Y: 0}, Pos: ms3.Vec{X: 0, Y: 0, Z: 3}},
			{TexCoord: ms2.Vec{X: 1, Y: 0}, Pos: ms3.Vec{X: 1, Y: 0, Z: 2}},
			{TexCoord: ms2.Vec{X: 1, Y: 1}, Pos: ms3.Vec{X: 1, Y: 1, Z: 1}},
			{TexCoord: ms2.Vec{X: 0, Y: 1}, Pos: ms3.Vec{X: 0, Y: 1, Z: 0}},
		},
	}
}

// Ortho returns an OpenGL style orthographic projection matrix.
func Ortho(left, right, bottom, top, near, far float32) ms3.Mat4 {
	rl, tb, fn := right-left, top-bottom, far-near
	return ms3.NewMat4([]float32{
		2 / rl, 0, 0, -(right + left) / rl,
		0, 2 / tb, 0, -(top + bottom) / tb,
		0, 0, -2 / fn, -(far + near) / fn,
		0, 0, 0, 1,
	})
}

// AppendVertexData appends the interleaved vertex attributes of the quad,
// 2 texture coordinate floats followed by 3 position floats per vertex.
func (q *Quad) AppendVertexData(dst []float32) []float32 {
	for _, v := range q.Vertices {
		dst = append(dst, v.TexCoord.X, v.TexCoord.Y, v.Pos.X, v.Pos.Y, v.Pos.Z)
	}
	return dst
}

// ndc returns the vertex's XY position in normalized device coordinates.
func (q *Quad) ndc(i int) ms2.Vec {
	a := q.Ortho.Array()
	p := q.Vertices[i].Pos
	return ms2.Vec{
		X: a[0]*p.X + a[1]*p.Y + a[3],
		Y: a[4]*p.X + a[5]*p.Y + a[7],
	}
}

var errQuadNotRect = errors.New("quad is not an axis aligned rectangle in device coordinates")

// rectCorners returns the normalized device coordinate rectangle covered by the quad and
// the vertex indices at its bottom-left, bottom-right, top-right and top-left corners.
func (q *Quad) rectCorners() (rect ms2.Box, corners [4]int, err error) {
	rect = ms2.Box{Min: q.ndc(0), Max: q.ndc(0)}
	for i := 1; i < 4; i++ {
		rect = rect.IncludePoint(q.ndc(i))
	}
	sz := rect.Size()
	if sz.X < 1e-6 || sz.Y < 1e-6 {
		return rect, corners, errQuadNotRect
	}
	var seen [4]bool
	for i := 0; i < 4; i++ {
		p := q.ndc(i)
		right := math32.Abs(p.X-rect.Max.X) < 1e-5
		top := math32.Abs(p.Y-rect.Max.Y) < 1e-5
		if !right && math32.Abs(p.X-rect.Min.X) > 1e-5 || !top && math32.Abs(p.Y-rect.Min.Y) > 1e-5 {
			return rect, corners, errQuadNotRect
		}
		c := 0
		switch {
		case right && !top:
			c = 1
		case right && top:
			c = 2
		case !right && top:
			c = 3
		}
		if seen[c] {
			return rect, corners, errQuadNotRect
		}
		seen[c] = true
		corners[c] = i
	}
	return rect, corners, nil
}
