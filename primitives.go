package sdfmarch

import (
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// ShapeKind selects the distance function of a [Shape]. The integer values
// are the kind codes read by the raymarching kernel.
type ShapeKind int32

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeTorus
	ShapeCone
	ShapeRoundedBox
	numShapeKinds
)

// IsValid reports whether k is a known shape kind.
func (k ShapeKind) IsValid() bool { return k >= 0 && k < numShapeKinds }

func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapeBox:
		return "box"
	case ShapeTorus:
		return "torus"
	case ShapeCone:
		return "cone"
	case ShapeRoundedBox:
		return "roundedbox"
	}
	return fmt.Sprintf("ShapeKind(%d)", int32(k))
}

// Positioner is implemented by scene objects that own a shape and provide its world position.
type Positioner interface {
	Position() ms3.Vec
}

// StaticPosition is a [Positioner] that never moves.
type StaticPosition ms3.Vec

// Position implements [Positioner].
func (sp StaticPosition) Position() ms3.Vec { return ms3.Vec(sp) }

// ShapeParams holds the parameters of every shape kind at once. Only the fields
// of the active kind are meaningful, the rest are kept as they were last set.
type ShapeParams struct {
	SphereRadius float32
	// Box is the box's half extents.
	Box ms3.Vec
	// RoundBox is the rounded box's half extents.
	RoundBox     ms3.Vec
	BoxRoundness float32
	TorusOuter   float32
	TorusInner   float32
	ConeHeight   float32
	// ConeRatio is the sine and cosine of the cone's half angle.
	ConeRatio ms2.Vec
}

// Primitive is the active variant of a [Shape]'s parameters.
// It is implemented by [Sphere], [Box], [Torus], [Cone] and [RoundedBox].
type Primitive interface {
	Kind() ShapeKind
	apply(*ShapeParams)
}

type Sphere struct {
	Radius float32
}

type Box struct {
	HalfExtents ms3.Vec
}

type Torus struct {
	// Outer is the distance from the torus center to the center of the tube.
	Outer float32
	// Inner is the radius of the tube.
	Inner float32
}

// Cone has its tip at the shape position and opens downwards along -Y.
type Cone struct {
	Height float32
	Ratio  ms2.Vec
}

type RoundedBox struct {
	HalfExtents ms3.Vec
	Roundness   float32
}

func (Sphere) Kind() ShapeKind     { return ShapeSphere }
func (Box) Kind() ShapeKind        { return ShapeBox }
func (Torus) Kind() ShapeKind      { return ShapeTorus }
func (Cone) Kind() ShapeKind       { return ShapeCone }
func (RoundedBox) Kind() ShapeKind { return ShapeRoundedBox }

func (s Sphere) apply(p *ShapeParams) { p.SphereRadius = s.Radius }
func (b Box) apply(p *ShapeParams)    { p.Box = b.HalfExtents }
func (t Torus) apply(p *ShapeParams)  { p.TorusOuter, p.TorusInner = t.Outer, t.Inner }
func (c Cone) apply(p *ShapeParams)   { p.ConeHeight, p.ConeRatio = c.Height, c.Ratio }
func (rb RoundedBox) apply(p *ShapeParams) {
	p.RoundBox, p.BoxRoundness = rb.HalfExtents, rb.Roundness
}

// Shape is a single SDF primitive placed in the scene by its owner.
// The zero value is a zero radius sphere at the origin.
type Shape struct {
	kind   ShapeKind
	params ShapeParams
	owner  Positioner
}

// Kind returns the active shape kind.
func (s *Shape) Kind() ShapeKind { return s.kind }

// SetKind switches the active kind. Parameters of all kinds are retained.
func (s *Shape) SetKind(k ShapeKind) error {
	if !k.IsValid() {
		return fmt.Errorf("invalid shape kind %d", int32(k))
	}
	s.kind = k
	return nil
}

// Params returns the parameters of all shape kinds.
func (s *Shape) Params() ShapeParams { return s.params }

// SetParams overwrites parameters of all kinds. The active kind is not changed.
func (s *Shape) SetParams(p ShapeParams) { s.params = p }

// Primitive returns the active variant with only its relevant parameters.
func (s *Shape) Primitive() Primitive {
	p := &s.params
	switch s.kind {
	case ShapeBox:
		return Box{HalfExtents: p.Box}
	case ShapeTorus:
		return Torus{Outer: p.TorusOuter, Inner: p.TorusInner}
	case ShapeCone:
		return Cone{Height: p.ConeHeight, Ratio: p.ConeRatio}
	case ShapeRoundedBox:
		return RoundedBox{HalfExtents: p.RoundBox, Roundness: p.BoxRoundness}
	}
	return Sphere{Radius: p.SphereRadius}
}

// SetPrimitive makes p the active variant and writes its parameters.
// Parameters belonging to other kinds are left untouched.
func (s *Shape) SetPrimitive(p Primitive) {
	s.kind = p.Kind()
	p.apply(&s.params)
}

// Position returns the world position of the shape as given by its owner.
func (s *Shape) Position() ms3.Vec {
	if s.owner == nil {
		return ms3.Vec{}
	}
	return s.owner.Position()
}

// Owner returns the scene object that positions the shape.
func (s *Shape) Owner() Positioner { return s.owner }

// Record marshals the shape to the kernel's fixed layout. Inactive parameters are included as-is.
func (s *Shape) Record() ShapeRecord {
	p := &s.params
	return ShapeRecord{
		Kind:         s.kind,
		Position:     s.Position(),
		SphereRadius: p.SphereRadius,
		TorusInner:   p.TorusInner,
		TorusOuter:   p.TorusOuter,
		BoxRoundness: p.BoxRoundness,
		ConeHeight:   p.ConeHeight,
		Box:          p.Box,
		RoundBox:     p.RoundBox,
		ConeRatio:    p.ConeRatio,
	}
}

// Bounds returns the shape's bounding box in world coordinates.
func (s *Shape) Bounds() ms3.Box {
	r := s.Record()
	return r.Bounds()
}

// ShapeRecord is the fixed per-shape parameter layout consumed by the kernel.
// Every field is present regardless of Kind.
type ShapeRecord struct {
	Kind         ShapeKind
	Position     ms3.Vec
	SphereRadius float32
	TorusInner   float32
	TorusOuter   float32
	BoxRoundness float32
	ConeHeight   float32
	Box          ms3.Vec
	RoundBox     ms3.Vec
	ConeRatio    ms2.Vec
}

// Bounds returns the bounding box of the record's active shape in world coordinates.
func (r *ShapeRecord) Bounds() ms3.Box {
	var half ms3.Vec
	var bb ms3.Box
	switch r.Kind {
	case ShapeSphere:
		half = vec3(r.SphereRadius, r.SphereRadius, r.SphereRadius)
	case ShapeBox:
		half = ms3.AbsElem(r.Box)
	case ShapeRoundedBox:
		half = ms3.AbsElem(r.RoundBox)
	case ShapeTorus:
		R := absf(r.TorusOuter) + absf(r.TorusInner)
		half = vec3(R, absf(r.TorusInner), R)
	case ShapeCone:
		h := absf(r.ConeHeight)
		rad := float32(largenum)
		if r.ConeRatio.Y > epstol {
			rad = h * absf(r.ConeRatio.X) / r.ConeRatio.Y
		}
		bb = ms3.Box{Min: vec3(-rad, -h, -rad), Max: vec3(rad, 0, rad)}
		return bb.Add(r.Position)
	}
	bb = ms3.Box{Min: ms3.Scale(-1, half), Max: half}
	return bb.Add(r.Position)
}

func vec3(x, y, z float32) ms3.Vec { return ms3.Vec{X: x, Y: y, Z: z} }
