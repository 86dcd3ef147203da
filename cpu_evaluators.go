package sdfmarch

import (
	"fmt"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch/gleval"
)

// Evaluate implements [gleval.SDF3].
func (s *Shape) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	r := s.Record()
	return r.Evaluate(pos, dist, userData)
}

// Evaluate evaluates the distance function selected by the record's Kind over pos.
// It mirrors the kernel's distance functions exactly.
func (r *ShapeRecord) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := gleval.CheckBuffers(pos, dist)
	if err != nil {
		return err
	}
	c := r.Position
	switch r.Kind {
	case ShapeSphere:
		rad := r.SphereRadius
		for i, p := range pos {
			dist[i] = ms3.Norm(ms3.Sub(p, c)) - rad
		}

	case ShapeBox:
		b := r.Box
		for i, p := range pos {
			q := ms3.Sub(ms3.AbsElem(ms3.Sub(p, c)), b)
			dist[i] = ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + minf(maxf(q.X, maxf(q.Y, q.Z)), 0)
		}

	case ShapeRoundedBox:
		b, round := r.RoundBox, r.BoxRoundness
		for i, p := range pos {
			q := ms3.AddScalar(round, ms3.Sub(ms3.AbsElem(ms3.Sub(p, c)), b))
			dist[i] = ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + minf(maxf(q.X, maxf(q.Y, q.Z)), 0) - round
		}

	case ShapeTorus:
		t1, t2 := r.TorusOuter, r.TorusInner
		for i, p := range pos {
			p = ms3.Sub(p, c)
			q := ms2.Vec{X: hypotf(p.X, p.Z) - t1, Y: p.Y}
			dist[i] = ms2.Norm(q) - t2
		}

	case ShapeCone:
		ratio, h := r.ConeRatio, r.ConeHeight
		for i, p := range pos {
			p = ms3.Sub(p, c)
			q := hypotf(p.X, p.Z)
			dist[i] = maxf(ratio.X*q+ratio.Y*p.Y, -h-p.Y)
		}

	default:
		return fmt.Errorf("unknown shape kind %d", int32(r.Kind))
	}
	return nil
}
