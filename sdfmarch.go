package sdfmarch

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	// MaxBlendStrength is the upper limit of an [Operation]'s blend strength.
	MaxBlendStrength = 3
	// epstol is used to check for badly conditioned denominators
	// such as lengths used for normalization.
	epstol = 6e-7
	// largenum stands in for unbounded extents.
	largenum = 1e20
)

var (
	ErrMissingCamera    = errors.New("missing camera")
	ErrMissingScene     = errors.New("missing scene root")
	ErrBlendNotEditable = errors.New("blend strength only editable for blend operator")
	ErrTooManyShapes    = errors.New("too many shapes for kernel")
	ErrProgramTooLong   = errors.New("operation program too long for kernel")
	ErrStackTooDeep     = errors.New("operation tree too deep for kernel")
	errCyclicOperation  = errors.New("operation contains itself")
)

// Builder wraps creation of shapes and operations.
// Provides error handling strategies with panics or error accumulation during scene authoring.
// Shape parameters are never validated against each other, only the structure of operations is.
type Builder struct {
	// NoStructurePanic makes structural errors such as nil operands accumulate
	// in the Builder instead of panicking. Retrieve them with [Builder.Err].
	NoStructurePanic bool
	accumErrs        []error
}

// Err returns all accumulated errors joined together, or nil if there were none.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors clears accumulated errors such that [Builder.Err] returns nil on next call.
func (bld *Builder) ClearErrors() {
	bld.accumErrs = bld.accumErrs[:0]
}

func (bld *Builder) structErrorf(msg string, args ...any) {
	if !bld.NoStructurePanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func (bld *Builder) structErr(err error) {
	if err != nil {
		bld.structErrorf("%s", err.Error())
	}
}

// NewShape creates a shape owned by the argument scene object. A nil owner places the shape at the origin.
func (bld *Builder) NewShape(owner Positioner, p Primitive) *Shape {
	if p == nil {
		bld.structErrorf("nil primitive for shape")
		p = Sphere{}
	}
	s := &Shape{owner: owner}
	s.SetPrimitive(p)
	return s
}

// NewSphere creates a sphere shape of radius r owned by owner.
func (bld *Builder) NewSphere(owner Positioner, r float32) *Shape {
	return bld.NewShape(owner, Sphere{Radius: r})
}

// NewBox creates a box shape given its half extents.
func (bld *Builder) NewBox(owner Positioner, halfX, halfY, halfZ float32) *Shape {
	return bld.NewShape(owner, Box{HalfExtents: vec3(halfX, halfY, halfZ)})
}

// NewOperation combines operands under op. The result is evaluated as a left fold over the operands.
func (bld *Builder) NewOperation(op Operator, blendStrength float32, operands ...Node) *Operation {
	if !op.IsValid() {
		bld.structErrorf("invalid operator %d", op)
		op = OpNone
	}
	o := &Operation{op: op, blend: ClampBlendStrength(blendStrength)}
	bld.structErr(o.SetOperands(operands...))
	return o
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func mixf(x, y, a float32) float32 {
	return x*(1-a) + y*a
}

func hypotf(a, b float32) float32 {
	return math32.Hypot(a, b)
}
