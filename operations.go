package sdfmarch

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch/gleval"
)

// Operator is a CSG operator. The integer values are the operator codes read by the raymarching kernel.
type Operator int32

const (
	// OpNone performs no combination: the first operand is used alone.
	OpNone Operator = iota
	// OpSubtract removes the volume of the second operand from the first.
	OpSubtract
	// OpIntersect keeps the volume shared by both operands.
	OpIntersect
	// OpBlend is a union smoothed by the blend strength.
	OpBlend
	numOperators
)

// IsValid reports whether op is a known operator.
func (op Operator) IsValid() bool { return op >= 0 && op < numOperators }

func (op Operator) String() string {
	switch op {
	case OpNone:
		return "none"
	case OpSubtract:
		return "subtract"
	case OpIntersect:
		return "intersect"
	case OpBlend:
		return "blend"
	}
	return fmt.Sprintf("Operator(%d)", int32(op))
}

// Combine applies the operator to distances a (accumulated result) and b (next operand).
// k is the blend strength and is only used by [OpBlend]; k<=0 yields a hard union.
func (op Operator) Combine(a, b, k float32) float32 {
	switch op {
	case OpSubtract:
		return maxf(a, -b)
	case OpIntersect:
		return maxf(a, b)
	case OpBlend:
		if k <= 0 {
			return minf(a, b)
		}
		h := clampf(0.5+0.5*(b-a)/k, 0, 1)
		return mixf(b, a, h) - k*h*(1-h)
	}
	return a
}

// ClampBlendStrength limits k to [0, MaxBlendStrength]. NaN is mapped to 0.
func ClampBlendStrength(k float32) float32 {
	if math32.IsNaN(k) {
		return 0
	}
	return clampf(k, 0, MaxBlendStrength)
}

// Node is an element of an operation tree, either a [*Shape] or an [*Operation].
type Node interface {
	gleval.SDF3
	appendProgram(pb *programBuilder) error
}

var (
	_ Node = (*Shape)(nil)
	_ Node = (*Operation)(nil)
)

// Operation combines its operands under a single operator. Operands are folded left to right:
//
//	d = operand[0]
//	d = op(d, operand[1])
//	d = op(d, operand[2]) ...
//
// Two operands is the common case.
type Operation struct {
	op       Operator
	blend    float32
	operands []Node
}

// Operator returns the operation's CSG operator.
func (o *Operation) Operator() Operator { return o.op }

// SetOperator changes the operator. The blend strength is retained.
func (o *Operation) SetOperator(op Operator) error {
	if !op.IsValid() {
		return fmt.Errorf("invalid operator %d", int32(op))
	}
	o.op = op
	return nil
}

// BlendStrength returns the last set blend strength regardless of the operator.
func (o *Operation) BlendStrength() float32 { return o.blend }

// BlendEditable reports whether the blend strength is exposed for editing, which is only the case for [OpBlend].
func (o *Operation) BlendEditable() bool { return o.op == OpBlend }

// SetBlendStrength sets the blend strength clamped to [0, MaxBlendStrength].
// It returns [ErrBlendNotEditable] and keeps the current value if the operator is not [OpBlend].
func (o *Operation) SetBlendStrength(k float32) error {
	if !o.BlendEditable() {
		return ErrBlendNotEditable
	}
	o.blend = ClampBlendStrength(k)
	return nil
}

// Operands returns a copy of the operation's operands in fold order.
func (o *Operation) Operands() []Node { return slices.Clone(o.operands) }

// SetOperands replaces the operands. At least one operand is required
// and the operation may not contain itself.
func (o *Operation) SetOperands(operands ...Node) error {
	if len(operands) == 0 {
		return errors.New("operation requires at least one operand")
	}
	for i, n := range operands {
		if isNilNode(n) {
			return fmt.Errorf("nil operand %d", i)
		}
		if contains(n, o) {
			return errCyclicOperation
		}
	}
	o.operands = append(o.operands[:0], operands...)
	return nil
}

// Evaluate implements [gleval.SDF3]. userData must provide a [gleval.VecPool] when there is more than one operand.
func (o *Operation) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(o.operands) == 0 {
		return errors.New("operation has no operands")
	}
	err := o.operands[0].Evaluate(pos, dist, userData)
	if err != nil || o.op == OpNone || len(o.operands) == 1 {
		return err
	}
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	aux := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(aux)
	op, k := o.op, o.blend
	for _, operand := range o.operands[1:] {
		err = operand.Evaluate(pos, aux, userData)
		if err != nil {
			return err
		}
		for i, b := range aux {
			dist[i] = op.Combine(dist[i], b, k)
		}
	}
	return nil
}

// Bounds implements [gleval.SDF3].
func (o *Operation) Bounds() ms3.Box {
	if len(o.operands) == 0 {
		return ms3.Box{}
	}
	bb := o.operands[0].Bounds()
	switch o.op {
	case OpIntersect:
		for _, operand := range o.operands[1:] {
			bb = bb.Intersect(operand.Bounds())
		}
	case OpBlend:
		for _, operand := range o.operands[1:] {
			bb = bb.Union(operand.Bounds())
		}
		// Smooth union bulges out by at most k/4 between shapes.
		e := o.blend / 4
		bb = ms3.Box{Min: ms3.AddScalar(-e, bb.Min), Max: ms3.AddScalar(e, bb.Max)}
	}
	return bb
}

func contains(n Node, target *Operation) bool {
	op, ok := n.(*Operation)
	if !ok {
		return false
	} else if op == target {
		return true
	}
	for _, child := range op.operands {
		if contains(child, target) {
			return true
		}
	}
	return false
}

func isNilNode(n Node) bool {
	switch v := n.(type) {
	case nil:
		return true
	case *Shape:
		return v == nil
	case *Operation:
		return v == nil
	}
	return false
}
