package sdfmarch

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch/gleval"
)

// Kernel limits. The kernel declares its uniform arrays with these sizes.
const (
	MaxShapes       = 16
	MaxInstructions = 32
	MaxStackDepth   = 8
)

// Opcode is the kind of a program [Instruction].
type Opcode int32

const (
	// OpcodePush evaluates shape record Arg and pushes its distance.
	OpcodePush Opcode = iota
	// OpcodeCombine pops b and a and pushes Operator(Arg).Combine(a, b, Blend).
	OpcodeCombine
)

// Instruction is a single step of the postfix program the kernel runs to combine shape distances.
type Instruction struct {
	Opcode Opcode
	// Arg is the shape index for OpcodePush and the operator code for OpcodeCombine.
	Arg int32
	// Blend is the blend strength for OpcodeCombine.
	Blend float32
}

func (ins Instruction) String() string {
	switch ins.Opcode {
	case OpcodePush:
		return fmt.Sprintf("push %d", ins.Arg)
	case OpcodeCombine:
		return fmt.Sprintf("%s %g", Operator(ins.Arg), ins.Blend)
	}
	return fmt.Sprintf("invalid opcode %d", int32(ins.Opcode))
}

type programBuilder struct {
	shapes []ShapeRecord
	code   []Instruction
	depth  int
}

func (pb *programBuilder) reset() {
	pb.shapes = pb.shapes[:0]
	pb.code = pb.code[:0]
	pb.depth = 0
}

func (pb *programBuilder) emit(ins Instruction) error {
	if len(pb.code) >= MaxInstructions {
		return ErrProgramTooLong
	}
	switch ins.Opcode {
	case OpcodePush:
		pb.depth++
		if pb.depth > MaxStackDepth {
			return ErrStackTooDeep
		}
	case OpcodeCombine:
		pb.depth--
	}
	pb.code = append(pb.code, ins)
	return nil
}

func (s *Shape) appendProgram(pb *programBuilder) error {
	if len(pb.shapes) >= MaxShapes {
		return ErrTooManyShapes
	}
	pb.shapes = append(pb.shapes, s.Record())
	return pb.emit(Instruction{Opcode: OpcodePush, Arg: int32(len(pb.shapes) - 1)})
}

// appendProgram emits the left fold of the operation. All operands are emitted
// even for OpNone so their records reach the kernel.
func (o *Operation) appendProgram(pb *programBuilder) error {
	if len(o.operands) == 0 {
		return errors.New("operation has no operands")
	}
	for i, operand := range o.operands {
		err := operand.appendProgram(pb)
		if err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		err = pb.emit(Instruction{Opcode: OpcodeCombine, Arg: int32(o.op), Blend: o.blend})
		if err != nil {
			return err
		}
	}
	return nil
}

// Bounds returns the bounding box of the frame's root shape.
func (fp *FrameParams) Bounds() ms3.Box { return fp.bounds }

// Evaluate runs the frame's program over the shape records the same way the kernel does.
// It implements [gleval.SDF3]. userData must provide a [gleval.VecPool].
func (fp *FrameParams) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := gleval.CheckBuffers(pos, dist)
	if err != nil {
		return err
	} else if len(fp.program) == 0 {
		return errors.New("empty frame program")
	}
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	var stackBuf [MaxStackDepth][]float32
	stack := stackBuf[:0]
	defer func() {
		for _, buf := range stack {
			vp.Float.Release(buf)
		}
	}()
	for _, ins := range fp.program {
		switch ins.Opcode {
		case OpcodePush:
			if int(ins.Arg) >= len(fp.shapes) || ins.Arg < 0 {
				return fmt.Errorf("shape index %d out of range", ins.Arg)
			} else if len(stack) == MaxStackDepth {
				return ErrStackTooDeep
			}
			buf := vp.Float.Acquire(len(dist))
			stack = append(stack, buf)
			err = fp.shapes[ins.Arg].Evaluate(pos, buf, userData)
			if err != nil {
				return err
			}
		case OpcodeCombine:
			if len(stack) < 2 {
				return errors.New("program stack underflow")
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			op := Operator(ins.Arg)
			for i := range a {
				a[i] = op.Combine(a[i], b[i], ins.Blend)
			}
			vp.Float.Release(b)
			stack = stack[:len(stack)-1]
		default:
			return fmt.Errorf("invalid opcode %d", int32(ins.Opcode))
		}
	}
	if len(stack) != 1 {
		return fmt.Errorf("program left %d values on stack", len(stack))
	}
	copy(dist, stack[0])
	return nil
}
