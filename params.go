package sdfmarch

import (
	"image/color"
	"slices"

	"github.com/soypat/geometry/ms3"
)

// FrameInput gathers the scene references needed to build one frame's parameters.
type FrameInput struct {
	// Camera is required.
	Camera *Camera
	// Light may be nil in which case [FallbackLight] is used.
	Light DirectionalLight
	// MainColor tints the surfaces. nil is opaque white.
	MainColor color.Color
	// Root is the shape or operation to render and is required.
	Root Node
}

// FrameParams is the complete, immutable parameter set handed to the kernel for a single frame.
type FrameParams struct {
	camToWorld ms3.Mat4
	frustum    ms3.Mat4
	mainColor  [4]float32
	light      ms3.Vec
	shapes     []ShapeRecord
	program    []Instruction
	op         Operator
	blend      float32
	bounds     ms3.Box
}

func (fp *FrameParams) CameraToWorld() ms3.Mat4 { return fp.camToWorld }

// Frustum returns the frustum corner matrix. See [Frustum].
func (fp *FrameParams) Frustum() ms3.Mat4 { return fp.frustum }

// MainColor returns the non-premultiplied RGBA tint in [0,1].
func (fp *FrameParams) MainColor() [4]float32 { return fp.mainColor }

// Light returns the light's world space forward direction.
func (fp *FrameParams) Light() ms3.Vec { return fp.light }

// NumShapes returns the amount of shape records.
func (fp *FrameParams) NumShapes() int { return len(fp.shapes) }

// Shape returns the i'th shape record in operand order.
func (fp *FrameParams) Shape(i int) ShapeRecord { return fp.shapes[i] }

// Shapes returns a copy of all shape records in operand order.
func (fp *FrameParams) Shapes() []ShapeRecord { return slices.Clone(fp.shapes) }

// Program returns a copy of the postfix program that combines the shapes.
func (fp *FrameParams) Program() []Instruction { return slices.Clone(fp.program) }

// Operator returns the root operator, [OpNone] if the root is a single shape.
func (fp *FrameParams) Operator() Operator { return fp.op }

// BlendStrength returns the root operation's blend strength. It is set whatever the operator.
func (fp *FrameParams) BlendStrength() float32 { return fp.blend }

// ParamBuilder assembles [FrameParams] once per frame. It reuses internal buffers between frames.
// The zero value is ready to use.
type ParamBuilder struct {
	prog programBuilder
}

// Build assembles the frame parameters. Nothing is returned if a required scene reference is missing.
func (pb *ParamBuilder) Build(in FrameInput) (FrameParams, error) {
	if in.Camera == nil {
		return FrameParams{}, ErrMissingCamera
	} else if isNilNode(in.Root) {
		return FrameParams{}, ErrMissingScene
	}
	pb.prog.reset()
	err := in.Root.appendProgram(&pb.prog)
	if err != nil {
		return FrameParams{}, err
	}
	cam := in.Camera
	params := FrameParams{
		camToWorld: cam.CameraToWorld,
		frustum:    Frustum(cam.FieldOfView, cam.Aspect),
		mainColor:  colorToFloats(in.MainColor),
		light:      FallbackLight,
		shapes:     slices.Clone(pb.prog.shapes),
		program:    slices.Clone(pb.prog.code),
		bounds:     in.Root.Bounds(),
	}
	if !isNilLight(in.Light) {
		params.light = in.Light.Forward()
	}
	if root, ok := in.Root.(*Operation); ok {
		params.op = root.op
		params.blend = root.blend
	}
	return params, nil
}

func colorToFloats(c color.Color) [4]float32 {
	if c == nil {
		return [4]float32{1, 1, 1, 1}
	}
	nc := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	const max = 0xffff
	return [4]float32{
		float32(nc.R) / max,
		float32(nc.G) / max,
		float32(nc.B) / max,
		float32(nc.A) / max,
	}
}
