package glbuild_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glbuild"
)

type recorder struct {
	order  []string
	mat4s  map[string]ms3.Mat4
	vec4s  map[string][4]float32
	vec3s  map[string]ms3.Vec
	vec2s  map[string]ms2.Vec
	floats map[string]float32
	ints   map[string]int32
	ivec2s map[string][2]int32
}

func newRecorder() *recorder {
	return &recorder{
		mat4s:  make(map[string]ms3.Mat4),
		vec4s:  make(map[string][4]float32),
		vec3s:  make(map[string]ms3.Vec),
		vec2s:  make(map[string]ms2.Vec),
		floats: make(map[string]float32),
		ints:   make(map[string]int32),
		ivec2s: make(map[string][2]int32),
	}
}

func (r *recorder) Mat4(name string, m ms3.Mat4)    { r.order = append(r.order, name); r.mat4s[name] = m }
func (r *recorder) Vec4(name string, v [4]float32)  { r.order = append(r.order, name); r.vec4s[name] = v }
func (r *recorder) Vec3(name string, v ms3.Vec)     { r.order = append(r.order, name); r.vec3s[name] = v }
func (r *recorder) Vec2(name string, v ms2.Vec)     { r.order = append(r.order, name); r.vec2s[name] = v }
func (r *recorder) Float(name string, v float32)    { r.order = append(r.order, name); r.floats[name] = v }
func (r *recorder) Int(name string, v int32)        { r.order = append(r.order, name); r.ints[name] = v }
func (r *recorder) IVec2(name string, x, y int32)   { r.order = append(r.order, name); r.ivec2s[name] = [2]int32{x, y} }

func blendScene(t *testing.T) sdfmarch.FrameParams {
	t.Helper()
	var bld sdfmarch.Builder
	sphere := bld.NewSphere(sdfmarch.StaticPosition{}, 1)
	box := bld.NewBox(sdfmarch.StaticPosition{X: 1}, 0.5, 0.5, 0.5)
	params := box.Params()
	params.SphereRadius = 7
	box.SetParams(params)
	op := bld.NewOperation(sdfmarch.OpBlend, 0.5, sphere, box)
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
	var pb sdfmarch.ParamBuilder
	fp, err := pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1.5, CameraToWorld: sdfmarch.LookAt(ms3.Vec{Z: 5}, ms3.Vec{}, ms3.Vec{Y: 1})},
		Root:   op,
	})
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

func TestVisitUniforms(t *testing.T) {
	fp := blendScene(t)
	rec := newRecorder()
	glbuild.VisitUniforms(rec, &fp)

	if rec.mat4s[glbuild.UniformFrustum] != fp.Frustum() {
		t.Error("frustum not transmitted")
	}
	if rec.mat4s[glbuild.UniformCamMatrix] != fp.CameraToWorld() {
		t.Error("camera matrix not transmitted")
	}
	if rec.vec3s[glbuild.UniformLight] != sdfmarch.FallbackLight {
		t.Errorf("want fallback light, got %v", rec.vec3s[glbuild.UniformLight])
	}
	if rec.vec4s[glbuild.UniformMainColor] != [4]float32{1, 1, 1, 1} {
		t.Errorf("want white main color, got %v", rec.vec4s[glbuild.UniformMainColor])
	}
	if rec.ints[glbuild.UniformShapeCount] != 2 {
		t.Errorf("want 2 shapes, got %d", rec.ints[glbuild.UniformShapeCount])
	}
	if rec.ints[glbuild.UniformOperation] != int32(sdfmarch.OpBlend) {
		t.Errorf("want blend operation, got %d", rec.ints[glbuild.UniformOperation])
	}
	if rec.floats[glbuild.UniformBlendStrength] != 0.5 {
		t.Errorf("want blend strength 0.5, got %g", rec.floats[glbuild.UniformBlendStrength])
	}
	if rec.ints["_Shape[1]"] != int32(sdfmarch.ShapeBox) {
		t.Errorf("want box kind, got %d", rec.ints["_Shape[1]"])
	}
	// Inactive fields are transmitted as they are.
	if rec.floats["_SphereRadius[1]"] != 7 {
		t.Errorf("want inactive sphere radius 7 transmitted, got %g", rec.floats["_SphereRadius[1]"])
	}
	if rec.vec3s["_Position[1]"] != (ms3.Vec{X: 1}) {
		t.Errorf("bad box position %v", rec.vec3s["_Position[1]"])
	}
	if rec.ints[glbuild.UniformProgramLength] != 3 {
		t.Fatalf("want program length 3, got %d", rec.ints[glbuild.UniformProgramLength])
	}
	wantProg := [][2]int32{{0, 0}, {0, 1}, {1, int32(sdfmarch.OpBlend)}}
	for j, want := range wantProg {
		name := glbuild.IndexedName(glbuild.UniformProgram, j)
		if got := rec.ivec2s[name]; got != want {
			t.Errorf("%s: want %v, got %v", name, want, got)
		}
	}
	if rec.floats["_ProgramBlend[2]"] != 0.5 {
		t.Errorf("want combine blend 0.5, got %g", rec.floats["_ProgramBlend[2]"])
	}
	for _, name := range rec.order {
		if name == glbuild.UniformMainTex || name == glbuild.UniformOrtho {
			t.Errorf("stage owned uniform %s visited", name)
		}
	}
}

func TestBlendStrengthTransmittedForAllOperators(t *testing.T) {
	for _, op := range []sdfmarch.Operator{sdfmarch.OpNone, sdfmarch.OpSubtract, sdfmarch.OpIntersect, sdfmarch.OpBlend} {
		var bld sdfmarch.Builder
		a := bld.NewSphere(sdfmarch.StaticPosition{}, 1)
		b := bld.NewSphere(sdfmarch.StaticPosition{Y: 1}, 1)
		root := bld.NewOperation(op, 2.5, a, b)
		var pb sdfmarch.ParamBuilder
		fp, err := pb.Build(sdfmarch.FrameInput{Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1}, Root: root})
		if err != nil {
			t.Fatal(err)
		}
		rec := newRecorder()
		glbuild.VisitUniforms(rec, &fp)
		if rec.floats[glbuild.UniformBlendStrength] != 2.5 {
			t.Errorf("%s: want blend strength 2.5, got %g", op, rec.floats[glbuild.UniformBlendStrength])
		}
	}
}

func TestSingleShapeHasProgram(t *testing.T) {
	var bld sdfmarch.Builder
	var pb sdfmarch.ParamBuilder
	fp, err := pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1},
		Root:   bld.NewSphere(sdfmarch.StaticPosition{}, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	glbuild.VisitUniforms(rec, &fp)
	// The fragment kernel only evaluates the program so every frame must carry one.
	if rec.ints[glbuild.UniformProgramLength] != 1 {
		t.Fatalf("want program length 1, got %d", rec.ints[glbuild.UniformProgramLength])
	}
	if got := rec.ivec2s[glbuild.IndexedName(glbuild.UniformProgram, 0)]; got != [2]int32{0, 0} {
		t.Errorf("want push of shape 0, got %v", got)
	}
}

func TestIndexedName(t *testing.T) {
	if got := glbuild.IndexedName(glbuild.UniformPosition, 3); got != "_Position[3]" {
		t.Errorf("got %q", got)
	}
	if got := glbuild.IndexedName(glbuild.UniformProgram, 40); got != "_Program[40]" {
		t.Errorf("got %q", got)
	}
}

func TestKernelDeclaresUniforms(t *testing.T) {
	programmer := glbuild.NewDefaultProgrammer()
	var vert, frag bytes.Buffer
	n, err := programmer.WriteVertexKernel(&vert)
	if err != nil {
		t.Fatal(err)
	} else if n != vert.Len() {
		t.Fatal("written length mismatch")
	}
	n, err = programmer.WriteFragmentKernel(&frag)
	if err != nil {
		t.Fatal(err)
	} else if n != frag.Len() {
		t.Fatal("written length mismatch")
	}
	vsrc, fsrc := vert.String(), frag.String()
	for _, decl := range []string{
		"in vec2 " + glbuild.AttribTexCoord,
		"in vec3 " + glbuild.AttribVertex,
		"uniform mat4 " + glbuild.UniformOrtho,
		"uniform mat4 " + glbuild.UniformFrustum,
	} {
		if !strings.Contains(vsrc, decl) {
			t.Errorf("vertex kernel missing %q", decl)
		}
	}
	for _, decl := range []string{
		"uniform sampler2D " + glbuild.UniformMainTex,
		"uniform vec4 " + glbuild.UniformMainColor,
		"uniform vec3 " + glbuild.UniformLight,
		"uniform vec3 " + glbuild.UniformPosition + "[MAX_SHAPES]",
		"uniform vec2 " + glbuild.UniformConeRatio + "[MAX_SHAPES]",
		"uniform ivec2 " + glbuild.UniformProgram + "[MAX_INSTRUCTIONS]",
		"float sdfmShape(int i, vec3 p)",
		"float sdfmCombine(int op, float a, float b, float k)",
		"vec3 sdfmNormal(vec3 p, float h)",
		"vec4 sdfmMarch(",
		"#define MAX_STACK 8",
	} {
		if !strings.Contains(fsrc, decl) {
			t.Errorf("fragment kernel missing %q", decl)
		}
	}
	if !strings.HasPrefix(fsrc, glbuild.VersionStr) || !strings.HasPrefix(vsrc, glbuild.VersionStr) {
		t.Error("kernel missing version header")
	}
}

func TestWriteBakedKernel(t *testing.T) {
	fp := blendScene(t)
	programmer := glbuild.NewDefaultProgrammer()
	var buf bytes.Buffer
	n, err := programmer.WriteBakedKernel(&buf, &fp)
	if err != nil {
		t.Fatal(err)
	} else if n != buf.Len() {
		t.Fatal("written length mismatch")
	}
	src := buf.String()
	for _, want := range []string{
		"float shape0(vec3 p)",
		"float shape1(vec3 p)",
		"s0=shape0(p);",
		"s1=shape1(p);",
		"s0=sdfmCombine(3,s0,s1,0.5);",
		"void mainImage(out vec4 fragColor, in vec2 fragCoord)",
		"mat4 frustum=mat4(",
		"vec3 light=vec3(0.,-1.,0.);",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("baked kernel missing %q\n%s", want, src)
		}
	}
	if strings.Contains(src, "uniform") {
		t.Error("baked kernel must not declare uniforms")
	}
}

func TestAppendFloat(t *testing.T) {
	for _, test := range []struct {
		v    float32
		want string
	}{
		{v: 1, want: "1."},
		{v: 0.5, want: "0.5"},
		{v: -2.25, want: "n2.25"},
		{v: 0, want: "0."},
	} {
		got := string(glbuild.AppendFloat(nil, 'n', '.', test.v))
		if got != test.want {
			t.Errorf("AppendFloat(%g): want %q, got %q", test.v, test.want, got)
		}
	}
}

func TestBakedKernelRejectsNonFinite(t *testing.T) {
	var bld sdfmarch.Builder
	sphere := bld.NewSphere(sdfmarch.StaticPosition{}, 1)
	params := sphere.Params()
	params.SphereRadius = math32.NaN()
	sphere.SetParams(params)
	var pb sdfmarch.ParamBuilder
	fp, err := pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1, CameraToWorld: ms3.IdentityMat4()},
		Root:   sphere,
	})
	if err != nil {
		t.Fatal(err)
	}
	programmer := glbuild.NewDefaultProgrammer()
	var buf bytes.Buffer
	_, err = programmer.WriteBakedKernel(&buf, &fp)
	if err == nil {
		t.Error("want error baking NaN sphere radius")
	}
	_, err = programmer.WriteComputeKernel(&buf, &fp, 32)
	if err == nil {
		t.Error("want error writing compute kernel with NaN sphere radius")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got %d bytes", buf.Len())
	}

	// Non-finite values in inactive fields are not written and do not matter.
	params.SphereRadius = 1
	params.TorusInner = math32.Inf(1)
	sphere.SetParams(params)
	fp, err = pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1, CameraToWorld: ms3.IdentityMat4()},
		Root:   sphere,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = programmer.WriteComputeKernel(&buf, &fp, 32)
	if err != nil {
		t.Errorf("inactive infinite field rejected: %v", err)
	}

	cam := ms3.TranslatingMat4(ms3.Vec{X: math32.Inf(-1)})
	fp, err = pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1, CameraToWorld: cam},
		Root:   sphere,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = programmer.WriteBakedKernel(&buf, &fp)
	if err == nil {
		t.Error("want error baking infinite camera position")
	}
}

func TestWriteComputeKernel(t *testing.T) {
	fp := blendScene(t)
	programmer := glbuild.NewDefaultProgrammer()
	var buf bytes.Buffer
	n, err := programmer.WriteComputeKernel(&buf, &fp, 32)
	if err != nil {
		t.Fatal(err)
	} else if n != buf.Len() {
		t.Fatal("written length mismatch")
	}
	src := buf.String()
	if !strings.HasPrefix(src, glbuild.ComputeHeader) {
		t.Error("compute kernel missing header")
	}
	for _, want := range []string{
		"layout(local_size_x = 32, local_size_y = 1, local_size_z = 1) in;",
		"uniform int uNumPositions;",
		"s0=sdfmCombine(3,s0,s1,0.5);",
		"vbo_distances[idx] = sdfmMap(p);",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("compute kernel missing %q", want)
		}
	}
	_, err = programmer.WriteComputeKernel(&buf, &fp, 0)
	if err == nil {
		t.Error("want error for zero invocation size")
	}
}
