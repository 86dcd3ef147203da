package glbuild

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glbuild/glsllib"
	"github.com/soypat/sdfmarch/gleval"
)

const VersionStr = "#version 460\n"

// Uniform and attribute names of the raymarch kernel. Arrays are indexed
// per shape record or per program instruction, see [IndexedName].
const (
	UniformMainTex       = "_MainTex"
	UniformFrustum       = "_Frustum"
	UniformCamMatrix     = "_CamMatrix"
	UniformMainColor     = "_MainColor"
	UniformLight         = "_Light"
	UniformOrtho         = "_Ortho"
	UniformShapeCount    = "_ShapeCount"
	UniformOperation     = "_Operation"
	UniformBlendStrength = "_BlendStrength"
	UniformProgramLength = "_ProgramLength"

	UniformPosition     = "_Position"
	UniformShape        = "_Shape"
	UniformSphereRadius = "_SphereRadius"
	UniformTorusInner   = "_TorusInner"
	UniformTorusOuter   = "_TorusOuter"
	UniformBoxRoundness = "_BoxRoundness"
	UniformConeHeight   = "_ConeHeight"
	UniformBox          = "_Box"
	UniformRoundBox     = "_RoundBox"
	UniformConeRatio    = "_ConeRatio"

	UniformProgram      = "_Program"
	UniformProgramBlend = "_ProgramBlend"

	AttribTexCoord = "aTexCoord"
	AttribVertex   = "aVertex"
)

var indexed = map[string][]string{}

func init() {
	for _, base := range []string{UniformPosition, UniformShape, UniformSphereRadius, UniformTorusInner,
		UniformTorusOuter, UniformBoxRoundness, UniformConeHeight, UniformBox, UniformRoundBox, UniformConeRatio} {
		indexed[base] = makeIndexedNames(base, sdfmarch.MaxShapes)
	}
	indexed[UniformProgram] = makeIndexedNames(UniformProgram, sdfmarch.MaxInstructions)
	indexed[UniformProgramBlend] = makeIndexedNames(UniformProgramBlend, sdfmarch.MaxInstructions)
}

func makeIndexedNames(base string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = base + "[" + strconv.Itoa(i) + "]"
	}
	return names
}

// IndexedName returns the name of element i of uniform array base, i.e. "_Position[3]".
func IndexedName(base string, i int) string {
	if names := indexed[base]; i >= 0 && i < len(names) {
		return names[i]
	}
	return base + "[" + strconv.Itoa(i) + "]"
}

// UniformVisitor receives the kernel uniforms of a frame. It is the only place
// where the frame parameters are translated to kernel names.
type UniformVisitor interface {
	Mat4(name string, m ms3.Mat4)
	Vec4(name string, v [4]float32)
	Vec3(name string, v ms3.Vec)
	Vec2(name string, v ms2.Vec)
	Float(name string, v float32)
	Int(name string, v int32)
	IVec2(name string, x, y int32)
}

// VisitUniforms calls v once per uniform value derived from fp. Every shape field is
// visited regardless of the shape's kind. [UniformMainTex] and [UniformOrtho] are
// owned by the pipeline stage and are not visited.
func VisitUniforms(v UniformVisitor, fp *sdfmarch.FrameParams) {
	v.Mat4(UniformFrustum, fp.Frustum())
	v.Mat4(UniformCamMatrix, fp.CameraToWorld())
	v.Vec4(UniformMainColor, fp.MainColor())
	v.Vec3(UniformLight, fp.Light())
	n := fp.NumShapes()
	v.Int(UniformShapeCount, int32(n))
	for i := 0; i < n; i++ {
		s := fp.Shape(i)
		v.Vec3(IndexedName(UniformPosition, i), s.Position)
		v.Int(IndexedName(UniformShape, i), int32(s.Kind))
		v.Float(IndexedName(UniformSphereRadius, i), s.SphereRadius)
		v.Float(IndexedName(UniformTorusInner, i), s.TorusInner)
		v.Float(IndexedName(UniformTorusOuter, i), s.TorusOuter)
		v.Float(IndexedName(UniformBoxRoundness, i), s.BoxRoundness)
		v.Float(IndexedName(UniformConeHeight, i), s.ConeHeight)
		v.Vec3(IndexedName(UniformBox, i), s.Box)
		v.Vec3(IndexedName(UniformRoundBox, i), s.RoundBox)
		v.Vec2(IndexedName(UniformConeRatio, i), s.ConeRatio)
	}
	v.Int(UniformOperation, int32(fp.Operator()))
	v.Float(UniformBlendStrength, fp.BlendStrength())
	prog := fp.Program()
	v.Int(UniformProgramLength, int32(len(prog)))
	for j, ins := range prog {
		v.IVec2(IndexedName(UniformProgram, j), int32(ins.Opcode), ins.Arg)
		v.Float(IndexedName(UniformProgramBlend, j), ins.Blend)
	}
}

// Programmer generates the raymarch kernel sources.
type Programmer struct {
	cfg     sdfmarch.MarchConfig
	scratch []byte
}

// NewDefaultProgrammer returns a Programmer using [sdfmarch.DefaultMarchConfig].
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		cfg:     sdfmarch.DefaultMarchConfig(),
		scratch: make([]byte, 0, 1024),
	}
}

// NewProgrammer returns a Programmer whose kernels march rays according to cfg.
func NewProgrammer(cfg sdfmarch.MarchConfig) (*Programmer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	p := NewDefaultProgrammer()
	p.cfg = cfg
	return p, nil
}

// MarchConfig returns the configuration baked into generated kernels.
func (p *Programmer) MarchConfig() sdfmarch.MarchConfig { return p.cfg }

// WriteVertexKernel writes the vertex stage of the kernel. Each quad vertex carries
// its texture coordinate in aTexCoord and its position in aVertex.xy. aVertex.z is the
// row of the frustum matrix holding the vertex's corner ray.
func (p *Programmer) WriteVertexKernel(w io.Writer) (int, error) {
	return w.Write([]byte(VersionStr + `
in vec2 ` + AttribTexCoord + `;
in vec3 ` + AttribVertex + `;
uniform mat4 ` + UniformOrtho + `;
uniform mat4 ` + UniformFrustum + `;
uniform mat4 ` + UniformCamMatrix + `;
out vec2 vTexCoord;
out vec3 vRay;

void main() {
	// Matrices are column major in GLSL, the frustum corners are its rows.
	vec3 corner = transpose(` + UniformFrustum + `)[int(` + AttribVertex + `.z)].xyz;
	vRay = (` + UniformCamMatrix + ` * vec4(corner, 0.0)).xyz;
	vTexCoord = ` + AttribTexCoord + `;
	gl_Position = ` + UniformOrtho + ` * vec4(` + AttribVertex + `.xy, 0.0, 1.0);
}
`))
}

// WriteFragmentKernel writes the fragment stage of the kernel. It marches the interpolated
// corner ray through the shape program and shades hits, sampling the source texture on misses.
func (p *Programmer) WriteFragmentKernel(w io.Writer) (int, error) {
	b := p.scratch[:0]
	b = append(b, VersionStr...)
	b = p.appendDefines(b)
	b = AppendDefineDecl(b, "MAX_SHAPES", strconv.Itoa(sdfmarch.MaxShapes))
	b = AppendDefineDecl(b, "MAX_INSTRUCTIONS", strconv.Itoa(sdfmarch.MaxInstructions))
	b = AppendDefineDecl(b, "MAX_STACK", strconv.Itoa(sdfmarch.MaxStackDepth))
	b = append(b, `
in vec2 vTexCoord;
in vec3 vRay;
out vec4 fragColor;

uniform sampler2D `+UniformMainTex+`;
uniform mat4 `+UniformCamMatrix+`;
uniform vec4 `+UniformMainColor+`;
uniform vec3 `+UniformLight+`;
uniform int `+UniformShapeCount+`;
uniform vec3 `+UniformPosition+`[MAX_SHAPES];
uniform int `+UniformShape+`[MAX_SHAPES];
uniform float `+UniformSphereRadius+`[MAX_SHAPES];
uniform float `+UniformTorusInner+`[MAX_SHAPES];
uniform float `+UniformTorusOuter+`[MAX_SHAPES];
uniform float `+UniformBoxRoundness+`[MAX_SHAPES];
uniform float `+UniformConeHeight+`[MAX_SHAPES];
uniform vec3 `+UniformBox+`[MAX_SHAPES];
uniform vec3 `+UniformRoundBox+`[MAX_SHAPES];
uniform vec2 `+UniformConeRatio+`[MAX_SHAPES];
// Root operator of the program, for hosts inspecting the bound state.
uniform int `+UniformOperation+`;
uniform float `+UniformBlendStrength+`;
uniform ivec2 `+UniformProgram+`[MAX_INSTRUCTIONS];
uniform float `+UniformProgramBlend+`[MAX_INSTRUCTIONS];
uniform int `+UniformProgramLength+`;

`...)
	b = append(b, glsllib.ShapeDistance()...)
	b = append(b, '\n')
	b = append(b, glsllib.Combine()...)
	b = append(b, `
float sdfmMap(vec3 p) {
	float stack[MAX_STACK];
	int sp = 0;
	for (int i = 0; i < `+UniformProgramLength+`; i++) {
		ivec2 ins = `+UniformProgram+`[i];
		if (ins.x == 0) {
			stack[sp] = sdfmShape(ins.y, p);
			sp++;
		} else {
			sp--;
			stack[sp-1] = sdfmCombine(ins.y, stack[sp-1], stack[sp], `+UniformProgramBlend+`[i]);
		}
	}
	return stack[0];
}

`...)
	b = append(b, glsllib.Normal()...)
	b = append(b, marchSrc...)
	b = append(b, `
void main() {
	vec4 src = texture(`+UniformMainTex+`, vTexCoord);
	vec3 ro = `+UniformCamMatrix+`[3].xyz;
	vec3 rd = normalize(vRay);
	fragColor = sdfmMarch(ro, rd, src, `+UniformMainColor+`, `+UniformLight+`);
}
`...)
	p.scratch = b
	return w.Write(b)
}

// appendDefines appends the march configuration used by marchSrc.
func (p *Programmer) appendDefines(b []byte) []byte {
	b = strconv.AppendInt(append(b, "#define MARCH_STEPS "...), int64(p.cfg.MaxSteps), 10)
	b = AppendFloat(append(b, "\n#define MARCH_DIST "...), '-', '.', p.cfg.MaxDistance)
	b = AppendFloat(append(b, "\n#define MARCH_EPS "...), '-', '.', p.cfg.Epsilon)
	b = AppendFloat(append(b, "\n#define NORMAL_STEP "...), '-', '.', p.cfg.NormalStep)
	b = AppendFloat(append(b, "\n#define AMBIENT "...), '-', '.', p.cfg.Ambient)
	b = append(b, '\n')
	return b
}

// marchSrc must follow the declaration of sdfmNormal.
const marchSrc = `
vec4 sdfmMarch(vec3 ro, vec3 rd, vec4 src, vec4 mainColor, vec3 light) {
	float t = 0.0;
	for (int i = 0; i < MARCH_STEPS && t < MARCH_DIST; i++) {
		vec3 p = ro + rd*t;
		float d = sdfmMap(p);
		if (d < MARCH_EPS) {
			vec3 n = sdfmNormal(p, NORMAL_STEP);
			float shade = AMBIENT + (1.0-AMBIENT)*max(dot(-light, n), 0.0);
			return vec4(mix(src.rgb, mainColor.rgb*shade, mainColor.a), 1.0);
		}
		t += d;
	}
	return src;
}
`

// WriteBakedKernel writes a standalone ShaderToy compatible program with the frame's
// parameters baked in as constants. It is meant for inspecting a frame outside of the pipeline.
func (p *Programmer) WriteBakedKernel(w io.Writer, fp *sdfmarch.FrameParams) (int, error) {
	frustum, cam, light, c := fp.Frustum(), fp.CameraToWorld(), fp.Light(), fp.MainColor()
	frustumArr, camArr, lightArr := frustum.Array(), cam.Array(), light.Array()
	err := errors.Join(
		checkFinite("frustum", frustumArr[:]...),
		checkFinite("camera matrix", camArr[:]...),
		checkFinite("light", lightArr[:]...),
		checkFinite("main color", c[:]...),
	)
	if err != nil {
		return 0, err
	}
	b := p.scratch[:0]
	b = p.appendDefines(b)
	b, err = appendBakedMap(b, fp)
	if err != nil {
		return 0, err
	}
	b = append(b, glsllib.Normal()...)
	b = append(b, marchSrc...)
	b = append(b, "\nvoid mainImage(out vec4 fragColor, in vec2 fragCoord) {\n"...)
	b = append(b, "vec2 uv = fragCoord/iResolution.xy;\n"...)
	b = AppendMat4Decl(b, "frustum", frustum)
	b = AppendMat4Decl(b, "cam", cam)
	b = AppendVec3Decl(b, "light", light)
	b = append(b, "vec4 mainColor=vec4("...)
	b = AppendFloats(b, ',', '-', '.', c[:]...)
	b = append(b, ");\n"...)
	b = append(b, `mat4 corners = transpose(frustum);
vec3 top = mix(corners[0].xyz, corners[1].xyz, uv.x);
vec3 bottom = mix(corners[3].xyz, corners[2].xyz, uv.x);
vec3 rd = normalize((cam * vec4(mix(bottom, top, uv.y), 0.0)).xyz);
vec4 src = vec4(mix(vec3(0.1), vec3(0.3), uv.y), 1.0);
fragColor = sdfmMarch(cam[3].xyz, rd, src, mainColor, light);
}
`...)
	p.scratch = b
	return w.Write(b)
}

// ComputeHeader precedes compute kernels so they can be parsed by glgl's combined source parser.
const ComputeHeader = "#shader compute\n" + VersionStr

// WriteComputeKernel writes a compute program evaluating the frame's distance field
// with its parameters baked in. Binding 0 holds the input positions as tightly packed
// float triplets and binding 1 receives the distances. invocX is the work group size.
func (p *Programmer) WriteComputeKernel(w io.Writer, fp *sdfmarch.FrameParams, invocX int) (int, error) {
	if invocX < 1 {
		return 0, errors.New("invalid compute invocation size")
	}
	b := p.scratch[:0]
	b = append(b, ComputeHeader...)
	b, err := appendBakedMap(b, fp)
	if err != nil {
		return 0, err
	}
	b = append(b, "layout(local_size_x = "...)
	b = strconv.AppendInt(b, int64(invocX), 10)
	b = append(b, `, local_size_y = 1, local_size_z = 1) in;

layout(std430, binding = 0) buffer PositionsBuffer {
	float vbo_positions[];
};

layout(std430, binding = 1) buffer DistancesBuffer {
	float vbo_distances[];
};

uniform int `+gleval.NumPositionsUniform+`;

void main() {
	int idx = int(gl_GlobalInvocationID.x);
	if (idx >= `+gleval.NumPositionsUniform+`) {
		return;
	}
	vec3 p = vec3(vbo_positions[3*idx], vbo_positions[3*idx+1], vbo_positions[3*idx+2]);
	vbo_distances[idx] = sdfmMap(p);
}
`...)
	p.scratch = b
	return w.Write(b)
}

// appendBakedMap appends sdfmCombine, one function per shape record and
// a straight-line sdfmMap running the frame's program over them.
func appendBakedMap(b []byte, fp *sdfmarch.FrameParams) ([]byte, error) {
	prog := fp.Program()
	if len(prog) == 0 {
		return b, errors.New("frame has no program")
	}
	b = append(b, glsllib.Combine()...)
	for i := 0; i < fp.NumShapes(); i++ {
		var err error
		b, err = appendBakedShape(b, i, fp.Shape(i))
		if err != nil {
			return b, err
		}
	}
	b = append(b, "\nfloat sdfmMap(vec3 p) {\n"...)
	b = append(b, "float "...)
	for i := 0; i < sdfmarch.MaxStackDepth; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendStackVar(b, i)
	}
	b = append(b, ";\n"...)
	depth := 0
	for _, ins := range prog {
		switch ins.Opcode {
		case sdfmarch.OpcodePush:
			b = appendStackVar(b, depth)
			b = append(b, "=shape"...)
			b = strconv.AppendInt(b, int64(ins.Arg), 10)
			b = append(b, "(p);\n"...)
			depth++
		case sdfmarch.OpcodeCombine:
			if depth < 2 {
				return b, errors.New("baked program stack underflow")
			}
			if err := checkFinite("blend strength", ins.Blend); err != nil {
				return b, err
			}
			depth--
			b = appendStackVar(b, depth-1)
			b = append(b, "=sdfmCombine("...)
			b = strconv.AppendInt(b, int64(ins.Arg), 10)
			b = append(b, ',')
			b = appendStackVar(b, depth-1)
			b = append(b, ',')
			b = appendStackVar(b, depth)
			b = append(b, ',')
			b = AppendFloat(b, '-', '.', ins.Blend)
			b = append(b, ");\n"...)
		default:
			return b, fmt.Errorf("invalid opcode %d", ins.Opcode)
		}
	}
	b = append(b, "return s0;\n}\n\n"...)
	return b, nil
}

func appendStackVar(b []byte, i int) []byte {
	b = append(b, 's')
	return strconv.AppendInt(b, int64(i), 10)
}

// appendBakedShape appends the distance function of shape record i with its fields as constants.
func appendBakedShape(b []byte, i int, s sdfmarch.ShapeRecord) ([]byte, error) {
	var active []float32
	switch s.Kind {
	case sdfmarch.ShapeSphere:
		active = []float32{s.SphereRadius}
	case sdfmarch.ShapeBox:
		active = []float32{s.Box.X, s.Box.Y, s.Box.Z}
	case sdfmarch.ShapeTorus:
		active = []float32{s.TorusOuter, s.TorusInner}
	case sdfmarch.ShapeCone:
		active = []float32{s.ConeRatio.X, s.ConeRatio.Y, s.ConeHeight}
	case sdfmarch.ShapeRoundedBox:
		active = []float32{s.RoundBox.X, s.RoundBox.Y, s.RoundBox.Z, s.BoxRoundness}
	}
	pos := s.Position.Array()
	active = append(active, pos[:]...)
	if err := checkFinite(fmt.Sprintf("shape %d parameter", i), active...); err != nil {
		return b, err
	}
	b = append(b, "\nfloat shape"...)
	b = strconv.AppendInt(b, int64(i), 10)
	b = append(b, "(vec3 p) {\n"...)
	b = AppendVec3Decl(b, "c", s.Position)
	b = append(b, "p -= c;\n"...)
	switch s.Kind {
	case sdfmarch.ShapeSphere:
		b = AppendFloatDecl(b, "r", s.SphereRadius)
		b = append(b, "return length(p)-r;\n"...)
	case sdfmarch.ShapeBox:
		b = AppendVec3Decl(b, "d", s.Box)
		b = append(b, "vec3 q=abs(p)-d;\nreturn length(max(q,0.0))+min(max(q.x,max(q.y,q.z)),0.0);\n"...)
	case sdfmarch.ShapeTorus:
		b = AppendFloatDecl(b, "t1", s.TorusOuter)
		b = AppendFloatDecl(b, "t2", s.TorusInner)
		b = append(b, "vec2 q=vec2(length(p.xz)-t1,p.y);\nreturn length(q)-t2;\n"...)
	case sdfmarch.ShapeCone:
		b = AppendVec2Decl(b, "c2", s.ConeRatio)
		b = AppendFloatDecl(b, "h", s.ConeHeight)
		b = append(b, "float q=length(p.xz);\nreturn max(dot(c2,vec2(q,p.y)),-h-p.y);\n"...)
	case sdfmarch.ShapeRoundedBox:
		b = AppendVec3Decl(b, "d", s.RoundBox)
		b = AppendFloatDecl(b, "r", s.BoxRoundness)
		b = append(b, "vec3 q=abs(p)-d+r;\nreturn length(max(q,0.0))+min(max(q.x,max(q.y,q.z)),0.0)-r;\n"...)
	default:
		return b, fmt.Errorf("unknown shape kind %d", int32(s.Kind))
	}
	b = append(b, "}\n"...)
	return b, nil
}

// checkFinite returns an error if any of vs is NaN or infinite, which have no GLSL literal.
func checkFinite(what string, vs ...float32) error {
	for _, v := range vs {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return fmt.Errorf("non-finite %s %g", what, v)
		}
	}
	return nil
}

func AppendDefineDecl(b []byte, aliasToDefine, aliasReplace string) []byte {
	b = append(b, "#define "...)
	b = append(b, aliasToDefine...)
	b = append(b, ' ')
	b = append(b, aliasReplace...)
	b = append(b, '\n')
	return b
}

func AppendVec3Decl(b []byte, vec3Varname string, v ms3.Vec) []byte {
	b = append(b, "vec3 "...)
	b = append(b, vec3Varname...)
	b = append(b, "=vec3("...)
	arr := v.Array()
	b = AppendFloats(b, ',', '-', '.', arr[:]...)
	b = append(b, ')', ';', '\n')
	return b
}

func AppendVec2Decl(b []byte, vec2Varname string, v ms2.Vec) []byte {
	b = append(b, "vec2 "...)
	b = append(b, vec2Varname...)
	b = append(b, "=vec2("...)
	arr := v.Array()
	b = AppendFloats(b, ',', '-', '.', arr[:]...)
	b = append(b, ')', ';', '\n')
	return b
}

func AppendFloatDecl(b []byte, floatVarname string, v float32) []byte {
	b = append(b, "float "...)
	b = append(b, floatVarname...)
	b = append(b, '=')
	b = AppendFloat(b, '-', '.', v)
	b = append(b, ';', '\n')
	return b
}

func AppendMat4Decl(b []byte, mat4Varname string, m44 ms3.Mat4) []byte {
	arr := m44.Array()
	return appendMatDecl(b, "mat4", mat4Varname, 4, 4, arr[:])
}

func appendMatDecl(b []byte, typename, name string, row, col int, arr []float32) []byte {
	b = append(b, typename...)
	b = append(b, ' ')
	b = append(b, name...)
	b = append(b, '=')
	b = append(b, typename...)
	b = append(b, '(')
	for i := 0; i < row; i++ {
		for j := 0; j < col; j++ {
			v := arr[j*row+i] // Column major access, as per OpenGL standard.
			b = AppendFloat(b, '-', '.', v)
			last := i == row-1 && j == col-1
			if !last {
				b = append(b, ',')
			}
		}
	}
	b = append(b, ");\n"...)
	return b
}

const decimalDigits = 9

// AppendFloat appends v with neg as the negative sign and decimal as the decimal separator.
// Trailing zeros are trimmed.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}
