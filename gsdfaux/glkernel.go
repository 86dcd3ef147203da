//go:build !tinygo && cgo

package gsdfaux

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glbuild"
	"github.com/soypat/sdfmarch/glrender"
	xdraw "golang.org/x/image/draw"
)

// InitHeadlessGL starts a 1x1 sized GLFW window so that a [GLKernel] can be created without a viewer.
// It returns a termination function that should be called when done drawing.
// The calling goroutine must be locked to its OS thread.
func InitHeadlessGL() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "sdfmarch",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// GLKernel is a [glrender.Kernel] running the raymarch kernel with OpenGL.
// It requires a current GL context on the calling OS thread for its whole lifetime.
type GLKernel struct {
	prog     glgl.Program
	vao, vbo uint32
	tex      uint32
	texSize  image.Point
	texBuf   *image.NRGBA
	fbo, rbo uint32
	fboSize  image.Point
	readBuf  *image.NRGBA
	quadData []float32
	setter   uniformSetter
}

var _ glrender.Kernel = (*GLKernel)(nil)

// NewGLKernel compiles the kernel program. The program is ready to draw once this returns.
func NewGLKernel(cfg GLConfig) (*GLKernel, error) {
	programmer := glbuild.NewDefaultProgrammer()
	if cfg.March != (sdfmarch.MarchConfig{}) {
		var err error
		programmer, err = glbuild.NewProgrammer(cfg.March)
		if err != nil {
			return nil, err
		}
	}
	var vert, frag bytes.Buffer
	_, err := programmer.WriteVertexKernel(&vert)
	if err != nil {
		return nil, err
	}
	_, err = programmer.WriteFragmentKernel(&frag)
	if err != nil {
		return nil, err
	}
	vert.WriteByte(0)
	frag.WriteByte(0)
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   vert.String(),
		Fragment: frag.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("compiling raymarch kernel: %w", err)
	}
	k := &GLKernel{prog: prog, setter: uniformSetter{prog: prog.ID(), locs: make(map[string]int32)}}
	prog.Bind()
	defer prog.Unbind()

	gl.GenVertexArrays(1, &k.vao)
	gl.BindVertexArray(k.vao)
	gl.GenBuffers(1, &k.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, k.vbo)
	const stride = 5 * 4
	texAttrib, err := prog.AttribLocation(glbuild.AttribTexCoord + "\x00")
	if err != nil {
		k.Delete()
		return nil, err
	}
	vertAttrib, err := prog.AttribLocation(glbuild.AttribVertex + "\x00")
	if err != nil {
		k.Delete()
		return nil, err
	}
	gl.EnableVertexAttribArray(texAttrib)
	gl.VertexAttribPointer(texAttrib, 2, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(vertAttrib)
	gl.VertexAttribPointer(vertAttrib, 3, gl.FLOAT, false, stride, gl.PtrOffset(2*4))

	gl.GenTextures(1, &k.tex)
	gl.BindTexture(gl.TEXTURE_2D, k.tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	k.setter.Int(glbuild.UniformMainTex, 0)
	err = glgl.Err()
	if err != nil {
		k.Delete()
		return nil, fmt.Errorf("setting up raymarch kernel: %w", err)
	}
	return k, nil
}

var errKernelDeleted = errors.New("raymarch kernel deleted")

// Bind implements [glrender.Kernel]. src is uploaded as the kernel's input texture on every call.
func (k *GLKernel) Bind(src image.Image, params *sdfmarch.FrameParams) error {
	if k.prog.ID() == 0 {
		return errKernelDeleted
	} else if src == nil || params == nil {
		return errors.New("nil kernel input")
	}
	bb := src.Bounds()
	if bb.Empty() {
		return errors.New("empty source image")
	}
	k.prog.Bind()
	k.uploadTexture(src)
	glbuild.VisitUniforms(&k.setter, params)
	return glgl.Err()
}

func (k *GLKernel) uploadTexture(src image.Image) {
	sz := src.Bounds().Size()
	if k.texBuf == nil || k.texBuf.Rect.Size() != sz {
		k.texBuf = image.NewNRGBA(image.Rectangle{Max: sz})
	}
	// GL textures start at the bottom row.
	flipY(k.texBuf, src)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, k.tex)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	if sz == k.texSize {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(sz.X), int32(sz.Y), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(k.texBuf.Pix))
		return
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(sz.X), int32(sz.Y), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(k.texBuf.Pix))
	k.texSize = sz
}

// DrawQuad implements [glrender.Kernel]. If dst is a [*Screen] the quad is drawn to the
// window's framebuffer, otherwise it is drawn offscreen and read back into dst.
func (k *GLKernel) DrawQuad(dst draw.Image, q *glrender.Quad) error {
	if k.prog.ID() == 0 {
		return errKernelDeleted
	}
	bb := dst.Bounds()
	if bb.Empty() {
		return errors.New("empty draw target")
	}
	k.prog.Bind()
	defer k.prog.Unbind()
	_, toScreen := dst.(*Screen)
	if toScreen {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	} else {
		err := k.bindFramebuffer(bb.Size())
		if err != nil {
			return err
		}
		defer gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	}
	gl.Viewport(0, 0, int32(bb.Dx()), int32(bb.Dy()))
	k.setter.Mat4(glbuild.UniformOrtho, q.Ortho)
	k.quadData = q.AppendVertexData(k.quadData[:0])
	gl.BindVertexArray(k.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, k.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(k.quadData), gl.Ptr(k.quadData), gl.DYNAMIC_DRAW)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, k.tex)
	gl.DrawArrays(gl.TRIANGLE_FAN, 0, 4)
	err := glgl.Err()
	if err != nil || toScreen {
		return err
	}
	return k.readBack(dst)
}

func (k *GLKernel) bindFramebuffer(size image.Point) error {
	if k.fbo == 0 {
		gl.GenFramebuffers(1, &k.fbo)
		gl.GenRenderbuffers(1, &k.rbo)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, k.fbo)
	if k.fboSize != size {
		gl.BindRenderbuffer(gl.RENDERBUFFER, k.rbo)
		gl.RenderbufferStorage(gl.RENDERBUFFER, gl.RGBA8, int32(size.X), int32(size.Y))
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.RENDERBUFFER, k.rbo)
		k.fboSize = size
	}
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("incomplete framebuffer: status %#x", status)
	}
	return nil
}

func (k *GLKernel) readBack(dst draw.Image) error {
	bb := dst.Bounds()
	if k.readBuf == nil || k.readBuf.Rect.Size() != bb.Size() {
		k.readBuf = image.NewNRGBA(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(bb.Dx()), int32(bb.Dy()), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(k.readBuf.Pix))
	err := glgl.Err()
	if err != nil {
		return err
	}
	if nrgba, ok := dst.(*image.NRGBA); ok && nrgba.Rect.Size() == bb.Size() {
		flipY(nrgba, k.readBuf)
		return nil
	}
	flipped := image.NewNRGBA(k.readBuf.Rect)
	flipY(flipped, k.readBuf)
	xdraw.Copy(dst, bb.Min, flipped, flipped.Bounds(), xdraw.Src, nil)
	return nil
}

// Delete releases the kernel's GL resources. Bind and DrawQuad fail after Delete.
func (k *GLKernel) Delete() {
	if k.prog.ID() == 0 {
		return
	}
	if k.fbo != 0 {
		gl.DeleteFramebuffers(1, &k.fbo)
		gl.DeleteRenderbuffers(1, &k.rbo)
	}
	if k.tex != 0 {
		gl.DeleteTextures(1, &k.tex)
	}
	if k.vbo != 0 {
		gl.DeleteBuffers(1, &k.vbo)
	}
	if k.vao != 0 {
		gl.DeleteVertexArrays(1, &k.vao)
	}
	k.prog.Delete()
	*k = GLKernel{}
}

// flipY writes src into dst with its rows reversed. dst must be the size of src.
func flipY(dst *image.NRGBA, src image.Image) {
	bb := src.Bounds()
	h := bb.Dy()
	nrgba, isNRGBA := src.(*image.NRGBA)
	for y := 0; y < h; y++ {
		row := dst.Pix[(h-1-y)*dst.Stride : (h-1-y)*dst.Stride+4*bb.Dx()]
		if isNRGBA {
			off := nrgba.PixOffset(bb.Min.X, bb.Min.Y+y)
			copy(row, nrgba.Pix[off:off+4*bb.Dx()])
			continue
		}
		rowImg := &image.NRGBA{Pix: row, Stride: len(row), Rect: image.Rect(0, 0, bb.Dx(), 1)}
		xdraw.Copy(rowImg, image.Point{}, src, image.Rect(bb.Min.X, bb.Min.Y+y, bb.Max.X, bb.Min.Y+y+1), xdraw.Src, nil)
	}
}

// uniformSetter is the [glbuild.UniformVisitor] that writes uniforms into the bound program.
// Uniforms optimized out by the GL compiler are skipped.
type uniformSetter struct {
	prog uint32
	locs map[string]int32
}

func (us *uniformSetter) loc(name string) int32 {
	loc, ok := us.locs[name]
	if !ok {
		loc = gl.GetUniformLocation(us.prog, gl.Str(name+"\x00"))
		us.locs[name] = loc
	}
	return loc
}

func (us *uniformSetter) Mat4(name string, m ms3.Mat4) {
	if loc := us.loc(name); loc >= 0 {
		arr := m.Array()
		// Row major storage, have GL transpose it.
		gl.UniformMatrix4fv(loc, 1, true, &arr[0])
	}
}

func (us *uniformSetter) Vec4(name string, v [4]float32) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform4f(loc, v[0], v[1], v[2], v[3])
	}
}

func (us *uniformSetter) Vec3(name string, v ms3.Vec) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform3f(loc, v.X, v.Y, v.Z)
	}
}

func (us *uniformSetter) Vec2(name string, v ms2.Vec) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform2f(loc, v.X, v.Y)
	}
}

func (us *uniformSetter) Float(name string, v float32) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform1f(loc, v)
	}
}

func (us *uniformSetter) Int(name string, v int32) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform1i(loc, v)
	}
}

func (us *uniformSetter) IVec2(name string, x, y int32) {
	if loc := us.loc(name); loc >= 0 {
		gl.Uniform2i(loc, x, y)
	}
}
