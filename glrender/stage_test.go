package glrender_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glrender"
)

type recordKernel struct {
	binds   int
	draws   int
	src     image.Image
	params  sdfmarch.FrameParams
	quad    glrender.Quad
	drawErr error
}

func (k *recordKernel) Bind(src image.Image, params *sdfmarch.FrameParams) error {
	k.binds++
	k.src = src
	k.params = *params
	return nil
}

func (k *recordKernel) DrawQuad(dst draw.Image, q *glrender.Quad) error {
	k.draws++
	k.quad = *q
	if k.drawErr != nil {
		return k.drawErr
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return nil
}

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func sceneInput() sdfmarch.FrameInput {
	var bld sdfmarch.Builder
	a := bld.NewSphere(sdfmarch.StaticPosition{}, 1)
	b := bld.NewBox(sdfmarch.StaticPosition{X: 0.8}, 0.5, 0.5, 0.5)
	return sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{
			FieldOfView:   60,
			Aspect:        1,
			CameraToWorld: sdfmarch.LookAt(ms3.Vec{Z: 4}, ms3.Vec{}, ms3.Vec{Y: 1}),
		},
		Root: bld.NewOperation(sdfmarch.OpBlend, 0.5, a, b),
	}
}

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestStageWithoutKernelCopies(t *testing.T) {
	var logbuf bytes.Buffer
	st := glrender.NewStage(glrender.StageConfig{Logger: debugLogger(&logbuf)})
	if st.HasKernel() {
		t.Fatal("expected no kernel")
	}
	src := gradientImage(16, 8)
	for i := 0; i < 3; i++ {
		dst := image.NewNRGBA(src.Bounds())
		st.Render(dst, src, sceneInput())
		if !bytes.Equal(dst.Pix, src.Pix) {
			t.Fatal("want destination pixel identical to source")
		}
	}
	if n := strings.Count(logbuf.String(), "copying source"); n != 1 {
		t.Errorf("want fallback logged once, got %d\n%s", n, logbuf.String())
	}
}

func TestStageMissingCameraCopies(t *testing.T) {
	var logbuf bytes.Buffer
	k := &recordKernel{}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k, Logger: debugLogger(&logbuf)})
	src := gradientImage(8, 8)
	dst := image.NewNRGBA(src.Bounds())
	in := sceneInput()
	in.Camera = nil
	st.Render(dst, src, in)
	if !bytes.Equal(dst.Pix, src.Pix) {
		t.Error("want destination pixel identical to source")
	}
	if k.binds != 0 || k.draws != 0 {
		t.Error("kernel must not be invoked without a camera")
	}
	if !strings.Contains(logbuf.String(), sdfmarch.ErrMissingCamera.Error()) {
		t.Errorf("want missing camera reason logged, got %s", logbuf.String())
	}

	// Recovering logs the transition back.
	st.Render(dst, src, sceneInput())
	if !strings.Contains(logbuf.String(), "resumed drawing") {
		t.Errorf("want resume logged, got %s", logbuf.String())
	}
}

func TestStageDrawsOnce(t *testing.T) {
	k := &recordKernel{}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k})
	src := gradientImage(8, 8)
	dst := image.NewNRGBA(src.Bounds())
	st.Render(dst, src, sceneInput())
	if k.binds != 1 || k.draws != 1 {
		t.Fatalf("want one bind and one draw, got %d binds and %d draws", k.binds, k.draws)
	}
	if k.src != image.Image(src) {
		t.Error("kernel must be bound to the source image")
	}
	if k.params.NumShapes() != 2 || k.params.Operator() != sdfmarch.OpBlend {
		t.Errorf("unexpected params: %d shapes, %s", k.params.NumShapes(), k.params.Operator())
	}
	if k.params.Light() != sdfmarch.FallbackLight {
		t.Errorf("want fallback light, got %v", k.params.Light())
	}
	if k.quad != glrender.FullScreenQuad() {
		t.Error("want full screen quad drawn")
	}
	if dst.NRGBAAt(3, 3) != (color.NRGBA{A: 255}) {
		t.Error("want kernel output in destination")
	}
}

func TestStageKernelErrorCopies(t *testing.T) {
	var logbuf bytes.Buffer
	k := &recordKernel{drawErr: errors.New("shader exploded")}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k, Logger: debugLogger(&logbuf)})
	src := gradientImage(8, 8)
	dst := image.NewNRGBA(src.Bounds())
	st.Render(dst, src, sceneInput())
	if !bytes.Equal(dst.Pix, src.Pix) {
		t.Error("want destination pixel identical to source after kernel failure")
	}
	if !strings.Contains(logbuf.String(), "level=DEBUG") || !strings.Contains(logbuf.String(), "shader exploded") {
		t.Errorf("want kernel error logged at debug level, got %s", logbuf.String())
	}
}

func TestStageKernelErrorIsNotResume(t *testing.T) {
	var logbuf bytes.Buffer
	k := &recordKernel{}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k, Logger: debugLogger(&logbuf)})
	src := gradientImage(8, 8)
	dst := image.NewNRGBA(src.Bounds())
	in := sceneInput()
	in.Camera = nil
	st.Render(dst, src, in)

	// Scene is complete again but the kernel fails: still copying.
	k.drawErr = errors.New("shader exploded")
	st.Render(dst, src, sceneInput())
	if strings.Contains(logbuf.String(), "resumed drawing") {
		t.Fatalf("failed draw logged as resumed:\n%s", logbuf.String())
	}
	if !bytes.Equal(dst.Pix, src.Pix) {
		t.Error("want destination pixel identical to source after kernel failure")
	}

	k.drawErr = nil
	st.Render(dst, src, sceneInput())
	if n := strings.Count(logbuf.String(), "resumed drawing"); n != 1 {
		t.Errorf("want one resume after successful draw, got %d\n%s", n, logbuf.String())
	}
}

func TestStageKernelErrorLoggedOnce(t *testing.T) {
	var logbuf bytes.Buffer
	k := &recordKernel{drawErr: errors.New("shader exploded")}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k, Logger: debugLogger(&logbuf)})
	src := gradientImage(8, 8)
	for i := 0; i < 3; i++ {
		st.Render(image.NewNRGBA(src.Bounds()), src, sceneInput())
	}
	if n := strings.Count(logbuf.String(), "level=WARN"); n != 1 {
		t.Errorf("want one warning for the transition, got %d\n%s", n, logbuf.String())
	}
}

func TestStageNilPointerLight(t *testing.T) {
	k := &recordKernel{}
	st := glrender.NewStage(glrender.StageConfig{Kernel: k})
	src := gradientImage(8, 8)
	in := sceneInput()
	in.Light = (*sdfmarch.SunLight)(nil)
	st.Render(image.NewNRGBA(src.Bounds()), src, in)
	if k.draws != 1 {
		t.Fatalf("want one draw, got %d", k.draws)
	}
	if k.params.Light() != sdfmarch.FallbackLight {
		t.Errorf("want fallback light, got %v", k.params.Light())
	}
}

func TestSetLogger(t *testing.T) {
	orig := glrender.Logger()
	t.Cleanup(func() { glrender.SetLogger(orig) })
	var logbuf bytes.Buffer
	glrender.SetLogger(debugLogger(&logbuf))
	st := glrender.NewStage(glrender.StageConfig{})
	src := gradientImage(4, 4)
	st.Render(image.NewNRGBA(src.Bounds()), src, sceneInput())
	if !strings.Contains(logbuf.String(), "copying source") {
		t.Errorf("want package logger used, got %q", logbuf.String())
	}
	glrender.SetLogger(nil)
	if glrender.Logger() == nil {
		t.Fatal("nil logger after reset")
	}
}

func TestFullScreenQuad(t *testing.T) {
	q := glrender.FullScreenQuad()
	wantUV := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	wantHint := [4]float32{3, 2, 1, 0}
	for i, v := range q.Vertices {
		if v.TexCoord.X != wantUV[i][0] || v.TexCoord.Y != wantUV[i][1] {
			t.Errorf("vertex %d: want texcoord %v, got %v", i, wantUV[i], v.TexCoord)
		}
		if v.Pos.X != wantUV[i][0] || v.Pos.Y != wantUV[i][1] || v.Pos.Z != wantHint[i] {
			t.Errorf("vertex %d: want position %v z=%g, got %v", i, wantUV[i], wantHint[i], v.Pos)
		}
	}
	// Frustum rows selected by the hints match each vertex's screen corner.
	rows := [4]int{sdfmarch.RowBottomLeft, sdfmarch.RowBottomRight, sdfmarch.RowTopRight, sdfmarch.RowTopLeft}
	for i, v := range q.Vertices {
		if int(v.Pos.Z) != rows[i] {
			t.Errorf("vertex %d: hint %g does not select frustum row %d", i, v.Pos.Z, rows[i])
		}
	}
	data := q.AppendVertexData(nil)
	if len(data) != 20 || data[4] != 3 || data[19] != 0 {
		t.Errorf("unexpected vertex data %v", data)
	}
	if q.Ortho != glrender.Ortho(0, 1, 0, 1, -1, 100) {
		t.Error("unexpected quad projection")
	}
}
