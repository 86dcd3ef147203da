package gsdfaux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glbuild"
	"github.com/soypat/sdfmarch/gleval"
	"github.com/soypat/sdfmarch/glrender"
)

// RenderConfig configures [RenderPNGFile].
type RenderConfig struct {
	Width, Height int
	// UseGPU selects the OpenGL kernel. Requires cgo and a GL 4.6 capable driver.
	UseGPU bool
	// March configures ray marching. The zero value selects [sdfmarch.DefaultMarchConfig].
	March sdfmarch.MarchConfig
	// Background is drawn where no surface is hit. If nil a vertical gradient is drawn, see [NewBackground].
	Background image.Image
	// Caption is written over the top left corner of the image if not empty.
	Caption string
	Silent  bool
	// Logger receives the stage's fallback warnings. nil uses the package level logger of glrender.
	Logger *slog.Logger
}

// UIConfig configures the interactive viewer [UI].
type UIConfig struct {
	Width, Height int
	// Context cancels the viewer loop when done. May be nil.
	Context context.Context
	March   sdfmarch.MarchConfig
	// MainColor tints the surfaces. nil is opaque white.
	MainColor color.Color
	// FieldOfView is the vertical field of view in degrees. Zero selects 60.
	FieldOfView float32
}

// GLConfig configures the OpenGL raymarch kernel.
type GLConfig struct {
	// March configures ray marching. The zero value selects [sdfmarch.DefaultMarchConfig].
	March sdfmarch.MarchConfig
}

// UI runs an orbiting viewer of root in a new window until it is closed.
// Directional lights are searched for in scene each frame until one is found.
// UI must be called from the main OS thread.
func UI(root sdfmarch.Node, scene sdfmarch.LightFinder, cfg UIConfig) error {
	if root == nil {
		return sdfmarch.ErrMissingScene
	} else if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("UI requires positive window dimensions")
	}
	if cfg.FieldOfView == 0 {
		cfg.FieldOfView = 60
	}
	return ui(root, scene, cfg)
}

// Screen is a draw target standing in for the framebuffer of the current GL window.
// Passing a Screen to a [GLKernel] draws directly to the window. Pixels set through
// the [image/draw.Image] interface are discarded.
type Screen struct {
	Width, Height int
}

func (s *Screen) ColorModel() color.Model     { return color.NRGBAModel }
func (s *Screen) Bounds() image.Rectangle     { return image.Rect(0, 0, s.Width, s.Height) }
func (s *Screen) At(x, y int) color.Color     { return color.NRGBA{} }
func (s *Screen) Set(x, y int, c color.Color) {}

// RenderPNGFile renders a single frame of in over the configured background and saves
// the result to a PNG file with said filename.
func RenderPNGFile(filename string, in sdfmarch.FrameInput, cfg RenderConfig) error {
	img, err := RenderImage(in, cfg)
	if err != nil {
		return err
	}
	watch := stopwatch()
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return err
	}
	if !cfg.Silent {
		fmt.Println("wrote", filename, "in", watch())
	}
	return fp.Sync()
}

// RenderImage renders a single frame of in over the configured background.
func RenderImage(in sdfmarch.FrameInput, cfg RenderConfig) (*image.NRGBA, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.New("RenderImage requires positive image dimensions")
	}
	log := func(args ...any) {
		if !cfg.Silent {
			fmt.Println(args...)
		}
	}
	// The stage never fails, so check the frame up front to report bad input.
	var pb sdfmarch.ParamBuilder
	params, err := pb.Build(in)
	if err != nil {
		return nil, err
	}
	bg := cfg.Background
	if bg == nil {
		bg = NewBackground(cfg.Width, cfg.Height, nil)
	}
	watch := stopwatch()
	var kernel glrender.Kernel
	if cfg.UseGPU {
		log("using GPU")
		terminate, err := InitHeadlessGL()
		if err != nil {
			return nil, err
		}
		defer terminate()
		glk, err := NewGLKernel(GLConfig{March: cfg.March})
		if err != nil {
			return nil, err
		}
		defer glk.Delete()
		kernel = glk
	} else {
		log("using CPU")
		cpuk, err := glrender.NewCPUKernel(glrender.CPUKernelConfig{
			March:          cfg.March,
			EvalBufferSize: max(64, cfg.Width),
		})
		if err != nil {
			return nil, err
		}
		kernel = cpuk
	}
	log("instantiating kernel took", watch())

	rk := &recordingKernel{Kernel: kernel}
	stage := glrender.NewStage(glrender.StageConfig{Kernel: rk, Logger: cfg.Logger})
	dst := image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	watch = stopwatch()
	stage.Render(dst, bg, in)
	if rk.err != nil {
		return nil, fmt.Errorf("raymarching frame: %w", rk.err)
	}
	log("raymarched", params.NumShapes(), "shapes at", cfg.Width, "x", cfg.Height, "in", watch())

	if cfg.Caption != "" {
		err = DrawCaption(dst, cfg.Caption, CaptionConfig{})
		if err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// SliceConfig configures [DrawDistanceSlice].
type SliceConfig struct {
	// Z is the height of the XY plane drawn.
	Z float32
	// UseGPU evaluates distances with a compute program. A GL 4.3+ context must be current,
	// see [InitHeadlessGL].
	UseGPU bool
}

// DrawDistanceSlice draws the distance field of params on an XY plane over dst
// in Inigo Quilez's style, see [ColorConversionInigoQuilez].
func DrawDistanceSlice(dst draw.Image, params *sdfmarch.FrameParams, cfg SliceConfig) error {
	diag := ms3.Norm(params.Bounds().Size())
	sr, err := glrender.NewSliceRenderer(max(64, dst.Bounds().Dx()), ColorConversionInigoQuilez(diag/3))
	if err != nil {
		return err
	}
	if !cfg.UseGPU {
		var vp gleval.VecPool
		return sr.RenderXY(params, dst, cfg.Z, &vp)
	}
	const invocX = 64
	var source bytes.Buffer
	_, err = glbuild.NewDefaultProgrammer().WriteComputeKernel(&source, params, invocX)
	if err != nil {
		return err
	}
	sdf, err := gleval.NewComputeSDF3(&source, params.Bounds(), gleval.ComputeConfig{InvocX: invocX})
	if err != nil {
		return err
	}
	defer sdf.Delete()
	return sr.RenderXY(sdf, dst, cfg.Z, nil)
}

// recordingKernel keeps the last error of the wrapped kernel since [glrender.Stage] only logs them.
type recordingKernel struct {
	glrender.Kernel
	err error
}

func (rk *recordingKernel) Bind(src image.Image, params *sdfmarch.FrameParams) error {
	rk.err = rk.Kernel.Bind(src, params)
	return rk.err
}

func (rk *recordingKernel) DrawQuad(dst draw.Image, q *glrender.Quad) error {
	err := rk.Kernel.DrawQuad(dst, q)
	if err != nil {
		rk.err = err
	}
	return err
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
