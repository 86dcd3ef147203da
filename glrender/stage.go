package glrender

import (
	"errors"
	"image"
	"image/draw"
	"log/slog"

	"github.com/soypat/sdfmarch"
	xdraw "golang.org/x/image/draw"
)

// Kernel rasterizes a quad by raymarching the bound frame parameters.
// It is the material of a [Stage].
type Kernel interface {
	// Bind makes src and params the inputs of the next draw. src is sampled where rays miss.
	Bind(src image.Image, params *sdfmarch.FrameParams) error
	// DrawQuad rasterizes q into dst using the bound inputs.
	DrawQuad(dst draw.Image, q *Quad) error
}

// StageConfig configures a [Stage].
type StageConfig struct {
	// Kernel is owned by the stage from construction. nil means no material is configured
	// and the stage copies its source unchanged.
	Kernel Kernel
	// Logger overrides the package logger set with [SetLogger].
	Logger *slog.Logger
}

// Stage is the post-processing step that draws the raymarched scene over a source image.
// It is frame synchronous and not safe for concurrent use.
type Stage struct {
	kernel   Kernel
	log      *slog.Logger
	params   sdfmarch.ParamBuilder
	quad     Quad
	fallback bool
}

// NewStage returns a stage drawing with cfg.Kernel.
func NewStage(cfg StageConfig) *Stage {
	return &Stage{
		kernel: cfg.Kernel,
		log:    cfg.Logger,
		quad:   FullScreenQuad(),
	}
}

func (st *Stage) logger() *slog.Logger {
	if st.log != nil {
		return st.log
	}
	return Logger()
}

// HasKernel reports whether a kernel was configured.
func (st *Stage) HasKernel() bool { return st.kernel != nil }

// Render draws the frame described by in over src into dst. If there is no kernel, a scene
// reference is missing or the kernel fails, src is copied into dst unchanged.
func (st *Stage) Render(dst draw.Image, src image.Image, in sdfmarch.FrameInput) {
	if st.kernel == nil {
		st.setFallback(errNoKernel)
		copyImage(dst, src)
		return
	}
	params, err := st.params.Build(in)
	if err != nil {
		st.setFallback(err)
		copyImage(dst, src)
		return
	}
	err = st.kernel.Bind(src, &params)
	if err == nil {
		err = st.kernel.DrawQuad(dst, &st.quad)
	}
	if err != nil {
		st.logger().Debug("raymarch kernel failed", slog.String("err", err.Error()))
		copyImage(dst, src)
	}
	st.setFallback(err)
}

var errNoKernel = errors.New("no raymarch kernel configured")

// setFallback logs transitions between drawing and copying. A nil reason means drawing.
func (st *Stage) setFallback(reason error) {
	fallback := reason != nil
	if fallback == st.fallback {
		return
	}
	st.fallback = fallback
	if fallback {
		st.logger().Warn("raymarch stage copying source", slog.String("reason", reason.Error()))
	} else {
		st.logger().Warn("raymarch stage resumed drawing")
	}
}

// copyImage copies src into dst aligning their minimum points.
func copyImage(dst draw.Image, src image.Image) {
	xdraw.Copy(dst, dst.Bounds().Min, src, src.Bounds(), xdraw.Src, nil)
}
