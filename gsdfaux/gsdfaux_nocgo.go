//go:build tinygo || !cgo

package gsdfaux

import (
	"errors"
	"image"
	"image/draw"

	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/glrender"
)

var errNoCgo = errors.New("OpenGL rendering requires cgo")

func ui(root sdfmarch.Node, scene sdfmarch.LightFinder, cfg UIConfig) error {
	return errNoCgo
}

// InitHeadlessGL requires cgo.
func InitHeadlessGL() (terminate func(), err error) {
	return nil, errNoCgo
}

// GLKernel requires cgo. Use [glrender.CPUKernel] instead.
type GLKernel struct{}

var _ glrender.Kernel = (*GLKernel)(nil)

// NewGLKernel requires cgo.
func NewGLKernel(cfg GLConfig) (*GLKernel, error) {
	return nil, errNoCgo
}

func (k *GLKernel) Bind(src image.Image, params *sdfmarch.FrameParams) error { return errNoCgo }
func (k *GLKernel) DrawQuad(dst draw.Image, q *glrender.Quad) error          { return errNoCgo }
func (k *GLKernel) Delete()                                                  {}
