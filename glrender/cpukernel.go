package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/gleval"
)

// CPUKernelConfig configures a [CPUKernel].
type CPUKernelConfig struct {
	// March configures the ray marching. The zero value selects [sdfmarch.DefaultMarchConfig].
	March sdfmarch.MarchConfig
	// EvalBufferSize is the amount of rays marched together. It must be at least
	// the width of the images drawn.
	EvalBufferSize int
}

// CPUKernel is a [Kernel] that raymarches on the CPU. It runs the same distance program,
// corner ray interpolation and shading as the GPU kernel and is used for headless rendering.
type CPUKernel struct {
	cfg    sdfmarch.MarchConfig
	vp     gleval.VecPool
	src    image.Image
	params sdfmarch.FrameParams
	bound  bool

	rays    []ms3.Vec
	t       []float32
	active  []int32
	pos     []ms3.Vec
	dist    []float32
	hits    []ms3.Vec
	normals []ms3.Vec
	// hitSlot is the index into hits of each column's ray, -1 on miss.
	hitSlot []int32
}

var _ Kernel = (*CPUKernel)(nil)

// NewCPUKernel returns a CPU kernel ready to be bound.
func NewCPUKernel(cfg CPUKernelConfig) (*CPUKernel, error) {
	if cfg.EvalBufferSize < 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if cfg.March == (sdfmarch.MarchConfig{}) {
		cfg.March = sdfmarch.DefaultMarchConfig()
	}
	err := cfg.March.Validate()
	if err != nil {
		return nil, err
	}
	n := cfg.EvalBufferSize
	return &CPUKernel{
		cfg:     cfg.March,
		rays:    make([]ms3.Vec, n),
		t:       make([]float32, n),
		active:  make([]int32, 0, n),
		pos:     make([]ms3.Vec, n),
		dist:    make([]float32, n),
		hits:    make([]ms3.Vec, n),
		normals: make([]ms3.Vec, n),
		hitSlot: make([]int32, n),
	}, nil
}

// Bind implements [Kernel]. params is copied.
func (k *CPUKernel) Bind(src image.Image, params *sdfmarch.FrameParams) error {
	if src == nil || params == nil {
		return errors.New("nil kernel input")
	} else if params.NumShapes() == 0 {
		return errors.New("frame has no shapes")
	}
	k.src = src
	k.params = *params
	k.bound = true
	return nil
}

// DrawQuad implements [Kernel]. Pixels outside the quad are left untouched.
func (k *CPUKernel) DrawQuad(dst draw.Image, q *Quad) error {
	if !k.bound {
		return errors.New("kernel inputs not bound")
	}
	rect, corners, err := q.rectCorners()
	if err != nil {
		return err
	}
	// View space corner rays and texture coordinates at bottom-left, bottom-right, top-right, top-left.
	var rays [4]ms3.Vec
	var uvs [4]ms2.Vec
	frustum := k.params.Frustum()
	for c, vi := range corners {
		v := q.Vertices[vi]
		row := int(v.Pos.Z)
		if row < 0 || row > 3 || float32(row) != v.Pos.Z {
			return fmt.Errorf("vertex %d frustum row hint %g out of range", vi, v.Pos.Z)
		}
		rays[c] = sdfmarch.FrustumCorner(frustum, row)
		uvs[c] = v.TexCoord
	}

	bb := dst.Bounds()
	w, h := bb.Dx(), bb.Dy()
	if w > len(k.rays) {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image rows (%d)", len(k.rays), w)
	}
	cam := k.params.CameraToWorld()
	camPos := camPosition(cam)
	for j := 0; j < h; j++ {
		ndcY := 1 - 2*(float32(j)+0.5)/float32(h)
		ty := (ndcY - rect.Min.Y) / (rect.Max.Y - rect.Min.Y)
		if ty < 0 || ty > 1 {
			continue
		}
		x0, x1 := w, 0
		for i := 0; i < w; i++ {
			ndcX := -1 + 2*(float32(i)+0.5)/float32(w)
			tx := (ndcX - rect.Min.X) / (rect.Max.X - rect.Min.X)
			if tx < 0 || tx > 1 {
				continue
			}
			x0 = min(x0, i)
			x1 = max(x1, i+1)
			k.rays[i] = ms3.Unit(sdfmarch.MulDirection(cam, bilerp3(rays, tx, ty)))
		}
		if x0 >= x1 {
			continue
		}
		err = k.drawRow(dst, bb.Min.X, bb.Min.Y+j, x0, x1, camPos, func(i int) ms2.Vec {
			ndcX := -1 + 2*(float32(i)+0.5)/float32(w)
			tx := (ndcX - rect.Min.X) / (rect.Max.X - rect.Min.X)
			return bilerp2(uvs, tx, ty)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// drawRow marches the rays k.rays[x0:x1] from ro and writes the row y of dst.
func (k *CPUKernel) drawRow(dst draw.Image, xoff, y, x0, x1 int, ro ms3.Vec, uvAt func(i int) ms2.Vec) error {
	cfg := k.cfg
	k.active = k.active[:0]
	nh := 0
	for i := x0; i < x1; i++ {
		k.t[i] = 0
		k.hitSlot[i] = -1
		k.active = append(k.active, int32(i))
	}
	for step := 0; step < cfg.MaxSteps && len(k.active) > 0; step++ {
		n := len(k.active)
		for a, i := range k.active {
			k.pos[a] = ms3.Add(ro, ms3.Scale(k.t[i], k.rays[i]))
		}
		err := k.params.Evaluate(k.pos[:n], k.dist[:n], &k.vp)
		if err != nil {
			return err
		}
		next := k.active[:0]
		for a, i := range k.active[:n] {
			d := k.dist[a]
			switch {
			case d < cfg.Epsilon:
				k.hits[nh] = k.pos[a]
				k.hitSlot[i] = int32(nh)
				nh++
			case k.t[i]+d < cfg.MaxDistance:
				k.t[i] += d
				next = append(next, i)
			}
		}
		k.active = next
	}
	if nh > 0 {
		err := gleval.NormalsCentralDiff(&k.params, k.hits[:nh], k.normals[:nh], cfg.NormalStep, &k.vp)
		if err != nil {
			return err
		}
	}
	light := k.params.Light()
	tint := k.params.MainColor()
	for i := x0; i < x1; i++ {
		src := k.sample(uvAt(i))
		if h := k.hitSlot[i]; h >= 0 {
			shade := cfg.Shade(ms3.Unit(k.normals[h]), light)
			for c := 0; c < 3; c++ {
				src[c] = mixf(src[c], tint[c]*shade, tint[3])
			}
			src[3] = 1
		}
		dst.Set(xoff+i, y, floatsToNRGBA(src))
	}
	return nil
}

// sample returns the non-premultiplied source color nearest to texture coordinate uv.
// The texture's V axis points up while image rows go down.
func (k *CPUKernel) sample(uv ms2.Vec) [4]float32 {
	bb := k.src.Bounds()
	x := bb.Min.X + clampi(int(uv.X*float32(bb.Dx())), 0, bb.Dx()-1)
	y := bb.Min.Y + clampi(int((1-uv.Y)*float32(bb.Dy())), 0, bb.Dy()-1)
	c := color.NRGBA64Model.Convert(k.src.At(x, y)).(color.NRGBA64)
	const max = 0xffff
	return [4]float32{float32(c.R) / max, float32(c.G) / max, float32(c.B) / max, float32(c.A) / max}
}

func floatsToNRGBA(c [4]float32) color.NRGBA64 {
	const max = 0xffff
	return color.NRGBA64{
		R: uint16(math32.Round(clampf(c[0], 0, 1) * max)),
		G: uint16(math32.Round(clampf(c[1], 0, 1) * max)),
		B: uint16(math32.Round(clampf(c[2], 0, 1) * max)),
		A: uint16(math32.Round(clampf(c[3], 0, 1) * max)),
	}
}

func camPosition(cam ms3.Mat4) ms3.Vec {
	a := cam.Array()
	return ms3.Vec{X: a[3], Y: a[7], Z: a[11]}
}

// bilerp3 interpolates values at bottom-left, bottom-right, top-right, top-left corners.
func bilerp3(v [4]ms3.Vec, tx, ty float32) ms3.Vec {
	bottom := ms3.InterpElem(v[0], v[1], ms3.Vec{X: tx, Y: tx, Z: tx})
	top := ms3.InterpElem(v[3], v[2], ms3.Vec{X: tx, Y: tx, Z: tx})
	return ms3.InterpElem(bottom, top, ms3.Vec{X: ty, Y: ty, Z: ty})
}

func bilerp2(v [4]ms2.Vec, tx, ty float32) ms2.Vec {
	bottom := ms2.Vec{X: mixf(v[0].X, v[1].X, tx), Y: mixf(v[0].Y, v[1].Y, tx)}
	top := ms2.Vec{X: mixf(v[3].X, v[2].X, tx), Y: mixf(v[3].Y, v[2].Y, tx)}
	return ms2.Vec{X: mixf(bottom.X, top.X, ty), Y: mixf(bottom.Y, top.Y, ty)}
}

func mixf(x, y, a float32) float32 { return x*(1-a) + y*a }

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
