package gsdfaux

import (
	"image"
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
)

var (
	red = color.NRGBA{R: 255, A: 255}
	// Default background colors at the top and bottom of the image.
	skyTop    = color.NRGBA{R: 0x3a, G: 0x5f, B: 0x8f, A: 255}
	skyBottom = color.NRGBA{R: 0xd8, G: 0xe4, B: 0xee, A: 255}
)

// NewBackground returns a width by height image colored by conv as a function of the signed
// vertical distance to the image's horizontal center line, positive upwards in pixels.
// A nil conv draws a sky-like gradient spanning the image height.
func NewBackground(width, height int, conv func(float32) color.Color) *image.NRGBA {
	if conv == nil {
		conv = ColorConversionLinearGradient(float32(height), skyBottom, skyTop)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	half := float32(height) / 2
	for y := 0; y < height; y++ {
		c := color.NRGBAModel.Convert(conv(half - float32(y) - 0.5)).(color.NRGBA)
		row := img.Pix[y*img.Stride : y*img.Stride+4*width]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

// ColorConversionLinearGradient creates a color conversion function that blends from c0 to c1
// across a band of width gradientLength centered at d=0. Values past the band saturate to c0 or c1.
func ColorConversionLinearGradient(gradientLength float32, c0, c1 color.Color) func(d float32) color.Color {
	v0 := colorToVec(c0)
	v1 := colorToVec(c1)
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		blend := ms1.Clamp(d/gradientLength+0.5, 0, 1)
		c := ms3.InterpElem(v0, v1, ms3.Vec{X: blend, Y: blend, Z: blend})
		return vecToColor(c)
	}
}

// ColorConversionInigoQuilez creates a new color conversion using [Inigo Quilez]'s style
// of distance field visualization. Outside is orange, inside is blue and the surface is white.
// A good value for characteristic distance is the bounding box diagonal divided by 3. Returns red for NaN values.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1. / characteristicDistance
	one := ms3.Vec{X: 1, Y: 1, Z: 1}
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		d *= inv
		var c ms3.Vec
		if d > 0 {
			c = ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
		} else {
			c = ms3.Vec{X: 0.65, Y: 0.85, Z: 1.0}
		}
		c = ms3.Scale(1-math.Exp(-6*math.Abs(d)), c)
		c = ms3.Scale(0.8+0.2*math.Cos(150*d), c)
		edge := 1 - ms1.SmoothStep(0, 0.01, math.Abs(d))
		c = ms3.InterpElem(c, one, ms3.Vec{X: edge, Y: edge, Z: edge})
		return vecToColor(c)
	}
}

func colorToVec(c color.Color) ms3.Vec {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return ms3.Scale(1./math.MaxUint8, ms3.Vec{X: float32(n.R), Y: float32(n.G), Z: float32(n.B)})
}

func vecToColor(c ms3.Vec) color.NRGBA {
	return color.NRGBA{
		R: uint8(ms1.Clamp(c.X, 0, 1)*math.MaxUint8 + 0.5),
		G: uint8(ms1.Clamp(c.Y, 0, 1)*math.MaxUint8 + 0.5),
		B: uint8(ms1.Clamp(c.Z, 0, 1)*math.MaxUint8 + 0.5),
		A: 255,
	}
}
