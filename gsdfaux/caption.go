package gsdfaux

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// CaptionConfig configures [DrawCaption].
type CaptionConfig struct {
	// Size is the font size in points at 72 DPI. Zero selects 14.
	Size float64
	// Color of the text. nil is white.
	Color color.Color
	// Margin in pixels from the top left corner. Zero selects 6.
	Margin int
}

var parseGoRegular = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// DrawCaption writes a single line of text over the top left corner of dst
// using the Go regular font. Text past the right edge of dst is clipped.
func DrawCaption(dst draw.Image, text string, cfg CaptionConfig) error {
	if cfg.Size == 0 {
		cfg.Size = 14
	}
	if cfg.Color == nil {
		cfg.Color = color.White
	}
	if cfg.Margin == 0 {
		cfg.Margin = 6
	}
	ttf, err := parseGoRegular()
	if err != nil {
		return err
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: cfg.Size, Hinting: font.HintingFull})
	defer face.Close()
	bb := dst.Bounds()
	ascent := face.Metrics().Ascent
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(cfg.Color),
		Face: face,
		Dot:  fixed.P(bb.Min.X+cfg.Margin, bb.Min.Y+cfg.Margin).Add(fixed.Point26_6{Y: ascent}),
	}
	drawer.DrawString(text)
	return nil
}
