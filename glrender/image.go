package glrender

import (
	"errors"
	"fmt"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch/gleval"
)

// SliceRenderer draws cross-sections of a distance field to images. It is a debugging aid
// to inspect the field the kernel marches, such as [sdfmarch.FrameParams].
type SliceRenderer struct {
	conv func(f float32) color.Color
	pos  []ms3.Vec
	dist []float32
}

// NewSliceRenderer instances a new [SliceRenderer]. A nil float->color conversion
// function results in a simple black-white color scheme where black is the interior of the SDF (negative distance).
func NewSliceRenderer(evalBufferSize int, conversion func(float32) color.Color) (*SliceRenderer, error) {
	if evalBufferSize < 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if conversion == nil {
		conversion = func(f float32) color.Color {
			switch {
			case math32.IsNaN(f) || math32.IsInf(f, 0):
				return color.RGBA{R: 255, A: 255}
			case f > 0:
				return color.White
			default:
				return color.Black
			}
		}
	}
	return &SliceRenderer{
		conv: conversion,
		pos:  make([]ms3.Vec, evalBufferSize),
		dist: make([]float32, evalBufferSize),
	}, nil
}

// RenderXY draws the plane Z=z of sdf over the XY extent of its bounds into img, with Y up.
// It uses userData as an argument to all [gleval.SDF3.Evaluate] calls.
func (sr *SliceRenderer) RenderXY(sdf gleval.SDF3, img draw.Image, z float32, userData any) error {
	imgBB := img.Bounds()
	dxi, dyi := imgBB.Dx(), imgBB.Dy()
	if len(sr.dist) < dxi {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image rows (%d)", len(sr.dist), dxi)
	}
	bb := sdf.Bounds()
	sz := bb.Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return errors.New("empty slice bounds")
	}
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	for j := 0; j < dyi; j++ {
		// Image rows go down, Y goes up. Sample at pixel centers.
		y := bb.Max.Y - (float32(j)+0.5)*dy
		for i := 0; i < dxi; i++ {
			sr.pos[i] = ms3.Vec{X: bb.Min.X + (float32(i)+0.5)*dx, Y: y, Z: z}
		}
		err := sdf.Evaluate(sr.pos[:dxi], sr.dist[:dxi], userData)
		if err != nil {
			return err
		}
		for i, d := range sr.dist[:dxi] {
			img.Set(imgBB.Min.X+i, imgBB.Min.Y+j, sr.conv(d))
		}
	}
	return nil
}
