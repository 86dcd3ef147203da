package glrender_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/sdfmarch"
	"github.com/soypat/sdfmarch/gleval"
	"github.com/soypat/sdfmarch/glrender"
)

func TestSliceRendererXY(t *testing.T) {
	var bld sdfmarch.Builder
	var pb sdfmarch.ParamBuilder
	params, err := pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1, CameraToWorld: sdfmarch.LookAt(ms3.Vec{Z: 5}, ms3.Vec{}, ms3.Vec{Y: 1})},
		// Box is taller than wide so the slice fills a non-square extent.
		Root: bld.NewBox(nil, 1, 2, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	sr, err := glrender.NewSliceRenderer(64, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 16, 32))
	var vp gleval.VecPool
	err = sr.RenderXY(&params, img, 0, &vp)
	if err != nil {
		t.Fatal(err)
	}
	// Pixel centers all lie inside the box bounds.
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			if got := img.GrayAt(x, y); got != (color.Gray{}) {
				t.Fatalf("want interior black at (%d,%d), got %v", x, y, got)
			}
		}
	}
	// Slicing above the box is all exterior.
	err = sr.RenderXY(&params, img, 1.5, &vp)
	if err != nil {
		t.Fatal(err)
	}
	if got := img.GrayAt(8, 16); got != (color.Gray{Y: 255}) {
		t.Errorf("want exterior white, got %v", got)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
}

func TestSliceRendererBufferTooSmall(t *testing.T) {
	_, err := glrender.NewSliceRenderer(8, nil)
	if err == nil {
		t.Fatal("want error for tiny buffer")
	}
	sr, err := glrender.NewSliceRenderer(64, nil)
	if err != nil {
		t.Fatal(err)
	}
	var bld sdfmarch.Builder
	var pb sdfmarch.ParamBuilder
	params, err := pb.Build(sdfmarch.FrameInput{
		Camera: &sdfmarch.Camera{FieldOfView: 60, Aspect: 1},
		Root:   bld.NewSphere(nil, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	var vp gleval.VecPool
	err = sr.RenderXY(&params, image.NewGray(image.Rect(0, 0, 65, 1)), 0, &vp)
	if err == nil {
		t.Error("want error for image wider than buffer")
	}
}
