package gleval

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

type sphere struct{ r float32 }

func (s sphere) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Vec{X: -s.r, Y: -s.r, Z: -s.r}, Max: ms3.Vec{X: s.r, Y: s.r, Z: s.r}}
}

func (s sphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		dist[i] = ms3.Norm(p) - s.r
	}
	return nil
}

func TestNormalsCentralDiff(t *testing.T) {
	const tol = 1e-3
	pos := []ms3.Vec{{X: 1}, {Y: -1}, {X: 0.6, Z: 0.8}}
	normals := make([]ms3.Vec, len(pos))
	var vp VecPool
	err := NormalsCentralDiff(sphere{r: 1}, pos, normals, 1e-3, &vp)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range normals {
		got := ms3.Unit(n)
		if ms3.Norm(ms3.Sub(got, pos[i])) > tol {
			t.Errorf("normal at %v: want %v, got %v", pos[i], pos[i], got)
		}
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
	err = NormalsCentralDiff(sphere{r: 1}, pos, normals, 1e-3, nil)
	if err == nil {
		t.Error("want error without VecPool")
	}
	err = NormalsCentralDiff(sphere{r: 1}, pos, normals[:1], 1e-3, &vp)
	if err == nil {
		t.Error("want error for mismatched buffers")
	}
}

func TestCheckBuffers(t *testing.T) {
	if err := CheckBuffers(nil, nil); err != errEmptyBuffers {
		t.Errorf("want empty buffer error, got %v", err)
	}
	if err := CheckBuffers(make([]ms3.Vec, 2), make([]float32, 1)); err != errMismatchBufferLength {
		t.Errorf("want mismatch error, got %v", err)
	}
	if err := CheckBuffers(make([]ms3.Vec, 2), make([]float32, 2)); err != nil {
		t.Error(err)
	}
}

func TestVecPool(t *testing.T) {
	var vp VecPool
	a := vp.Float.Acquire(10)
	b := vp.Float.Acquire(5)
	if &a[0] == &b[0] {
		t.Fatal("acquired buffers alias")
	}
	if err := vp.AssertAllReleased(); err == nil {
		t.Error("want error with buffers in use")
	}
	vp.Float.Release(a)
	c := vp.Float.Acquire(8)
	if &c[0] != &a[0] {
		t.Error("want released buffer reused")
	}
	vp.Float.Release(b)
	vp.Float.Release(c)
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
	got, err := GetVecPool(&vp)
	if err != nil || got != &vp {
		t.Errorf("GetVecPool: %v", err)
	}
	if _, err := GetVecPool(math32.Pi); err == nil {
		t.Error("want error for userData without VecPool")
	}
}
