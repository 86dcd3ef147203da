package sdfmarch

import (
	"reflect"

	"github.com/soypat/geometry/ms3"
)

// FallbackLight is the light direction used when the scene has no directional light: straight down.
var FallbackLight = ms3.Vec{Y: -1}

// DirectionalLight is implemented by scene objects carrying a directional light.
type DirectionalLight interface {
	// Forward returns the world space direction the light travels in.
	Forward() ms3.Vec
}

// LightFinder is implemented by scenes that can be searched for a directional light.
type LightFinder interface {
	// FindDirectionalLight returns the first directional light in the scene or nil.
	FindDirectionalLight() DirectionalLight
}

// SceneObjects is a flat scene. Any element implementing [DirectionalLight] is a light.
type SceneObjects []any

// FindDirectionalLight implements [LightFinder].
func (objs SceneObjects) FindDirectionalLight() DirectionalLight {
	for _, obj := range objs {
		if l, ok := obj.(DirectionalLight); ok && !isNilLight(l) {
			return l
		}
	}
	return nil
}

// SunLight is a [DirectionalLight] with a settable direction.
type SunLight struct {
	dir ms3.Vec
}

// NewSunLight returns a light shining in direction forward. forward is normalized.
func NewSunLight(forward ms3.Vec) *SunLight {
	l := &SunLight{}
	l.SetForward(forward)
	return l
}

// Forward implements [DirectionalLight].
func (l *SunLight) Forward() ms3.Vec { return l.dir }

// SetForward sets the normalized light direction. A zero vector selects [FallbackLight].
func (l *SunLight) SetForward(forward ms3.Vec) {
	if ms3.Norm(forward) < epstol {
		forward = FallbackLight
	}
	l.dir = ms3.Unit(forward)
}

// LightResolver finds the scene's directional light and remembers it.
// While no light is found every call searches the scene again. Once a light
// is found it is trusted and the scene is not searched again until [LightResolver.Reset]
// is called, even if the light is later removed from the scene.
type LightResolver struct {
	light DirectionalLight
}

// Lookup returns the cached light or searches scene for one. It returns nil if there is no light.
func (lr *LightResolver) Lookup(scene LightFinder) DirectionalLight {
	if lr.light != nil {
		return lr.light
	}
	if scene == nil {
		return nil
	}
	l := scene.FindDirectionalLight()
	if isNilLight(l) {
		return nil
	}
	lr.light = l
	return l
}

// Resolve returns the forward direction of the scene's light, or [FallbackLight] if there is none.
func (lr *LightResolver) Resolve(scene LightFinder) ms3.Vec {
	l := lr.Lookup(scene)
	if l == nil {
		return FallbackLight
	}
	return l.Forward()
}

// Cached reports whether a light has been found.
func (lr *LightResolver) Cached() bool { return lr.light != nil }

// Reset forgets the cached light so the next call searches the scene.
func (lr *LightResolver) Reset() { lr.light = nil }

// isNilLight reports whether l is nil or wraps a nil pointer.
func isNilLight(l DirectionalLight) bool {
	if l == nil {
		return true
	}
	if sl, ok := l.(*SunLight); ok {
		return sl == nil
	}
	v := reflect.ValueOf(l)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
