// Package glsllib holds the GLSL function sources shared by the raymarch kernels.
package glsllib

import (
	_ "embed"
)

//go:embed shapes.glsl
var shapesSrc []byte

// ShapeDistance is the distance to shape record i. It reads the shape uniform arrays
// so it must be declared after them:
//
//	float sdfmShape(int i, vec3 p)
func ShapeDistance() []byte { return shapesSrc }

//go:embed combine.glsl
var combineSrc []byte

// Combine merges two distances with an operator code and blend strength:
//
//	float sdfmCombine(int op, float a, float b, float k)
func Combine() []byte { return combineSrc }

//go:embed normal.glsl
var normalSrc []byte

// Normal is the tetrahedral normal estimate of sdfmMap. sdfmMap must be declared before it:
//
//	vec3 sdfmNormal(vec3 p, float h)
func Normal() []byte { return normalSrc }
