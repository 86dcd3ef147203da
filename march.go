package sdfmarch

import (
	"errors"

	"github.com/soypat/geometry/ms3"
)

// MarchConfig controls the sphere tracing loop and shading shared by the kernels.
type MarchConfig struct {
	// MaxSteps is the maximum amount of steps taken along a ray.
	MaxSteps int
	// MaxDistance is the distance from the camera after which a ray is considered a miss.
	MaxDistance float32
	// Epsilon is the distance under which a ray is considered to hit a surface.
	Epsilon float32
	// NormalStep is the offset used when estimating surface normals.
	NormalStep float32
	// Ambient is the light a surface facing away from the light receives, in [0,1].
	Ambient float32
}

// DefaultMarchConfig returns the configuration used by kernels when none is specified.
func DefaultMarchConfig() MarchConfig {
	return MarchConfig{
		MaxSteps:    128,
		MaxDistance: 100,
		Epsilon:     1e-3,
		NormalStep:  1e-3,
		Ambient:     0.15,
	}
}

// Validate returns a non-nil error if the configuration cannot be used to march rays.
func (cfg MarchConfig) Validate() error {
	switch {
	case cfg.MaxSteps <= 0:
		return errors.New("march steps must be positive")
	case cfg.MaxDistance <= 0:
		return errors.New("march distance must be positive")
	case cfg.Epsilon <= 0 || cfg.NormalStep <= 0:
		return errors.New("march epsilon and normal step must be positive")
	case cfg.Ambient < 0 || cfg.Ambient > 1:
		return errors.New("ambient must be in [0,1]")
	}
	return nil
}

// Shade returns the lambertian light intensity of a surface with unit normal
// lit by a light travelling in direction light.
func (cfg MarchConfig) Shade(normal, light ms3.Vec) float32 {
	diffuse := maxf(-ms3.Dot(normal, light), 0)
	return cfg.Ambient + (1-cfg.Ambient)*diffuse
}
