//go:build tinygo || !cgo

package gleval

import (
	"errors"
	"io"

	"github.com/soypat/geometry/ms3"
)

var errNoCGO = errors.New("GPU evaluation requires CGo and is not supported on TinyGo")

type computeProgram struct{}

// NewComputeSDF3 requires cgo.
func NewComputeSDF3(glglSourceCode io.Reader, bb ms3.Box, cfg ComputeConfig) (*SDF3Compute, error) {
	return nil, errNoCGO
}

// Evaluate implements [SDF3].
func (sdf *SDF3Compute) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return errNoCGO
}

// Delete releases the compute program.
func (sdf *SDF3Compute) Delete() {}
