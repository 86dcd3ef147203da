package gleval

import (
	"errors"
	"unsafe"

	"github.com/soypat/geometry/ms3"
)

// NumPositionsUniform is the integer uniform through which compute programs given to
// [NewComputeSDF3] receive the amount of positions to evaluate.
const NumPositionsUniform = "uNumPositions"

// ComputeConfig configures GPU compute evaluation.
type ComputeConfig struct {
	// InvocX is the work group size in X the compute program was written with.
	InvocX int
}

func (cfg ComputeConfig) validate() error {
	if cfg.InvocX <= 0 {
		return errors.New("invalid compute InvocX")
	}
	return nil
}

// SDF3Compute is a [SDF3] evaluated by a compute program on the GPU.
// A GL context must be current on the calling OS thread.
type SDF3Compute struct {
	computeProgram
	bb     ms3.Box
	invocX int
}

// Bounds implements [SDF3].
func (sdf *SDF3Compute) Bounds() ms3.Box {
	return sdf.bb
}

func elemSize[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}
