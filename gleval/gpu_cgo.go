//go:build !tinygo && cgo

package gleval

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

type computeProgram struct {
	prog   glgl.Program
	numLoc int32
}

// NewComputeSDF3 instantiates a [SDF3] that runs on the GPU. The source is in glgl's
// combined format and its program must declare the [NumPositionsUniform] uniform, read
// positions as packed float triplets from binding 0 and write distances to binding 1.
func NewComputeSDF3(glglSourceCode io.Reader, bb ms3.Box, cfg ComputeConfig) (*SDF3Compute, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	combinedSource, err := glgl.ParseCombined(glglSourceCode)
	if err != nil {
		return nil, err
	}
	glprog, err := glgl.CompileProgram(combinedSource)
	if err != nil {
		return nil, errors.New(string(combinedSource.Compute) + "\n" + err.Error())
	}
	loc, err := glprog.UniformLocation(NumPositionsUniform + "\x00")
	if err != nil {
		glprog.Delete()
		return nil, err
	}
	sdf := SDF3Compute{
		computeProgram: computeProgram{prog: glprog, numLoc: loc},
		bb:             bb,
		invocX:         cfg.InvocX,
	}
	return &sdf, nil
}

// Evaluate implements [SDF3]. userData is not used.
func (sdf *SDF3Compute) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := CheckBuffers(pos, dist)
	if err != nil {
		return err
	}
	sdf.prog.Bind()
	defer sdf.prog.Unbind()
	gl.Uniform1i(sdf.numLoc, int32(len(pos)))
	return computeEvaluate(pos, dist, sdf.invocX)
}

// Delete releases the compute program.
func (sdf *SDF3Compute) Delete() {
	sdf.prog.Delete()
}

func loadSSBO[T any](slice []T, base, usage uint32) (ssbo uint32) {
	var p runtime.Pinner
	p.Pin(&ssbo)
	gl.GenBuffers(1, &ssbo)
	p.Unpin()
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	size := len(slice) * elemSize[T]()
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, unsafe.Pointer(&slice[0]), usage)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, base, ssbo)
	return ssbo
}

func createSSBO(size int, base, usage uint32) (ssbo uint32) {
	gl.GenBuffers(1, &ssbo)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, nil, usage)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, base, ssbo)
	return ssbo
}

func copySSBO[T any](dst []T, ssbo uint32) error {
	bufSize := elemSize[T]() * len(dst)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, bufSize, gl.MAP_READ_BIT)
	if ptr == nil {
		return glErrOrMessage("failed to map SSBO buffer during copy")
	}
	defer gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)
	gpuBytes := unsafe.Slice((*byte)(ptr), bufSize)
	bufBytes := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), bufSize)
	copy(bufBytes, gpuBytes)
	return nil
}

// computeEvaluate runs the bound compute program over pos. ms3.Vec is three packed
// float32s so positions are uploaded as is.
func computeEvaluate(pos []ms3.Vec, dist []float32, invocX int) (err error) {
	var posSSBO, distSSBO uint32
	var p runtime.Pinner
	p.Pin(&posSSBO)
	p.Pin(&distSSBO)
	defer p.Unpin()

	posSSBO = loadSSBO(pos, 0, gl.STATIC_DRAW)
	if posSSBO == 0 {
		return glErrOrMessage("zero SSBO id set by GL during compute loading")
	}
	defer gl.DeleteBuffers(1, &posSSBO)

	distSSBO = createSSBO(elemSize[float32]()*len(dist), 1, gl.DYNAMIC_READ)
	if distSSBO == 0 {
		return glErrOrMessage("zero id SSBO creating distance buffer")
	}
	defer gl.DeleteBuffers(1, &distSSBO)
	nWorkX := (len(dist) + invocX - 1) / invocX
	gl.DispatchCompute(uint32(nWorkX), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	err = copySSBO(dist, distSSBO)
	if err != nil {
		return err
	}
	return glgl.Err()
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
