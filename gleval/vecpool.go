package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// VecPool holds scratch buffers reused across SDF evaluations so that
// evaluating nested operations does not allocate on every call.
// A VecPool is not safe for concurrent use.
type VecPool struct {
	V3    bufPool[ms3.Vec]
	Float bufPool[float32]
}

// GetVecPool extracts a *VecPool from userData. userData may be a *VecPool
// or implement a VecPool() *VecPool method.
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, errors.New("nil VecPool")
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, errors.New("nil VecPool returned by userData")
		}
		return vp, nil
	case nil:
		return nil, errors.New("nil userData, expected *VecPool")
	}
	return nil, fmt.Errorf("userData %T does not provide a VecPool", userData)
}

// AssertAllReleased returns an error if any buffer acquired from the pool was not released.
func (vp *VecPool) AssertAllReleased() error {
	if n := vp.V3.inUse(); n > 0 {
		return fmt.Errorf("%d Vec3 buffers not released", n)
	}
	if n := vp.Float.inUse(); n > 0 {
		return fmt.Errorf("%d float buffers not released", n)
	}
	return nil
}

type bufPool[T any] struct {
	bufs     [][]T
	acquired []bool
}

// Acquire returns a buffer of length n. The buffer contents are undefined.
func (bp *bufPool[T]) Acquire(n int) []T {
	for i, buf := range bp.bufs {
		if !bp.acquired[i] && cap(buf) >= n {
			bp.acquired[i] = true
			return buf[:n]
		}
	}
	buf := make([]T, n)
	bp.bufs = append(bp.bufs, buf)
	bp.acquired = append(bp.acquired, true)
	return buf
}

// Release returns a buffer obtained with Acquire to the pool.
func (bp *bufPool[T]) Release(buf []T) {
	if cap(buf) == 0 {
		panic("release of zero capacity buffer")
	}
	for i, b := range bp.bufs {
		if bp.acquired[i] && &b[:cap(b)][0] == &buf[:cap(buf)][0] {
			bp.acquired[i] = false
			return
		}
	}
	panic("release of buffer not acquired from pool")
}

func (bp *bufPool[T]) inUse() (n int) {
	for _, a := range bp.acquired {
		if a {
			n++
		}
	}
	return n
}
