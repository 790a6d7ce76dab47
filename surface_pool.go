package hwenc

import (
	"fmt"
)

// SurfacePool is a fixed set of frame surfaces sharing one allocation.
// Acquire never blocks: an exhausted pool is reported as ErrSurfaceNotFound.
type SurfacePool struct {
	geom     FrameGeometry
	buf      []byte
	surfaces []*FrameSurface
	engine   SurfaceLockReporter
}

// NewSurfacePool allocates count surfaces of geom from a single buffer of
// count * SurfaceSize(geom) bytes.
func NewSurfacePool(count int, geom FrameGeometry) (*SurfacePool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("surface count %d: %w", count, StatusInvalidVideoParam)
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	size := SurfaceSize(geom)
	layout := planeLayout(geom)

	p := &SurfacePool{
		geom:     geom,
		buf:      make([]byte, count*size),
		surfaces: make([]*FrameSurface, count),
	}
	for i := range p.surfaces {
		base := i * size
		p.surfaces[i] = newFrameSurface(i, geom, p.buf[base:base+size:base+size], layout)
	}
	return p, nil
}

// SetLockReporter makes Acquire skip surfaces the engine still holds.
func (p *SurfacePool) SetLockReporter(r SurfaceLockReporter) {
	p.engine = r
}

// Acquire locks and returns the lowest-indexed free surface.
func (p *SurfacePool) Acquire() (int, error) {
	for i, s := range p.surfaces {
		if s.Locked() {
			continue
		}
		if p.engine != nil && p.engine.SurfaceLocked(s) {
			continue
		}
		if s.tryLock() {
			return i, nil
		}
	}
	return -1, ErrSurfaceNotFound
}

// Release marks surface i free. Out of range indexes are ignored.
func (p *SurfacePool) Release(i int) {
	if i < 0 || i >= len(p.surfaces) {
		return
	}
	p.surfaces[i].unlock()
}

// Len returns the number of surfaces.
func (p *SurfacePool) Len() int { return len(p.surfaces) }

// Surface returns surface i.
func (p *SurfacePool) Surface(i int) *FrameSurface { return p.surfaces[i] }

// Free returns the number of surfaces that are not locked.
func (p *SurfacePool) Free() int {
	n := 0
	for _, s := range p.surfaces {
		if !s.Locked() {
			n++
		}
	}
	return n
}

// Geometry returns the geometry shared by all surfaces.
func (p *SurfacePool) Geometry() FrameGeometry { return p.geom }

// Size returns the pool allocation in bytes.
func (p *SurfacePool) Size() int { return len(p.buf) }
