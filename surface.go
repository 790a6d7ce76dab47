package hwenc

import (
	"sync/atomic"
)

// Plane describes one image plane inside a surface buffer.
type Plane struct {
	Offset int // Byte offset from the surface base
	Length int // Byte length
	Stride int // Bytes per row
}

// Rows returns the number of rows the plane holds.
func (p Plane) Rows() int {
	if p.Stride == 0 {
		return 0
	}
	return p.Length / p.Stride
}

// FrameSurface is one frame buffer of a SurfacePool.
type FrameSurface struct {
	index  int
	geom   FrameGeometry
	data   []byte
	planes []Plane
	locked atomic.Int32

	TimeStamp uint64 // 90 kHz presentation time of the frame held
}

// planeLayout computes the plane descriptors for a surface of geom.
// The luma stride is the 32-aligned width; chroma planes follow luma.
func planeLayout(geom FrameGeometry) []Plane {
	pitch := Align32(geom.Width)
	luma := pitch * Align32(geom.Height)

	switch geom.FourCC {
	case FourCCNV12:
		return []Plane{
			{Offset: 0, Length: luma, Stride: pitch},
			{Offset: luma, Length: luma / 2, Stride: pitch},
		}
	case FourCCYV12, FourCCIYUV:
		return []Plane{
			{Offset: 0, Length: luma, Stride: pitch},
			{Offset: luma, Length: luma / 4, Stride: pitch / 2},
			{Offset: luma + luma/4, Length: luma / 4, Stride: pitch / 2},
		}
	default:
		return nil
	}
}

func newFrameSurface(index int, geom FrameGeometry, data []byte, planes []Plane) *FrameSurface {
	return &FrameSurface{
		index:  index,
		geom:   geom,
		data:   data,
		planes: planes,
	}
}

// Index returns the surface position within its pool.
func (s *FrameSurface) Index() int { return s.index }

// Geometry returns the surface geometry.
func (s *FrameSurface) Geometry() FrameGeometry { return s.geom }

// Bytes returns the whole surface buffer.
func (s *FrameSurface) Bytes() []byte { return s.data }

// Planes returns the plane descriptors.
func (s *FrameSurface) Planes() []Plane { return s.planes }

// NumPlanes returns the number of planes.
func (s *FrameSurface) NumPlanes() int { return len(s.planes) }

// Plane returns the bytes of plane i, or nil if i is out of range.
func (s *FrameSurface) Plane(i int) []byte {
	if i < 0 || i >= len(s.planes) {
		return nil
	}
	p := s.planes[i]
	return s.data[p.Offset : p.Offset+p.Length : p.Offset+p.Length]
}

// Locked reports whether the surface is in use.
func (s *FrameSurface) Locked() bool { return s.locked.Load() > 0 }

func (s *FrameSurface) tryLock() bool { return s.locked.CompareAndSwap(0, 1) }

func (s *FrameSurface) unlock() { s.locked.Store(0) }

func (*FrameSurface) stageOutput() {}
