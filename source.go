package hwenc

import (
	"context"
	"fmt"
	"io"
)

// FrameSource fills a surface with the next raw frame.
// End of input, or an incomplete frame, is reported as ErrMoreData.
type FrameSource interface {
	ReadFrame(ctx context.Context, s *FrameSurface) error
}

// RawFrameSource reads headerless planar 4:2:0 frames: width*height luma
// bytes followed by two chroma planes of width*height/4 bytes each.
type RawFrameSource struct {
	r      io.Reader
	width  int
	height int
	frame  []byte
	frames uint64
}

// NewRawFrameSource returns a source reading width x height frames from r.
func NewRawFrameSource(r io.Reader, width, height int) *RawFrameSource {
	return &RawFrameSource{
		r:      r,
		width:  width,
		height: height,
		frame:  make([]byte, RawFrameSize(width, height)),
	}
}

// RawFrameSize returns the byte size of one packed 4:2:0 frame.
func RawFrameSize(width, height int) int {
	luma := width * height
	return luma + 2*(luma/4)
}

// Frames returns the number of complete frames read.
func (s *RawFrameSource) Frames() uint64 { return s.frames }

// ReadFrame reads the luma plane then both chroma planes, in that order,
// and writes them into surf honoring its strides.
func (s *RawFrameSource) ReadFrame(ctx context.Context, surf *FrameSurface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if surf == nil {
		return fmt.Errorf("read frame: %w", StatusNullPtr)
	}

	luma := s.width * s.height
	chroma := luma / 4
	y := s.frame[:luma]
	c1 := s.frame[luma : luma+chroma]
	c2 := s.frame[luma+chroma : luma+2*chroma]

	for _, p := range [][]byte{y, c1, c2} {
		if n, err := io.ReadFull(s.r, p); err != nil {
			return fmt.Errorf("frame %d: read %d of %d bytes (%v): %w", s.frames, n, len(p), err, ErrMoreData)
		}
	}

	if err := writePlanar(surf, s.width, s.height, y, c1, c2); err != nil {
		return err
	}
	s.frames++
	return nil
}

// writePlanar stores packed planes into surf. For NV12 the two chroma
// planes are interleaved.
func writePlanar(surf *FrameSurface, width, height int, y, c1, c2 []byte) error {
	planes := surf.Planes()
	cw, ch := width/2, height/2

	if len(planes) == 0 || planes[0].Stride < width || planes[0].Rows() < height {
		return fmt.Errorf("surface %s cannot hold %dx%d: %w", surf.Geometry(), width, height, ErrGeometryMismatch)
	}
	copyRows(surf.Plane(0), planes[0].Stride, y, width, height)

	switch len(planes) {
	case 2:
		uv := surf.Plane(1)
		stride := planes[1].Stride
		for row := 0; row < ch; row++ {
			dst := uv[row*stride : row*stride+2*cw]
			u := c1[row*cw : (row+1)*cw]
			v := c2[row*cw : (row+1)*cw]
			for i := 0; i < cw; i++ {
				dst[2*i] = u[i]
				dst[2*i+1] = v[i]
			}
		}
	case 3:
		copyRows(surf.Plane(1), planes[1].Stride, c1, cw, ch)
		copyRows(surf.Plane(2), planes[2].Stride, c2, cw, ch)
	default:
		return fmt.Errorf("fourcc %s: %w", surf.Geometry().FourCC, StatusUnsupported)
	}
	return nil
}

func copyRows(dst []byte, stride int, src []byte, width, rows int) {
	if stride == width {
		copy(dst, src[:width*rows])
		return
	}
	for row := 0; row < rows; row++ {
		copy(dst[row*stride:row*stride+width], src[row*width:(row+1)*width])
	}
}
