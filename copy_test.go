package hwenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopySurface(t *testing.T) {
	src, err := NewSurfacePool(1, testGeometry(FourCCNV12))
	require.NoError(t, err)
	dst, err := NewSurfacePool(1, testGeometry(FourCCNV12))
	require.NoError(t, err)

	s, d := src.Surface(0), dst.Surface(0)
	for i := range s.Bytes() {
		s.Bytes()[i] = byte(i)
	}
	s.TimeStamp = 9000

	require.NoError(t, CopySurface(s, d))
	require.Equal(t, s.Bytes(), d.Bytes())
	require.EqualValues(t, 9000, d.TimeStamp)
}

func TestCopySurfaceDifferentAlignment(t *testing.T) {
	srcGeom := testGeometry(FourCCNV12)
	dstGeom := srcGeom
	dstGeom.Width, dstGeom.Height = 64, 64

	src, err := NewSurfacePool(1, srcGeom)
	require.NoError(t, err)
	dst, err := NewSurfacePool(1, dstGeom)
	require.NoError(t, err)

	s, d := src.Surface(0), dst.Surface(0)
	for i := range s.Bytes() {
		s.Bytes()[i] = 0x11
	}
	require.NoError(t, CopySurface(s, d))

	n := srcGeom.CropSize()
	require.Equal(t, s.Bytes()[:n], d.Bytes()[:n])
	require.Zero(t, d.Bytes()[n])
}

func TestCopySurfaceMismatch(t *testing.T) {
	src, err := NewSurfacePool(1, testGeometry(FourCCNV12))
	require.NoError(t, err)
	dst, err := NewSurfacePool(1, NewFrameGeometry(32, 16, FourCCNV12, FrameRate{Num: 30, Den: 1}))
	require.NoError(t, err)

	s, d := src.Surface(0), dst.Surface(0)
	s.Bytes()[0] = 0xFF
	s.TimeStamp = 42

	require.ErrorIs(t, CopySurface(s, d), ErrGeometryMismatch)
	require.Zero(t, d.Bytes()[0])
	require.Zero(t, d.TimeStamp)

	require.ErrorIs(t, CopySurface(nil, d), StatusNullPtr)
}
