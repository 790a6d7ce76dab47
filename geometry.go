package hwenc

import (
	"fmt"
)

// FourCC identifies a pixel layout.
type FourCC uint32

// MakeFourCC packs four characters little-endian, as the vendor API does.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FourCCNV12 = MakeFourCC('N', 'V', '1', '2') // Y + interleaved UV
	FourCCYV12 = MakeFourCC('Y', 'V', '1', '2') // Y + V + U
	FourCCIYUV = MakeFourCC('I', 'Y', 'U', 'V') // Y + U + V (I420)
)

func (f FourCC) String() string {
	if f == 0 {
		return "none"
	}
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// PlaneCount returns the number of planes for this layout.
func (f FourCC) PlaneCount() int {
	switch f {
	case FourCCNV12:
		return 2 // Y, UV
	case FourCCYV12, FourCCIYUV:
		return 3 // Y, Cb/Cr, Cr/Cb
	default:
		return 0
	}
}

// ChromaFormat is the chroma sampling method.
type ChromaFormat uint16

const (
	ChromaMonochrome ChromaFormat = 0
	ChromaYUV420     ChromaFormat = 1
)

func (c ChromaFormat) String() string {
	switch c {
	case ChromaMonochrome:
		return "monochrome"
	case ChromaYUV420:
		return "yuv420"
	default:
		return "unknown"
	}
}

// PicStruct is the picture structure of a frame.
type PicStruct uint16

const (
	PicStructUnknown     PicStruct = 0
	PicStructProgressive PicStruct = 1
	PicStructFieldTFF    PicStruct = 2
	PicStructFieldBFF    PicStruct = 4
)

func (p PicStruct) String() string {
	switch p {
	case PicStructProgressive:
		return "progressive"
	case PicStructFieldTFF:
		return "tff"
	case PicStructFieldBFF:
		return "bff"
	default:
		return "unknown"
	}
}

// FrameRate is a rational frame rate.
type FrameRate struct {
	Num uint32
	Den uint32
}

// Duration90k returns the frame duration in 90 kHz clock ticks.
func (r FrameRate) Duration90k() uint32 {
	if r.Num == 0 || r.Den == 0 {
		return 3000 // 30 fps
	}
	return uint32(uint64(90000) * uint64(r.Den) / uint64(r.Num))
}

func (r FrameRate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rect is the display region of interest within an aligned frame.
type Rect struct {
	X, Y int
	W, H int
}

// FrameGeometry describes the layout of one stage's frames.
type FrameGeometry struct {
	Width     int // Aligned width
	Height    int // Aligned height
	Crop      Rect
	FourCC    FourCC
	Chroma    ChromaFormat
	PicStruct PicStruct
	FrameRate FrameRate
}

// NewFrameGeometry builds a geometry for a width x height display region,
// aligning the frame to codec boundaries.
func NewFrameGeometry(width, height int, fourcc FourCC, fps FrameRate) FrameGeometry {
	return FrameGeometry{
		Width:     Align16(width),
		Height:    alignHeight(height, PicStructProgressive),
		Crop:      Rect{W: width, H: height},
		FourCC:    fourcc,
		Chroma:    ChromaYUV420,
		PicStruct: PicStructProgressive,
		FrameRate: fps,
	}
}

// Validate checks the aligned frame covers the crop region.
func (g FrameGeometry) Validate() error {
	if g.Crop.W <= 0 || g.Crop.H <= 0 {
		return fmt.Errorf("crop %dx%d: %w", g.Crop.W, g.Crop.H, StatusInvalidVideoParam)
	}
	if g.Crop.X < 0 || g.Crop.Y < 0 {
		return fmt.Errorf("crop offset %d,%d: %w", g.Crop.X, g.Crop.Y, StatusInvalidVideoParam)
	}
	if g.Width < g.Crop.X+g.Crop.W || g.Height < g.Crop.Y+g.Crop.H {
		return fmt.Errorf("frame %dx%d smaller than crop %+v: %w", g.Width, g.Height, g.Crop, StatusInvalidVideoParam)
	}
	if g.Chroma == ChromaYUV420 && (g.Crop.W%2 != 0 || g.Crop.H%2 != 0) {
		return fmt.Errorf("4:2:0 crop %dx%d must be even: %w", g.Crop.W, g.Crop.H, StatusInvalidVideoParam)
	}
	if g.FourCC.PlaneCount() == 0 {
		return fmt.Errorf("fourcc %s: %w", g.FourCC, StatusUnsupported)
	}
	return nil
}

// CropSize returns the byte size of the display region at 12 bits per pixel.
func (g FrameGeometry) CropSize() int {
	return g.Crop.W * g.Crop.H * 12 / 8
}

// SurfaceSize returns the per-surface allocation for this geometry.
// Both dimensions are rounded up to 32 before applying 12 bits per pixel.
func SurfaceSize(g FrameGeometry) int {
	return Align32(g.Width) * Align32(g.Height) * 12 / 8
}

func (g FrameGeometry) String() string {
	return fmt.Sprintf("%dx%d (crop %dx%d+%d+%d) %s %s@%s",
		g.Width, g.Height, g.Crop.W, g.Crop.H, g.Crop.X, g.Crop.Y, g.FourCC, g.PicStruct, g.FrameRate)
}
