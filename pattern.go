package hwenc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// PatternType selects the synthetic picture a PatternSource draws.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "colorbars"
	case PatternGradient:
		return "gradient"
	case PatternCheckerboard:
		return "checkerboard"
	case PatternSolidColor:
		return "solid"
	case PatternNoise:
		return "noise"
	case PatternMovingBox:
		return "movingbox"
	default:
		return "unknown"
	}
}

// ParsePatternType parses a pattern name as printed by String.
func ParsePatternType(s string) (PatternType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p := PatternColorBars; p <= PatternMovingBox; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown pattern %q", s)
}

// PatternConfig configures a PatternSource.
type PatternConfig struct {
	Width   int
	Height  int
	Pattern PatternType
	Frames  uint64 // 0 = until the context is cancelled

	// For PatternSolidColor
	SolidR, SolidG, SolidB uint8

	// For PatternCheckerboard
	CheckerSize int // default: 32
}

// PatternSource is a FrameSource producing synthetic 4:2:0 frames, for
// exercising the pipeline without a raw input file.
type PatternSource struct {
	config PatternConfig

	frame  []byte
	yPlane []byte
	uPlane []byte
	vPlane []byte

	frames   uint64
	rngState uint64
}

// NewPatternSource creates a pattern source. The width and height must be
// even.
func NewPatternSource(config PatternConfig) (*PatternSource, error) {
	if config.Width <= 0 || config.Height <= 0 || config.Width%2 != 0 || config.Height%2 != 0 {
		return nil, fmt.Errorf("pattern size %dx%d: %w", config.Width, config.Height, StatusInvalidVideoParam)
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = 32
	}

	ySize := config.Width * config.Height
	uvSize := ySize / 4
	frame := make([]byte, ySize+2*uvSize)

	s := &PatternSource{
		config:   config,
		frame:    frame,
		yPlane:   frame[:ySize],
		uPlane:   frame[ySize : ySize+uvSize],
		vPlane:   frame[ySize+uvSize:],
		rngState: uint64(time.Now().UnixNano()) | 1,
	}
	s.generate(0)
	return s, nil
}

// Frames returns the number of frames produced.
func (s *PatternSource) Frames() uint64 { return s.frames }

// ReadFrame draws the next frame into surf. It reports ErrMoreData once
// config.Frames frames were produced.
func (s *PatternSource) ReadFrame(ctx context.Context, surf *FrameSurface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if surf == nil {
		return fmt.Errorf("read frame: %w", StatusNullPtr)
	}
	if s.config.Frames > 0 && s.frames >= s.config.Frames {
		return fmt.Errorf("pattern: %d frames produced: %w", s.frames, ErrMoreData)
	}
	if s.animated() && s.frames > 0 {
		s.generate(s.frames)
	}

	c1, c2 := s.uPlane, s.vPlane
	if surf.Geometry().FourCC == FourCCYV12 {
		c1, c2 = c2, c1
	}
	if err := writePlanar(surf, s.config.Width, s.config.Height, s.yPlane, c1, c2); err != nil {
		return err
	}
	s.frames++
	return nil
}

func (s *PatternSource) animated() bool {
	return s.config.Pattern == PatternMovingBox || s.config.Pattern == PatternNoise
}

func (s *PatternSource) generate(frameNum uint64) {
	switch s.config.Pattern {
	case PatternGradient:
		s.generateGradient()
	case PatternCheckerboard:
		s.generateCheckerboard()
	case PatternSolidColor:
		s.generateSolidColor(s.config.SolidR, s.config.SolidG, s.config.SolidB)
	case PatternNoise:
		s.generateNoise()
	case PatternMovingBox:
		s.generateMovingBox(frameNum)
	default:
		s.generateColorBars()
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [8][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *PatternSource) setChroma(x, y int, u, v uint8) {
	if x%2 == 0 && y%2 == 0 {
		i := (y/2)*(s.config.Width/2) + x/2
		s.uPlane[i] = u
		s.vPlane[i] = v
	}
}

func (s *PatternSource) generateColorBars() {
	w, h := s.config.Width, s.config.Height
	barWidth := max(w/8, 1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgb := colorBarsRGB[min(x/barWidth, 7)]
			yVal, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
			s.yPlane[y*w+x] = yVal
			s.setChroma(x, y, u, v)
		}
	}
}

func (s *PatternSource) generateGradient() {
	w, h := s.config.Width, s.config.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.yPlane[y*w+x] = uint8((x * 255) / w)
			s.setChroma(x, y, 128, 128)
		}
	}
}

func (s *PatternSource) generateCheckerboard() {
	w, h := s.config.Width, s.config.Height
	size := s.config.CheckerSize
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			yVal := uint8(16)
			if ((x/size)+(y/size))%2 == 0 {
				yVal = 235
			}
			s.yPlane[y*w+x] = yVal
			s.setChroma(x, y, 128, 128)
		}
	}
}

func (s *PatternSource) generateSolidColor(r, g, b uint8) {
	yVal, u, v := rgbToYUV(r, g, b)
	fill(s.yPlane, yVal)
	fill(s.uPlane, u)
	fill(s.vPlane, v)
}

func (s *PatternSource) generateNoise() {
	// xorshift64
	for i := range s.yPlane {
		s.rngState ^= s.rngState << 13
		s.rngState ^= s.rngState >> 7
		s.rngState ^= s.rngState << 17
		s.yPlane[i] = uint8(s.rngState)
	}
	fill(s.uPlane, 128)
	fill(s.vPlane, 128)
}

func (s *PatternSource) generateMovingBox(frameNum uint64) {
	w, h := s.config.Width, s.config.Height
	fill(s.yPlane, 16)
	fill(s.uPlane, 128)
	fill(s.vPlane, 128)

	// The box circles the center.
	boxSize := min(100, w/4, h/4)
	radius := float64(min(w, h)) / 4
	angle := float64(frameNum) * 0.05
	boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
	boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			s.yPlane[y*w+x] = 235
		}
	}
}

func fill(b []byte, v uint8) {
	for i := range b {
		b[i] = v
	}
}

// rgbToYUV converts RGB to YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clampFloat(yf, 16, 235))
	u = uint8(clampFloat(uf, 16, 240))
	v = uint8(clampFloat(vf, 16, 240))
	return
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
