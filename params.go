package hwenc

import (
	"fmt"
	"strconv"
	"strings"
)

// CodecID is the vendor codec identifier, a little-endian FourCC.
type CodecID uint32

const (
	CodecAVC  CodecID = 0x20435641 // "AVC "
	CodecHEVC CodecID = 0x43564548 // "HEVC"
)

func (c CodecID) String() string {
	switch c {
	case CodecAVC:
		return "avc"
	case CodecHEVC:
		return "hevc"
	default:
		return "codec(" + FourCC(c).String() + ")"
	}
}

// ParseCodecID parses "avc"/"h264" or "hevc"/"h265".
func ParseCodecID(s string) (CodecID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "avc", "h264":
		return CodecAVC, nil
	case "hevc", "h265":
		return CodecHEVC, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", s)
	}
}

// Codec profiles. Zero lets the encoder choose.
const (
	ProfileUnknown     uint16 = 0
	ProfileAVCBaseline uint16 = 66
	ProfileAVCMain     uint16 = 77
	ProfileAVCHigh     uint16 = 100
	ProfileHEVCMain    uint16 = 1
)

// TargetUsage trades encode quality against speed, 1 (best quality) to 7 (best speed).
type TargetUsage uint16

const (
	TargetUsageBestQuality TargetUsage = 1
	TargetUsageBalanced    TargetUsage = 4
	TargetUsageBestSpeed   TargetUsage = 7
)

func (t TargetUsage) String() string {
	switch t {
	case TargetUsageBestQuality:
		return "quality"
	case TargetUsageBalanced:
		return "balanced"
	case TargetUsageBestSpeed:
		return "speed"
	default:
		return strconv.Itoa(int(t))
	}
}

// ParseTargetUsage accepts "quality", "balanced", "speed" or a number in 1..7.
func ParseTargetUsage(s string) (TargetUsage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quality":
		return TargetUsageBestQuality, nil
	case "balanced", "":
		return TargetUsageBalanced, nil
	case "speed":
		return TargetUsageBestSpeed, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 7 {
		return 0, fmt.Errorf("invalid target usage %q", s)
	}
	return TargetUsage(n), nil
}

// IOPattern selects where a stage reads its input and writes its output.
type IOPattern uint16

const (
	IOPatternInVideo   IOPattern = 0x01
	IOPatternInSystem  IOPattern = 0x02
	IOPatternOutVideo  IOPattern = 0x10
	IOPatternOutSystem IOPattern = 0x20
)

// VPPParams configures the video processing stage.
type VPPParams struct {
	In         FrameGeometry
	Out        FrameGeometry
	IOPattern  IOPattern
	AsyncDepth uint16
}

// EncodeParams configures the encode stage.
type EncodeParams struct {
	Codec       CodecID
	Profile     uint16
	TargetUsage TargetUsage
	RateControl RateControl
	Frame       FrameGeometry
	IOPattern   IOPattern
	AsyncDepth  uint16
	GopPicSize  uint16 // 0 = encoder default
	GopRefDist  uint16 // 1 disables B-frames, 0 = encoder default
	IdrInterval uint16
	NumRefFrame uint16
}

// PipelineParams holds the parameters of both stages.
// It is built once before Init. Query may return a corrected copy.
type PipelineParams struct {
	VPP    VPPParams
	Encode EncodeParams
}

// Clone returns a copy of p. RateControl variants are values, so the copy
// shares nothing with p.
func (p *PipelineParams) Clone() *PipelineParams {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Validate checks both stages are consistent with each other.
func (p *PipelineParams) Validate() error {
	if err := p.VPP.In.Validate(); err != nil {
		return fmt.Errorf("vpp input: %w", err)
	}
	if err := p.VPP.Out.Validate(); err != nil {
		return fmt.Errorf("vpp output: %w", err)
	}
	if err := p.Encode.Frame.Validate(); err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if p.Encode.RateControl == nil {
		return fmt.Errorf("encode rate control not set: %w", StatusInvalidVideoParam)
	}
	if p.VPP.Out.CropSize() != p.Encode.Frame.CropSize() {
		return fmt.Errorf("vpp output %s vs encode input %s: %w", p.VPP.Out, p.Encode.Frame, ErrGeometryMismatch)
	}
	return nil
}

// PipelineOptions tunes NewPipelineParams.
type PipelineOptions struct {
	Codec       CodecID
	RateControl RateControlMode
	TargetUsage TargetUsage
	FrameRate   FrameRate
	AsyncDepth  int
	InputFourCC FourCC // layout of the raw input, YV12 by default
}

// DefaultPipelineOptions returns AVC, VBR, balanced target usage at 30 fps.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Codec:       CodecAVC,
		RateControl: RateControlVBR,
		TargetUsage: TargetUsageBalanced,
		FrameRate:   FrameRate{Num: 30, Den: 1},
		AsyncDepth:  1,
		InputFourCC: FourCCYV12,
	}
}

// NewPipelineParams builds the parameters for converting width x height raw
// frames to NV12 and encoding them at bitrateKbps.
// Both stages use system memory.
func NewPipelineParams(width, height, bitrateKbps int, opts PipelineOptions) (*PipelineParams, error) {
	if width <= 0 || height <= 0 || width > 0xFFFF || height > 0xFFFF {
		return nil, fmt.Errorf("frame size %dx%d: %w", width, height, StatusInvalidVideoParam)
	}
	if bitrateKbps < 0 || bitrateKbps > 0xFFFF {
		return nil, fmt.Errorf("bitrate %d kbps out of range: %w", bitrateKbps, StatusInvalidVideoParam)
	}

	def := DefaultPipelineOptions()
	if opts.Codec == 0 {
		opts.Codec = def.Codec
	}
	if opts.RateControl == 0 {
		opts.RateControl = def.RateControl
	}
	if opts.TargetUsage == 0 {
		opts.TargetUsage = def.TargetUsage
	}
	if opts.FrameRate.Num == 0 || opts.FrameRate.Den == 0 {
		opts.FrameRate = def.FrameRate
	}
	if opts.AsyncDepth <= 0 {
		opts.AsyncDepth = def.AsyncDepth
	}
	if opts.InputFourCC == 0 {
		opts.InputFourCC = def.InputFourCC
	}

	rc, err := NewRateControl(opts.RateControl, uint16(bitrateKbps))
	if err != nil {
		return nil, err
	}
	if bitrateKbps == 0 && opts.RateControl.bitrateDriven() {
		return nil, fmt.Errorf("%s needs a target bitrate: %w", opts.RateControl, StatusInvalidVideoParam)
	}

	in := NewFrameGeometry(width, height, opts.InputFourCC, opts.FrameRate)
	out := NewFrameGeometry(width, height, FourCCNV12, opts.FrameRate)

	p := &PipelineParams{
		VPP: VPPParams{
			In:         in,
			Out:        out,
			IOPattern:  IOPatternInSystem | IOPatternOutSystem,
			AsyncDepth: 1,
		},
		Encode: EncodeParams{
			Codec:       opts.Codec,
			TargetUsage: opts.TargetUsage,
			RateControl: rc,
			Frame:       out,
			IOPattern:   IOPatternInSystem,
			AsyncDepth:  uint16(opts.AsyncDepth),
		},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
