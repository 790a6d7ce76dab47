package hwenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPipelineParamsDefaults(t *testing.T) {
	p, err := NewPipelineParams(1920, 1080, 4000, PipelineOptions{})
	require.NoError(t, err)

	require.Equal(t, FourCCYV12, p.VPP.In.FourCC)
	require.Equal(t, FourCCNV12, p.VPP.Out.FourCC)
	require.Equal(t, p.VPP.Out, p.Encode.Frame)
	require.Equal(t, 1088, p.VPP.In.Height)
	require.Equal(t, Rect{W: 1920, H: 1080}, p.VPP.In.Crop)
	require.Equal(t, IOPatternInSystem|IOPatternOutSystem, p.VPP.IOPattern)
	require.Equal(t, IOPatternInSystem, p.Encode.IOPattern)
	require.Equal(t, CodecAVC, p.Encode.Codec)
	require.Equal(t, TargetUsageBalanced, p.Encode.TargetUsage)
	require.Equal(t, VBR{TargetKbps: 4000}, p.Encode.RateControl)
	require.EqualValues(t, 1, p.Encode.AsyncDepth)
	require.Equal(t, FrameRate{Num: 30, Den: 1}, p.Encode.Frame.FrameRate)
}

func TestNewPipelineParamsOptions(t *testing.T) {
	p, err := NewPipelineParams(640, 360, 0, PipelineOptions{
		Codec:       CodecHEVC,
		RateControl: RateControlICQ,
		TargetUsage: TargetUsageBestSpeed,
		FrameRate:   FrameRate{Num: 60000, Den: 1001},
		AsyncDepth:  4,
		InputFourCC: FourCCIYUV,
	})
	require.NoError(t, err)
	require.Equal(t, CodecHEVC, p.Encode.Codec)
	require.Equal(t, ICQ{Quality: 23}, p.Encode.RateControl)
	require.EqualValues(t, 4, p.Encode.AsyncDepth)
	require.EqualValues(t, 1, p.VPP.AsyncDepth)
	require.Equal(t, FourCCIYUV, p.VPP.In.FourCC)
	require.Equal(t, 368, p.VPP.Out.Height)
}

func TestNewPipelineParamsRejects(t *testing.T) {
	tests := map[string]struct {
		w, h, kbps int
		mode       RateControlMode
	}{
		"zero width":     {0, 480, 1000, RateControlVBR},
		"huge height":    {640, 70000, 1000, RateControlVBR},
		"odd width":      {641, 480, 1000, RateControlVBR},
		"bitrate range":  {640, 480, 70000, RateControlVBR},
		"cbr no bitrate": {640, 480, 0, RateControlCBR},
		"vbr no bitrate": {640, 480, 0, RateControlVBR},
		"avbr no rate":   {640, 480, 0, RateControlAVBR},
		"unknown mode":   {640, 480, 1000, RateControlMode(8)},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewPipelineParams(tt.w, tt.h, tt.kbps, PipelineOptions{RateControl: tt.mode})
			require.Error(t, err)
		})
	}

	_, err := NewPipelineParams(640, 480, 0, PipelineOptions{RateControl: RateControlCQP})
	require.NoError(t, err)
}

func TestPipelineParamsValidateMismatch(t *testing.T) {
	p := mustParams(t)
	p.Encode.Frame = NewFrameGeometry(32, 16, FourCCNV12, p.Encode.Frame.FrameRate)
	require.ErrorIs(t, p.Validate(), ErrGeometryMismatch)

	p = mustParams(t)
	p.Encode.RateControl = nil
	require.ErrorIs(t, p.Validate(), StatusInvalidVideoParam)
}

func TestPipelineParamsClone(t *testing.T) {
	p := mustParams(t)
	c := p.Clone()
	require.Equal(t, p, c)

	c.Encode.RateControl = CBR{TargetKbps: 1}
	c.VPP.In.Crop.W = 8
	require.Equal(t, VBR{TargetKbps: 1000}, p.Encode.RateControl)
	require.Equal(t, 16, p.VPP.In.Crop.W)

	var nilParams *PipelineParams
	require.Nil(t, nilParams.Clone())
}

func TestParseCodecID(t *testing.T) {
	for in, want := range map[string]CodecID{"avc": CodecAVC, "H264": CodecAVC, "hevc": CodecHEVC, "h265": CodecHEVC} {
		got, err := ParseCodecID(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseCodecID("vp9")
	require.Error(t, err)
	require.Equal(t, "avc", CodecAVC.String())
	require.Equal(t, "codec(VP90)", CodecID(MakeFourCC('V', 'P', '9', '0')).String())
}

func TestParseTargetUsage(t *testing.T) {
	for in, want := range map[string]TargetUsage{"quality": 1, "balanced": 4, "": 4, "speed": 7, "3": 3} {
		got, err := ParseTargetUsage(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"0", "8", "fast"} {
		_, err := ParseTargetUsage(in)
		require.Error(t, err, in)
	}
	require.Equal(t, "3", TargetUsage(3).String())
}
