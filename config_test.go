package hwenc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	require.Equal(t, DefaultPipelineOptions(), opts)

	mfx, err := cfg.MFXConfig()
	require.NoError(t, err)
	require.Equal(t, MFXConfig{Implementation: ImplAuto}, mfx)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, *cfg.Drain)
}

func TestDecodeConfig(t *testing.T) {
	const doc = `
codec: hevc
rate_control: cbr
target_usage: "2"
frame_rate: 30000/1001
input_fourcc: nv12
async_depth: 4
sync_timeout: 2s
drain: false
gop:
  pic_size: 60
  ref_dist: 1
mfx:
  implementation: hardware
  library_path: /opt/lib/libmfx.so.1
  api_version: "1.35"
log_level: debug
`
	cfg, err := DecodeConfig(strings.NewReader(doc))
	require.NoError(t, err)

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	require.Equal(t, PipelineOptions{
		Codec:       CodecHEVC,
		RateControl: RateControlCBR,
		TargetUsage: 2,
		FrameRate:   FrameRate{Num: 30000, Den: 1001},
		AsyncDepth:  4,
		InputFourCC: FourCCNV12,
	}, opts)

	mfx, err := cfg.MFXConfig()
	require.NoError(t, err)
	require.Equal(t, ImplHardware, mfx.Implementation)
	require.Equal(t, APIVersion{Major: 1, Minor: 35}, mfx.Version)
	require.Equal(t, "/opt/lib/libmfx.so.1", mfx.LibraryPath)

	require.Equal(t, 2*time.Second, cfg.SyncTimeout)
	require.False(t, *cfg.Drain)
	require.Len(t, cfg.DriverOptions(), 2)

	p, err := NewPipelineParams(64, 64, 1000, opts)
	require.NoError(t, err)
	cfg.ApplyGOP(p)
	require.EqualValues(t, 60, p.Encode.GopPicSize)
	require.EqualValues(t, 1, p.Encode.GopRefDist)
	require.Zero(t, p.Encode.IdrInterval)
}

func TestDecodeConfigRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":   "bitrate: 4000\n",
		"bad codec":       "codec: vp8\n",
		"bad rate":        "frame_rate: 0\n",
		"bad fourcc":      "input_fourcc: rgb4\n",
		"bad depth":       "async_depth: -1\n",
		"bad timeout":     "sync_timeout: -1s\n",
		"bad impl":        "mfx:\n  implementation: gpu\n",
		"bad api version": "mfx:\n  api_version: one.two\n",
		"not yaml":        "codec: [avc\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hwenc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec: avc\nrate_control: cqp\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "cqp", cfg.RateControl)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]FrameRate{
		"30":         {30, 1},
		" 25 ":       {25, 1},
		"30000/1001": {30000, 1001},
	}
	for in, want := range tests {
		got, err := ParseFrameRate(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0", "30/0", "x", "30/", "-1"} {
		_, err := ParseFrameRate(in)
		require.Error(t, err, in)
	}
}

func TestParseFourCC(t *testing.T) {
	for in, want := range map[string]FourCC{"yv12": FourCCYV12, "IYUV": FourCCIYUV, "i420": FourCCIYUV, "nv12": FourCCNV12} {
		got, err := ParseFourCC(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseFourCC("yuy2")
	require.Error(t, err)
}
