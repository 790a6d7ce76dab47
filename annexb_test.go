package hwenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAnnexB(t *testing.T) {
	data := []byte{
		0, 0, 0, 1, 0x67, 0x42, 0x1E,
		0, 0, 1, 0x68, 0xCE,
		0, 0, 0, 1, 0x65, 0x88, 0x84,
	}
	nalus := splitAnnexB(data)
	require.Equal(t, [][]byte{
		{0x67, 0x42, 0x1E},
		{0x68, 0xCE},
		{0x65, 0x88, 0x84},
	}, nalus)

	require.Empty(t, splitAnnexB(nil))
	require.Empty(t, splitAnnexB([]byte{0x65, 0x88}))
	require.Empty(t, splitAnnexB([]byte{0, 0, 0, 1}))
}

func TestIsKeyframeAU(t *testing.T) {
	idr := splitAnnexB(fakeAccessUnit(0, 1, true))
	inter := splitAnnexB(fakeAccessUnit(1, 1, false))
	require.True(t, isKeyframeAU(CodecAVC, idr))
	require.False(t, isKeyframeAU(CodecAVC, inter))

	hevcIDR := [][]byte{{hevcNalIDRWRADL << 1, 0x01, 0xAF}}
	hevcCRA := [][]byte{{hevcNalCRA << 1, 0x01, 0xAF}}
	hevcTrail := [][]byte{{0x02, 0x01, 0xD0}}
	require.True(t, isKeyframeAU(CodecHEVC, hevcIDR))
	require.True(t, isKeyframeAU(CodecHEVC, hevcCRA))
	require.False(t, isKeyframeAU(CodecHEVC, hevcTrail))
}

func TestH264ParameterSets(t *testing.T) {
	sps, pps := h264ParameterSets(splitAnnexB(fakeAccessUnit(0, 0, true)))
	require.Equal(t, fakeSPS, sps)
	require.Equal(t, fakePPS, pps)

	sps, pps = h264ParameterSets(splitAnnexB(fakeAccessUnit(1, 0, false)))
	require.Nil(t, sps)
	require.Nil(t, pps)
}

func TestAVCDecoderConfig(t *testing.T) {
	cfg, err := avcDecoderConfig(fakeSPS, fakePPS)
	require.NoError(t, err)

	want := []byte{1, 0x42, 0xC0, 0x1E, 0xFF, 0xE1, 0, byte(len(fakeSPS))}
	want = append(want, fakeSPS...)
	want = append(want, 1, 0, byte(len(fakePPS)))
	want = append(want, fakePPS...)
	require.Equal(t, want, cfg)

	_, err = avcDecoderConfig(fakeSPS[:3], fakePPS)
	require.ErrorIs(t, err, errNoParameterSets)
	_, err = avcDecoderConfig(fakeSPS, nil)
	require.ErrorIs(t, err, errNoParameterSets)
}

func TestAnnexBToAVCC(t *testing.T) {
	nalus := [][]byte{
		{nalTypeAUD, 0xF0},
		fakeSPS,
		fakePPS,
		{0x06, 0x05},
		{0x65, 0xAA, 0xBB},
	}
	require.Equal(t, []byte{
		0, 0, 0, 2, 0x06, 0x05,
		0, 0, 0, 3, 0x65, 0xAA, 0xBB,
	}, annexBToAVCC(nalus))
	require.Empty(t, annexBToAVCC([][]byte{fakeSPS, fakePPS}))
}
