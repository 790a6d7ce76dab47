//go:build linux && !nomfx

package hwenc

import (
	"context"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestNativeLayoutSizes(t *testing.T) {
	sizes := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"mfxFrameInfo", unsafe.Sizeof(mfxFrameInfo{}), mfxFrameInfoSize},
		{"mfxVideoParam", unsafe.Sizeof(mfxVideoParam{}), mfxVideoParamSize},
		{"mfxFrameAllocRequest", unsafe.Sizeof(mfxFrameAllocRequest{}), mfxFrameAllocRequestSize},
		{"mfxFrameAllocResponse", unsafe.Sizeof(mfxFrameAllocResponse{}), mfxFrameAllocResponseSize},
		{"mfxFrameData", unsafe.Sizeof(mfxFrameData{}), mfxFrameDataSize},
		{"mfxFrameSurface1", unsafe.Sizeof(mfxFrameSurface1{}), mfxFrameSurface1Size},
		{"mfxBitstream", unsafe.Sizeof(mfxBitstream{}), mfxBitstreamSize},
		{"mfxEncodeCtrl", unsafe.Sizeof(mfxEncodeCtrl{}), mfxEncodeCtrlSize},
		{"mfxFrameAllocator", unsafe.Sizeof(mfxFrameAllocator{}), mfxFrameAllocatorSize},
	}
	for _, s := range sizes {
		if s.got != s.want {
			t.Errorf("sizeof(%s) = %d, want %d", s.name, s.got, s.want)
		}
	}
}

func TestVideoParamRoundTrip(t *testing.T) {
	p, err := NewPipelineParams(1280, 720, 3000, PipelineOptions{
		Codec:       CodecHEVC,
		RateControl: RateControlVBR,
		AsyncDepth:  3,
	})
	require.NoError(t, err)
	p.Encode.GopPicSize = 120
	p.Encode.GopRefDist = 1
	p.Encode.RateControl = VBR{TargetKbps: 3000, MaxKbps: 4500, BufferSizeKB: 800}

	for _, role := range []StageRole{StageVPP, StageEncode} {
		par := videoParamFor(role, p)
		got := &PipelineParams{}
		applyVideoParam(role, par, got)

		if role == StageVPP {
			require.Equal(t, p.VPP, got.VPP)
			continue
		}
		require.Equal(t, p.Encode, got.Encode)
	}
}

func TestVideoParamKeepsRateControlForUnknownMode(t *testing.T) {
	p := mustParams(t)
	par := videoParamFor(StageEncode, p)
	par.mfx().RateControlMethod = 0

	got := p.Clone()
	applyVideoParam(StageEncode, par, got)
	require.Equal(t, p.Encode.RateControl, got.Encode.RateControl)
}

func TestMemTypeSource(t *testing.T) {
	require.Equal(t, "encode", memTypeSource(mfxMemTypeFromEncode|mfxMemTypeSystemMemory))
	require.Equal(t, "vpp-in", memTypeSource(mfxMemTypeFromVPPIn))
	require.Equal(t, "vpp-out", memTypeSource(mfxMemTypeFromVPPOut))
}

func TestMFXSessionEncode(t *testing.T) {
	if !IsMFXAvailable() {
		t.Skip("vendor media library not available")
	}
	ctx := context.Background()
	session, err := OpenMFXSession(ctx, MFXConfig{Implementation: ImplAuto})
	if err != nil {
		t.Skipf("no usable implementation: %v", err)
	}
	defer session.Close(ctx)
	require.NotEmpty(t, MFXLibraryPath())
	require.True(t, session.Implementation().Available())
	require.NotZero(t, session.Version().Major)

	p, err := NewPipelineParams(64, 64, 500, DefaultPipelineOptions())
	require.NoError(t, err)

	vpp, err := session.VPP().Query(ctx, p)
	if err != nil && !IsWarning(err) {
		t.Skipf("vpp unsupported: %v", err)
	}
	require.NotNil(t, vpp)
}

func TestFrameDataPlanes(t *testing.T) {
	for _, fourcc := range []FourCC{FourCCNV12, FourCCYV12, FourCCIYUV} {
		pool, err := NewSurfacePool(1, testGeometry(fourcc))
		require.NoError(t, err)
		s := pool.Surface(0)
		planes := s.Planes()
		base := uintptr(unsafe.Pointer(&s.data[0]))

		var d mfxFrameData
		d.setPlanes(s)
		require.Equal(t, base+uintptr(planes[0].Offset), d.Y, fourcc.String())
		require.Equal(t, uint16(planes[0].Stride), d.PitchLow, fourcc.String())
		switch fourcc {
		case FourCCNV12:
			require.Equal(t, base+uintptr(planes[1].Offset), d.U)
			require.Equal(t, d.U+1, d.V)
		case FourCCYV12:
			require.Equal(t, base+uintptr(planes[1].Offset), d.V)
			require.Equal(t, base+uintptr(planes[2].Offset), d.U)
		case FourCCIYUV:
			require.Equal(t, base+uintptr(planes[1].Offset), d.U)
			require.Equal(t, base+uintptr(planes[2].Offset), d.V)
		}
	}
}

func TestAllocatorLockMatchesNativeSurface(t *testing.T) {
	ctx := context.Background()
	alloc := NewSystemMemoryAllocator()
	b, err := newMFXAllocatorBridge(ctx, alloc)
	require.NoError(t, err)
	defer b.close()

	resp, err := alloc.Alloc(ctx, AllocRequest{Min: 1, Suggested: 1, Geometry: testGeometry(FourCCYV12)})
	require.NoError(t, err)
	mid := resp.MemIDs[0]

	var data mfxFrameData
	require.Equal(t, statusResult(StatusNone), mfxLockCallback(b.id, uintptr(mid), uintptr(unsafe.Pointer(&data))))

	s, err := alloc.Lock(mid)
	require.NoError(t, err)
	st := &mfxStage{surfaces: make(map[*FrameSurface]*mfxFrameSurface1)}
	defer st.pinner.Unpin()
	native := st.nativeSurface(s)

	require.Equal(t, native.Data.Y, data.Y)
	require.Equal(t, native.Data.U, data.U)
	require.Equal(t, native.Data.V, data.V)

	require.Equal(t, statusResult(StatusNone), mfxUnlockCallback(b.id, uintptr(mid), uintptr(unsafe.Pointer(&data))))
	require.Zero(t, data.U)
	require.NoError(t, alloc.Unlock(mid))
	require.NoError(t, alloc.Free(resp))
}
