//go:build linux && !nomfx

// Native record layouts of the libmfx 1.x API (x86-64 / arm64 ABI).

package hwenc

import (
	"sync/atomic"
	"unsafe"
)

// Memory type flags of mfxFrameAllocRequest.Type.
const (
	mfxMemTypeInternalFrame   = 0x0001
	mfxMemTypeExternalFrame   = 0x0002
	mfxMemTypeSystemMemory    = 0x0040
	mfxMemTypeFromEncode      = 0x0100
	mfxMemTypeFromVPPIn       = 0x0400
	mfxMemTypeFromVPPOut      = 0x0800
	mfxInfiniteWait           = 0xFFFFFFFF
	mfxDefaultAPIVersionMajor = 1
)

type mfxVersion struct {
	Minor uint16
	Major uint16
}

type mfxFrameInfo struct {
	reserved       [4]uint32
	reserved4      uint16
	BitDepthLuma   uint16
	BitDepthChroma uint16
	Shift          uint16
	FrameID        [4]uint16
	FourCC         uint32
	Width          uint16
	Height         uint16
	CropX          uint16
	CropY          uint16
	CropW          uint16
	CropH          uint16
	FrameRateExtN  uint32
	FrameRateExtD  uint32
	reserved3      uint16
	AspectRatioW   uint16
	AspectRatioH   uint16
	PicStruct      uint16
	ChromaFormat   uint16
	reserved2      uint16
}

// mfxInfoMFX is the codec view of the mfxVideoParam union, encoder fields only.
type mfxInfoMFX struct {
	reserved           [7]uint32
	LowPower           uint16
	BRCParamMultiplier uint16
	FrameInfo          mfxFrameInfo
	CodecID            uint32
	CodecProfile       uint16
	CodecLevel         uint16
	NumThread          uint16
	TargetUsage        uint16
	GopPicSize         uint16
	GopRefDist         uint16
	GopOptFlag         uint16
	IdrInterval        uint16
	RateControlMethod  uint16
	InitialDelayInKB   uint16 // QPI, Accuracy
	BufferSizeInKB     uint16
	TargetKbps         uint16 // QPP, ICQQuality
	MaxKbps            uint16 // QPB, Convergence
	NumSlice           uint16
	NumRefFrame        uint16
	EncodedOrder       uint16
}

type mfxInfoVPP struct {
	reserved [8]uint32
	In       mfxFrameInfo
	Out      mfxFrameInfo
}

type mfxVideoParam struct {
	AllocID     uint32
	reserved    [2]uint32
	reserved3   uint16
	AsyncDepth  uint16
	u           [unsafe.Sizeof(mfxInfoVPP{})]byte // mfxInfoMFX or mfxInfoVPP
	Protected   uint16
	IOPattern   uint16
	ExtParam    uintptr
	NumExtParam uint16
	reserved2   uint16
}

func (p *mfxVideoParam) mfx() *mfxInfoMFX { return (*mfxInfoMFX)(unsafe.Pointer(&p.u[0])) }
func (p *mfxVideoParam) vpp() *mfxInfoVPP { return (*mfxInfoVPP)(unsafe.Pointer(&p.u[0])) }

type mfxFrameAllocRequest struct {
	AllocID           uint32
	reserved3         [3]uint32
	Info              mfxFrameInfo
	Type              uint16
	NumFrameMin       uint16
	NumFrameSuggested uint16
	reserved2         uint16
}

type mfxFrameAllocResponse struct {
	AllocID        uint32
	reserved       [3]uint32
	mids           uintptr
	NumFrameActual uint16
	MemType        uint16
}

type mfxFrameData struct {
	ExtParam    uintptr
	NumExtParam uint16
	reserved    [9]uint16
	MemType     uint16
	PitchHigh   uint16
	TimeStamp   uint64
	FrameOrder  uint32
	Locked      uint16
	PitchLow    uint16
	Y           uintptr
	U           uintptr // UV for NV12
	V           uintptr
	A           uintptr
	MemID       uintptr
	Corrupted   uint16
	DataFlag    uint16
}

// locked reads the Locked counter the library updates from its own threads.
// Locked and PitchLow share an aligned 32-bit word.
func (d *mfxFrameData) locked() uint16 {
	w := atomic.LoadUint32((*uint32)(unsafe.Pointer(&d.Locked)))
	return uint16(w)
}

func (d *mfxFrameData) setPitch(pitch int) {
	d.PitchLow = uint16(pitch)
	d.PitchHigh = uint16(pitch >> 16)
}

// setPlanes points d at the planes of s. s.data must be pinned.
func (d *mfxFrameData) setPlanes(s *FrameSurface) {
	planes := s.Planes()
	base := uintptr(unsafe.Pointer(&s.data[0]))
	d.Y = base + uintptr(planes[0].Offset)
	d.setPitch(planes[0].Stride)
	switch s.Geometry().FourCC {
	case FourCCNV12:
		d.U = base + uintptr(planes[1].Offset)
		d.V = d.U + 1
	case FourCCYV12:
		d.V = base + uintptr(planes[1].Offset)
		d.U = base + uintptr(planes[2].Offset)
	case FourCCIYUV:
		d.U = base + uintptr(planes[1].Offset)
		d.V = base + uintptr(planes[2].Offset)
	}
}

type mfxFrameSurface1 struct {
	reserved [4]uint32
	Info     mfxFrameInfo
	Data     mfxFrameData
}

type mfxBitstream struct {
	reserved        [6]uint32
	DecodeTimeStamp int64
	TimeStamp       uint64
	Data            uintptr
	DataOffset      uint32
	DataLength      uint32
	MaxLength       uint32
	PicStruct       uint16
	FrameType       uint16
	DataFlag        uint16
	reserved2       uint16
}

type mfxExtBuffer struct {
	BufferID uint32
	BufferSz uint32
}

type mfxEncodeCtrl struct {
	Header         mfxExtBuffer
	reserved       [4]uint32
	reserved1      uint16
	MfxNalUnitType uint16
	SkipFrame      uint16
	QP             uint16
	FrameType      uint16
	NumExtParam    uint16
	NumPayload     uint16
	reserved2      uint16
	ExtParam       uintptr
	Payload        uintptr
}

type mfxFrameAllocator struct {
	reserved [4]uint32
	pthis    uintptr
	Alloc    uintptr
	Lock     uintptr
	Unlock   uintptr
	GetHDL   uintptr
	Free     uintptr
}

// Sizes the library expects; checked in tests.
const (
	mfxFrameInfoSize          = 68
	mfxVideoParamSize         = 208
	mfxFrameAllocRequestSize  = 92
	mfxFrameAllocResponseSize = 32
	mfxFrameDataSize          = 96
	mfxFrameSurface1Size      = 184
	mfxBitstreamSize          = 72
	mfxEncodeCtrlSize         = 56
	mfxFrameAllocatorSize     = 64
)

func frameInfoFromGeometry(g FrameGeometry) mfxFrameInfo {
	return mfxFrameInfo{
		FourCC:        uint32(g.FourCC),
		Width:         uint16(g.Width),
		Height:        uint16(g.Height),
		CropX:         uint16(g.Crop.X),
		CropY:         uint16(g.Crop.Y),
		CropW:         uint16(g.Crop.W),
		CropH:         uint16(g.Crop.H),
		FrameRateExtN: g.FrameRate.Num,
		FrameRateExtD: g.FrameRate.Den,
		PicStruct:     uint16(g.PicStruct),
		ChromaFormat:  uint16(g.Chroma),
	}
}

func (fi *mfxFrameInfo) geometry() FrameGeometry {
	return FrameGeometry{
		Width:     int(fi.Width),
		Height:    int(fi.Height),
		Crop:      Rect{X: int(fi.CropX), Y: int(fi.CropY), W: int(fi.CropW), H: int(fi.CropH)},
		FourCC:    FourCC(fi.FourCC),
		Chroma:    ChromaFormat(fi.ChromaFormat),
		PicStruct: PicStruct(fi.PicStruct),
		FrameRate: FrameRate{Num: fi.FrameRateExtN, Den: fi.FrameRateExtD},
	}
}

// videoParamFor fills the half of the union the stage reads.
func videoParamFor(role StageRole, p *PipelineParams) *mfxVideoParam {
	par := &mfxVideoParam{}
	switch role {
	case StageVPP:
		par.AsyncDepth = p.VPP.AsyncDepth
		par.IOPattern = uint16(p.VPP.IOPattern)
		v := par.vpp()
		v.In = frameInfoFromGeometry(p.VPP.In)
		v.Out = frameInfoFromGeometry(p.VPP.Out)
	case StageEncode:
		e := p.Encode
		par.AsyncDepth = e.AsyncDepth
		par.IOPattern = uint16(e.IOPattern)
		m := par.mfx()
		m.FrameInfo = frameInfoFromGeometry(e.Frame)
		m.CodecID = uint32(e.Codec)
		m.CodecProfile = e.Profile
		m.TargetUsage = uint16(e.TargetUsage)
		m.GopPicSize = e.GopPicSize
		m.GopRefDist = e.GopRefDist
		m.IdrInterval = e.IdrInterval
		m.NumRefFrame = e.NumRefFrame
		if e.RateControl != nil {
			m.RateControlMethod = uint16(e.RateControl.Mode())
			m.InitialDelayInKB, m.TargetKbps, m.MaxKbps = e.RateControl.rcFields()
			m.BufferSizeInKB = e.RateControl.bufferSizeKB()
		}
	}
	return par
}

// applyVideoParam copies the stage's fields of par into p.
func applyVideoParam(role StageRole, par *mfxVideoParam, p *PipelineParams) {
	switch role {
	case StageVPP:
		v := par.vpp()
		p.VPP.In = v.In.geometry()
		p.VPP.Out = v.Out.geometry()
		p.VPP.IOPattern = IOPattern(par.IOPattern)
		p.VPP.AsyncDepth = par.AsyncDepth
	case StageEncode:
		m := par.mfx()
		e := &p.Encode
		e.Frame = m.FrameInfo.geometry()
		e.Codec = CodecID(m.CodecID)
		e.Profile = m.CodecProfile
		e.TargetUsage = TargetUsage(m.TargetUsage)
		e.GopPicSize = m.GopPicSize
		e.GopRefDist = m.GopRefDist
		e.IdrInterval = m.IdrInterval
		e.NumRefFrame = m.NumRefFrame
		e.IOPattern = IOPattern(par.IOPattern)
		e.AsyncDepth = par.AsyncDepth
		if rc := rateControlFromFields(RateControlMode(m.RateControlMethod),
			m.InitialDelayInKB, m.TargetKbps, m.MaxKbps, m.BufferSizeInKB); rc != nil {
			e.RateControl = rc
		}
	}
}

func allocRequestFromNative(r *mfxFrameAllocRequest) AllocRequest {
	return AllocRequest{
		Min:       int(r.NumFrameMin),
		Suggested: int(r.NumFrameSuggested),
		Geometry:  r.Info.geometry(),
	}
}
