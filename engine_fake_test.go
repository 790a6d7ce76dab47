package hwenc

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// fakeSync is a SyncCoordinator completing operations in Wait.
type fakeSync struct {
	mu    sync.Mutex
	next  SyncPoint
	hooks map[SyncPoint]func() error
	waits []SyncPoint

	// waitErr, when set, runs before the hook; a non-nil result is returned
	// and the hook is kept.
	waitErr func(point SyncPoint, timeout time.Duration) error
}

func newFakeSync() *fakeSync {
	return &fakeSync{hooks: make(map[SyncPoint]func() error)}
}

func (s *fakeSync) submit(done func() error) SyncPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.hooks[s.next] = done
	return s.next
}

func (s *fakeSync) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}

func (s *fakeSync) Wait(ctx context.Context, point SyncPoint, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.waits = append(s.waits, point)
	override := s.waitErr
	s.mu.Unlock()

	if override != nil {
		if err := override(point, timeout); err != nil {
			return err
		}
	}

	s.mu.Lock()
	hook, ok := s.hooks[point]
	delete(s.hooks, point)
	s.mu.Unlock()
	if !ok {
		return &StatusError{Op: "SyncOperation", Status: StatusNotFound}
	}
	if hook != nil {
		return hook()
	}
	return nil
}

// fakeEngine is a scripted StageEngine. The VPP role converts planar 4:2:0
// to NV12; the encode role emits one fake H.264 access unit per frame after
// buffering delay frames.
type fakeEngine struct {
	role StageRole
	sync *fakeSync

	queryErr  error
	ioSurfErr error
	initErr   error
	closeErr  error
	ioReq     IOSurfRequest
	bufferKB  int
	delay     int

	// process replaces the default behaviour when set.
	process func(ctrl *EncodeCtrl, in *FrameSurface, out StageOutput) (SyncPoint, error)
	// locked replaces the held-surface lookup when set.
	locked func(s *FrameSurface) bool

	mu       sync.Mutex
	inited   bool
	inits    int
	closes   int
	calls    int
	ctrls    []EncodeCtrl
	queue    []fakeFrame
	held     map[*FrameSurface]bool
	produced int
}

type fakeFrame struct {
	surf      *FrameSurface
	timeStamp uint64
	luma0     byte
	keyframe  bool
}

func newFakeVPP(s *fakeSync, in, out int) *fakeEngine {
	return &fakeEngine{
		role:  StageVPP,
		sync:  s,
		ioReq: IOSurfRequest{In: AllocRequest{Min: 1, Suggested: in}, Out: AllocRequest{Min: 1, Suggested: out}},
		held:  make(map[*FrameSurface]bool),
	}
}

func newFakeEncoder(s *fakeSync, in int) *fakeEngine {
	return &fakeEngine{
		role:  StageEncode,
		sync:  s,
		ioReq: IOSurfRequest{In: AllocRequest{Min: 1, Suggested: in}},
		held:  make(map[*FrameSurface]bool),
	}
}

func (e *fakeEngine) status(op string, s Status) error {
	return &StatusError{Op: op, Stage: e.role, Status: s}
}

func (e *fakeEngine) Query(ctx context.Context, in *PipelineParams) (*PipelineParams, error) {
	if e.queryErr != nil && !IsWarning(e.queryErr) {
		return nil, e.queryErr
	}
	if in == nil {
		return &PipelineParams{}, e.queryErr
	}
	return in.Clone(), e.queryErr
}

func (e *fakeEngine) QueryIOSurf(ctx context.Context, p *PipelineParams) (IOSurfRequest, error) {
	req := e.ioReq
	if e.role == StageVPP {
		req.In.Geometry, req.Out.Geometry = p.VPP.In, p.VPP.Out
	} else {
		req.In.Geometry = p.Encode.Frame
	}
	return req, e.ioSurfErr
}

func (e *fakeEngine) Init(ctx context.Context, p *PipelineParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inited {
		return e.status("Init", StatusUndefinedBehavior)
	}
	if e.initErr != nil && !IsWarning(e.initErr) {
		return e.initErr
	}
	e.inited = true
	e.inits++
	return e.initErr
}

func (e *fakeEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	e.inited = false
	return e.closeErr
}

func (e *fakeEngine) BufferSizeKB() int { return e.bufferKB }

func (e *fakeEngine) SurfaceLocked(s *FrameSurface) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked != nil {
		return e.locked(s)
	}
	return e.held[s]
}

func (e *fakeEngine) ProcessAsync(ctx context.Context, ctrl *EncodeCtrl, in *FrameSurface, out StageOutput) (SyncPoint, error) {
	e.mu.Lock()
	e.calls++
	if ctrl != nil {
		e.ctrls = append(e.ctrls, *ctrl)
	}
	process := e.process
	e.mu.Unlock()

	if process != nil {
		return process(ctrl, in, out)
	}
	if e.role == StageVPP {
		return e.vpp(in, out)
	}
	return e.encode(ctrl, in, out)
}

func (e *fakeEngine) vpp(in *FrameSurface, out StageOutput) (SyncPoint, error) {
	if in == nil {
		return 0, e.status("ProcessAsync", StatusMoreData)
	}
	dst := out.(*FrameSurface)
	return e.sync.submit(func() error {
		toNV12(in, dst)
		dst.TimeStamp = in.TimeStamp
		return nil
	}), nil
}

func (e *fakeEngine) encode(ctrl *EncodeCtrl, in *FrameSurface, out StageOutput) (SyncPoint, error) {
	bs := out.(*Bitstream)

	e.mu.Lock()
	if in != nil {
		e.queue = append(e.queue, fakeFrame{
			surf:      in,
			timeStamp: in.TimeStamp,
			luma0:     in.Plane(0)[0],
			keyframe:  ctrl != nil && ctrl.FrameType.IsKeyframe(),
		})
		e.held[in] = true
		if len(e.queue) <= e.delay {
			e.mu.Unlock()
			return 0, e.status("ProcessAsync", StatusMoreData)
		}
	}
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return 0, e.status("ProcessAsync", StatusMoreData)
	}
	f := e.queue[0]
	index := e.produced
	au := fakeAccessUnit(index, f.luma0, f.keyframe || index == 0)
	if bs.Cap()-bs.DataOffset-bs.DataLength < len(au) {
		e.mu.Unlock()
		return 0, e.status("ProcessAsync", StatusNotEnoughBuffer)
	}
	e.queue = e.queue[1:]
	e.produced++
	delete(e.held, f.surf)
	e.mu.Unlock()

	return e.sync.submit(func() error {
		n := copy(bs.data[bs.DataOffset+bs.DataLength:], au)
		bs.DataLength += n
		bs.TimeStamp = f.timeStamp
		bs.FrameType = FrameTypeP | FrameTypeRef
		if f.keyframe || index == 0 {
			bs.FrameType = FrameTypeI | FrameTypeRef | FrameTypeIDR
		}
		return nil
	}), nil
}

// toNV12 converts a planar 4:2:0 surface into an NV12 surface of the same crop.
func toNV12(src, dst *FrameSurface) {
	g := src.Geometry()
	w, h := g.Crop.W, g.Crop.H
	sp, dp := src.Planes(), dst.Planes()
	copyRowsStrided(dst.Plane(0), dp[0].Stride, src.Plane(0), sp[0].Stride, w, h)

	u, v := src.Plane(1), src.Plane(2)
	if g.FourCC == FourCCYV12 {
		u, v = v, u
	}
	uv := dst.Plane(1)
	for row := 0; row < h/2; row++ {
		for col := 0; col < w/2; col++ {
			uv[row*dp[1].Stride+2*col] = u[row*sp[1].Stride+col]
			uv[row*dp[1].Stride+2*col+1] = v[row*sp[1].Stride+col]
		}
	}
}

func copyRowsStrided(dst []byte, dstStride int, src []byte, srcStride, width, rows int) {
	for row := 0; row < rows; row++ {
		copy(dst[row*dstStride:row*dstStride+width], src[row*srcStride:row*srcStride+width])
	}
}

var (
	fakeSPS = []byte{0x67, 0x42, 0xC0, 0x1E, 0xDA, 0x02, 0x80}
	fakePPS = []byte{0x68, 0xCE, 0x3C, 0x80}
)

// fakeAccessUnit returns an Annex B access unit: SPS, PPS and an IDR slice
// for keyframes, a single non-IDR slice otherwise. The slice carries index
// and luma0 so tests can check ordering and content.
func fakeAccessUnit(index int, luma0 byte, keyframe bool) []byte {
	var b bytes.Buffer
	sc := []byte{0, 0, 0, 1}
	if keyframe {
		b.Write(sc)
		b.Write(fakeSPS)
		b.Write(sc)
		b.Write(fakePPS)
		b.Write(sc)
		b.WriteByte(0x65)
	} else {
		b.Write(sc)
		b.WriteByte(0x41)
	}
	b.WriteByte(byte(index))
	b.WriteByte(luma0)
	b.WriteByte(0x80) // rbsp stop bit
	return b.Bytes()
}

// fakeStages wires a fake VPP and encoder to one coordinator.
type fakeStages struct {
	sync *fakeSync
	vpp  *fakeEngine
	enc  *fakeEngine
}

func newFakeStages() *fakeStages {
	s := newFakeSync()
	return &fakeStages{
		sync: s,
		vpp:  newFakeVPP(s, 2, 2),
		enc:  newFakeEncoder(s, 2),
	}
}
