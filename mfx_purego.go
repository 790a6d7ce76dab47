//go:build linux && !nomfx

// libmfx / oneVPL session and stage engines loaded with purego.

package hwenc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/facebookincubator/go-belt/tool/logger"
)

var (
	mfxOnce    sync.Once
	mfxHandle  uintptr
	mfxInitErr error
	mfxLoaded  bool
	mfxLibPath string
)

// libmfx function pointers
var (
	mfxInit         func(impl int32, ver uintptr, session uintptr) int32
	mfxQueryIMPL    func(session uintptr, impl uintptr) int32
	mfxQueryVersion func(session uintptr, ver uintptr) int32
	mfxClose        func(session uintptr) int32

	mfxCoreSyncOperation     func(session uintptr, syncp uintptr, wait uint32) int32
	mfxCoreSetFrameAllocator func(session uintptr, allocator uintptr) int32

	mfxVPPQuery            func(session uintptr, in, out uintptr) int32
	mfxVPPQueryIOSurf      func(session uintptr, par, request uintptr) int32
	mfxVPPInit             func(session uintptr, par uintptr) int32
	mfxVPPRunFrameVPPAsync func(session uintptr, in, out, aux, syncp uintptr) int32
	mfxVPPClose            func(session uintptr) int32

	mfxEncodeQuery            func(session uintptr, in, out uintptr) int32
	mfxEncodeQueryIOSurf      func(session uintptr, par, request uintptr) int32
	mfxEncodeInit             func(session uintptr, par uintptr) int32
	mfxEncodeGetVideoParam    func(session uintptr, par uintptr) int32
	mfxEncodeEncodeFrameAsync func(session uintptr, ctrl, surface, bs, syncp uintptr) int32
	mfxEncodeClose            func(session uintptr) int32
)

// loadMFX loads the library once. path is only honored on the first call.
func loadMFX(path string) error {
	mfxOnce.Do(func() {
		mfxInitErr = loadMFXLib(path)
		if mfxInitErr == nil {
			mfxLoaded = true
		}
	})
	return mfxInitErr
}

func loadMFXLib(override string) error {
	var lastErr error
	for _, path := range getMFXLibPaths(override) {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mfxHandle = handle
		if err := loadMFXSymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		mfxLibPath = path
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libmfx: %w", lastErr)
	}
	return errors.New("libmfx not found in any standard location")
}

var mfxLibNames = []string{"libvpl.so.2", "libmfx.so.1", "libmfxhw64.so.1"}

// moduleDir returns the nearest directory above the working directory that
// holds a go.mod, or "".
func moduleDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func getMFXLibPaths(override string) []string {
	var paths []string

	if override != "" {
		paths = append(paths, override)
	}

	// Search relative to executable location
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		for _, name := range mfxLibNames {
			paths = append(paths,
				filepath.Join(exeDir, name),
				filepath.Join(exeDir, "..", "lib", name),
			)
		}
	}

	// <module>/build, for libraries built next to a checkout
	if root := moduleDir(); root != "" {
		for _, name := range mfxLibNames {
			paths = append(paths, filepath.Join(root, "build", name))
		}
	}

	// System paths (lowest priority)
	for _, name := range mfxLibNames {
		paths = append(paths,
			name,
			filepath.Join("/usr/lib/x86_64-linux-gnu", name),
			filepath.Join("/usr/local/lib", name),
			filepath.Join("/opt/intel/mediasdk/lib64", name),
			filepath.Join("/opt/intel/oneapi/vpl/latest/lib", name),
		)
	}
	return paths
}

func loadMFXSymbols() (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libmfx symbol: %v", r)
		}
	}()

	purego.RegisterLibFunc(&mfxInit, mfxHandle, "MFXInit")
	purego.RegisterLibFunc(&mfxQueryIMPL, mfxHandle, "MFXQueryIMPL")
	purego.RegisterLibFunc(&mfxQueryVersion, mfxHandle, "MFXQueryVersion")
	purego.RegisterLibFunc(&mfxClose, mfxHandle, "MFXClose")

	purego.RegisterLibFunc(&mfxCoreSyncOperation, mfxHandle, "MFXVideoCORE_SyncOperation")
	purego.RegisterLibFunc(&mfxCoreSetFrameAllocator, mfxHandle, "MFXVideoCORE_SetFrameAllocator")

	purego.RegisterLibFunc(&mfxVPPQuery, mfxHandle, "MFXVideoVPP_Query")
	purego.RegisterLibFunc(&mfxVPPQueryIOSurf, mfxHandle, "MFXVideoVPP_QueryIOSurf")
	purego.RegisterLibFunc(&mfxVPPInit, mfxHandle, "MFXVideoVPP_Init")
	purego.RegisterLibFunc(&mfxVPPRunFrameVPPAsync, mfxHandle, "MFXVideoVPP_RunFrameVPPAsync")
	purego.RegisterLibFunc(&mfxVPPClose, mfxHandle, "MFXVideoVPP_Close")

	purego.RegisterLibFunc(&mfxEncodeQuery, mfxHandle, "MFXVideoENCODE_Query")
	purego.RegisterLibFunc(&mfxEncodeQueryIOSurf, mfxHandle, "MFXVideoENCODE_QueryIOSurf")
	purego.RegisterLibFunc(&mfxEncodeInit, mfxHandle, "MFXVideoENCODE_Init")
	purego.RegisterLibFunc(&mfxEncodeGetVideoParam, mfxHandle, "MFXVideoENCODE_GetVideoParam")
	purego.RegisterLibFunc(&mfxEncodeEncodeFrameAsync, mfxHandle, "MFXVideoENCODE_EncodeFrameAsync")
	purego.RegisterLibFunc(&mfxEncodeClose, mfxHandle, "MFXVideoENCODE_Close")

	return nil
}

// IsMFXAvailable checks if a libmfx or oneVPL dispatcher can be loaded.
func IsMFXAvailable() bool {
	if err := loadMFX(""); err != nil {
		return false
	}
	return mfxLoaded
}

// MFXLibraryPath returns the path the library was loaded from.
func MFXLibraryPath() string { return mfxLibPath }

type syncHook struct {
	role StageRole
	done func()
}

// MFXSession is a libmfx session. It provides the VPP and encode stage
// engines and acts as their SyncCoordinator.
type MFXSession struct {
	handle  uintptr
	impl    Implementation
	version APIVersion

	vpp    *mfxStage
	encode *mfxStage
	alloc  *mfxAllocatorBridge

	mu     sync.Mutex
	hooks  map[SyncPoint]syncHook
	closed bool
}

// OpenMFXSession loads the library and opens a session.
func OpenMFXSession(ctx context.Context, cfg MFXConfig) (_ *MFXSession, _err error) {
	logger.Debugf(ctx, "OpenMFXSession(%s)", cfg.Implementation)
	defer func() { logger.Debugf(ctx, "/OpenMFXSession(%s): %v", cfg.Implementation, _err) }()

	if err := loadMFX(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("MFX not available: %w", err)
	}

	ver := &mfxVersion{Major: cfg.Version.Major, Minor: cfg.Version.Minor}
	if ver.Major == 0 {
		ver.Major = mfxDefaultAPIVersionMajor
	}
	handle := new(uintptr)
	st := Status(mfxInit(int32(cfg.Implementation), uintptr(unsafe.Pointer(ver)), uintptr(unsafe.Pointer(handle))))
	runtime.KeepAlive(ver)
	if st.IsError() {
		return nil, fmt.Errorf("MFXInit(%s, %d.%d): %w", cfg.Implementation, ver.Major, ver.Minor, st)
	}

	s := &MFXSession{
		handle: *handle,
		hooks:  make(map[SyncPoint]syncHook),
	}

	impl := new(int32)
	if st := Status(mfxQueryIMPL(s.handle, uintptr(unsafe.Pointer(impl)))); st == StatusNone {
		s.impl = Implementation(*impl)
	}
	got := new(mfxVersion)
	if st := Status(mfxQueryVersion(s.handle, uintptr(unsafe.Pointer(got)))); st == StatusNone {
		s.version = APIVersion{Major: got.Major, Minor: got.Minor}
	}
	setImplementationAvailable(s.impl)
	logger.Infof(ctx, "mfx session: %s, API %s, %s", s.impl, s.version, mfxLibPath)

	if cfg.Allocator != nil {
		bridge, err := newMFXAllocatorBridge(ctx, cfg.Allocator)
		if err != nil {
			mfxClose(s.handle)
			return nil, err
		}
		if st := Status(mfxCoreSetFrameAllocator(s.handle, bridge.nativePtr())); st.IsError() {
			bridge.close()
			mfxClose(s.handle)
			return nil, fmt.Errorf("SetFrameAllocator: %w", st)
		}
		s.alloc = bridge
	}

	s.vpp = &mfxStage{session: s, role: StageVPP}
	s.encode = &mfxStage{session: s, role: StageEncode}
	return s, nil
}

// Implementation returns the implementation reported by the library.
func (s *MFXSession) Implementation() Implementation { return s.impl }

// Version returns the API version reported by the library.
func (s *MFXSession) Version() APIVersion { return s.version }

// VPP returns the video processing stage of the session.
func (s *MFXSession) VPP() StageEngine { return s.vpp }

// Encoder returns the encode stage of the session.
func (s *MFXSession) Encoder() StageEngine { return s.encode }

func (s *MFXSession) addHook(point SyncPoint, role StageRole, done func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[point] = syncHook{role: role, done: done}
}

func (s *MFXSession) takeHook(point SyncPoint) syncHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hooks[point]
	delete(s.hooks, point)
	return h
}

// Wait implements SyncCoordinator.
func (s *MFXSession) Wait(ctx context.Context, point SyncPoint, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if point == 0 {
		return fmt.Errorf("SyncOperation: %w", StatusNullPtr)
	}

	ms := timeout.Milliseconds()
	if ms < 0 || ms >= mfxInfiniteWait {
		ms = mfxInfiniteWait - 1
	}
	st := Status(mfxCoreSyncOperation(s.handle, uintptr(point), uint32(ms)))
	if st == StatusWrnInExecution {
		// Still running; the hook stays for a later wait.
		return &StatusError{Op: "SyncOperation", Stage: s.peekHookRole(point), Status: st}
	}

	h := s.takeHook(point)
	if st.IsError() {
		return &StatusError{Op: "SyncOperation", Stage: h.role, Status: st}
	}
	if h.done != nil {
		h.done()
	}
	return newStatusError(h.role, "SyncOperation", st)
}

func (s *MFXSession) peekHookRole(point SyncPoint) StageRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks[point].role
}

// Close closes both stages and the session. Safe to call twice.
func (s *MFXSession) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{
		s.encode.Close(ctx),
		s.vpp.Close(ctx),
	}
	if st := Status(mfxClose(s.handle)); st.IsError() {
		errs = append(errs, fmt.Errorf("MFXClose: %w", st))
	}
	if s.alloc != nil {
		s.alloc.close()
	}
	return errors.Join(errs...)
}

// mfxStage is one stage of a session: VPP or ENCODE.
type mfxStage struct {
	session *MFXSession
	role    StageRole

	mu       sync.Mutex
	inited   bool
	par      *mfxVideoParam
	syncp    *uintptr
	ctrl     *mfxEncodeCtrl
	surfaces map[*FrameSurface]*mfxFrameSurface1
	streams  map[*Bitstream]*mfxBitstream
	bufferKB int

	// The library keeps pointers to surfaces, bitstreams and the control
	// record until the stage is closed.
	pinner runtime.Pinner
}

func (st *mfxStage) status(op string, r int32) error {
	return newStatusError(st.role, op, Status(r))
}

// Query implements StageEngine.
func (st *mfxStage) Query(ctx context.Context, in *PipelineParams) (*PipelineParams, error) {
	logger.Tracef(ctx, "Query")

	out := &mfxVideoParam{}
	var inPtr uintptr
	res := in.Clone()
	if in != nil {
		inPar := videoParamFor(st.role, in)
		*out = *inPar
		inPtr = uintptr(unsafe.Pointer(inPar))
		defer runtime.KeepAlive(inPar)
	} else {
		res = &PipelineParams{}
	}

	var r int32
	switch st.role {
	case StageVPP:
		r = mfxVPPQuery(st.session.handle, inPtr, uintptr(unsafe.Pointer(out)))
	default:
		r = mfxEncodeQuery(st.session.handle, inPtr, uintptr(unsafe.Pointer(out)))
	}
	err := st.status("Query", r)
	if err != nil && !IsWarning(err) {
		return nil, err
	}
	applyVideoParam(st.role, out, res)
	return res, err
}

// QueryIOSurf implements StageEngine.
func (st *mfxStage) QueryIOSurf(ctx context.Context, p *PipelineParams) (IOSurfRequest, error) {
	par := videoParamFor(st.role, p)
	var req IOSurfRequest

	switch st.role {
	case StageVPP:
		var native [2]mfxFrameAllocRequest
		r := mfxVPPQueryIOSurf(st.session.handle, uintptr(unsafe.Pointer(par)), uintptr(unsafe.Pointer(&native[0])))
		if err := st.status("QueryIOSurf", r); err != nil && !IsWarning(err) {
			return req, err
		}
		req.In = allocRequestFromNative(&native[0])
		req.Out = allocRequestFromNative(&native[1])
	default:
		var native mfxFrameAllocRequest
		r := mfxEncodeQueryIOSurf(st.session.handle, uintptr(unsafe.Pointer(par)), uintptr(unsafe.Pointer(&native)))
		if err := st.status("QueryIOSurf", r); err != nil && !IsWarning(err) {
			return req, err
		}
		req.In = allocRequestFromNative(&native)
	}
	runtime.KeepAlive(par)
	logger.Debugf(ctx, "QueryIOSurf: in %d/%d, out %d/%d", req.In.Min, req.In.Suggested, req.Out.Min, req.Out.Suggested)
	return req, nil
}

// Init implements StageEngine.
func (st *mfxStage) Init(ctx context.Context, p *PipelineParams) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.inited {
		return &StatusError{Op: "Init", Stage: st.role, Status: StatusUndefinedBehavior}
	}

	st.par = videoParamFor(st.role, p)
	st.syncp = new(uintptr)
	st.ctrl = &mfxEncodeCtrl{}
	st.surfaces = make(map[*FrameSurface]*mfxFrameSurface1)
	st.streams = make(map[*Bitstream]*mfxBitstream)
	st.pinner.Pin(st.par)
	st.pinner.Pin(st.ctrl)

	var r int32
	switch st.role {
	case StageVPP:
		r = mfxVPPInit(st.session.handle, uintptr(unsafe.Pointer(st.par)))
	default:
		r = mfxEncodeInit(st.session.handle, uintptr(unsafe.Pointer(st.par)))
	}
	err := st.status("Init", r)
	if err != nil && !IsWarning(err) {
		st.pinner.Unpin()
		return err
	}
	st.inited = true

	if st.role == StageEncode {
		got := &mfxVideoParam{}
		if err := st.status("GetVideoParam", mfxEncodeGetVideoParam(st.session.handle, uintptr(unsafe.Pointer(got)))); err == nil {
			m := got.mfx()
			st.bufferKB = int(m.BufferSizeInKB) * int(max(m.BRCParamMultiplier, 1))
			logger.Debugf(ctx, "encoder buffer %d KB", st.bufferKB)
		}
	}
	return err
}

// BufferSizeKB implements EncoderInfo.
func (st *mfxStage) BufferSizeKB() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bufferKB
}

// SurfaceLocked implements SurfaceLockReporter.
func (st *mfxStage) SurfaceLocked(s *FrameSurface) bool {
	st.mu.Lock()
	native, ok := st.surfaces[s]
	st.mu.Unlock()
	return ok && native.Data.locked() > 0
}

// nativeSurface returns the pinned native record mirroring s.
func (st *mfxStage) nativeSurface(s *FrameSurface) *mfxFrameSurface1 {
	if native, ok := st.surfaces[s]; ok {
		native.Data.TimeStamp = s.TimeStamp
		return native
	}

	native := &mfxFrameSurface1{Info: frameInfoFromGeometry(s.Geometry())}
	st.pinner.Pin(native)
	st.pinner.Pin(&s.data[0])

	native.Data.setPlanes(s)
	native.Data.TimeStamp = s.TimeStamp
	st.surfaces[s] = native
	return native
}

// nativeBitstream returns the pinned native record mirroring b.
func (st *mfxStage) nativeBitstream(b *Bitstream) *mfxBitstream {
	native, ok := st.streams[b]
	if !ok {
		native = &mfxBitstream{}
		st.pinner.Pin(native)
		if b.Cap() > 0 {
			st.pinner.Pin(&b.data[0])
			native.Data = uintptr(unsafe.Pointer(&b.data[0]))
		}
		native.MaxLength = uint32(b.Cap())
		st.streams[b] = native
	}
	native.DataOffset = uint32(b.DataOffset)
	native.DataLength = uint32(b.DataLength)
	return native
}

// ProcessAsync implements StageEngine.
func (st *mfxStage) ProcessAsync(ctx context.Context, ctrl *EncodeCtrl, in *FrameSurface, out StageOutput) (SyncPoint, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.inited {
		return 0, &StatusError{Op: "ProcessAsync", Stage: st.role, Status: StatusNotInitialized}
	}

	var inPtr uintptr
	if in != nil {
		inPtr = uintptr(unsafe.Pointer(st.nativeSurface(in)))
	}
	*st.syncp = 0

	var (
		r    int32
		done func()
	)
	switch st.role {
	case StageVPP:
		surf, ok := out.(*FrameSurface)
		if !ok {
			return 0, fmt.Errorf("vpp output %T: %w", out, StatusNullPtr)
		}
		native := st.nativeSurface(surf)
		r = mfxVPPRunFrameVPPAsync(st.session.handle, inPtr, uintptr(unsafe.Pointer(native)), 0, uintptr(unsafe.Pointer(st.syncp)))
		done = func() { surf.TimeStamp = native.Data.TimeStamp }
	default:
		bs, ok := out.(*Bitstream)
		if !ok {
			return 0, fmt.Errorf("encode output %T: %w", out, StatusNullPtr)
		}
		native := st.nativeBitstream(bs)
		var ctrlPtr uintptr
		if ctrl != nil {
			st.ctrl.FrameType = uint16(ctrl.FrameType)
			st.ctrl.QP = ctrl.QP
			ctrlPtr = uintptr(unsafe.Pointer(st.ctrl))
		}
		r = mfxEncodeEncodeFrameAsync(st.session.handle, ctrlPtr, inPtr, uintptr(unsafe.Pointer(native)), uintptr(unsafe.Pointer(st.syncp)))
		done = func() {
			bs.DataOffset = int(native.DataOffset)
			bs.DataLength = int(native.DataLength)
			bs.TimeStamp = native.TimeStamp
			bs.FrameType = FrameType(native.FrameType)
		}
	}

	point := SyncPoint(*st.syncp)
	err := st.status("ProcessAsync", r)
	if err != nil && !IsWarning(err) {
		return 0, err
	}
	if point != 0 {
		st.session.addHook(point, st.role, done)
	}
	return point, err
}

// Close implements StageEngine.
func (st *mfxStage) Close(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.inited {
		return nil
	}
	st.inited = false

	var r int32
	switch st.role {
	case StageVPP:
		r = mfxVPPClose(st.session.handle)
	default:
		r = mfxEncodeClose(st.session.handle)
	}
	st.pinner.Unpin()
	st.surfaces = nil
	st.streams = nil
	logger.Debugf(ctx, "closed %s stage", st.role)
	return st.status("Close", r)
}
