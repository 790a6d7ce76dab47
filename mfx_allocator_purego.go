//go:build linux && !nomfx

package hwenc

import (
	"context"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// purego callbacks cannot be freed, so the five entry points are created
// once and dispatch on pthis, which is a registry key rather than a pointer.
var (
	mfxAllocCallbacksOnce sync.Once
	mfxAllocCallbacks     struct {
		alloc, lock, unlock, getHDL, free uintptr
	}

	mfxBridgesMu sync.Mutex
	mfxBridges   = map[uintptr]*mfxAllocatorBridge{}
	mfxBridgeID  uintptr
)

type mfxAllocatorBridge struct {
	id     uintptr
	ctx    context.Context
	alloc  FrameAllocator
	native *mfxFrameAllocator

	mu        sync.Mutex
	responses map[uintptr]FrameAllocResponse // keyed by the native mids array
	pinner    runtime.Pinner
}

func newMFXAllocatorBridge(ctx context.Context, alloc FrameAllocator) (*mfxAllocatorBridge, error) {
	mfxAllocCallbacksOnce.Do(func() {
		mfxAllocCallbacks.alloc = purego.NewCallback(mfxAllocCallback)
		mfxAllocCallbacks.lock = purego.NewCallback(mfxLockCallback)
		mfxAllocCallbacks.unlock = purego.NewCallback(mfxUnlockCallback)
		mfxAllocCallbacks.getHDL = purego.NewCallback(mfxGetHDLCallback)
		mfxAllocCallbacks.free = purego.NewCallback(mfxFreeCallback)
	})

	mfxBridgesMu.Lock()
	mfxBridgeID++
	b := &mfxAllocatorBridge{
		id:        mfxBridgeID,
		ctx:       ctx,
		alloc:     alloc,
		responses: make(map[uintptr]FrameAllocResponse),
	}
	mfxBridges[b.id] = b
	mfxBridgesMu.Unlock()

	b.native = &mfxFrameAllocator{
		pthis:  b.id,
		Alloc:  mfxAllocCallbacks.alloc,
		Lock:   mfxAllocCallbacks.lock,
		Unlock: mfxAllocCallbacks.unlock,
		GetHDL: mfxAllocCallbacks.getHDL,
		Free:   mfxAllocCallbacks.free,
	}
	b.pinner.Pin(b.native)
	return b, nil
}

func (b *mfxAllocatorBridge) nativePtr() uintptr {
	return uintptr(unsafe.Pointer(b.native))
}

func (b *mfxAllocatorBridge) close() {
	mfxBridgesMu.Lock()
	delete(mfxBridges, b.id)
	mfxBridgesMu.Unlock()
	b.pinner.Unpin()
}

func lookupMFXBridge(pthis uintptr) *mfxAllocatorBridge {
	mfxBridgesMu.Lock()
	defer mfxBridgesMu.Unlock()
	return mfxBridges[pthis]
}

func statusResult(s Status) uintptr { return uintptr(uint32(int32(s))) }

func errorResult(err error) uintptr {
	if err == nil {
		return statusResult(StatusNone)
	}
	return statusResult(StatusOf(err))
}

func mfxAllocCallback(pthis, reqPtr, respPtr uintptr) uintptr {
	b := lookupMFXBridge(pthis)
	if b == nil || reqPtr == 0 || respPtr == 0 {
		return statusResult(StatusNullPtr)
	}
	req := (*mfxFrameAllocRequest)(unsafe.Pointer(reqPtr))
	resp := (*mfxFrameAllocResponse)(unsafe.Pointer(respPtr))

	logger.Debugf(b.ctx, "alloc %d-%d frames for %s", req.NumFrameMin, req.NumFrameSuggested, memTypeSource(req.Type))
	r, err := b.alloc.Alloc(b.ctx, allocRequestFromNative(req))
	if err != nil {
		logger.Errorf(b.ctx, "frame allocator: %v", err)
		return errorResult(err)
	}
	if len(r.MemIDs) == 0 {
		return statusResult(StatusMemoryAlloc)
	}

	mids := make([]uintptr, len(r.MemIDs))
	for i, mid := range r.MemIDs {
		mids[i] = uintptr(mid)
	}
	b.mu.Lock()
	b.pinner.Pin(&mids[0])
	resp.mids = uintptr(unsafe.Pointer(&mids[0]))
	resp.NumFrameActual = uint16(len(mids))
	resp.MemType = req.Type | mfxMemTypeSystemMemory
	b.responses[resp.mids] = r
	b.mu.Unlock()
	return statusResult(StatusNone)
}

func mfxLockCallback(pthis, mid, dataPtr uintptr) uintptr {
	b := lookupMFXBridge(pthis)
	if b == nil || dataPtr == 0 {
		return statusResult(StatusNullPtr)
	}
	s, err := b.alloc.Lock(MemID(mid))
	if err != nil {
		return errorResult(err)
	}
	data := (*mfxFrameData)(unsafe.Pointer(dataPtr))

	b.mu.Lock()
	b.pinner.Pin(&s.data[0])
	b.mu.Unlock()

	data.setPlanes(s)
	return statusResult(StatusNone)
}

func mfxUnlockCallback(pthis, mid, dataPtr uintptr) uintptr {
	b := lookupMFXBridge(pthis)
	if b == nil {
		return statusResult(StatusNullPtr)
	}
	if err := b.alloc.Unlock(MemID(mid)); err != nil {
		return errorResult(err)
	}
	if dataPtr != 0 {
		data := (*mfxFrameData)(unsafe.Pointer(dataPtr))
		data.Y, data.U, data.V, data.A = 0, 0, 0, 0
		data.setPitch(0)
	}
	return statusResult(StatusNone)
}

func mfxGetHDLCallback(pthis, mid, handlePtr uintptr) uintptr {
	b := lookupMFXBridge(pthis)
	if b == nil || handlePtr == 0 {
		return statusResult(StatusNullPtr)
	}
	h, err := b.alloc.GetHandle(MemID(mid))
	if err != nil {
		return errorResult(err)
	}
	*(*uintptr)(unsafe.Pointer(handlePtr)) = h
	return statusResult(StatusNone)
}

func mfxFreeCallback(pthis, respPtr uintptr) uintptr {
	b := lookupMFXBridge(pthis)
	if b == nil || respPtr == 0 {
		return statusResult(StatusNullPtr)
	}
	resp := (*mfxFrameAllocResponse)(unsafe.Pointer(respPtr))

	b.mu.Lock()
	r, ok := b.responses[resp.mids]
	delete(b.responses, resp.mids)
	b.mu.Unlock()
	if !ok {
		return statusResult(StatusInvalidHandle)
	}
	return errorResult(b.alloc.Free(r))
}

// memTypeSource names the component that issued an allocation request.
func memTypeSource(t uint16) string {
	switch {
	case t&mfxMemTypeFromEncode != 0:
		return "encode"
	case t&mfxMemTypeFromVPPIn != 0:
		return "vpp-in"
	case t&mfxMemTypeFromVPPOut != 0:
		return "vpp-out"
	case t&mfxMemTypeInternalFrame != 0:
		return "internal"
	case t&mfxMemTypeExternalFrame != 0:
		return "external"
	}
	return "unknown"
}
