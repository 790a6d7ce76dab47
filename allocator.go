package hwenc

import (
	"context"
	"fmt"
	"sync"
)

// SystemMemoryAllocator is a FrameAllocator backed by SurfacePools in
// system memory. Each Alloc creates one pool.
type SystemMemoryAllocator struct {
	mu     sync.Mutex
	next   MemID
	frames map[MemID]*FrameSurface
	pools  map[MemID]*SurfacePool // keyed by the first MemID of each response
}

// NewSystemMemoryAllocator creates an empty allocator.
func NewSystemMemoryAllocator() *SystemMemoryAllocator {
	return &SystemMemoryAllocator{
		frames: make(map[MemID]*FrameSurface),
		pools:  make(map[MemID]*SurfacePool),
	}
}

// Alloc allocates max(Suggested, Min) frames of req.Geometry.
func (a *SystemMemoryAllocator) Alloc(ctx context.Context, req AllocRequest) (FrameAllocResponse, error) {
	count := max(req.Suggested, req.Min)
	pool, err := NewSurfacePool(count, req.Geometry)
	if err != nil {
		return FrameAllocResponse{}, fmt.Errorf("alloc %d frames: %w", count, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	resp := FrameAllocResponse{MemIDs: make([]MemID, pool.Len())}
	for i := range resp.MemIDs {
		a.next++
		resp.MemIDs[i] = a.next
		a.frames[a.next] = pool.Surface(i)
	}
	a.pools[resp.MemIDs[0]] = pool
	logPool(ctx, "allocator", pool)
	return resp, nil
}

// Lock returns the surface behind mid.
func (a *SystemMemoryAllocator) Lock(mid MemID) (*FrameSurface, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.frames[mid]
	if !ok {
		return nil, fmt.Errorf("lock frame %d: %w", mid, StatusInvalidHandle)
	}
	return s, nil
}

// Unlock validates mid; system memory needs no unmapping.
func (a *SystemMemoryAllocator) Unlock(mid MemID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.frames[mid]; !ok {
		return fmt.Errorf("unlock frame %d: %w", mid, StatusInvalidHandle)
	}
	return nil
}

// GetHandle is unsupported: system memory frames have no device handle.
func (a *SystemMemoryAllocator) GetHandle(mid MemID) (uintptr, error) {
	return 0, fmt.Errorf("frame %d handle: %w", mid, StatusUnsupported)
}

// Free releases the frames of resp.
func (a *SystemMemoryAllocator) Free(resp FrameAllocResponse) error {
	if len(resp.MemIDs) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pools[resp.MemIDs[0]]; !ok {
		return fmt.Errorf("free frames from %d: %w", resp.MemIDs[0], StatusInvalidHandle)
	}
	delete(a.pools, resp.MemIDs[0])
	for _, mid := range resp.MemIDs {
		delete(a.frames, mid)
	}
	return nil
}

// Allocated returns the number of live frames.
func (a *SystemMemoryAllocator) Allocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frames)
}
