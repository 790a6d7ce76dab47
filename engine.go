package hwenc

import (
	"context"
	"time"
)

// StageRole identifies which pipeline stage an engine serves.
type StageRole uint8

const (
	StageVPP    StageRole = iota // Scale/format conversion
	StageEncode                  // Video encoder
)

func (r StageRole) String() string {
	switch r {
	case StageVPP:
		return "vpp"
	case StageEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// SyncPoint is the opaque completion token of a submitted operation.
// Zero means no operation was queued.
type SyncPoint uintptr

// AllocRequest is a stage's surface requirement for one direction.
type AllocRequest struct {
	Min       int
	Suggested int
	Geometry  FrameGeometry
}

// IOSurfRequest holds the surface requirements of a stage.
// Out is zero for the encode stage, which writes a bitstream.
type IOSurfRequest struct {
	In  AllocRequest
	Out AllocRequest
}

// FrameType flags for EncodeCtrl.
type FrameType uint16

const (
	FrameTypeI   FrameType = 0x0001
	FrameTypeP   FrameType = 0x0002
	FrameTypeB   FrameType = 0x0004
	FrameTypeRef FrameType = 0x0040
	FrameTypeIDR FrameType = 0x0080
)

// IsKeyframe reports whether t starts a new GOP.
func (t FrameType) IsKeyframe() bool { return t&FrameTypeIDR != 0 }

// EncodeCtrl carries per-frame encoder overrides.
type EncodeCtrl struct {
	FrameType FrameType // 0 = encoder decides
	QP        uint16    // CQP only, 0 = configured value
}

// StageOutput is the destination of ProcessAsync: a *FrameSurface for the
// VPP stage or a *Bitstream for the encode stage.
type StageOutput interface {
	stageOutput()
}

// StageEngine is the contract of a vendor acceleration stage.
//
// Query validates params and returns a corrected copy; a nil input reports the
// configurable fields instead. QueryIOSurf must follow Query and precede pool
// construction. Init twice without Close fails with StatusUndefinedBehavior.
// ProcessAsync returns before the work completes; a nil input drains the
// stage. Close is safe without Init and safe to call twice.
//
// Warnings are returned as errors for which IsWarning is true, together with
// a valid sync point when the engine produced one.
type StageEngine interface {
	Query(ctx context.Context, in *PipelineParams) (*PipelineParams, error)
	QueryIOSurf(ctx context.Context, p *PipelineParams) (IOSurfRequest, error)
	Init(ctx context.Context, p *PipelineParams) error
	ProcessAsync(ctx context.Context, ctrl *EncodeCtrl, in *FrameSurface, out StageOutput) (SyncPoint, error)
	Close(ctx context.Context) error
}

// SurfaceLockReporter is implemented by engines that keep surfaces
// internally after their operation completes (reference frames).
type SurfaceLockReporter interface {
	SurfaceLocked(s *FrameSurface) bool
}

// EncoderInfo is implemented by encode engines that report their output
// buffer requirement after Init.
type EncoderInfo interface {
	BufferSizeKB() int
}

// SyncCoordinator waits for a submitted operation to finish.
// A wait exceeding timeout returns an error wrapping ErrSyncTimeout or
// StatusWrnInExecution.
type SyncCoordinator interface {
	Wait(ctx context.Context, point SyncPoint, timeout time.Duration) error
}

// MemID identifies a frame allocated by a FrameAllocator.
type MemID uintptr

// FrameAllocResponse lists the frames returned by FrameAllocator.Alloc.
type FrameAllocResponse struct {
	MemIDs []MemID
}

// FrameAllocator lets a stage obtain frames from the application instead of
// allocating them internally.
type FrameAllocator interface {
	Alloc(ctx context.Context, req AllocRequest) (FrameAllocResponse, error)
	Lock(mid MemID) (*FrameSurface, error)
	Unlock(mid MemID) error
	GetHandle(mid MemID) (uintptr, error)
	Free(resp FrameAllocResponse) error
}
