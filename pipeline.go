package hwenc

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// DriverState is the state of a Driver.
type DriverState int32

const (
	DriverStateIdle     DriverState = iota // Not initialized
	DriverStateRunning                     // Reading input
	DriverStateDraining                    // Input exhausted, flushing buffered frames
	DriverStateClosed                      // Stages closed
)

func (s DriverState) String() string {
	switch s {
	case DriverStateIdle:
		return "idle"
	case DriverStateRunning:
		return "running"
	case DriverStateDraining:
		return "draining"
	case DriverStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DriverStats provides driver statistics.
type DriverStats struct {
	FramesRead    uint64 // Raw frames read from the source
	VPPFrames     uint64 // Frames produced by the VPP stage
	FramesEncoded uint64 // Encode operations flushed to the sink
	BytesWritten  uint64
	Keyframes     uint64 // Flushed frames marked IDR
	Warnings      uint64 // Warnings and NotEnoughBuffer reports
	DrainedFrames uint64 // Frames produced after end of input
}

func (s DriverStats) String() string {
	return fmt.Sprintf("read %d, vpp %d, encoded %d (%d drained, %d keyframes), %s written, %d warnings",
		s.FramesRead, s.VPPFrames, s.FramesEncoded, s.DrainedFrames, s.Keyframes,
		humanize.Bytes(s.BytesWritten), s.Warnings)
}
