package hwenc

import (
	"testing"
)

func TestDriverStateString(t *testing.T) {
	tests := map[DriverState]string{
		DriverStateIdle:     "idle",
		DriverStateRunning:  "running",
		DriverStateDraining: "draining",
		DriverStateClosed:   "closed",
		DriverState(9):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("DriverState(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}

func TestDriverStatsString(t *testing.T) {
	s := DriverStats{FramesRead: 3, VPPFrames: 3, FramesEncoded: 3, BytesWritten: 2048, Keyframes: 1, DrainedFrames: 1}
	want := "read 3, vpp 3, encoded 3 (1 drained, 1 keyframes), 2.0 kB written, 0 warnings"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
