//go:build !linux || nomfx

package hwenc

import (
	"context"
	"fmt"
	"time"
)

// IsMFXAvailable reports false: this build has no libmfx loader.
func IsMFXAvailable() bool { return false }

// MFXLibraryPath returns an empty path.
func MFXLibraryPath() string { return "" }

// MFXSession is unavailable in this build.
type MFXSession struct{}

// OpenMFXSession always fails with StatusUnsupported.
func OpenMFXSession(ctx context.Context, cfg MFXConfig) (*MFXSession, error) {
	return nil, fmt.Errorf("MFX not available in this build: %w", StatusUnsupported)
}

func (s *MFXSession) Implementation() Implementation  { return ImplAuto }
func (s *MFXSession) Version() APIVersion             { return APIVersion{} }
func (s *MFXSession) VPP() StageEngine                { return nil }
func (s *MFXSession) Encoder() StageEngine            { return nil }
func (s *MFXSession) Close(ctx context.Context) error { return nil }

func (s *MFXSession) Wait(ctx context.Context, point SyncPoint, timeout time.Duration) error {
	return &StatusError{Op: "SyncOperation", Status: StatusUnsupported}
}
