package hwenc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncerAwait(t *testing.T) {
	s := newFakeSync()
	pool, err := NewSurfacePool(2, testGeometry(FourCCNV12))
	require.NoError(t, err)
	i, err := pool.Acquire()
	require.NoError(t, err)

	done := false
	op := NewOperation(StageVPP, s.submit(func() error { done = true; return nil }))
	op.Lease(pool, i)

	syncer := NewSyncer(s, time.Second)
	require.NoError(t, syncer.Await(context.Background(), op))
	require.True(t, done)
	require.True(t, op.Consumed())
	require.False(t, pool.Surface(i).Locked())

	err = syncer.Await(context.Background(), op)
	require.ErrorIs(t, err, ErrSyncPointConsumed)
	require.Equal(t, []SyncPoint{op.Point}, s.waits)
}

func TestSyncerTimeoutReleasesLeases(t *testing.T) {
	s := newFakeSync()
	var seen time.Duration
	s.waitErr = func(point SyncPoint, timeout time.Duration) error {
		seen = timeout
		return &StatusError{Op: "SyncOperation", Status: StatusWrnInExecution}
	}
	pool, err := NewSurfacePool(1, testGeometry(FourCCNV12))
	require.NoError(t, err)
	i, err := pool.Acquire()
	require.NoError(t, err)

	op := NewOperation(StageEncode, s.submit(nil))
	op.Lease(pool, i)

	err = NewSyncer(s, 25*time.Millisecond).Await(context.Background(), op)
	require.ErrorIs(t, err, ErrSyncTimeout)
	require.ErrorIs(t, err, StatusAborted)
	require.Equal(t, 25*time.Millisecond, seen)
	require.False(t, pool.Surface(i).Locked())
	require.Len(t, s.waits, 1)
}

func TestSyncerPassesWarnings(t *testing.T) {
	s := newFakeSync()
	op := NewOperation(StageEncode, s.submit(func() error {
		return &StatusError{Op: "SyncOperation", Stage: StageEncode, Status: StatusWrnVideoParamChanged}
	}))
	err := NewSyncer(s, 0).Await(context.Background(), op)
	require.True(t, IsWarning(err))
	require.Equal(t, StatusWrnVideoParamChanged, StatusOf(err))
}

func TestSyncerWrapsErrors(t *testing.T) {
	s := newFakeSync()
	op := NewOperation(StageVPP, s.submit(func() error {
		return &StatusError{Op: "SyncOperation", Stage: StageVPP, Status: StatusDeviceFailed}
	}))
	err := NewSyncer(s, 0).Await(context.Background(), op)
	require.ErrorIs(t, err, StatusDeviceFailed)
	require.NotErrorIs(t, err, ErrSyncTimeout)

	err = NewSyncer(s, 0).Await(context.Background(), NewOperation(StageVPP, 99))
	require.ErrorIs(t, err, StatusNotFound)
}

func TestNewSyncerDefaultTimeout(t *testing.T) {
	require.Equal(t, DefaultSyncTimeout, NewSyncer(newFakeSync(), 0).Timeout())
	require.Equal(t, DefaultSyncTimeout, NewSyncer(newFakeSync(), -time.Second).Timeout())
	require.Equal(t, time.Second, NewSyncer(newFakeSync(), time.Second).Timeout())
}
