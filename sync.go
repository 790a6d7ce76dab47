package hwenc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// DefaultSyncTimeout bounds every wait on a sync point.
const DefaultSyncTimeout = 6 * time.Second

type lease struct {
	pool  *SurfacePool
	index int
}

// Operation is a submitted stage operation awaiting completion.
// It records the surfaces to release once the operation completes.
type Operation struct {
	Stage  StageRole
	Point  SyncPoint
	Output *Bitstream // Encode operations only

	leases   []lease
	consumed bool
	drained  bool // submitted after end of input
}

// NewOperation wraps a sync point returned by ProcessAsync.
func NewOperation(stage StageRole, point SyncPoint) *Operation {
	return &Operation{Stage: stage, Point: point}
}

// Lease attaches surface index of pool to the operation.
func (op *Operation) Lease(pool *SurfacePool, index int) {
	op.leases = append(op.leases, lease{pool: pool, index: index})
}

// Consumed reports whether the operation was already awaited.
func (op *Operation) Consumed() bool { return op.consumed }

func (op *Operation) release() {
	for _, l := range op.leases {
		l.pool.Release(l.index)
	}
	op.leases = nil
}

// Syncer awaits operations with a fixed timeout and no retries.
type Syncer struct {
	coord   SyncCoordinator
	timeout time.Duration
}

// NewSyncer returns a Syncer waiting at most timeout per operation.
// A non-positive timeout selects DefaultSyncTimeout.
func NewSyncer(coord SyncCoordinator, timeout time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	return &Syncer{coord: coord, timeout: timeout}
}

// Timeout returns the per-wait bound.
func (s *Syncer) Timeout() time.Duration { return s.timeout }

// Await blocks until op completes or the timeout expires, then releases the
// surfaces leased to op. An operation can be awaited once.
func (s *Syncer) Await(ctx context.Context, op *Operation) (_err error) {
	if op.consumed {
		return fmt.Errorf("%s sync point %#x: %w", op.Stage, op.Point, ErrSyncPointConsumed)
	}
	op.consumed = true
	defer op.release()

	logger.Tracef(ctx, "Await(%s, %#x)", op.Stage, op.Point)
	defer func() { logger.Tracef(ctx, "/Await(%s, %#x): %v", op.Stage, op.Point, _err) }()

	err := s.coord.Wait(ctx, op.Point, s.timeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSyncTimeout),
		errors.Is(err, StatusWrnInExecution),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s sync point %#x after %s: %w", op.Stage, op.Point, s.timeout,
			errors.Join(ErrSyncTimeout, &StatusError{Op: "SyncOperation", Stage: op.Stage, Status: StatusAborted}))
	case IsWarning(err):
		return err
	default:
		return fmt.Errorf("%s sync point %#x: %w", op.Stage, op.Point, err)
	}
}
