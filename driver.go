package hwenc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"
)

// DriverConfig holds the collaborators of a Driver.
type DriverConfig struct {
	Params *PipelineParams // Proposed parameters, corrected by Query
	VPP    StageEngine
	Encode StageEngine
	Sync   SyncCoordinator
	Source FrameSource
	Sink   io.Writer
}

type driverOptions struct {
	syncTimeout time.Duration
	drainOnEOS  bool
}

// DriverOption tunes a Driver.
type DriverOption func(*driverOptions)

// WithSyncTimeout bounds every wait on a sync point (default 6s).
func WithSyncTimeout(d time.Duration) DriverOption {
	return func(o *driverOptions) { o.syncTimeout = d }
}

// WithDrainOnEOS controls whether frames buffered inside the stages are
// drained at end of input (default true).
func WithDrainOnEOS(v bool) DriverOption {
	return func(o *driverOptions) { o.drainOnEOS = v }
}

// Driver runs frames through the VPP stage, copies them into the encode
// stage's surfaces and flushes the encoded bitstream to the sink.
//
// All methods except Stats, State and RequestKeyframe must be called from a
// single goroutine.
type Driver struct {
	cfg    DriverConfig
	opts   driverOptions
	params *PipelineParams
	syncer *Syncer

	vppIn  *SurfacePool
	vppOut *SurfacePool
	encIn  *SurfacePool

	bitstreamCap   int
	freeBitstreams []*Bitstream
	asyncDepth     int
	frameDuration  uint64

	state             atomic.Int32
	keyframeRequested atomic.Bool

	locker  xsync.Mutex
	pending []*Operation // encode operations in submission order
	stats   DriverStats

	closeOnce sync.Once
	closeErr  error
}

// NewDriver creates a driver. Stages are initialized by Init or the first Run.
func NewDriver(cfg DriverConfig, opts ...DriverOption) (*Driver, error) {
	switch {
	case cfg.Params == nil:
		return nil, fmt.Errorf("pipeline params are required")
	case cfg.VPP == nil:
		return nil, fmt.Errorf("vpp stage is required")
	case cfg.Encode == nil:
		return nil, fmt.Errorf("encode stage is required")
	case cfg.Sync == nil:
		return nil, fmt.Errorf("sync coordinator is required")
	case cfg.Source == nil:
		return nil, fmt.Errorf("frame source is required")
	case cfg.Sink == nil:
		return nil, fmt.Errorf("sink is required")
	}

	o := driverOptions{
		syncTimeout: DefaultSyncTimeout,
		drainOnEOS:  true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Driver{
		cfg:    cfg,
		opts:   o,
		syncer: NewSyncer(cfg.Sync, o.syncTimeout),
	}
	d.state.Store(int32(DriverStateIdle))
	return d, nil
}

// State returns the current driver state.
func (d *Driver) State() DriverState {
	return DriverState(d.state.Load())
}

func (d *Driver) setState(s DriverState) {
	d.state.Store(int32(s))
}

// Stats returns driver statistics. Safe for concurrent use.
func (d *Driver) Stats() DriverStats {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &d.locker, func() DriverStats {
		return d.stats
	})
}

func (d *Driver) updateStats(ctx context.Context, fn func(s *DriverStats)) {
	d.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		fn(&d.stats)
	})
}

// Pending returns the number of encode operations in flight.
func (d *Driver) Pending() int {
	return xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &d.locker, func() int {
		return len(d.pending)
	})
}

// Params returns the parameters negotiated by Init, or nil before Init.
func (d *Driver) Params() *PipelineParams {
	return d.params.Clone()
}

// RequestKeyframe makes the next encode submission an IDR frame.
func (d *Driver) RequestKeyframe() {
	d.keyframeRequested.Store(true)
}

// Init queries both stages, sizes the surface pools from QueryIOSurf and
// initializes the stages.
func (d *Driver) Init(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Init")
	defer func() { logger.Debugf(ctx, "/Init: %v", _err) }()

	if st := d.State(); st != DriverStateIdle {
		return fmt.Errorf("init in state %s: %w", st, StatusUndefinedBehavior)
	}

	vctx, ectx := withStage(ctx, StageVPP), withStage(ctx, StageEncode)
	p := d.cfg.Params.Clone()

	q, err := d.cfg.VPP.Query(vctx, p)
	if err := d.checkSetup(vctx, err); err != nil {
		return err
	}
	if q != nil {
		p.VPP = q.VPP
	}
	q, err = d.cfg.Encode.Query(ectx, p)
	if err := d.checkSetup(ectx, err); err != nil {
		return err
	}
	if q != nil {
		p.Encode = q.Encode
	}
	if err := p.Validate(); err != nil {
		return err
	}

	vreq, err := d.cfg.VPP.QueryIOSurf(vctx, p)
	if err := d.checkSetup(vctx, err); err != nil {
		return err
	}
	ereq, err := d.cfg.Encode.QueryIOSurf(ectx, p)
	if err := d.checkSetup(ectx, err); err != nil {
		return err
	}

	d.asyncDepth = max(int(p.Encode.AsyncDepth), 1)
	if d.vppIn, err = NewSurfacePool(max(vreq.In.Suggested, 1), p.VPP.In); err != nil {
		return fmt.Errorf("vpp input pool: %w", err)
	}
	if d.vppOut, err = NewSurfacePool(max(vreq.Out.Suggested, 1), p.VPP.Out); err != nil {
		return fmt.Errorf("vpp output pool: %w", err)
	}
	if d.encIn, err = NewSurfacePool(max(ereq.In.Suggested, d.asyncDepth), p.Encode.Frame); err != nil {
		return fmt.Errorf("encode input pool: %w", err)
	}
	if r, ok := d.cfg.VPP.(SurfaceLockReporter); ok {
		d.vppIn.SetLockReporter(r)
		d.vppOut.SetLockReporter(r)
	}
	if r, ok := d.cfg.Encode.(SurfaceLockReporter); ok {
		d.encIn.SetLockReporter(r)
	}
	logPool(vctx, "vpp input", d.vppIn)
	logPool(vctx, "vpp output", d.vppOut)
	logPool(ectx, "encode input", d.encIn)

	if err := d.checkSetup(vctx, d.cfg.VPP.Init(vctx, p)); err != nil {
		return err
	}
	if err := d.checkSetup(ectx, d.cfg.Encode.Init(ectx, p)); err != nil {
		return err
	}

	var bufferKB int
	if info, ok := d.cfg.Encode.(EncoderInfo); ok {
		bufferKB = info.BufferSizeKB()
	}
	d.bitstreamCap = BitstreamCapacity(bufferKB, p.Encode.Frame)
	d.frameDuration = uint64(p.VPP.In.FrameRate.Duration90k())
	d.params = p
	logParams(ctx, p)
	logger.Debugf(ectx, "bitstream buffer %s", humanize.Bytes(uint64(d.bitstreamCap)))

	d.setState(DriverStateRunning)
	return nil
}

// checkSetup logs warnings from a setup call and passes errors through.
func (d *Driver) checkSetup(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if IsWarning(err) {
		logger.Warnf(ctx, "%v", err)
		d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
		return nil
	}
	return err
}

// Run processes the source until end of input, drains the stages and
// closes them. Stages are closed whichever way Run returns.
func (d *Driver) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()
	defer func() {
		if err := d.Close(ctx); err != nil {
			_err = errors.Join(_err, err)
		}
	}()

	if d.State() == DriverStateIdle {
		if err := d.Init(ctx); err != nil {
			return err
		}
	}
	if st := d.State(); st != DriverStateRunning {
		return fmt.Errorf("run in state %s: %w", st, ErrPipelineClosed)
	}

	if err := d.loop(ctx); err != nil {
		return err
	}

	d.setState(DriverStateDraining)
	if d.opts.drainOnEOS {
		if err := d.drain(ctx); err != nil {
			return err
		}
	}
	if err := d.flushPending(ctx); err != nil {
		return err
	}
	logger.Infof(ctx, "end of stream: %s", d.Stats())
	return nil
}

// loop reads and processes frames until the source reports ErrMoreData.
func (d *Driver) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx, err := d.vppIn.Acquire()
		if err != nil {
			return fmt.Errorf("vpp input: %w", err)
		}
		in := d.vppIn.Surface(idx)

		if err := d.cfg.Source.ReadFrame(ctx, in); err != nil {
			d.vppIn.Release(idx)
			if errors.Is(err, ErrMoreData) {
				logger.Debugf(ctx, "end of input: %v", err)
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var frame uint64
		d.updateStats(ctx, func(s *DriverStats) {
			frame = s.FramesRead
			s.FramesRead++
		})
		in.TimeStamp = frame * d.frameDuration

		if err := d.processVPP(ctx, in, idx); err != nil && !errors.Is(err, ErrMoreData) {
			return err
		}
	}
}

// drain feeds nil inputs to VPP and then to Encode until each reports
// ErrMoreData, pushing every frame produced through the encode path.
func (d *Driver) drain(ctx context.Context) error {
	logger.Debugf(ctx, "draining")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.processVPP(ctx, nil, -1)
		if errors.Is(err, ErrMoreData) {
			break
		}
		if err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		buffered, err := d.processEncode(ctx, nil, -1)
		if err != nil {
			return err
		}
		if buffered {
			return nil
		}
	}
}

// processVPP submits in (nil to drain) to the VPP stage, awaits it and hands
// the result to the encode stage. ErrMoreData means VPP needs more input.
func (d *Driver) processVPP(ctx context.Context, in *FrameSurface, inIdx int) error {
	vctx := withStage(ctx, StageVPP)

	outIdx, err := d.vppOut.Acquire()
	if err != nil {
		d.vppIn.Release(inIdx)
		return fmt.Errorf("vpp output: %w", err)
	}
	out := d.vppOut.Surface(outIdx)

	point, err := d.cfg.VPP.ProcessAsync(vctx, nil, in, out)
	if err != nil {
		switch {
		case errors.Is(err, ErrMoreData):
			d.vppIn.Release(inIdx)
			d.vppOut.Release(outIdx)
			return err
		case IsWarning(err):
			logger.Warnf(vctx, "%v", err)
			d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
		default:
			d.vppIn.Release(inIdx)
			d.vppOut.Release(outIdx)
			return err
		}
	}
	if point == 0 {
		d.vppIn.Release(inIdx)
		d.vppOut.Release(outIdx)
		if in == nil {
			// Nothing left to drain.
			return ErrMoreData
		}
		logger.Warnf(vctx, "frame %d accepted without a sync point; dropped", in.TimeStamp/max(d.frameDuration, 1))
		d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
		return nil
	}

	op := NewOperation(StageVPP, point)
	if in != nil {
		op.Lease(d.vppIn, inIdx)
		out.TimeStamp = in.TimeStamp
	}
	if err := d.syncer.Await(vctx, op); err != nil {
		if !IsWarning(err) {
			d.vppOut.Release(outIdx)
			return err
		}
		logger.Warnf(vctx, "%v", err)
	}
	d.updateStats(ctx, func(s *DriverStats) { s.VPPFrames++ })

	encIdx, err := d.encIn.Acquire()
	if err != nil {
		d.vppOut.Release(outIdx)
		return fmt.Errorf("encode input: %w", err)
	}
	enc := d.encIn.Surface(encIdx)
	err = CopySurface(out, enc)
	d.vppOut.Release(outIdx)
	if err != nil {
		d.encIn.Release(encIdx)
		return err
	}

	_, err = d.processEncode(ctx, enc, encIdx)
	return err
}

// processEncode submits in (nil to drain) to the encode stage. buffered is
// true when the encoder returned ErrMoreData.
func (d *Driver) processEncode(ctx context.Context, in *FrameSurface, inIdx int) (buffered bool, _ error) {
	ectx := withStage(ctx, StageEncode)
	bs := d.takeBitstream()

	var ctrl *EncodeCtrl
	if in != nil && d.keyframeRequested.Swap(false) {
		ctrl = &EncodeCtrl{FrameType: FrameTypeI | FrameTypeRef | FrameTypeIDR}
	}

	point, err := d.cfg.Encode.ProcessAsync(ectx, ctrl, in, bs)
	if err != nil {
		switch {
		case errors.Is(err, ErrMoreData):
			d.encIn.Release(inIdx)
			d.putBitstream(bs)
			return true, nil
		case errors.Is(err, StatusNotEnoughBuffer):
			logger.Warnf(ectx, "bitstream buffer of %s too small: %v", humanize.Bytes(uint64(bs.Cap())), err)
			d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
			if ctrl != nil {
				d.keyframeRequested.Store(true)
			}
			d.encIn.Release(inIdx)
			d.putBitstream(bs)
			return false, nil
		case IsWarning(err):
			// A warning with a sync point still carries output; it is awaited and flushed.
			logger.Warnf(ectx, "%v", err)
			d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
		default:
			d.encIn.Release(inIdx)
			d.putBitstream(bs)
			return false, err
		}
	}
	if point == 0 {
		d.encIn.Release(inIdx)
		d.putBitstream(bs)
		if in == nil {
			// Nothing left to drain.
			return true, nil
		}
		logger.Warnf(ectx, "frame accepted without a sync point; dropped")
		d.updateStats(ctx, func(s *DriverStats) { s.Warnings++ })
		return false, nil
	}

	op := NewOperation(StageEncode, point)
	op.Output = bs
	op.drained = d.State() == DriverStateDraining
	if in != nil {
		op.Lease(d.encIn, inIdx)
	}
	var pending int
	d.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		d.pending = append(d.pending, op)
		pending = len(d.pending)
	})
	if pending < d.asyncDepth {
		return false, nil
	}
	return false, d.completeOldest(ctx)
}

// completeOldest awaits the oldest encode operation and flushes its output.
func (d *Driver) completeOldest(ctx context.Context) error {
	var op *Operation
	d.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if len(d.pending) == 0 {
			return
		}
		op = d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
	})
	if op == nil {
		return nil
	}
	defer d.putBitstream(op.Output)

	ectx := withStage(ctx, StageEncode)
	if err := d.syncer.Await(ectx, op); err != nil {
		if !IsWarning(err) {
			return err
		}
		logger.Warnf(ectx, "%v", err)
	}

	bs := op.Output
	keyframe := bs.FrameType.IsKeyframe()
	n, err := bs.Flush(d.cfg.Sink)
	var encoded uint64
	d.updateStats(ctx, func(s *DriverStats) {
		s.BytesWritten += uint64(n)
		if err != nil {
			return
		}
		s.FramesEncoded++
		if op.drained {
			s.DrainedFrames++
		}
		if keyframe {
			s.Keyframes++
		}
		encoded = s.FramesEncoded
	})
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	logger.Infof(ctx, "frame %d: %s", encoded-1, humanize.Bytes(uint64(n)))
	return nil
}

// flushPending completes all in-flight encode operations in order.
func (d *Driver) flushPending(ctx context.Context) error {
	for d.Pending() > 0 {
		if err := d.completeOldest(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) takeBitstream() *Bitstream {
	if n := len(d.freeBitstreams); n > 0 {
		bs := d.freeBitstreams[n-1]
		d.freeBitstreams = d.freeBitstreams[:n-1]
		return bs
	}
	return NewBitstream(d.bitstreamCap)
}

func (d *Driver) putBitstream(bs *Bitstream) {
	if bs.DataLength == 0 {
		bs.DataOffset = 0
	}
	d.freeBitstreams = append(d.freeBitstreams, bs)
}

// Close closes the encode stage and then the VPP stage, exactly once.
func (d *Driver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		prev := DriverState(d.state.Swap(int32(DriverStateClosed)))
		logger.Debugf(ctx, "closing from state %s", prev)

		var errs []error
		if err := d.cfg.Encode.Close(withStage(ctx, StageEncode)); err != nil {
			errs = append(errs, fmt.Errorf("close encode: %w", err))
		}
		if err := d.cfg.VPP.Close(withStage(ctx, StageVPP)); err != nil {
			errs = append(errs, fmt.Errorf("close vpp: %w", err))
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
