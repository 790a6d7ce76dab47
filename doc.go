// Package hwenc drives a two-stage hardware media pipeline: a video
// processing stage (scale/format convert) feeding a video encoder, frame by
// frame, from raw planar 4:2:0 input to an elementary bitstream.
//
// Key pieces include:
//   - SurfacePool/FrameSurface: fixed pools of frame buffers with lock state
//   - StageEngine: the Query/QueryIOSurf/Init/ProcessAsync/Close contract of a
//     vendor acceleration library, with a libmfx/oneVPL adapter
//   - Syncer: bounded waits on the sync points returned by ProcessAsync
//   - Bitstream: capacity-bounded encoder output flushed to a sink
//   - Driver: the control loop, including end-of-stream draining
//   - RawFrameSource and PatternSource: raw file input and synthetic frames
//   - RTP, RTMP and WebRTC track sinks for the encoded stream
//
// # Architecture
//
//	FrameSource -> [VPP in pool] -> VPP -> [VPP out pool] -> CopySurface
//	  -> [Encode in pool] -> Encode -> Bitstream -> io.Writer
//
// The driver never overlaps two VPP operations. The encode stage may keep up
// to AsyncDepth operations in flight; they are awaited and flushed in
// submission order.
//
// # Native Libraries
//
// The MFX adapter loads libvpl.so.2, libmfx.so.1 or libmfxhw64.so.1 with
// purego (no cgo). Pass MFXConfig.LibraryPath to override the search order.
//
// # Build Tags
//
// Optional tags disable features:
//   - nomfx: disable the libmfx adapter (fakes and custom engines still work)
package hwenc
