package hwenc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// TrackSink writes each access unit as a sample to a WebRTC track.
type TrackSink struct {
	track    *webrtc.TrackLocalStaticSample
	duration time.Duration
	samples  atomic.Uint64
}

// NewTrackSink creates a local video track for codec. Add Track() to a
// PeerConnection before the driver runs.
func NewTrackSink(codec CodecID, fps FrameRate, id, streamID string) (*TrackSink, error) {
	var mime string
	switch codec {
	case CodecAVC:
		mime = webrtc.MimeTypeH264
	case CodecHEVC:
		mime = webrtc.MimeTypeH265
	default:
		return nil, fmt.Errorf("track sink for codec %s: %w", codec, StatusUnsupported)
	}
	if fps.Num == 0 || fps.Den == 0 {
		return nil, fmt.Errorf("track sink frame rate %s: %w", fps, StatusInvalidVideoParam)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime, ClockRate: rtpClockRate},
		id, streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	return &TrackSink{
		track:    track,
		duration: time.Duration(fps.Den) * time.Second / time.Duration(fps.Num),
	}, nil
}

// Track returns the underlying track.
func (s *TrackSink) Track() *webrtc.TrackLocalStaticSample { return s.track }

// Samples returns the number of samples written.
func (s *TrackSink) Samples() uint64 { return s.samples.Load() }

// Write sends p as one sample. The track copies the data before returning.
func (s *TrackSink) Write(p []byte) (int, error) {
	if err := s.track.WriteSample(media.Sample{Data: p, Duration: s.duration}); err != nil {
		return 0, fmt.Errorf("write sample: %w", err)
	}
	s.samples.Add(1)
	return len(p), nil
}

// Close is a no-op; the track's lifetime belongs to its PeerConnection.
func (s *TrackSink) Close() error { return nil }
