package hwenc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

const (
	defaultRTMPPort   = "1935"
	rtmpVideoChunkID  = 6
	rtmpChunkSize     = 128
	flvCodecAVC       = 7
	flvFrameKey       = 1
	flvFrameInter     = 2
	flvAVCSequenceHdr = 0
	flvAVCNALU        = 1
)

// rtmpMessageWriter is the part of *rtmp.Stream the sink uses.
type rtmpMessageWriter interface {
	Write(chunkStreamID int, timestamp uint32, msg rtmpmsg.Message) error
}

// RTMPSink publishes an H.264 stream as FLV video messages.
// Every Write must carry exactly one access unit.
type RTMPSink struct {
	ctx    context.Context
	stream rtmpMessageWriter
	closer io.Closer
	fps    FrameRate

	mu         sync.Mutex
	frames     uint64
	dropped    uint64
	headerSent bool
}

func newRTMPSink(ctx context.Context, stream rtmpMessageWriter, closer io.Closer, fps FrameRate) *RTMPSink {
	return &RTMPSink{ctx: ctx, stream: stream, closer: closer, fps: fps}
}

// parseRTMPURL splits rtmp://host[:port]/app/stream.
func parseRTMPURL(raw string) (addr, app, name, tcURL string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", "", fmt.Errorf("parse rtmp url: %w", err)
	}
	if u.Scheme != "rtmp" {
		return "", "", "", "", fmt.Errorf("rtmp url %q: unsupported scheme %q", raw, u.Scheme)
	}
	app, name, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok || app == "" || name == "" {
		return "", "", "", "", fmt.Errorf("rtmp url %q: want rtmp://host/app/stream", raw)
	}
	port := u.Port()
	if port == "" {
		port = defaultRTMPPort
	}
	addr = net.JoinHostPort(u.Hostname(), port)
	tcURL = fmt.Sprintf("rtmp://%s/%s", addr, app)
	return addr, app, name, tcURL, nil
}

// DialRTMPSink connects to an RTMP server and starts publishing.
func DialRTMPSink(ctx context.Context, rawURL string, codec CodecID, fps FrameRate) (_ *RTMPSink, _err error) {
	if codec != CodecAVC {
		return nil, fmt.Errorf("rtmp sink for codec %s: %w", codec, StatusUnsupported)
	}
	addr, app, name, tcURL, err := parseRTMPURL(rawURL)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "DialRTMPSink(%s)", tcURL)

	rtmpLog := logrus.New()
	rtmpLog.SetOutput(io.Discard)
	client, err := rtmp.Dial("rtmp", addr, &rtmp.ConnConfig{Logger: rtmpLog})
	if err != nil {
		return nil, fmt.Errorf("dial rtmp %s: %w", addr, err)
	}
	defer func() {
		if _err != nil {
			client.Close()
		}
	}()

	if err := client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: "FMLE/3.0",
			TCURL:    tcURL,
		},
	}); err != nil {
		return nil, fmt.Errorf("rtmp connect %s: %w", tcURL, err)
	}
	stream, err := client.CreateStream(&rtmpmsg.NetConnectionCreateStream{}, rtmpChunkSize)
	if err != nil {
		return nil, fmt.Errorf("rtmp create stream: %w", err)
	}
	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: name,
		PublishingType: "live",
	}); err != nil {
		return nil, fmt.Errorf("rtmp publish %s: %w", name, err)
	}
	logger.Infof(ctx, "publishing to %s/%s", tcURL, name)
	return newRTMPSink(ctx, stream, client, fps), nil
}

func (s *RTMPSink) timestampMs() uint32 {
	if s.fps.Num == 0 {
		return 0
	}
	return uint32(s.frames * 1000 * uint64(s.fps.Den) / uint64(s.fps.Num))
}

func (s *RTMPSink) send(ts uint32, payload []byte) error {
	return s.stream.Write(rtmpVideoChunkID, ts, &rtmpmsg.VideoMessage{
		Payload: bytes.NewReader(payload),
	})
}

// Write publishes one access unit. Frames before the first SPS/PPS are dropped.
func (s *RTMPSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nalus := splitAnnexB(p)
	ts := s.timestampMs()

	if sps, pps := h264ParameterSets(nalus); !s.headerSent && sps != nil && pps != nil {
		cfg, err := avcDecoderConfig(sps, pps)
		if err != nil {
			return 0, err
		}
		hdr := append([]byte{flvFrameKey<<4 | flvCodecAVC, flvAVCSequenceHdr, 0, 0, 0}, cfg...)
		if err := s.send(ts, hdr); err != nil {
			return 0, fmt.Errorf("rtmp sequence header: %w", err)
		}
		s.headerSent = true
	}
	if !s.headerSent {
		s.dropped++
		logger.Warnf(s.ctx, "rtmp: dropping frame without preceding SPS/PPS")
		return len(p), nil
	}

	avcc := annexBToAVCC(nalus)
	if len(avcc) == 0 {
		return len(p), nil
	}
	frameType := byte(flvFrameInter)
	if isKeyframeAU(CodecAVC, nalus) {
		frameType = flvFrameKey
	}
	msg := make([]byte, 0, 5+len(avcc))
	msg = append(msg, frameType<<4|flvCodecAVC, flvAVCNALU, 0, 0, 0)
	msg = append(msg, avcc...)
	if err := s.send(ts, msg); err != nil {
		return 0, fmt.Errorf("rtmp video: %w", err)
	}
	s.frames++
	return len(p), nil
}

// Frames returns the number of video messages sent, not counting the header.
func (s *RTMPSink) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Dropped returns the number of frames dropped before the sequence header.
func (s *RTMPSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close closes the connection.
func (s *RTMPSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
