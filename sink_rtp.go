package hwenc

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

const (
	rtpClockRate          = 90000
	defaultRTPMTU         = 1200
	defaultRTPPayloadType = 96
)

// RTPSinkOptions configures an RTPSink. Zero values select defaults.
type RTPSinkOptions struct {
	MTU         uint16
	PayloadType uint8
	SSRC        uint32 // random when zero
}

// RTPSink packetizes each written access unit into RTP packets.
// Every Write must carry exactly one access unit, as Bitstream.Flush does.
type RTPSink struct {
	w          io.Writer
	closer     io.Closer
	packetizer rtp.Packetizer
	samples    uint32

	mu      sync.Mutex
	packets uint64
	buf     []byte
}

// NewRTPSink writes marshaled packets to w, one Write per packet.
func NewRTPSink(w io.Writer, codec CodecID, fps FrameRate, opts RTPSinkOptions) (*RTPSink, error) {
	var payloader rtp.Payloader
	switch codec {
	case CodecAVC:
		payloader = &codecs.H264Payloader{}
	case CodecHEVC:
		payloader = &codecs.H265Payloader{}
	default:
		return nil, fmt.Errorf("rtp sink for codec %s: %w", codec, StatusUnsupported)
	}
	if fps.Num == 0 || fps.Den == 0 {
		return nil, fmt.Errorf("rtp sink frame rate %s: %w", fps, StatusInvalidVideoParam)
	}
	if opts.MTU == 0 {
		opts.MTU = defaultRTPMTU
	}
	if opts.PayloadType == 0 {
		opts.PayloadType = defaultRTPPayloadType
	}
	if opts.SSRC == 0 {
		opts.SSRC = rand.Uint32()
	}

	s := &RTPSink{
		w:       w,
		samples: fps.Duration90k(),
		packetizer: rtp.NewPacketizer(
			opts.MTU,
			opts.PayloadType,
			opts.SSRC,
			payloader,
			rtp.NewRandomSequencer(),
			rtpClockRate,
		),
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// DialRTPSink sends RTP over UDP to addr.
func DialRTPSink(ctx context.Context, addr string, codec CodecID, fps FrameRate, opts RTPSinkOptions) (*RTPSink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial rtp %s: %w", addr, err)
	}
	s, err := NewRTPSink(conn, codec, fps, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Write packetizes one access unit. It returns len(p) once every packet is sent.
func (s *RTPSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pkt := range s.packetizer.Packetize(p, s.samples) {
		n := pkt.MarshalSize()
		if cap(s.buf) < n {
			s.buf = make([]byte, n)
		}
		buf := s.buf[:n]
		if _, err := pkt.MarshalTo(buf); err != nil {
			return 0, fmt.Errorf("marshal rtp packet: %w", err)
		}
		if _, err := s.w.Write(buf); err != nil {
			return 0, fmt.Errorf("send rtp packet: %w", err)
		}
		s.packets++
	}
	return len(p), nil
}

// Packets returns the number of packets sent.
func (s *RTPSink) Packets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

// Close closes the underlying writer when it is a Closer.
func (s *RTPSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
