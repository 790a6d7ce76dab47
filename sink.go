package hwenc

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
)

// OpenSink opens the destination of the encoded stream:
//   - rtp://host:port sends RTP over UDP
//   - rtmp://host[:port]/app/stream publishes to an RTMP server
//   - anything else is a file path, truncated if it exists
func OpenSink(ctx context.Context, dest string, codec CodecID, fps FrameRate) (io.WriteCloser, error) {
	if u, err := url.Parse(dest); err == nil {
		switch u.Scheme {
		case "rtp":
			if u.Host == "" {
				return nil, fmt.Errorf("rtp destination %q: missing host:port", dest)
			}
			return DialRTPSink(ctx, u.Host, codec, fps, RTPSinkOptions{})
		case "rtmp":
			return DialRTMPSink(ctx, dest, codec, fps)
		}
	}
	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}
