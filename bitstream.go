package hwenc

import (
	"errors"
	"fmt"
	"io"
)

// Bitstream is a fixed-capacity buffer the encode stage writes into.
// Valid data is Buffer()[DataOffset : DataOffset+DataLength].
type Bitstream struct {
	data []byte

	DataOffset int
	DataLength int

	TimeStamp uint64    // 90 kHz presentation time of the last frame written
	FrameType FrameType // type of the last frame written
}

// NewBitstream allocates a bitstream of capacity bytes.
func NewBitstream(capacity int) *Bitstream {
	return &Bitstream{data: make([]byte, capacity)}
}

// BitstreamCapacity returns the buffer size for an encoder reporting
// bufferSizeKB, falling back to one uncompressed frame when unknown.
func BitstreamCapacity(bufferSizeKB int, geom FrameGeometry) int {
	if bufferSizeKB > 0 {
		return 1000 * bufferSizeKB
	}
	return geom.Width * geom.Height * 3 / 2
}

// Cap returns the buffer capacity.
func (b *Bitstream) Cap() int { return len(b.data) }

// Buffer returns the whole backing buffer.
func (b *Bitstream) Buffer() []byte { return b.data }

// Bytes returns the valid data.
func (b *Bitstream) Bytes() []byte {
	return b.data[b.DataOffset : b.DataOffset+b.DataLength]
}

// Flush writes the valid data to w. A short write fails with ErrShortWrite
// and leaves DataLength unchanged; partial writes are not resumed.
// On success DataLength is reset to 0 and DataOffset is kept.
func (b *Bitstream) Flush(w io.Writer) (int, error) {
	if b.DataLength == 0 {
		return 0, nil
	}
	if b.DataOffset < 0 || b.DataLength < 0 || b.DataOffset+b.DataLength > len(b.data) {
		return 0, fmt.Errorf("bitstream window %d+%d exceeds capacity %d: %w",
			b.DataOffset, b.DataLength, len(b.data), StatusInvalidData)
	}

	n, err := w.Write(b.Bytes())
	if n != b.DataLength {
		if err != nil {
			return n, fmt.Errorf("wrote %d of %d bytes: %w", n, b.DataLength, errors.Join(ErrShortWrite, err))
		}
		return n, fmt.Errorf("wrote %d of %d bytes: %w", n, b.DataLength, ErrShortWrite)
	}
	if err != nil {
		return n, fmt.Errorf("flush bitstream: %w", err)
	}
	b.DataLength = 0
	return n, nil
}

func (*Bitstream) stageOutput() {}
