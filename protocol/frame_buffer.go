package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameBuffer reassembles frames from arbitrary read chunks.
//
// TCP gives no message boundaries: one read may hold half a frame, or the tail of
// one frame followed by several more. Write appends whatever was read; Next hands
// out complete frames one at a time and keeps the remainder for the next call.
//
// A FrameBuffer is not safe for concurrent use; it belongs to the connection reader.
type FrameBuffer struct {
	buf          []byte
	maxFrameSize uint32
}

// NewFrameBuffer returns an empty buffer. maxFrameSize bounds total_len; zero disables the check.
func NewFrameBuffer(maxFrameSize uint32) *FrameBuffer {
	return &FrameBuffer{maxFrameSize: maxFrameSize}
}

// Write appends p. p may be reused by the caller after Write returns.
func (b *FrameBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Buffered reports how many bytes are waiting.
func (b *FrameBuffer) Buffered() int {
	return len(b.buf)
}

// Next removes and returns the first complete frame. ok is false when more bytes are needed.
// An error means the length prefix is unusable and the stream can no longer be trusted.
func (b *FrameBuffer) Next() (frame []byte, ok bool, err error) {
	if len(b.buf) < MinFrameSize {
		return nil, false, nil
	}

	total := binary.BigEndian.Uint32(b.buf[0:4])
	if total < LengthFieldSize {
		return nil, false, fmt.Errorf("%w: total length %d below %d", ErrMalformedFrame, total, LengthFieldSize)
	}
	if b.maxFrameSize > 0 && total > b.maxFrameSize {
		return nil, false, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, b.maxFrameSize)
	}

	size := uint64(LengthFieldSize) + uint64(total)
	if uint64(len(b.buf)) < size {
		return nil, false, nil
	}

	frame = make([]byte, size)
	copy(frame, b.buf[:size])
	n := copy(b.buf, b.buf[size:])
	b.buf = b.buf[:n]
	return frame, true, nil
}
