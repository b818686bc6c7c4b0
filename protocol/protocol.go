// Package protocol implements the remoting frame format.
//
// A frame carries exactly one Command. The length prefix lets a receiver find frame
// boundaries in the TCP byte stream; the header length separates the JSON header
// from the opaque body.
//
// Frame format (all integers unsigned 32-bit, big-endian):
//
//	0            4             8                 8+H
//	┌────────────┬─────────────┬─────────────────┬───────────────┐
//	│ total_len  │ header_len  │  header (JSON)  │   body ...    │
//	│  4+H+B     │      H      │     H bytes     │   B bytes     │
//	└────────────┴─────────────┴─────────────────┴───────────────┘
//
// total_len counts everything after itself.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"grocketmq/codec"
	"grocketmq/message"
	"io"
	"math"
)

const (
	LengthFieldSize = 4                   // size of total_len and of header_len
	MinFrameSize    = 2 * LengthFieldSize // total_len + header_len, empty header and body

	// DefaultMaxFrameSize mirrors the broker-side frameMaxLength default (16 MiB).
	DefaultMaxFrameSize uint32 = 16 << 20
)

var (
	// ErrMalformedFrame means the length fields are inconsistent with the data.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	// ErrHeaderDecode means the frame is well-delimited but its header cannot be parsed.
	ErrHeaderDecode = errors.New("protocol: cannot decode header")
	// ErrFrameTooLarge is returned when a frame exceeds the size limit.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")
)

var headerCodec = codec.GetCodec(codec.CodecTypeJSON)

// Encode turns cmd into a complete frame. The command should not be reused afterwards:
// the frame aliases nothing, but the body slice handed to SetBody is considered consumed.
func Encode(cmd *message.Command) ([]byte, error) {
	header := cmd.Header()
	headerData, err := headerCodec.Encode(&header)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode header: %w", err)
	}
	body := cmd.Body()

	total := uint64(LengthFieldSize) + uint64(len(headerData)) + uint64(len(body))
	if total > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}

	buf := make([]byte, LengthFieldSize+int(total))
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(headerData)))
	copy(buf[MinFrameSize:], headerData)
	copy(buf[MinFrameSize+len(headerData):], body)
	return buf, nil
}

// Decode parses a single complete frame. It never panics: every length is checked
// against the slice before it is used.
func Decode(frame []byte) (*message.Command, error) {
	if len(frame) < MinFrameSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(frame), MinFrameSize)
	}

	total := binary.BigEndian.Uint32(frame[0:4])
	headerLen := binary.BigEndian.Uint32(frame[4:8])

	if total < LengthFieldSize {
		return nil, fmt.Errorf("%w: total length %d below %d", ErrMalformedFrame, total, LengthFieldSize)
	}
	if uint64(len(frame)) != uint64(LengthFieldSize)+uint64(total) {
		return nil, fmt.Errorf("%w: total length %d does not match %d supplied bytes", ErrMalformedFrame, total, len(frame))
	}
	if headerLen > total-LengthFieldSize {
		return nil, fmt.Errorf("%w: header length %d exceeds frame", ErrMalformedFrame, headerLen)
	}

	headerEnd := MinFrameSize + int(headerLen)
	var header message.Header
	if err := headerCodec.Decode(frame[MinFrameSize:headerEnd], &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderDecode, err)
	}

	var body []byte
	if headerEnd < len(frame) {
		body = bytes.Clone(frame[headerEnd:])
	}
	return message.FromHeader(header, body), nil
}

// WriteCommand encodes cmd and writes the whole frame to w.
// Callers sharing w between goroutines must serialize calls, otherwise frames interleave.
func WriteCommand(w io.Writer, cmd *message.Command) error {
	frame, err := Encode(cmd)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadCommand reads exactly one frame from r. maxFrameSize bounds total_len; zero disables the check.
func ReadCommand(r io.Reader, maxFrameSize uint32) (*message.Command, error) {
	var prefix [LengthFieldSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	total := binary.BigEndian.Uint32(prefix[:])
	if total < LengthFieldSize {
		return nil, fmt.Errorf("%w: total length %d below %d", ErrMalformedFrame, total, LengthFieldSize)
	}
	if maxFrameSize > 0 && total > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, maxFrameSize)
	}

	frame := make([]byte, LengthFieldSize+int(total))
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[LengthFieldSize:]); err != nil {
		return nil, err
	}
	return Decode(frame)
}
