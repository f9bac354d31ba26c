// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package frame

import (
	"fmt"

	"github.com/creachadair/logbuf/buffer"
)

// Type identifies the structure of the body of a frame.
type Type uint16

const (
	PAD           Type = 0x00   // Padding; the body is filler
	DATA          Type = 0x01   // Application data
	NAK           Type = 0x02   // Negative acknowledgement
	StatusMessage Type = 0x03   // Receiver status
	ERROR         Type = 0x04   // Error report
	SETUP         Type = 0x05   // Stream setup
	EXT           Type = 0xFFFF // Extension header follows
)

func (t Type) String() string {
	switch t {
	case PAD:
		return "PAD"
	case DATA:
		return "DATA"
	case NAK:
		return "NAK"
	case StatusMessage:
		return "STATUS_MESSAGE"
	case ERROR:
		return "ERROR"
	case SETUP:
		return "SETUP"
	case EXT:
		return "EXT"
	default:
		return fmt.Sprintf("TYPE:%d", uint16(t))
	}
}

// CurrentVersion is the protocol version written into new headers.
const CurrentVersion = 0

// Flags for data frames.
const (
	BeginFlag = 0x80 // first fragment of a message
	EndFlag   = 0x40 // last fragment of a message

	UnfragmentedFlags = BeginFlag | EndFlag
)

// A Header is a flyweight over the common header of a frame in a buffer. It
// does not copy the header; its methods read and write the underlying memory
// directly. The zero value is not positioned over any frame.
//
// A Header is not safe for concurrent use; each reader should own its own.
type Header struct {
	buf buffer.Buffer
	off int32
}

// NewHeader returns a header positioned over the frame at off in buf.
func NewHeader(buf buffer.Buffer, off int32) *Header { return &Header{buf: buf, off: off} }

// Wrap positions h over the frame at off in buf.
func (h *Header) Wrap(buf buffer.Buffer, off int32) { h.buf, h.off = buf, off }

// Buffer returns the buffer containing the frame.
func (h *Header) Buffer() buffer.Buffer { return h.buf }

// Offset returns the offset of the frame within its buffer.
func (h *Header) Offset() int32 { return h.off }

// FrameLength returns the length field of the frame (plain read).
func (h *Header) FrameLength() int32 { return h.buf.Int32(int(h.off) + LengthOffset) }

// SetFrameLength sets the length field of the frame (plain write). Use
// [LengthOrdered] to publish a frame.
func (h *Header) SetFrameLength(n int32) { h.buf.PutInt32(int(h.off)+LengthOffset, n) }

// Version returns the protocol version of the frame.
func (h *Header) Version() uint8 { return h.buf.Uint8(int(h.off) + VersionOffset) }

// SetVersion sets the protocol version of the frame.
func (h *Header) SetVersion(v uint8) { h.buf.PutUint8(int(h.off)+VersionOffset, v) }

// Flags returns the flags of the frame.
func (h *Header) Flags() uint8 { return h.buf.Uint8(int(h.off) + FlagsOffset) }

// SetFlags sets the flags of the frame.
func (h *Header) SetFlags(f uint8) { h.buf.PutUint8(int(h.off)+FlagsOffset, f) }

// Type returns the type of the frame.
func (h *Header) Type() Type { return TypeOf(h.buf, h.off) }

// SetType sets the type of the frame.
func (h *Header) SetType(t Type) { SetType(h.buf, h.off, t) }

// String returns a human-friendly rendering of the header.
func (h *Header) String() string {
	return fmt.Sprintf("Frame(@%d, len=%d, v%d, flags=%#02x, %v)",
		h.off, h.FrameLength(), h.Version(), h.Flags(), h.Type())
}

// DefaultHeader returns an encoded common header with the current version,
// the given flags and type, and a zero length.
func DefaultHeader(flags uint8, t Type) []byte {
	h := Header{buf: buffer.Alloc(HeaderLength)}
	h.SetVersion(CurrentVersion)
	h.SetFlags(flags)
	h.SetType(t)
	return h.buf.Bytes()
}
