// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package frame defines the layout of frames stored in a term buffer.
//
// Every frame begins with an 8-byte common header:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Frame Length                          |
//	+---------------+---------------+-------------------------------+
//	|    Version    |     Flags     |             Type              |
//	+---------------+---------------+-------------------------------+
//	|                       Depends on Type ...                     |
//
// The frame length is the completion signal for the frame. A length of zero
// or less means the frame has not been written yet; a positive length means
// the frame is complete and may be read. Writers publish the length with an
// ordered store after writing the rest of the frame, and readers observe it
// with a volatile load before reading the rest of the frame.
//
// Frames begin at offsets that are multiples of [Alignment]. The stored length
// is the unaligned length of the frame; the next frame begins at the aligned
// end of the current one.
package frame

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/creachadair/logbuf/buffer"
)

// Alignment is the alignment in bytes of the start of each frame in a term.
const Alignment = 32

// Offsets and sizes of the fields of the common header.
const (
	LengthOffset  = 0
	VersionOffset = 4
	FlagsOffset   = 5
	TypeOffset    = 6

	HeaderLength = 8
)

// ErrAlignment is reported for an alignment that is not a positive power of
// two.
var ErrAlignment = errors.New("alignment is not a power of two")

// LengthVolatile returns the length of the frame at off using a volatile
// load. A result of zero or less means the frame is not yet complete.
func LengthVolatile(buf buffer.Buffer, off int32) int32 {
	return buf.LoadInt32(int(off) + LengthOffset)
}

// LengthOrdered sets the length of the frame at off using an ordered store.
// All writes made to the frame before the call are visible to any reader
// that observes the new length.
func LengthOrdered(buf buffer.Buffer, off, length int32) {
	buf.StoreInt32(int(off)+LengthOffset, length)
}

// TypeOf returns the type of the frame at off.
func TypeOf(buf buffer.Buffer, off int32) Type {
	return Type(buf.Uint16(int(off) + TypeOffset))
}

// SetType sets the type of the frame at off.
func SetType(buf buffer.Buffer, off int32, t Type) {
	buf.PutUint16(int(off)+TypeOffset, uint16(t))
}

// IsPadding reports whether the frame at off is a padding frame.
func IsPadding(buf buffer.Buffer, off int32) bool { return TypeOf(buf, off) == PAD }

// Align rounds v up to the next multiple of alignment, which must be a power
// of two.
func Align(v, alignment int32) int32 { return (v + alignment - 1) &^ (alignment - 1) }

// CheckAlignment reports an error if a is not a positive power of two.
func CheckAlignment(a int) error {
	if a <= 0 || bits.OnesCount(uint(a)) != 1 {
		return fmt.Errorf("invalid alignment %d: %w", a, ErrAlignment)
	}
	return nil
}

// MaxMessageLength reports the length of the largest frame, including its
// header, that may be appended to a term of the given length.
func MaxMessageLength(termLength int) int { return termLength / 8 }
