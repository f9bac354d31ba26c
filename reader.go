// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"fmt"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// A FragmentHandler processes the payload of a frame read from a term. The
// payload occupies length bytes of buf starting at offset; hdr is positioned
// over the header of the frame and is valid only until the handler returns.
//
// If the handler reports an error or panics, the read pass stops and the
// failure is passed to the ErrorHandler given to [Read].
type FragmentHandler func(buf buffer.Buffer, offset, length int32, hdr *frame.Header) error

// An ErrorHandler is notified of failures of a FragmentHandler.
type ErrorHandler func(error)

// An AppendHandler is notified of each complete frame in a term, including
// its header.
type AppendHandler func(msg buffer.Buffer)

// An Outcome packs the offset reached by a read pass and the number of
// fragments it delivered into a single value.
type Outcome int64

// PackOutcome packs an offset and a fragment count into an Outcome.
func PackOutcome(offset, fragments int32) Outcome {
	return Outcome(int64(offset)<<32 | int64(uint32(fragments)))
}

// Offset reports the term offset at which the next read pass should begin.
func (o Outcome) Offset() int32 { return int32(uint64(o) >> 32) }

// Fragments reports the number of fragments delivered by the read pass.
func (o Outcome) Fragments() int32 { return int32(o) }

func (o Outcome) String() string {
	return fmt.Sprintf("Outcome(offset=%d, fragments=%d)", o.Offset(), o.Fragments())
}

// Read delivers complete frames from term, starting at offset, to handler.
// Padding frames are skipped without being delivered. Read stops at the first
// incomplete frame, at the end of the term, or when fragmentLimit fragments
// have been delivered. A fragmentLimit of zero or less still permits one
// frame to be read.
//
// The header hdr, if not nil, is positioned over each frame before the
// handler is called. Each concurrent reader must use its own header.
//
// If handler reports an error or panics, Read passes the failure to onError
// (if it is not nil) and stops. The outcome reports the progress made,
// including the offset past the failed frame, which is not counted as
// delivered.
func Read(term buffer.Buffer, offset int32, handler FragmentHandler, fragmentLimit int, hdr *frame.Header, onError ErrorHandler) Outcome {
	var fragments int
	capacity := int32(term.Len())

	for {
		frameLength := frame.LengthVolatile(term, offset)
		if frameLength <= 0 {
			break
		}
		frameOffset := offset
		offset += frame.Align(frameLength, frame.Alignment)

		if !frame.IsPadding(term, frameOffset) {
			if hdr != nil {
				hdr.Wrap(term, frameOffset)
			}
			if err := dispatch(handler, term, frameOffset, frameLength, hdr); err != nil {
				logMetrics.handlerErrors.Add(1)
				if onError != nil {
					onError(err)
				}
				break
			}
			fragments++
		}
		if fragments >= fragmentLimit || offset >= capacity {
			break
		}
	}

	if fragments > 0 {
		logMetrics.fragmentsRead.Add(int64(fragments))
	}
	return PackOutcome(offset, int32(fragments))
}

// dispatch calls handler for the frame at off, converting a panic into an
// error.
func dispatch(handler FragmentHandler, term buffer.Buffer, off, length int32, hdr *frame.Header) (err error) {
	if handler == nil {
		return nil
	}
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("fragment handler panicked at offset %d: %v", off, x)
		}
	}()
	return handler(term, off+frame.HeaderLength, length-frame.HeaderLength, hdr)
}

// ReadAppends delivers complete frames from term, starting at offset, to
// handler, which receives each whole frame including its header. It follows
// the same stopping rules as [Read]. Failures of handler are not captured.
func ReadAppends(term buffer.Buffer, offset int32, handler AppendHandler, fragmentLimit int) Outcome {
	var fragments int
	capacity := int32(term.Len())

	for {
		frameLength := frame.LengthVolatile(term, offset)
		if frameLength <= 0 {
			break
		}
		frameOffset := offset
		offset += frame.Align(frameLength, frame.Alignment)

		if !frame.IsPadding(term, frameOffset) {
			if handler != nil {
				handler(term.Slice(int(frameOffset), int(frameLength)))
			}
			fragments++
		}
		if fragments >= fragmentLimit || offset >= capacity {
			break
		}
	}
	return PackOutcome(offset, int32(fragments))
}
