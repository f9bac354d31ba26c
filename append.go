// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"errors"
	"fmt"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

var (
	// ErrMessageTooLarge is reported by [Log.Offer] for a message longer than
	// the maximum message length of the log.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrAdminAction is reported by [Log.Offer] when the log cannot accept a
	// message until a retired partition has been cleaned. The caller may
	// retry after calling [Log.CleanDirty].
	ErrAdminAction = errors.New("log requires cleaning")
)

// Special results from [AppendUnfragmented].
const (
	// Tripped means the append reached the end of the term. The remainder of
	// the term was padded and the log should be rotated.
	Tripped int32 = -1

	// Failed means the term was already exhausted by another append.
	Failed int32 = -2
)

// AppendUnfragmented appends msg as a single frame to the term of p, using
// the default frame header hdr. It returns the term ID of the term it claimed
// space in, and either the term offset following the new frame or one of
// [Tripped] and [Failed]. The caller must ensure the frame fits in the term.
//
// Space is claimed by advancing the tail, so concurrent appenders never
// overlap. The frame length is published last with an ordered store; until
// then the claimed space holds the negated frame length.
func AppendUnfragmented(p *Partition, hdr buffer.Buffer, msg []byte) (termID, result int32) {
	frameLength := int32(len(msg)) + frame.HeaderLength
	alignedLength := frame.Align(frameLength, frame.Alignment)
	rawTail := p.GetAndAddRawTail(alignedLength)

	term := p.TermBuffer()
	capacity := int64(term.Len())
	termID = TermID(rawTail)
	termOffset := rawTail & 0xFFFF_FFFF

	if end := termOffset + int64(alignedLength); end > capacity {
		return termID, padToEnd(term, hdr, termOffset, capacity)
	}

	off := int32(termOffset)
	writeHeader(term, hdr, off, frameLength)
	term.PutBytes(int(off)+frame.HeaderLength, msg)
	frame.LengthOrdered(term, off, frameLength)
	return termID, off + alignedLength
}

// padToEnd fills the term from termOffset to its end with a padding frame,
// if any space remains.
func padToEnd(term, hdr buffer.Buffer, termOffset, capacity int64) int32 {
	if termOffset > capacity {
		return Failed
	}
	if termOffset < capacity {
		off, length := int32(termOffset), int32(capacity-termOffset)
		writeHeader(term, hdr, off, length)
		frame.SetType(term, off, frame.PAD)
		frame.LengthOrdered(term, off, length)
	}
	return Tripped
}

// writeHeader marks the frame at off as claimed and copies the rest of the
// default header hdr after the length field.
func writeHeader(term, hdr buffer.Buffer, off, frameLength int32) {
	frame.LengthOrdered(term, off, -frameLength)
	const skip = frame.LengthOffset + 4
	term.Copy(int(off)+skip, hdr, skip, frame.HeaderLength-skip)
}

// Offer appends msg to the active term of l as a single frame. It returns the
// stream position following the new frame.
//
// If the active term is exhausted, Offer rotates the log to the next term and
// retries, provided that the next partition is clean. Otherwise it reports
// [ErrAdminAction]. Offer reports [ErrMessageTooLarge] if msg exceeds the
// maximum message length of the log.
func (l *Log) Offer(msg []byte) (int64, error) {
	if len(msg) > l.MaxMessageLength() {
		return 0, fmt.Errorf("offer %d bytes (max %d): %w", len(msg), l.MaxMessageLength(), ErrMessageTooLarge)
	}
	hdr := DefaultFrameHeader(l.meta)

	for range PartitionCount {
		index := l.ActivePartitionIndex()
		p := l.partitions[index]

		// Do not claim space in an exhausted term, so that repeated refusals
		// cannot carry the tail offset into the term ID.
		termID := p.TermID()
		if p.TailOffsetVolatile() < int32(l.termLength) {
			var result int32
			termID, result = AppendUnfragmented(p, hdr, msg)
			if result >= 0 {
				logMetrics.offers.Add(1)
				logMetrics.offerBytes.Add(int64(len(msg)))
				return ComputePosition(termID, result, l.bits, l.initTermID), nil
			}
			if result == Tripped {
				logMetrics.offerTripped.Add(1)
			}
		}
		if !l.advance(index, termID) {
			break
		}
	}
	logMetrics.offerRefused.Add(1)
	return 0, ErrAdminAction
}

// advance ensures that the log has moved past the exhausted term termID at
// partition index, rotating it if necessary. It reports false if the log
// cannot advance because the next partition is not clean.
func (l *Log) advance(index int, termID int32) bool {
	if l.ActivePartitionIndex() != index || l.partitions[index].TermID() != termID {
		return true // someone else rotated
	}
	next := l.partitions[NextPartitionIndex(index)]
	if next.Status() != Clean && next.TermID() != termID+1 {
		return false
	}
	RotateLog(l.partitions, l.meta, index, termID+1)
	return true
}
