// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"fmt"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// UnblockStatus is the result of an attempt to unblock a term.
type UnblockStatus int

const (
	// NoAction means there was nothing to unblock at the given offset.
	NoAction UnblockStatus = iota

	// Unblocked means a padding frame was written over a dead region that
	// ends before the end of the term.
	Unblocked

	// UnblockedToEnd means a padding frame was written over a dead region
	// that extends to the end of the term, so the term is exhausted.
	UnblockedToEnd
)

func (s UnblockStatus) String() string {
	switch s {
	case NoAction:
		return "NO_ACTION"
	case Unblocked:
		return "UNBLOCKED"
	case UnblockedToEnd:
		return "UNBLOCKED_TO_END"
	default:
		return fmt.Sprintf("UnblockStatus(%d)", int(s))
	}
}

// UnblockTerm attempts to repair a term in which a writer claimed space at
// blockedOffset but never published a frame there, which stalls every reader
// that reaches blockedOffset. The tailOffset is the current tail of the term.
//
// If the frame at blockedOffset is complete, or blockedOffset is at or past
// the tail, nothing is done. If the writer left a claim marker (a negative
// frame length), the claimed extent is padded. Otherwise the dead region
// extends from blockedOffset to the next frame start with a non-zero length
// below the tail, or to the tail if there is none, and that region is padded
// provided no frame has appeared in it in the meantime.
//
// The caller must ensure that at most one unblock is in progress for a term.
func UnblockTerm(logMeta, term buffer.Buffer, blockedOffset, tailOffset int32) UnblockStatus {
	capacity := int32(term.Len())
	tailOffset = min(tailOffset, capacity)

	frameLength := frame.LengthVolatile(term, blockedOffset)
	switch {
	case frameLength > 0 || blockedOffset >= tailOffset:
		return NoAction

	case frameLength < 0:
		end := blockedOffset + frame.Align(-frameLength, frame.Alignment)
		if end > capacity {
			return NoAction // not a claim marker this term could hold
		}
		writePadding(logMeta, term, blockedOffset, -frameLength)
		return unblockedStatus(end, capacity)
	}

	for cur := blockedOffset + frame.Alignment; cur < tailOffset; cur += frame.Alignment {
		if frame.LengthVolatile(term, cur) == 0 {
			continue
		}
		if !zeroedBetween(term, blockedOffset, cur) {
			return NoAction
		}
		writePadding(logMeta, term, blockedOffset, cur-blockedOffset)
		return Unblocked
	}

	// No frame starts between the blocked offset and the tail: the whole
	// claimed region is dead. Check the blocked frame once more, since its
	// writer may have finished while we were scanning.
	if frame.LengthVolatile(term, blockedOffset) != 0 {
		return NoAction
	}
	writePadding(logMeta, term, blockedOffset, tailOffset-blockedOffset)
	return unblockedStatus(tailOffset, capacity)
}

func unblockedStatus(end, capacity int32) UnblockStatus {
	if end >= capacity {
		return UnblockedToEnd
	}
	return Unblocked
}

// zeroedBetween reports whether every aligned frame start in [lo, hi) still
// has a zero length, scanning backward from hi.
func zeroedBetween(term buffer.Buffer, lo, hi int32) bool {
	for i := hi - frame.Alignment; i >= lo; i -= frame.Alignment {
		if frame.LengthVolatile(term, i) != 0 {
			return false
		}
	}
	return true
}

// writePadding writes a padding frame of the given length at off, starting
// from the default frame header of the log, and publishes it.
func writePadding(logMeta, term buffer.Buffer, off, length int32) {
	hdr := DefaultFrameHeader(logMeta)
	const skip = frame.LengthOffset + 4
	term.Copy(int(off)+skip, hdr, skip, frame.HeaderLength-skip)
	frame.SetType(term, off, frame.PAD)
	frame.LengthOrdered(term, off, length)
}

// Unblock attempts to unblock a log, given its partitions and metadata, at
// blockedPosition. If the unblock pads the active term to its end, the log is
// rotated to the next term so that writers do not stall at the end of the
// term. A term that is no longer active is padded but not rotated. Unblock
// reports whether any padding was written.
//
// The caller must ensure that at most one unblock or rotation is in progress
// for the log.
func Unblock(partitions []*Partition, logMeta buffer.Buffer, blockedPosition int64) bool {
	termLength := partitions[0].TermBuffer().Len()
	bits := PositionBitsToShift(termLength)
	index := IndexByPosition(blockedPosition, bits)
	part := partitions[index]

	rawTail := part.RawTailVolatile()
	termID := TermID(rawTail)
	tailOffset := TermOffset(rawTail, termLength)
	blockedOffset := ComputeTermOffsetFromPosition(blockedPosition, bits)

	switch UnblockTerm(logMeta, part.TermBuffer(), blockedOffset, tailOffset) {
	case UnblockedToEnd:
		logMetrics.unblocksToEnd.Add(1)
		if index == ActivePartitionIndex(logMeta) {
			RotateLog(partitions, logMeta, index, termID+1)
		}
		return true
	case Unblocked:
		logMetrics.unblocks.Add(1)
		return true
	default:
		return false
	}
}
