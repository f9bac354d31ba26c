// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"fmt"
	"math/bits"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// PartitionCount is the number of partitions in a log.
const PartitionCount = 3

// Bounds on the length of a term in bytes.
const (
	MinTermLength = 256
	MaxTermLength = 1 << 30
)

// Status values for a partition. These values are stored in shared memory
// and log files, and must not be changed.
const (
	Clean         = 0 // the term buffer is zeroed and ready for reuse
	NeedsCleaning = 1 // the term has been retired and must be zeroed
	Active        = 2 // the term is accepting appends
)

// Layout of the metadata buffer for each partition. The tail counter and the
// status word occupy separate cache lines.
const (
	TermTailCounterOffset = 0
	TermStatusOffset      = 64
	TermMetaDataLength    = 128
)

// Layout of the metadata buffer for a log.
const (
	LogActivePartitionIndexOffset     = 0
	LogInitialTermIDOffset            = 64
	LogMTULengthOffset                = 68
	LogTermLengthOffset               = 72
	LogDefaultFrameHeaderLengthOffset = 76
	LogDefaultFrameHeaderOffset       = 128
	MaxDefaultFrameHeaderLength       = 64
	LogMetaDataLength                 = 256
)

// LogLength reports the total number of bytes needed to hold a log with the
// given term length: three terms, three term metadata buffers, and the log
// metadata buffer, in that order.
func LogLength(termLength int) int {
	return PartitionCount*termLength + PartitionCount*TermMetaDataLength + LogMetaDataLength
}

// CheckTermLength reports an error if termLength is not a power of two in
// the range [MinTermLength, MaxTermLength].
func CheckTermLength(termLength int) error {
	if termLength < MinTermLength || termLength > MaxTermLength {
		return fmt.Errorf("term length %d out of range [%d, %d]: %w",
			termLength, MinTermLength, MaxTermLength, ErrInvalidConfig)
	}
	if bits.OnesCount(uint(termLength)) != 1 {
		return fmt.Errorf("term length %d is not a power of two: %w", termLength, ErrInvalidConfig)
	}
	return nil
}

// PositionBitsToShift reports the number of bits to shift a stream position
// to obtain its term count. The termLength must be a power of two.
func PositionBitsToShift(termLength int) int { return bits.TrailingZeros(uint(termLength)) }

// IndexByPosition returns the index of the partition holding the given
// stream position.
func IndexByPosition(position int64, positionBitsToShift int) int {
	return int((position >> positionBitsToShift) % PartitionCount)
}

// IndexByTerm returns the index of the partition holding the given term.
func IndexByTerm(initialTermID, termID int32) int {
	return int((termID - initialTermID) % PartitionCount)
}

// NextPartitionIndex returns the index of the partition after i.
func NextPartitionIndex(i int) int { return (i + 1) % PartitionCount }

// PreviousPartitionIndex returns the index of the partition before i.
func PreviousPartitionIndex(i int) int { return (i + PartitionCount - 1) % PartitionCount }

// ComputeTermOffsetFromPosition returns the offset within its term of the
// given stream position.
func ComputeTermOffsetFromPosition(position int64, positionBitsToShift int) int32 {
	mask := int64(1)<<positionBitsToShift - 1
	return int32(position & mask)
}

// ComputeTermBeginPosition returns the stream position at which termID begins.
func ComputeTermBeginPosition(termID int32, positionBitsToShift int, initialTermID int32) int64 {
	return int64(termID-initialTermID) << positionBitsToShift
}

// ComputePosition returns the stream position of offset within termID.
func ComputePosition(termID, offset int32, positionBitsToShift int, initialTermID int32) int64 {
	return ComputeTermBeginPosition(termID, positionBitsToShift, initialTermID) + int64(offset)
}

// PackTail packs a term ID and a term offset into a raw tail value.
func PackTail(termID, offset int32) int64 { return int64(termID)<<32 | int64(uint32(offset)) }

// TermID returns the term ID packed into rawTail.
func TermID(rawTail int64) int32 { return int32(uint64(rawTail) >> 32) }

// TermOffset returns the offset packed into rawTail, clamped to termLength.
// The packed offset may exceed the term length when appenders race past the
// end of a term.
func TermOffset(rawTail int64, termLength int) int32 {
	return int32(min(rawTail&0xFFFF_FFFF, int64(termLength)))
}

// RotateLog makes the partition after activeIndex the active partition for
// newTermID. The tail of that partition is moved to the start of newTermID
// and its status set to Active; the partition after it, which holds the
// oldest term, is marked as needing cleaning; and the active partition index
// in logMeta is advanced from activeIndex.
//
// The partition being activated must be clean before RotateLog is called.
// RotateLog reports whether this call advanced the active index; if it
// reports false another caller has already rotated past activeIndex.
// Partition statuses are not changed unless activeIndex is still the active
// partition and the next partition holds newTermID.
func RotateLog(partitions []*Partition, logMeta buffer.Buffer, activeIndex int, newTermID int32) bool {
	if ActivePartitionIndex(logMeta) != activeIndex {
		return false
	}
	nextIndex := NextPartitionIndex(activeIndex)
	next := partitions[nextIndex]

	// The next partition holds a term ID one full cycle behind newTermID
	// unless another caller has already initialized it.
	expect := newTermID - PartitionCount
	for {
		raw := next.RawTailVolatile()
		if TermID(raw) != expect || next.CompareAndSetRawTail(raw, PackTail(newTermID, 0)) {
			break
		}
	}
	if next.TermID() != newTermID {
		return false
	}
	next.SetStatus(Active)
	partitions[NextPartitionIndex(nextIndex)].SetStatus(NeedsCleaning)

	if !logMeta.CompareAndSwapInt32(LogActivePartitionIndexOffset, int32(activeIndex), int32(nextIndex)) {
		return false
	}
	logMetrics.rotations.Add(1)
	return true
}

// ActivePartitionIndex returns the index of the active partition recorded in
// logMeta, using a volatile load.
func ActivePartitionIndex(logMeta buffer.Buffer) int {
	return int(logMeta.LoadInt32(LogActivePartitionIndexOffset))
}

// SetActivePartitionIndex records i as the active partition index in logMeta,
// using an ordered store.
func SetActivePartitionIndex(logMeta buffer.Buffer, i int) {
	logMeta.StoreInt32(LogActivePartitionIndexOffset, int32(i))
}

// InitialTermID returns the initial term ID recorded in logMeta.
func InitialTermID(logMeta buffer.Buffer) int32 { return logMeta.Int32(LogInitialTermIDOffset) }

// MTULength returns the MTU recorded in logMeta.
func MTULength(logMeta buffer.Buffer) int32 { return logMeta.Int32(LogMTULengthOffset) }

// TermLength returns the term length recorded in logMeta.
func TermLength(logMeta buffer.Buffer) int32 { return logMeta.Int32(LogTermLengthOffset) }

// StoreDefaultFrameHeader records hdr as the default frame header for the
// log. New frames, including padding written by the unblocker, start from a
// copy of this header.
func StoreDefaultFrameHeader(logMeta buffer.Buffer, hdr []byte) error {
	if len(hdr) < frame.HeaderLength || len(hdr) > MaxDefaultFrameHeaderLength {
		return fmt.Errorf("default frame header length %d out of range [%d, %d]: %w",
			len(hdr), frame.HeaderLength, MaxDefaultFrameHeaderLength, ErrInvalidConfig)
	}
	logMeta.PutInt32(LogDefaultFrameHeaderLengthOffset, int32(len(hdr)))
	logMeta.PutBytes(LogDefaultFrameHeaderOffset, hdr)
	return nil
}

// DefaultFrameHeader returns a view of the default frame header recorded in
// logMeta. The result aliases logMeta.
func DefaultFrameHeader(logMeta buffer.Buffer) buffer.Buffer {
	n := int(logMeta.Int32(LogDefaultFrameHeaderLengthOffset))
	return logMeta.Slice(LogDefaultFrameHeaderOffset, n)
}
