// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"fmt"

	"github.com/creachadair/logbuf/buffer"
)

// A Partition pairs a term buffer with the metadata buffer that records its
// tail and status. A log has exactly [PartitionCount] partitions.
type Partition struct {
	term buffer.Buffer
	meta buffer.Buffer
}

// NewPartition constructs a partition over the given term and metadata
// buffers. The metadata buffer must be at least [TermMetaDataLength] bytes.
func NewPartition(term, meta buffer.Buffer) *Partition {
	if meta.Len() < TermMetaDataLength {
		panic(fmt.Sprintf("partition metadata length %d < %d", meta.Len(), TermMetaDataLength))
	}
	return &Partition{term: term, meta: meta}
}

// TermBuffer returns the term buffer of p.
func (p *Partition) TermBuffer() buffer.Buffer { return p.term }

// MetaDataBuffer returns the metadata buffer of p.
func (p *Partition) MetaDataBuffer() buffer.Buffer { return p.meta }

// Clean zeroes the term buffer of p and sets its status to [Clean]. The
// caller must ensure that no reader or writer is using the term. The tail
// counter is not changed, since rotation relies on it to identify the term
// the partition last held.
func (p *Partition) Clean() {
	p.term.Zero(0, p.term.Len())
	p.SetStatus(Clean)
	logMetrics.partitionsCleaned.Add(1)
}

// Status returns the status of p using a volatile load.
func (p *Partition) Status() int32 { return p.meta.LoadInt32(TermStatusOffset) }

// SetStatus sets the status of p using an ordered store.
func (p *Partition) SetStatus(status int32) { p.meta.StoreInt32(TermStatusOffset, status) }

// TailOffsetVolatile returns the offset of the tail of p using a volatile
// load, clamped to the length of the term.
func (p *Partition) TailOffsetVolatile() int32 {
	return TermOffset(p.RawTailVolatile(), p.term.Len())
}

// RawTailVolatile returns the raw tail of p, packing its term ID and offset,
// using a volatile load.
func (p *Partition) RawTailVolatile() int64 { return p.meta.LoadInt64(TermTailCounterOffset) }

// TermID returns the term ID of p.
func (p *Partition) TermID() int32 { return TermID(p.RawTailVolatile()) }

// SetTermID sets the term ID of p and resets its tail offset to zero. This is
// used when a clean partition is assigned to a new term.
func (p *Partition) SetTermID(termID int32) {
	p.meta.StoreInt64(TermTailCounterOffset, PackTail(termID, 0))
}

// CompareAndSetRawTail replaces the raw tail of p with update if it is
// currently expect, and reports whether it did so.
func (p *Partition) CompareAndSetRawTail(expect, update int64) bool {
	return p.meta.CompareAndSwapInt64(TermTailCounterOffset, expect, update)
}

// GetAndAddRawTail adds delta to the raw tail of p and returns the raw tail
// before the addition. This is how appenders claim space in the term.
func (p *Partition) GetAndAddRawTail(delta int32) int64 {
	return p.meta.AddInt64(TermTailCounterOffset, int64(delta))
}

func (p *Partition) String() string {
	raw := p.RawTailVolatile()
	return fmt.Sprintf("Partition(term=%d, tail=%d, status=%s)",
		TermID(raw), TermOffset(raw, p.term.Len()), statusString(p.Status()))
}

func statusString(s int32) string {
	switch s {
	case Clean:
		return "CLEAN"
	case NeedsCleaning:
		return "NEEDS_CLEANING"
	case Active:
		return "ACTIVE"
	default:
		return fmt.Sprintf("STATUS:%d", s)
	}
}
