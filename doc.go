// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package logbuf implements a lock-free log buffer for streaming messages
// between a writer and concurrent readers through shared memory.
//
// A log consists of three partitions. Each partition holds a term buffer, a
// fixed-size region into which frames are appended, and a small metadata
// buffer recording the tail of the term and its status. One partition is
// active at a time; when its term fills up the log rotates to the next
// partition, and the partition after that, which holds the oldest term, is
// marked for cleaning.
//
//	+--------+--------+--------+-------+-------+-------+----------+
//	| term 0 | term 1 | term 2 | meta0 | meta1 | meta2 | log meta |
//	+--------+--------+--------+-------+-------+-------+----------+
//
// A position in the stream is a 64-bit count of bytes since the start of the
// initial term. The partition and term offset of a position are derived from
// the position and the term length, which is always a power of two.
//
// # Frames
//
// Each frame starts with a header whose first word is the frame length. A
// frame is complete when its length is positive; the writer publishes the
// length with an ordered store after writing the rest of the frame, and
// readers load it with a volatile load. See package frame for the layout.
//
// # Writing
//
// Use [Log.Offer] to append a message to the active term:
//
//	lg, err := logbuf.New(logbuf.Config{TermLength: 1 << 16})
//	...
//	pos, err := lg.Offer([]byte("hello"))
//
// To rebuild a term from packets received out of order, use [Insert].
//
// # Reading
//
// Use [Read] to deliver the complete frames of a term to a handler:
//
//	out := logbuf.Read(term, offset, func(buf buffer.Buffer, off, n int32, _ *frame.Header) error {
//	   process(buf.Range(int(off), int(n)))
//	   return nil
//	}, 10, nil, nil)
//	offset = out.Offset()
//
// A reader stops at the first incomplete frame. If a writer dies after
// claiming space but before completing its frame, readers stall at that
// frame. Use [Unblock] (or [Log.Unblock]) to replace the dead region with a
// padding frame that readers skip.
//
// # Metrics
//
// Use [Metrics] to obtain an [expvar.Map] of counters shared by all logs in
// the process:
//
//   - fragments_read: counter of fragments delivered by read passes
//   - handler_errors: counter of fragment handlers that failed or panicked
//   - frames_rebuilt: counter of packets inserted into terms
//   - unblocks: counter of unblocks that padded part of a term
//   - unblocks_to_end: counter of unblocks that padded out a term
//   - rotations: counter of term rotations
//   - partitions_cleaned: counter of partitions cleaned
//   - offers: counter of messages appended
//   - offer_bytes: counter of payload bytes appended
//   - offers_tripped: counter of appends that reached the end of a term
//   - offers_refused: counter of appends refused pending cleaning
package logbuf
