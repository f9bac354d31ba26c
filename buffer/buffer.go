// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package buffer implements a bounds-checked view of a region of memory that
// may be shared between goroutines or processes.
//
// A [Buffer] supports three kinds of access to the words it contains:
//
//   - Plain reads and writes (Int32, PutInt32, ...), which carry no ordering
//     guarantees and must not race with other accesses to the same bytes.
//   - Volatile loads (LoadInt32, LoadInt64), which observe every write that
//     happened before the ordered store whose value they read.
//   - Ordered stores (StoreInt32, StoreInt64), which publish all earlier
//     writes by the storing goroutine to any goroutine that observes the
//     stored value with a volatile load.
//
// Multi-byte values are encoded in native byte order, so that a buffer backed
// by shared memory can be accessed both by plain and atomic operations.
//
// Offsets and lengths are checked on every access. An out-of-range access
// panics, as would indexing a slice. Atomic access additionally requires the
// address of the target word to be naturally aligned.
package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"
)

// A Buffer is a fixed-length view of a region of memory. A Buffer is a small
// value and may be copied freely; copies share the underlying memory.
// The zero value is an empty buffer.
type Buffer struct {
	data []byte
}

// New constructs a Buffer over data. It panics if the first byte of data is
// not aligned to an 8-byte boundary, since atomic word access relies on the
// alignment of the base address.
func New(data []byte) Buffer {
	if len(data) != 0 && uintptr(unsafe.Pointer(&data[0]))%8 != 0 {
		panic(fmt.Sprintf("buffer: base address %p is not 8-byte aligned", &data[0]))
	}
	return Buffer{data: data}
}

// Alloc allocates a new zeroed Buffer of n bytes with an 8-byte aligned base.
func Alloc(n int) Buffer {
	if n < 0 {
		panic(fmt.Sprintf("buffer: negative size %d", n))
	} else if n == 0 {
		return Buffer{}
	}
	words := make([]uint64, (n+7)/8)
	return Buffer{data: unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)}
}

// Len reports the length of b in bytes.
func (b Buffer) Len() int { return len(b.data) }

// Bytes returns the memory underlying b. The caller must not retain the slice
// beyond the lifetime of the memory it refers to.
func (b Buffer) Bytes() []byte { return b.data }

// Slice returns a Buffer sharing the n bytes of b starting at off.
// It panics if off is not a multiple of 8, so that the result preserves the
// alignment guarantee of b.
func (b Buffer) Slice(off, n int) Buffer {
	b.check(off, n)
	if off%8 != 0 {
		panic(fmt.Sprintf("buffer: slice offset %d is not 8-byte aligned", off))
	}
	return Buffer{data: b.data[off : off+n : off+n]}
}

// Range returns the n bytes of b starting at off. The result aliases b.
func (b Buffer) Range(off, n int) []byte {
	b.check(off, n)
	return b.data[off : off+n : off+n]
}

// Uint8 returns the byte at off.
func (b Buffer) Uint8(off int) uint8 {
	b.check(off, 1)
	return b.data[off]
}

// PutUint8 sets the byte at off to v.
func (b Buffer) PutUint8(off int, v uint8) {
	b.check(off, 1)
	b.data[off] = v
}

// Uint16 returns the 2-byte value at off.
func (b Buffer) Uint16(off int) uint16 {
	b.check(off, 2)
	return binary.NativeEndian.Uint16(b.data[off:])
}

// PutUint16 sets the 2-byte value at off to v.
func (b Buffer) PutUint16(off int, v uint16) {
	b.check(off, 2)
	binary.NativeEndian.PutUint16(b.data[off:], v)
}

// Int32 returns the 4-byte value at off with a plain read.
func (b Buffer) Int32(off int) int32 {
	b.check(off, 4)
	return int32(binary.NativeEndian.Uint32(b.data[off:]))
}

// PutInt32 sets the 4-byte value at off to v with a plain write.
func (b Buffer) PutInt32(off int, v int32) {
	b.check(off, 4)
	binary.NativeEndian.PutUint32(b.data[off:], uint32(v))
}

// Int64 returns the 8-byte value at off with a plain read.
func (b Buffer) Int64(off int) int64 {
	b.check(off, 8)
	return int64(binary.NativeEndian.Uint64(b.data[off:]))
}

// PutInt64 sets the 8-byte value at off to v with a plain write.
func (b Buffer) PutInt64(off int, v int64) {
	b.check(off, 8)
	binary.NativeEndian.PutUint64(b.data[off:], uint64(v))
}

// LoadInt32 returns the 4-byte value at off with a volatile load.
func (b Buffer) LoadInt32(off int) int32 { return atomic.LoadInt32(b.word32(off)) }

// StoreInt32 sets the 4-byte value at off to v with an ordered store.
func (b Buffer) StoreInt32(off int, v int32) { atomic.StoreInt32(b.word32(off), v) }

// CompareAndSwapInt32 atomically replaces the 4-byte value at off with update
// if it currently equals expect, and reports whether it did so.
func (b Buffer) CompareAndSwapInt32(off int, expect, update int32) bool {
	return atomic.CompareAndSwapInt32(b.word32(off), expect, update)
}

// LoadInt64 returns the 8-byte value at off with a volatile load.
func (b Buffer) LoadInt64(off int) int64 { return atomic.LoadInt64(b.word64(off)) }

// StoreInt64 sets the 8-byte value at off to v with an ordered store.
func (b Buffer) StoreInt64(off int, v int64) { atomic.StoreInt64(b.word64(off), v) }

// AddInt64 atomically adds delta to the 8-byte value at off and returns the
// value it held before the addition.
func (b Buffer) AddInt64(off int, delta int64) int64 {
	return atomic.AddInt64(b.word64(off), delta) - delta
}

// CompareAndSwapInt64 atomically replaces the 8-byte value at off with update
// if it currently equals expect, and reports whether it did so.
func (b Buffer) CompareAndSwapInt64(off int, expect, update int64) bool {
	return atomic.CompareAndSwapInt64(b.word64(off), expect, update)
}

// Zero sets the n bytes of b starting at off to zero.
func (b Buffer) Zero(off, n int) {
	b.check(off, n)
	clear(b.data[off : off+n])
}

// PutBytes copies src into b starting at off.
func (b Buffer) PutBytes(off int, src []byte) {
	b.check(off, len(src))
	copy(b.data[off:], src)
}

// Copy copies n bytes from src starting at srcOff into b starting at off.
// The source and destination may overlap.
func (b Buffer) Copy(off int, src Buffer, srcOff, n int) {
	b.check(off, n)
	src.check(srcOff, n)
	copy(b.data[off:off+n], src.data[srcOff:srcOff+n])
}

// NewReader returns a reader over the n bytes of b starting at off.
func (b Buffer) NewReader(off, n int) *io.SectionReader {
	b.check(off, n)
	return io.NewSectionReader(bytes.NewReader(b.data), int64(off), int64(n))
}

// NewWriter returns a writer that fills the n bytes of b starting at off.
// Writes beyond the end of the range report [io.ErrShortWrite].
func (b Buffer) NewWriter(off, n int) io.Writer {
	b.check(off, n)
	return &rangeWriter{buf: b.data[off : off+n : off+n]}
}

type rangeWriter struct {
	buf []byte
	pos int
}

func (w *rangeWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (b Buffer) word32(off int) *int32 {
	b.check(off, 4)
	p := unsafe.Pointer(&b.data[off])
	if uintptr(p)%4 != 0 {
		panic(fmt.Sprintf("buffer: misaligned 4-byte atomic access at offset %d", off))
	}
	return (*int32)(p)
}

func (b Buffer) word64(off int) *int64 {
	b.check(off, 8)
	p := unsafe.Pointer(&b.data[off])
	if uintptr(p)%8 != 0 {
		panic(fmt.Sprintf("buffer: misaligned 8-byte atomic access at offset %d", off))
	}
	return (*int64)(p)
}

func (b Buffer) check(off, n int) {
	if off < 0 || n < 0 || off > len(b.data)-n {
		panic(fmt.Sprintf("buffer: access [%d:+%d] out of range for length %d", off, n, len(b.data)))
	}
}
