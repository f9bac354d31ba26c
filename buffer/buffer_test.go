// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package buffer_test

import (
	"io"
	"strings"
	"testing"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/taskgroup"
	"github.com/google/go-cmp/cmp"
)

func TestAccessors(t *testing.T) {
	b := buffer.Alloc(64)
	if n := b.Len(); n != 64 {
		t.Fatalf("Len = %d, want 64", n)
	}

	b.PutUint8(0, 0xa5)
	b.PutUint16(2, 0xbeef)
	b.PutInt32(4, -12345)
	b.PutInt64(8, 1<<40+17)
	b.StoreInt32(16, 99)
	b.StoreInt64(24, -1)

	check(t, "Uint8", b.Uint8(0), 0xa5)
	check(t, "Uint16", b.Uint16(2), 0xbeef)
	check(t, "Int32", b.Int32(4), -12345)
	check(t, "Int64", b.Int64(8), 1<<40+17)
	check(t, "LoadInt32", b.LoadInt32(16), 99)
	check(t, "LoadInt64", b.LoadInt64(24), -1)

	// Plain and atomic access agree on the encoding.
	check(t, "LoadInt32 of plain", b.LoadInt32(4), -12345)
	check(t, "Int64 of ordered", b.Int64(24), -1)

	if old := b.AddInt64(32, 10); old != 0 {
		t.Errorf("AddInt64: old value %d, want 0", old)
	}
	if old := b.AddInt64(32, 5); old != 10 {
		t.Errorf("AddInt64: old value %d, want 10", old)
	}
	check(t, "after add", b.LoadInt64(32), 15)

	if !b.CompareAndSwapInt64(32, 15, 20) {
		t.Error("CompareAndSwapInt64(15, 20) failed")
	}
	if b.CompareAndSwapInt64(32, 15, 30) {
		t.Error("CompareAndSwapInt64(15, 30) succeeded on a stale value")
	}
	if !b.CompareAndSwapInt32(40, 0, 7) {
		t.Error("CompareAndSwapInt32(0, 7) failed")
	}
	check(t, "after CAS", b.LoadInt32(40), 7)
}

func TestBytes(t *testing.T) {
	b := buffer.Alloc(32)
	b.PutBytes(3, []byte("hello"))
	if got := string(b.Range(3, 5)); got != "hello" {
		t.Errorf("Range = %q, want hello", got)
	}

	src := buffer.Alloc(16)
	src.PutBytes(0, []byte("0123456789abcdef"))
	b.Copy(16, src, 4, 8)
	if got := string(b.Range(16, 8)); got != "456789ab" {
		t.Errorf("Copy: got %q, want 456789ab", got)
	}

	b.Zero(3, 2)
	if got := b.Range(0, 8); !cmp.Equal(got, []byte{0, 0, 0, 0, 0, 'l', 'l', 'o'}) {
		t.Errorf("Zero: got %q", got)
	}

	sub := b.Slice(16, 16)
	if sub.Len() != 16 {
		t.Errorf("Slice Len = %d, want 16", sub.Len())
	}
	sub.PutUint8(0, 'X')
	if got := b.Uint8(16); got != 'X' {
		t.Errorf("Slice does not share memory: got %q", got)
	}
}

func TestStreams(t *testing.T) {
	b := buffer.Alloc(16)

	w := b.NewWriter(4, 8)
	if _, err := io.WriteString(w, "abcd"); err != nil {
		t.Fatalf("Write: unexpected error: %v", err)
	}
	n, err := io.WriteString(w, "efghij")
	if err != io.ErrShortWrite {
		t.Errorf("Write past end: got (%d, %v), want %v", n, err, io.ErrShortWrite)
	}

	got, err := io.ReadAll(b.NewReader(4, 8))
	if err != nil {
		t.Fatalf("ReadAll: unexpected error: %v", err)
	}
	if diff := cmp.Diff(string(got), "abcdefgh"); diff != "" {
		t.Errorf("Reader (-got, +want):\n%s", diff)
	}
}

func TestBounds(t *testing.T) {
	b := buffer.Alloc(16)
	tests := []struct {
		name string
		f    func()
	}{
		{"Int32 past end", func() { b.Int32(13) }},
		{"Int64 negative", func() { b.Int64(-1) }},
		{"PutBytes overflow", func() { b.PutBytes(10, make([]byte, 7)) }},
		{"Zero overflow", func() { b.Zero(0, 17) }},
		{"misaligned atomic", func() { b.LoadInt64(4) }},
		{"misaligned slice", func() { b.Slice(4, 4) }},
		{"misaligned base", func() { buffer.New(b.Bytes()[1:]) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := mtest.MustPanic(t, tc.f).(string)
			if !strings.HasPrefix(msg, "buffer: ") {
				t.Errorf("Panic message %q lacks package prefix", msg)
			}
		})
	}

	// Zero-length access at the end is permitted.
	b.Zero(16, 0)
	if got := buffer.Alloc(0).Len(); got != 0 {
		t.Errorf("Alloc(0).Len() = %d, want 0", got)
	}
}

func TestConcurrentAdd(t *testing.T) {
	b := buffer.Alloc(8)
	const workers, perWorker = 8, 1000

	g := taskgroup.New(nil)
	for range workers {
		g.Go(func() error {
			for range perWorker {
				b.AddInt64(0, 1)
			}
			return nil
		})
	}
	g.Wait()

	if got := b.LoadInt64(0); got != workers*perWorker {
		t.Errorf("Counter = %d, want %d", got, workers*perWorker)
	}
}

func check[T comparable](t *testing.T, label string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", label, got, want)
	}
}
