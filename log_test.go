// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf_test

import (
	"errors"
	"testing"

	"github.com/creachadair/logbuf"
	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
	"github.com/google/go-cmp/cmp"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  logbuf.Config
		ok   bool
	}{
		{"Defaults", logbuf.Config{}.WithDefaults(), true},
		{"MinTerm", logbuf.Config{TermLength: logbuf.MinTermLength, MTU: 64}, true},
		{"MaxTerm", logbuf.Config{TermLength: logbuf.MaxTermLength, MTU: logbuf.MaxMTU}, true},
		{"SmallTerm", logbuf.Config{TermLength: 128, MTU: 64}, false},
		{"LargeTerm", logbuf.Config{TermLength: 2 * logbuf.MaxTermLength, MTU: 64}, false},
		{"OddTerm", logbuf.Config{TermLength: 1000, MTU: 64}, false},
		{"SmallMTU", logbuf.Config{TermLength: 1024, MTU: 32}, false},
		{"LargeMTU", logbuf.Config{TermLength: 1024, MTU: 2048}, false},
		{"UnalignedMTU", logbuf.Config{TermLength: 1024, MTU: 100}, false},
		{"HugeMTU", logbuf.Config{TermLength: 1 << 20, MTU: 2 * logbuf.MaxMTU}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("Validate %+v: unexpected error: %v", tc.cfg, err)
			} else if !tc.ok && !errors.Is(err, logbuf.ErrInvalidConfig) {
				t.Errorf("Validate %+v: got %v, want %v", tc.cfg, err, logbuf.ErrInvalidConfig)
			}
		})
	}

	def := logbuf.Config{TermLength: 512}.WithDefaults()
	if diff := cmp.Diff(def, logbuf.Config{TermLength: 512, MTU: 512}); diff != "" {
		t.Errorf("WithDefaults (-got, +want):\n%s", diff)
	}
}

func TestNew(t *testing.T) {
	lg, err := logbuf.New(logbuf.Config{TermLength: 1024, InitialTermID: -2})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	if got := lg.TermLength(); got != 1024 {
		t.Errorf("TermLength = %d, want 1024", got)
	}
	if got := lg.PositionBitsToShift(); got != 10 {
		t.Errorf("PositionBitsToShift = %d, want 10", got)
	}
	if got := lg.InitialTermID(); got != -2 {
		t.Errorf("InitialTermID = %d, want -2", got)
	}
	if got := lg.MaxMessageLength(); got != 1024/8-frame.HeaderLength {
		t.Errorf("MaxMessageLength = %d, want %d", got, 1024/8-frame.HeaderLength)
	}
	if got := logbuf.MTULength(lg.MetaData()); got != 1024 {
		t.Errorf("MTU = %d, want 1024", got)
	}
	if got := lg.ActivePartitionIndex(); got != 0 {
		t.Errorf("ActivePartitionIndex = %d, want 0", got)
	}
	if got := lg.ProducerPosition(); got != 0 {
		t.Errorf("ProducerPosition = %d, want 0", got)
	}

	type state struct {
		Term   int32
		Status int32
	}
	var got []state
	for _, p := range lg.Partitions() {
		got = append(got, state{p.TermID(), p.Status()})
	}
	want := []state{{-2, logbuf.Active}, {-4, logbuf.Clean}, {-3, logbuf.Clean}}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Partitions (-got, +want):\n%s", diff)
	}

	hdr := frame.NewHeader(logbuf.DefaultFrameHeader(lg.MetaData()), 0)
	if hdr.Type() != frame.DATA || hdr.Flags() != frame.UnfragmentedFlags {
		t.Errorf("Default header: got %v, want unfragmented data", hdr)
	}
}

func TestAttach(t *testing.T) {
	const termLength = 512
	mem := buffer.Alloc(logbuf.LogLength(termLength))
	lg, err := logbuf.Wrap(mem, logbuf.Config{TermLength: termLength, InitialTermID: 100, MTU: 256})
	if err != nil {
		t.Fatalf("Wrap: unexpected error: %v", err)
	}
	if _, err := lg.Offer([]byte("hello, world")); err != nil {
		t.Fatalf("Offer: unexpected error: %v", err)
	}

	cp, err := logbuf.Attach(mem)
	if err != nil {
		t.Fatalf("Attach: unexpected error: %v", err)
	}
	if cp.TermLength() != termLength || cp.InitialTermID() != 100 {
		t.Errorf("Attach: got term length %d, initial term %d; want %d, 100",
			cp.TermLength(), cp.InitialTermID(), termLength)
	}
	if got, want := cp.ProducerPosition(), lg.ProducerPosition(); got != want {
		t.Errorf("ProducerPosition = %d, want %d", got, want)
	}

	// Both views share the same memory.
	if _, err := cp.Offer([]byte("again")); err != nil {
		t.Fatalf("Offer: unexpected error: %v", err)
	}
	if got, want := lg.ProducerPosition(), int64(64); got != want {
		t.Errorf("ProducerPosition = %d, want %d", got, want)
	}

	t.Run("Errors", func(t *testing.T) {
		for _, mem := range []buffer.Buffer{
			buffer.Alloc(64),
			buffer.Alloc(logbuf.LogLength(termLength) + 8),
			buffer.Alloc(logbuf.LogLength(termLength)), // unformatted
		} {
			if lg, err := logbuf.Attach(mem); !errors.Is(err, logbuf.ErrInvalidConfig) {
				t.Errorf("Attach(%d bytes): got (%v, %v), want %v", mem.Len(), lg, err, logbuf.ErrInvalidConfig)
			}
		}
	})
}

func TestWrapErrors(t *testing.T) {
	if _, err := logbuf.Wrap(buffer.Alloc(1024), logbuf.Config{TermLength: 1024, MTU: 1024}); !errors.Is(err, logbuf.ErrInvalidConfig) {
		t.Errorf("Wrap short memory: got %v, want %v", err, logbuf.ErrInvalidConfig)
	}
	if _, err := logbuf.Wrap(buffer.Alloc(logbuf.LogLength(1024)), logbuf.Config{TermLength: 1024}); !errors.Is(err, logbuf.ErrInvalidConfig) {
		t.Errorf("Wrap without MTU: got %v, want %v", err, logbuf.ErrInvalidConfig)
	}
}

func TestRotate(t *testing.T) {
	lg := newTestLog(t, 256)
	if !lg.Rotate() {
		t.Fatal("Rotate failed")
	}
	if lg.ActivePartitionIndex() != 1 {
		t.Errorf("Active partition = %d, want 1", lg.ActivePartitionIndex())
	}

	// Partition 2 must be cleaned before the log can rotate again.
	if lg.Rotate() {
		t.Error("Rotate succeeded onto a dirty partition")
	}
	lg.CleanDirty()
	if !lg.Rotate() {
		t.Fatal("Rotate after clean failed")
	}
	if got, want := lg.ProducerPosition(), int64(2*256); got != want {
		t.Errorf("ProducerPosition = %d, want %d", got, want)
	}
}
