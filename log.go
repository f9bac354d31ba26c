// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logbuf

import (
	"errors"
	"fmt"

	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// ErrInvalidConfig is wrapped by errors reporting an invalid log geometry.
var ErrInvalidConfig = errors.New("invalid log configuration")

// Default configuration values.
const (
	DefaultTermLength = 64 << 10
	DefaultMTU        = 4 << 10
	MaxMTU            = 64 << 10
)

// Config describes the geometry of a log.
type Config struct {
	// The length in bytes of each term. It must be a power of two between
	// MinTermLength and MaxTermLength. If zero, DefaultTermLength is used.
	TermLength int `yaml:"term_length" json:"term_length"`

	// The term ID of the first term of the log.
	InitialTermID int32 `yaml:"initial_term_id" json:"initial_term_id"`

	// The maximum transmission unit of the stream the log serves, in bytes.
	// It must be a multiple of frame.Alignment and no larger than the term.
	// If zero, the smaller of DefaultMTU and TermLength is used.
	MTU int `yaml:"mtu" json:"mtu"`
}

// WithDefaults returns a copy of c with unset fields filled from defaults.
func (c Config) WithDefaults() Config {
	if c.TermLength == 0 {
		c.TermLength = DefaultTermLength
	}
	if c.MTU == 0 {
		c.MTU = min(DefaultMTU, c.TermLength)
	}
	return c
}

// Validate reports an error if c does not describe a valid log. It does not
// apply defaults.
func (c Config) Validate() error {
	if err := CheckTermLength(c.TermLength); err != nil {
		return err
	}
	if c.MTU < frame.HeaderLength+frame.Alignment || c.MTU > min(c.TermLength, MaxMTU) {
		return fmt.Errorf("mtu %d out of range [%d, %d]: %w",
			c.MTU, frame.HeaderLength+frame.Alignment, min(c.TermLength, MaxMTU), ErrInvalidConfig)
	}
	if c.MTU%frame.Alignment != 0 {
		return fmt.Errorf("mtu %d is not a multiple of %d: %w", c.MTU, frame.Alignment, ErrInvalidConfig)
	}
	return nil
}

// A Log is a set of [PartitionCount] partitions sharing a log metadata
// buffer. The memory of a log may be private to the process (see [New]) or
// shared with other processes (see [Wrap] and [Attach]).
type Log struct {
	partitions []*Partition
	meta       buffer.Buffer
	termLength int
	bits       int
	initTermID int32
	maxMsg     int
}

// New allocates a new log in private memory with the given configuration.
func New(cfg Config) (*Log, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Wrap(buffer.Alloc(LogLength(cfg.TermLength)), cfg)
}

// Wrap formats mem as a new log with the given configuration, which must
// already have defaults applied. The length of mem must be at least
// LogLength(cfg.TermLength). Any existing contents of mem are overwritten.
func Wrap(mem buffer.Buffer, cfg Config) (*Log, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if need := LogLength(cfg.TermLength); mem.Len() < need {
		return nil, fmt.Errorf("log memory too small (%d < %d bytes): %w", mem.Len(), need, ErrInvalidConfig)
	}
	mem.Zero(0, LogLength(cfg.TermLength))

	lg := layout(mem, cfg.TermLength)
	lg.meta.PutInt32(LogInitialTermIDOffset, cfg.InitialTermID)
	lg.meta.PutInt32(LogMTULengthOffset, int32(cfg.MTU))
	lg.meta.PutInt32(LogTermLengthOffset, int32(cfg.TermLength))
	if err := StoreDefaultFrameHeader(lg.meta, frame.DefaultHeader(frame.UnfragmentedFlags, frame.DATA)); err != nil {
		return nil, err
	}
	lg.initTermID = cfg.InitialTermID

	lg.partitions[0].SetTermID(cfg.InitialTermID)
	lg.partitions[0].SetStatus(Active)
	for i := 1; i < PartitionCount; i++ {
		lg.partitions[i].SetTermID(cfg.InitialTermID - PartitionCount + int32(i))
		lg.partitions[i].SetStatus(Clean)
	}
	SetActivePartitionIndex(lg.meta, 0)
	return lg, nil
}

// Attach constructs a log over mem, which must already contain a log
// formatted by [Wrap]. The geometry is read from the log metadata.
func Attach(mem buffer.Buffer) (*Log, error) {
	if mem.Len() < LogLength(MinTermLength) || mem.Len()%8 != 0 {
		return nil, fmt.Errorf("invalid log memory length %d: %w", mem.Len(), ErrInvalidConfig)
	}
	meta := mem.Slice(mem.Len()-LogMetaDataLength, LogMetaDataLength)
	termLength := int(TermLength(meta))
	if err := CheckTermLength(termLength); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	if want := LogLength(termLength); mem.Len() != want {
		return nil, fmt.Errorf("log memory length %d does not match term length %d (want %d bytes): %w",
			mem.Len(), termLength, want, ErrInvalidConfig)
	}
	lg := layout(mem, termLength)
	lg.initTermID = InitialTermID(meta)
	return lg, nil
}

// layout partitions mem into the buffers of a log without initializing them.
func layout(mem buffer.Buffer, termLength int) *Log {
	lg := &Log{
		partitions: make([]*Partition, PartitionCount),
		termLength: termLength,
		bits:       PositionBitsToShift(termLength),
		maxMsg:     frame.MaxMessageLength(termLength),
	}
	metaBase := PartitionCount * termLength
	for i := range PartitionCount {
		lg.partitions[i] = NewPartition(
			mem.Slice(i*termLength, termLength),
			mem.Slice(metaBase+i*TermMetaDataLength, TermMetaDataLength),
		)
	}
	lg.meta = mem.Slice(metaBase+PartitionCount*TermMetaDataLength, LogMetaDataLength)
	return lg
}

// Partition returns the partition with index i.
func (l *Log) Partition(i int) *Partition { return l.partitions[i] }

// Partitions returns the partitions of l in index order. The caller must not
// modify the returned slice.
func (l *Log) Partitions() []*Partition { return l.partitions }

// MetaData returns the log metadata buffer of l.
func (l *Log) MetaData() buffer.Buffer { return l.meta }

// TermLength reports the length of each term of l in bytes.
func (l *Log) TermLength() int { return l.termLength }

// PositionBitsToShift reports the number of bits to shift a position of l
// to obtain its term count.
func (l *Log) PositionBitsToShift() int { return l.bits }

// InitialTermID reports the initial term ID of l.
func (l *Log) InitialTermID() int32 { return l.initTermID }

// MaxMessageLength reports the largest payload that may be offered to l.
func (l *Log) MaxMessageLength() int { return l.maxMsg - frame.HeaderLength }

// ActivePartitionIndex reports the index of the active partition of l.
func (l *Log) ActivePartitionIndex() int { return ActivePartitionIndex(l.meta) }

// ActivePartition returns the active partition of l.
func (l *Log) ActivePartition() *Partition { return l.partitions[l.ActivePartitionIndex()] }

// ProducerPosition reports the stream position of the tail of the active
// term of l.
func (l *Log) ProducerPosition() int64 {
	raw := l.ActivePartition().RawTailVolatile()
	return ComputePosition(TermID(raw), TermOffset(raw, l.termLength), l.bits, l.initTermID)
}

// CleanDirty cleans every partition of l whose status is [NeedsCleaning], and
// reports how many were cleaned. The caller must ensure that no reader still
// needs the contents of those terms.
func (l *Log) CleanDirty() int {
	var n int
	for _, p := range l.partitions {
		if p.Status() == NeedsCleaning {
			p.Clean()
			n++
		}
	}
	return n
}

// Rotate advances the active partition of l to the next term, if the next
// partition is clean. It reports whether this call performed the rotation.
func (l *Log) Rotate() bool {
	active := l.ActivePartitionIndex()
	if l.partitions[NextPartitionIndex(active)].Status() != Clean {
		return false
	}
	termID := l.partitions[active].TermID()
	return RotateLog(l.partitions, l.meta, active, termID+1)
}

// Unblock attempts to unblock l at the given stream position. See [Unblock].
func (l *Log) Unblock(blockedPosition int64) bool {
	return Unblock(l.partitions, l.meta, blockedPosition)
}
