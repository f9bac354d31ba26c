// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package conductor implements housekeeping for a [logbuf.Log].
//
// A [Conductor] periodically cleans partitions retired by term rotation, and
// watches for writers that claimed space in a term but never completed their
// frame. When the stream has made no progress past such a frame for longer
// than a timeout, the conductor unblocks the log by padding out the dead
// region, so that readers can continue.
//
// At most one conductor should service a given log.
package conductor

import (
	"context"
	"log/slog"
	"time"

	"github.com/creachadair/logbuf"
	"github.com/creachadair/taskgroup"
)

// Options control the behavior of a [Conductor]. A nil *Options provides
// default values as described.
type Options struct {
	// How long the stream must be stalled at an incomplete frame before the
	// conductor unblocks it. If zero, DefaultTimeout is used.
	Timeout time.Duration

	// How often Run performs a duty cycle. If zero, DefaultInterval is used.
	Interval time.Duration

	// Where to write log messages. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Default option values.
const (
	DefaultTimeout  = time.Second
	DefaultInterval = 100 * time.Millisecond
)

func (o *Options) timeout() time.Duration {
	if o == nil || o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o *Options) interval() time.Duration {
	if o == nil || o.Interval <= 0 {
		return DefaultInterval
	}
	return o.Interval
}

func (o *Options) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// A Conductor performs housekeeping for a log. A Conductor is not safe for
// concurrent use by multiple goroutines.
type Conductor struct {
	log      *logbuf.Log
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger

	scanPos  int64     // position up to which frames are known complete
	lastMove time.Time // when scanPos last advanced
}

// New constructs a conductor for lg. The scan for stalled writers begins at
// the current producer position of lg.
func New(lg *logbuf.Log, opts *Options) *Conductor {
	return &Conductor{
		log:      lg,
		timeout:  opts.timeout(),
		interval: opts.interval(),
		logger:   opts.logger(),
		scanPos:  lg.ProducerPosition(),
	}
}

// ScanPosition reports the position up to which the conductor has verified
// that every frame in the stream is complete.
func (c *Conductor) ScanPosition() int64 { return c.scanPos }

// A Cycle reports the results of one duty cycle of a [Conductor].
type Cycle struct {
	Cleaned   int   // partitions cleaned
	Scanned   int   // complete frames passed by the scan
	Position  int64 // scan position after the cycle
	Producer  int64 // producer position observed during the cycle
	Unblocked bool  // whether a stalled writer was unblocked
}

// Check performs one duty cycle at the given time. It scans the stream for
// newly completed frames, unblocks the log if the scan has been stalled
// behind the producer for at least the timeout, and cleans any partitions
// that rotation has marked for cleaning.
func (c *Conductor) Check(now time.Time) Cycle {
	if c.lastMove.IsZero() {
		c.lastMove = now
	}

	var cy Cycle
	cy.Scanned = c.scan()
	cy.Producer = c.log.ProducerPosition()

	// The stall clock starts when the scan is first seen behind the producer.
	if cy.Scanned > 0 || c.scanPos >= cy.Producer {
		c.lastMove = now
	}

	if c.scanPos < cy.Producer && now.Sub(c.lastMove) >= c.timeout {
		if c.log.Unblock(c.scanPos) {
			cy.Unblocked = true
			c.logger.Info("unblocked stalled writer",
				"position", c.scanPos, "producer", cy.Producer, "stalled", now.Sub(c.lastMove))
			cy.Scanned += c.scan()
		}
		c.lastMove = now
	}

	if cy.Cleaned = c.log.CleanDirty(); cy.Cleaned > 0 {
		c.logger.Debug("cleaned partitions", "count", cy.Cleaned)
	}
	cy.Position = c.scanPos
	return cy
}

// scan advances the scan position over complete frames, moving from term to
// term as the log rotates, and reports the number of data frames passed.
func (c *Conductor) scan() int {
	bits := c.log.PositionBitsToShift()
	termLength := int32(c.log.TermLength())

	var frames int
	for {
		termID := c.log.InitialTermID() + int32(c.scanPos>>bits)
		part := c.log.Partition(logbuf.IndexByPosition(c.scanPos, bits))
		if cur := part.TermID(); cur != termID {
			if cur-termID > 0 {
				// The log has moved on without us; resume at the start of
				// the active term.
				active := c.log.ActivePartition().TermID()
				c.logger.Warn("scan position overrun", "position", c.scanPos, "term", termID, "active", active)
				c.scanPos = logbuf.ComputeTermBeginPosition(active, bits, c.log.InitialTermID())
				continue
			}
			return frames
		}

		offset := logbuf.ComputeTermOffsetFromPosition(c.scanPos, bits)
		out := logbuf.ReadAppends(part.TermBuffer(), offset, nil, int(termLength))
		c.scanPos += int64(out.Offset() - offset)
		frames += int(out.Fragments())
		if out.Offset() < termLength {
			return frames
		}
	}
}

// Run performs a duty cycle every interval until ctx ends. It returns nil
// when ctx ends.
func (c *Conductor) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	c.logger.Debug("conductor started", "timeout", c.timeout, "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("conductor stopped", "position", c.scanPos)
			return nil
		case now := <-t.C:
			c.Check(now)
		}
	}
}

// Loop runs each of the given conductors in its own goroutine until ctx ends,
// and waits for all of them to exit.
func Loop(ctx context.Context, cs ...*Conductor) error {
	g := taskgroup.New(nil)
	for _, c := range cs {
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}
