// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package channel provides a publisher and subscribers for the message stream
// carried by a [logbuf.Log].
//
// A [Publisher] appends messages to the active term of a log. A [Subscriber]
// follows the stream from a position, moving from one term to the next as
// the log rotates. Any number of subscribers may follow the same log, each at
// its own position; a subscriber must not be shared among goroutines.
package channel

import (
	"bytes"
	"errors"
	"fmt"
	"iter"

	"github.com/creachadair/logbuf"
	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/frame"
)

// ErrOverrun is reported by a [Subscriber] whose position refers to a term
// that the log has already reused for a later term.
var ErrOverrun = errors.New("subscriber position overrun")

// A Publisher appends messages to a log.
type Publisher struct {
	log *logbuf.Log
}

// NewPublisher constructs a publisher that appends to lg.
func NewPublisher(lg *logbuf.Log) *Publisher { return &Publisher{log: lg} }

// Offer appends msg to the log and returns the stream position following
// it. See [logbuf.Log.Offer].
func (p *Publisher) Offer(msg []byte) (int64, error) { return p.log.Offer(msg) }

// Position reports the position at which the next message will be appended.
func (p *Publisher) Position() int64 { return p.log.ProducerPosition() }

// MaxMessageLength reports the largest message the publisher can offer.
func (p *Publisher) MaxMessageLength() int { return p.log.MaxMessageLength() }

// A Handler processes a message delivered to a [Subscriber]. The contents of
// msg and hdr are only valid until the handler returns.
type Handler func(msg []byte, hdr *frame.Header) error

// A Subscriber reads messages from a log, starting from a stream position.
type Subscriber struct {
	log *logbuf.Log
	pos int64
	hdr frame.Header
}

// NewSubscriber constructs a subscriber that reads lg from position, which
// must be the position of a frame boundary, such as a value reported by
// [Publisher.Position].
func NewSubscriber(lg *logbuf.Log, position int64) *Subscriber {
	return &Subscriber{log: lg, pos: position}
}

// Position reports the position of the next message s will read.
func (s *Subscriber) Position() int64 { return s.pos }

// Poll delivers up to limit available messages to handler, and reports how
// many were delivered. A limit of zero or less delivers at most one message.
// Poll does not wait: if no message is available it returns 0, nil.
//
// If handler reports an error or panics, Poll stops and returns the failure.
// The failed message is consumed and is not counted. If the log has reused
// the term at the position of s, Poll reports [ErrOverrun].
func (s *Subscriber) Poll(handler Handler, limit int) (int, error) {
	limit = max(limit, 1)
	bits := s.log.PositionBitsToShift()
	termLength := int32(s.log.TermLength())

	var handlerErr error
	onError := func(err error) { handlerErr = err }
	fragment := func(buf buffer.Buffer, off, n int32, hdr *frame.Header) error {
		return handler(buf.Range(int(off), int(n)), hdr)
	}

	var delivered int
	for delivered < limit {
		termID := s.log.InitialTermID() + int32(s.pos>>bits)
		part := s.log.Partition(logbuf.IndexByPosition(s.pos, bits))
		if cur := part.TermID(); cur != termID {
			if cur-termID > 0 {
				return delivered, fmt.Errorf("term %d at position %d replaced by term %d: %w", termID, s.pos, cur, ErrOverrun)
			}
			break // the term is not live yet
		}

		offset := logbuf.ComputeTermOffsetFromPosition(s.pos, bits)
		out := logbuf.Read(part.TermBuffer(), offset, fragment, limit-delivered, &s.hdr, onError)
		s.pos += int64(out.Offset() - offset)
		delivered += int(out.Fragments())
		if handlerErr != nil {
			return delivered, handlerErr
		}
		if out.Offset() < termLength {
			break // caught up with the writer, or reached the limit
		}
	}
	return delivered, nil
}

// errStop is used by Messages to end a read pass early.
var errStop = errors.New("stop reading")

// Messages returns an iterator over up to limit currently available messages,
// each paired with a nil error. If the subscriber cannot read, the iterator
// yields a nil message with the error and stops. A message is consumed once
// it has been yielded, even if the loop ends at that message.
func (s *Subscriber) Messages(limit int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		_, err := s.Poll(func(msg []byte, _ *frame.Header) error {
			if !yield(bytes.Clone(msg), nil) {
				return errStop
			}
			return nil
		}, limit)
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, err)
		}
	}
}
