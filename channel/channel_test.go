// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/creachadair/logbuf"
	"github.com/creachadair/logbuf/channel"
	"github.com/creachadair/logbuf/frame"
	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

func newLog(t *testing.T, termLength int) *logbuf.Log {
	t.Helper()
	lg, err := logbuf.New(logbuf.Config{TermLength: termLength, InitialTermID: 1000})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	return lg
}

// publish offers msg to pub, cleaning the log if it needs an admin action.
func publish(t *testing.T, lg *logbuf.Log, pub *channel.Publisher, msg string) int64 {
	t.Helper()
	pos, err := pub.Offer([]byte(msg))
	if errors.Is(err, logbuf.ErrAdminAction) {
		lg.CleanDirty()
		pos, err = pub.Offer([]byte(msg))
	}
	if err != nil {
		t.Fatalf("Offer %q: unexpected error: %v", msg, err)
	}
	return pos
}

func collect(got *[]string) channel.Handler {
	return func(msg []byte, _ *frame.Header) error {
		*got = append(*got, string(msg))
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	lg := newLog(t, 256)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, pub.Position())

	if n, err := sub.Poll(collect(new([]string)), 10); n != 0 || err != nil {
		t.Errorf("Poll empty: got (%d, %v), want (0, nil)", n, err)
	}

	// Enough messages to rotate through every partition more than once.
	var got, want []string
	for i := range 40 {
		msg := fmt.Sprintf("message %02d", i)
		want = append(want, msg)
		pos := publish(t, lg, pub, msg)

		n, err := sub.Poll(collect(&got), 10)
		if err != nil {
			t.Fatalf("Poll: unexpected error: %v", err)
		}
		if n != 1 {
			t.Errorf("Poll after %q: got %d messages, want 1", msg, n)
		}
		if sub.Position() != pos {
			t.Errorf("Position = %d, want %d", sub.Position(), pos)
		}
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Messages (-got, +want):\n%s", diff)
	}
	if pos := pub.Position(); pos < 3*256 {
		t.Errorf("Publisher position %d, want at least %d", pos, 3*256)
	}
}

func TestPollLimit(t *testing.T) {
	lg := newLog(t, 1024)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, 0)
	for _, s := range strings.Fields("a b c d e") {
		publish(t, lg, pub, s)
	}

	var got []string
	for _, limit := range []int{2, 0, 10} {
		if _, err := sub.Poll(collect(&got), limit); err != nil {
			t.Fatalf("Poll(%d): unexpected error: %v", limit, err)
		}
	}
	if diff := cmp.Diff(got, strings.Fields("a b c d e")); diff != "" {
		t.Errorf("Messages (-got, +want):\n%s", diff)
	}
	if n, _ := sub.Poll(collect(&got), 10); n != 0 {
		t.Errorf("Poll at end: got %d messages, want 0", n)
	}
}

func TestPollAcrossTerms(t *testing.T) {
	lg := newLog(t, 256)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, 0)

	// Fill the first term and spill into the second before reading.
	var want []string
	for i := range 10 {
		msg := fmt.Sprintf("m%d", i)
		want = append(want, msg)
		publish(t, lg, pub, msg)
	}

	var got []string
	n, err := sub.Poll(collect(&got), 100)
	if err != nil {
		t.Fatalf("Poll: unexpected error: %v", err)
	}
	if n != len(want) {
		t.Errorf("Poll: got %d messages, want %d", n, len(want))
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Messages (-got, +want):\n%s", diff)
	}
	if sub.Position() != pub.Position() {
		t.Errorf("Position = %d, want %d", sub.Position(), pub.Position())
	}
}

func TestPollHandlerError(t *testing.T) {
	lg := newLog(t, 1024)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, 0)
	for _, s := range strings.Fields("ok bad ok") {
		publish(t, lg, pub, s)
	}

	var got []string
	h := func(msg []byte, hdr *frame.Header) error {
		if string(msg) == "bad" {
			return errors.New("rejected")
		}
		return collect(&got)(msg, hdr)
	}
	n, err := sub.Poll(h, 10)
	if err == nil || err.Error() != "rejected" {
		t.Errorf("Poll: got error %v, want rejected", err)
	}
	if n != 1 {
		t.Errorf("Poll: got %d messages, want 1", n)
	}

	// The failed message is consumed; polling resumes after it.
	if n, err := sub.Poll(h, 10); n != 1 || err != nil {
		t.Errorf("Poll: got (%d, %v), want (1, nil)", n, err)
	}
	if diff := cmp.Diff(got, []string{"ok", "ok"}); diff != "" {
		t.Errorf("Messages (-got, +want):\n%s", diff)
	}
}

func TestPollOverrun(t *testing.T) {
	lg := newLog(t, 256)
	sub := channel.NewSubscriber(lg, 0)

	// Cycle the log through all three partitions, reusing partition 0.
	for range logbuf.PartitionCount {
		lg.CleanDirty()
		if !lg.Rotate() {
			t.Fatal("Rotate failed")
		}
	}
	n, err := sub.Poll(collect(new([]string)), 10)
	if !errors.Is(err, channel.ErrOverrun) {
		t.Errorf("Poll: got (%d, %v), want %v", n, err, channel.ErrOverrun)
	}

	// A subscriber ahead of the log waits for its term to become live.
	ahead := channel.NewSubscriber(lg, int64(4*lg.TermLength()))
	if n, err := ahead.Poll(collect(new([]string)), 10); n != 0 || err != nil {
		t.Errorf("Poll ahead: got (%d, %v), want (0, nil)", n, err)
	}
}

func TestMessages(t *testing.T) {
	lg := newLog(t, 1024)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, 0)
	for _, s := range strings.Fields("one two three four") {
		publish(t, lg, pub, s)
	}

	var got []string
	for msg, err := range sub.Messages(10) {
		if err != nil {
			t.Fatalf("Messages: unexpected error: %v", err)
		}
		got = append(got, string(msg))
		if len(got) == 2 {
			break
		}
	}
	for msg, err := range sub.Messages(10) {
		if err != nil {
			t.Fatalf("Messages: unexpected error: %v", err)
		}
		got = append(got, string(msg))
	}
	if diff := cmp.Diff(got, strings.Fields("one two three four")); diff != "" {
		t.Errorf("Messages (-got, +want):\n%s", diff)
	}

	// Errors are reported through the iterator.
	for range logbuf.PartitionCount {
		lg.CleanDirty()
		lg.Rotate()
	}
	stale := channel.NewSubscriber(lg, 0)
	var errs []error
	for msg, err := range stale.Messages(10) {
		if msg != nil {
			t.Errorf("Unexpected message %q", msg)
		}
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], channel.ErrOverrun) {
		t.Errorf("Errors: got %v, want [%v]", errs, channel.ErrOverrun)
	}
}

func TestConcurrent(t *testing.T) {
	defer leaktest.Check(t)()

	const numMessages = 500
	lg := newLog(t, 1<<16)
	pub := channel.NewPublisher(lg)
	sub := channel.NewSubscriber(lg, 0)

	var got []string
	g := taskgroup.New(nil)
	g.Go(func() error {
		for len(got) < numMessages {
			if _, err := sub.Poll(collect(&got), 16); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := range numMessages {
			if _, err := pub.Offer(fmt.Appendf(nil, "%04d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	for i, s := range got {
		if want := fmt.Sprintf("%04d", i); s != want {
			t.Fatalf("Message %d: got %q, want %q", i, s, want)
		}
	}
}
