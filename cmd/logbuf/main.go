// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program logbuf is a command-line utility for creating, inspecting, and
// maintaining log buffer files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/logbuf"
	"github.com/creachadair/logbuf/buffer"
	"github.com/creachadair/logbuf/conductor"
	"github.com/creachadair/logbuf/frame"
	"github.com/creachadair/logbuf/logfile"
	"github.com/creachadair/mds/value"
	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var createFlags struct {
	TermLength    int    `flag:"term-length,Term length in bytes (power of 2)"`
	InitialTermID int    `flag:"initial-term-id,Initial term ID"`
	MTU           int    `flag:"mtu,Maximum transmission unit in bytes"`
	Config        string `flag:"config,Read log configuration from this YAML file"`
}

var dumpFlags struct {
	Limit int `flag:"limit,default=64,Maximum payload bytes to print per frame (0 for all)"`
}

var watchFlags struct {
	Timeout     time.Duration `flag:"timeout,default=1s,Unblock a stream stalled for this long"`
	Interval    time.Duration `flag:"interval,default=100ms,Check logs at this interval"`
	MetricsAddr string        `flag:"metrics-addr,Serve Prometheus metrics at this address"`
	Debug       bool          `flag:"debug,Enable debug logging"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for creating and maintaining log buffer files.",
		Commands: []*command.C{
			{
				Name:     "create",
				Usage:    "[flags] <path>",
				Help:     "Create and format a new log file.",
				SetFlags: command.Flags(flax.MustBind, &createFlags),
				Run:      runCreate,
			},
			{
				Name:  "info",
				Usage: "<path>...",
				Help:  "Print the geometry and partition state of log files.",
				Run:   runInfo,
			},
			{
				Name:  "dump",
				Usage: "[flags] <path>",
				Help: `Print the frames of a log file.

The log is read from a snapshot, so the file may be in use by writers.
Terms are printed from oldest to newest.`,
				SetFlags: command.Flags(flax.MustBind, &dumpFlags),
				Run:      runDump,
			},
			{
				Name:  "append",
				Usage: "<path> <message>...",
				Help: `Append each message to a log file, and print the position after it.

If the log cannot rotate until a retired partition is cleaned, append cleans
it and retries.`,
				Run:   runAppend,
			},
			{
				Name:  "unblock",
				Usage: "<path> <position>",
				Help: `Unblock a log file at a stream position.

If a writer claimed space at the position but did not complete its frame,
the dead region is replaced by padding so that readers can continue.`,
				Run: runUnblock,
			},
			{
				Name:  "watch",
				Usage: "[flags] <path>...",
				Help: `Maintain log files until interrupted.

Partitions retired by rotation are cleaned, and streams stalled by a writer
that failed to complete its frame are unblocked after the timeout.`,
				SetFlags: command.Flags(flax.MustBind, &watchFlags),
				Run:      runWatch,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runCreate(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Expected exactly one log path")
	}
	var cfg logbuf.Config
	if createFlags.Config != "" {
		fc, err := loadConfig(createFlags.Config)
		if err != nil {
			return err
		}
		cfg = fc
	}
	cfg = mergeConfig(cfg, logbuf.Config{
		TermLength:    createFlags.TermLength,
		InitialTermID: int32(createFlags.InitialTermID),
		MTU:           createFlags.MTU,
	})

	f, err := logfile.Create(env.Args[0], cfg)
	if err != nil {
		return err
	}
	defer f.Close()
	fmt.Printf("%s: created log, term length %d, %d bytes\n",
		f.Path(), f.Log().TermLength(), logbuf.LogLength(f.Log().TermLength()))
	return nil
}

func runInfo(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("Missing log path")
	}
	for _, path := range env.Args {
		lg, err := logfile.Snapshot(path)
		if err != nil {
			return err
		}
		active := lg.ActivePartitionIndex()
		fmt.Printf("%s:\n", path)
		fmt.Printf("  term length:     %d\n", lg.TermLength())
		fmt.Printf("  initial term:    %d\n", lg.InitialTermID())
		fmt.Printf("  mtu:             %d\n", logbuf.MTULength(lg.MetaData()))
		fmt.Printf("  max message:     %d\n", lg.MaxMessageLength())
		fmt.Printf("  producer:        %d\n", lg.ProducerPosition())
		for i, p := range lg.Partitions() {
			fmt.Printf("  %s partition %d: %v\n", value.Cond(i == active, "*", " "), i, p)
		}
	}
	return nil
}

func runDump(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("Expected exactly one log path")
	}
	lg, err := logfile.Snapshot(env.Args[0])
	if err != nil {
		return err
	}

	// Visit terms from oldest to newest, ending with the active term.
	active := lg.ActivePartitionIndex()
	bits := lg.PositionBitsToShift()
	hdr := new(frame.Header)
	for k := range logbuf.PartitionCount {
		p := lg.Partition((active + 1 + k) % logbuf.PartitionCount)
		tail := p.TailOffsetVolatile()
		if tail == 0 {
			continue
		}
		termID := p.TermID()
		base := logbuf.ComputeTermBeginPosition(termID, bits, lg.InitialTermID())
		fmt.Printf("-- term %d: %v\n", termID, p)

		out := logbuf.Read(p.TermBuffer(), 0, func(buf buffer.Buffer, off, n int32, h *frame.Header) error {
			fmt.Printf("%d\t%s\t%s\n", base+int64(h.Offset()), h, formatPayload(buf.Range(int(off), int(n)), dumpFlags.Limit))
			return nil
		}, lg.TermLength(), hdr, nil)
		if out.Offset() < tail {
			fmt.Printf("-- blocked at position %d (tail %d)\n", base+int64(out.Offset()), base+int64(tail))
		}
	}
	return nil
}

// formatPayload renders up to limit bytes of data as a quoted string, noting
// how many bytes were omitted. A limit of zero or less prints all of data.
func formatPayload(data []byte, limit int) string {
	if limit <= 0 || len(data) <= limit {
		return strconv.Quote(string(data))
	}
	return fmt.Sprintf("%q... (%d more bytes)", data[:limit], len(data)-limit)
}

func runAppend(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("Expected a log path and at least one message")
	}
	f, err := logfile.Open(env.Args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	lg := f.Log()
	for _, msg := range env.Args[1:] {
		pos, err := lg.Offer([]byte(msg))
		if errors.Is(err, logbuf.ErrAdminAction) {
			lg.CleanDirty()
			pos, err = lg.Offer([]byte(msg))
		}
		if err != nil {
			return fmt.Errorf("append %q: %w", msg, err)
		}
		fmt.Println(pos)
	}
	return f.Sync()
}

func runUnblock(env *command.Env) error {
	if len(env.Args) != 2 {
		return env.Usagef("Expected a log path and a position")
	}
	pos, err := strconv.ParseInt(env.Args[1], 10, 64)
	if err != nil || pos < 0 {
		return env.Usagef("Invalid position %q", env.Args[1])
	}
	f, err := logfile.Open(env.Args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ok := f.Log().Unblock(pos)
	fmt.Printf("%s: position %d: %s\n", f.Path(), pos, value.Cond(ok, "unblocked", "no action"))
	return f.Sync()
}

func runWatch(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("Missing log path")
	}
	level := value.Cond(watchFlags.Debug, slog.LevelDebug, slog.LevelInfo)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	logs := make(map[string]*logbuf.Log)
	var cs []*conductor.Conductor
	for _, path := range env.Args {
		f, err := logfile.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		logs[path] = f.Log()
		cs = append(cs, conductor.New(f.Log(), &conductor.Options{
			Timeout:  watchFlags.Timeout,
			Interval: watchFlags.Interval,
			Logger:   logger.With("path", path),
		}))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	g := taskgroup.New(cancel)
	g.Go(func() error { return conductor.Loop(ctx, cs...) })
	if addr := watchFlags.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:    addr,
			Handler: promhttp.HandlerFor(newRegistry(logs), promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}
	logger.Info("watching logs", "count", len(cs))
	return g.Wait()
}
