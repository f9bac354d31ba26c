// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package logfile stores a [logbuf.Log] in a memory-mapped file, so that it
// can be shared by several processes and inspected after they exit.
//
// The file holds the log exactly as laid out in memory: the three terms, the
// three term metadata buffers, and the log metadata buffer. Multi-byte values
// are stored in native byte order, so a log file is only portable between
// machines of the same byte order.
package logfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creachadair/logbuf"
	"github.com/creachadair/logbuf/buffer"
	"github.com/google/uuid"
	"golang.org/x/exp/mmap"
)

// A File is a log stored in a memory-mapped file.
type File struct {
	f    *os.File
	mem  []byte
	log  *logbuf.Log
	path string
}

// Create creates a new log file at path with the given configuration, maps
// it into memory, and formats it. It is an error if path already exists.
func Create(path string, cfg logbuf.Config) (*File, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size := logbuf.LogLength(cfg.TermLength)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	cleanup := func() { f.Close(); os.Remove(path) }

	if err := f.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("resize log file: %w", err)
	}
	mem, err := mapFile(f, size)
	if err != nil {
		cleanup()
		return nil, err
	}
	lg, err := logbuf.Wrap(buffer.New(mem), cfg)
	if err != nil {
		unmapFile(mem)
		cleanup()
		return nil, err
	}
	return &File{f: f, mem: mem, log: lg, path: path}, nil
}

// Open maps an existing log file at path into memory for reading and
// writing, and attaches to the log it contains.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	size := fi.Size()
	if size < int64(logbuf.LogLength(logbuf.MinTermLength)) || size > int64(logbuf.LogLength(logbuf.MaxTermLength)) {
		f.Close()
		return nil, fmt.Errorf("log file %q has invalid size %d: %w", path, size, logbuf.ErrInvalidConfig)
	}
	mem, err := mapFile(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}
	lg, err := logbuf.Attach(buffer.New(mem))
	if err != nil {
		unmapFile(mem)
		f.Close()
		return nil, fmt.Errorf("log file %q: %w", path, err)
	}
	return &File{f: f, mem: mem, log: lg, path: path}, nil
}

// Log returns the log stored in f. The log must not be used after f is
// closed.
func (f *File) Log() *logbuf.Log { return f.log }

// Path returns the path of the file.
func (f *File) Path() string { return f.path }

// Sync flushes changes to the log to the file.
func (f *File) Sync() error { return syncFile(f.mem) }

// Close unmaps the log and closes the file. The file remains on disk.
func (f *File) Close() error {
	if f.mem == nil {
		return nil
	}
	uerr := unmapFile(f.mem)
	cerr := f.f.Close()
	f.mem, f.log = nil, nil
	return errors.Join(uerr, cerr)
}

// Remove closes f and removes its file.
func (f *File) Remove() error {
	return errors.Join(f.Close(), os.Remove(f.path))
}

// Snapshot reads a copy of the log file at path into private memory. The
// copy is not affected by later changes to the file, and changes to the copy
// are not written back.
func Snapshot(path string) (*logbuf.Log, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer r.Close()

	mem := buffer.Alloc(r.Len())
	if _, err := r.ReadAt(mem.Bytes(), 0); err != nil {
		return nil, fmt.Errorf("snapshot: read %q: %w", path, err)
	}
	lg, err := logbuf.Attach(mem)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", path, err)
	}
	return lg, nil
}

// TempName returns a path in dir for a new log file, with a unique name
// beginning with prefix. If dir is empty, os.TempDir() is used.
func TempName(dir, prefix string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, prefix+uuid.NewString()+".log")
}
