// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build unix

package logfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap log file: %w", err)
	}
	return mem, nil
}

func unmapFile(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap log file: %w", err)
	}
	return nil
}

func syncFile(mem []byte) error {
	if err := unix.Msync(mem, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync log file: %w", err)
	}
	return nil
}
