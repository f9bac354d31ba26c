// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build !unix

package logfile

import (
	"errors"
	"os"
)

func mapFile(*os.File, int) ([]byte, error) { return nil, errors.ErrUnsupported }
func unmapFile([]byte) error                { return errors.ErrUnsupported }
func syncFile([]byte) error                 { return errors.ErrUnsupported }
