// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/creachadair/logbuf"
	"gopkg.in/yaml.v3"
)

// loadConfig reads a log configuration from the YAML file at path. Fields
// not set in the file are zero.
//
// Example:
//
//	term_length: 65536
//	initial_term_id: 0
//	mtu: 4096
func loadConfig(path string) (logbuf.Config, error) {
	var cfg logbuf.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// mergeConfig returns base with each non-zero field of over replacing the
// corresponding field of base.
func mergeConfig(base, over logbuf.Config) logbuf.Config {
	if over.TermLength != 0 {
		base.TermLength = over.TermLength
	}
	if over.InitialTermID != 0 {
		base.InitialTermID = over.InitialTermID
	}
	if over.MTU != 0 {
		base.MTU = over.MTU
	}
	return base
}
