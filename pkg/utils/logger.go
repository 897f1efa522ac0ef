// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package utils has some utility functions and interfaces
package utils

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// NewModuleLogger returns a logger tagging every entry with module. An
// empty or unknown level falls back to info.
func NewModuleLogger(module, level string) *log.Entry {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l.WithField("module", module)
}

// SetLevel changes the level of an existing module logger
func SetLevel(entry *log.Entry, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	entry.Logger.SetLevel(lvl)
	return nil
}
