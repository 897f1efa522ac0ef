// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import "errors"

var (
	// ErrUnknownVNI is returned for updates referencing a VNI that is not configured
	ErrUnknownVNI = errors.New("unknown VNI")
	// ErrUnknownL3VNI is returned for updates referencing an unconfigured L3 VNI
	ErrUnknownL3VNI = errors.New("unknown L3 VNI")
	// ErrNotFound is returned when a delete targets a missing entry
	ErrNotFound = errors.New("entry not found")
	// ErrTableFull is returned when a VNI table cannot take another entry
	ErrTableFull = errors.New("table full")
	// ErrInvalidUpdate is returned for updates missing mandatory fields
	ErrInvalidUpdate = errors.New("invalid update")
)
