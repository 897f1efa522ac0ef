// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package common holds the types shared by infradb and its subscribers
package common

import (
	"time"
)

// ComponentStatus is the progress of one subscriber on an object
type ComponentStatus int

const (
	// ComponentStatusUnspecified is the zero value
	ComponentStatusUnspecified ComponentStatus = iota + 1
	// ComponentStatusPending means the subscriber has not applied the object yet
	ComponentStatusPending
	// ComponentStatusSuccess means the subscriber applied the object
	ComponentStatusSuccess
	// ComponentStatusError means the subscriber failed and asked for a retry
	ComponentStatusError
)

func (s ComponentStatus) String() string {
	switch s {
	case ComponentStatusPending:
		return "pending"
	case ComponentStatusSuccess:
		return "success"
	case ComponentStatusError:
		return "error"
	default:
		return "unspecified"
	}
}

// Component is the status a subscriber reports for an object
type Component struct {
	Name       string
	CompStatus ComponentStatus
	// Free format json string
	Details string
	// Timer is the retry delay requested on error
	Timer time.Duration
}

// NextRetry doubles the retry delay, starting at one second and capped at max
func NextRetry(prev, max time.Duration) time.Duration {
	if prev <= 0 {
		return time.Second
	}
	if next := prev * 2; next < max {
		return next
	}
	return max
}
