// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package infradb

import (
	"github.com/google/uuid"

	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/common"
)

// OperStatus is the operational status of an infradb object
type OperStatus int32

const (
	// OperStatusUnspecified is the zero value
	OperStatusUnspecified OperStatus = iota
	// OperStatusUp means every subscriber applied the object
	OperStatusUp
	// OperStatusDown means some subscriber has not applied the object yet
	OperStatusDown
	// OperStatusToBeDeleted means the object goes away once every subscriber
	// removed it
	OperStatusToBeDeleted
)

func (s OperStatus) String() string {
	switch s {
	case OperStatusUp:
		return "up"
	case OperStatusDown:
		return "down"
	case OperStatusToBeDeleted:
		return "to-be-deleted"
	default:
		return "unspecified"
	}
}

// Status is the status part shared by every object
type Status struct {
	OperStatus OperStatus
	Components []common.Component
}

// Component returns the status reported by the named subscriber
func (s *Status) Component(name string) (common.Component, bool) {
	for _, c := range s.Components {
		if c.Name == name {
			return c, true
		}
	}
	return common.Component{}, false
}

// EvpnObject is implemented by every object kept in infradb
type EvpnObject interface {
	GetName() string
	GetResourceVersion() string
	setResourceVersion(string)
	status() *Status
}

func generateVersion() string {
	return uuid.NewString()
}
