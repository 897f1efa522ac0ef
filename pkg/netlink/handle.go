// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package netlink watches the kernel bridge FDB and neighbor tables for
// local learning and programs the entries decided by the EVPN engine
package netlink

import (
	vn "github.com/vishvananda/netlink"
)

// Handle is the subset of netlink used by the package
type Handle interface {
	LinkByName(name string) (vn.Link, error)
	NeighList(linkIndex, family int) ([]vn.Neigh, error)
	NeighSet(neigh *vn.Neigh) error
	NeighAppend(neigh *vn.Neigh) error
	NeighDel(neigh *vn.Neigh) error
}

type kernel struct{}

// Kernel returns the Handle talking to the kernel of the current netns
func Kernel() Handle {
	return kernel{}
}

func (kernel) LinkByName(name string) (vn.Link, error) {
	return vn.LinkByName(name)
}

func (kernel) NeighList(linkIndex, family int) ([]vn.Neigh, error) {
	return vn.NeighList(linkIndex, family)
}

func (kernel) NeighSet(neigh *vn.Neigh) error {
	return vn.NeighSet(neigh)
}

func (kernel) NeighAppend(neigh *vn.Neigh) error {
	return vn.NeighAppend(neigh)
}

func (kernel) NeighDel(neigh *vn.Neigh) error {
	return vn.NeighDel(neigh)
}
