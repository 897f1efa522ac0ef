// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package netlink

import (
	"net/netip"
	"sync"

	vn "github.com/vishvananda/netlink"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

type fdbKey struct {
	vlan uint16
	mac  evpn.MACAddr
}

type sviKey struct {
	ifindex int
	ip      netip.Addr
}

// Installs remembers the entries the programmer put in the kernel as static
// on behalf of an ES peer while nothing was learnt locally. Reading one of
// them back unchanged is not local activity.
type Installs struct {
	mu     sync.Mutex
	macs   map[fdbKey]int
	neighs map[sviKey]evpn.MACAddr
}

// NewInstalls returns an empty registry
func NewInstalls() *Installs {
	return &Installs{
		macs:   make(map[fdbKey]int),
		neighs: make(map[sviKey]evpn.MACAddr),
	}
}

func (r *Installs) setMAC(n *vn.Neigh, mac evpn.MACAddr, inactive bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := fdbKey{uint16(n.Vlan), mac}
	if inactive && n.State == vn.NUD_NOARP {
		r.macs[k] = n.LinkIndex
		return
	}
	delete(r.macs, k)
}

func (r *Installs) delMAC(vlan uint16, mac evpn.MACAddr) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.macs, fdbKey{vlan, mac})
}

// inactiveMAC reports whether the bridge entry is still exactly what we
// installed for a peer
func (r *Installs) inactiveMAC(n *vn.Neigh, mac evpn.MACAddr) bool {
	if r == nil || n.State&vn.NUD_NOARP == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ifindex, ok := r.macs[fdbKey{uint16(n.Vlan), mac}]
	return ok && ifindex == n.LinkIndex
}

func (r *Installs) setNeigh(n *vn.Neigh, ip netip.Addr, mac evpn.MACAddr, inactive bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sviKey{n.LinkIndex, ip}
	if inactive && n.State == vn.NUD_NOARP {
		r.neighs[k] = mac
		return
	}
	delete(r.neighs, k)
}

func (r *Installs) delNeigh(ifindex int, ip netip.Addr) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.neighs, sviKey{ifindex, ip})
}

func (r *Installs) inactiveNeigh(n *vn.Neigh, ip netip.Addr, mac evpn.MACAddr) bool {
	if r == nil || n.State&(vn.NUD_NOARP|vn.NUD_PERMANENT) == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want, ok := r.neighs[sviKey{n.LinkIndex, ip}]
	return ok && want == mac
}

func (r *Installs) size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.macs), len(r.neighs)
}
