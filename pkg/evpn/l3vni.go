// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"cmp"
	"net/netip"
	"slices"

	log "github.com/sirupsen/logrus"
)

// L3VNIConfig carries the provisioned attributes of a symmetric IRB L3 VNI
type L3VNIConfig struct {
	ID        uint32
	VRFID     uint32
	RMAC      MACAddr
	LocalVTEP netip.Addr
}

// HostRoute is a remote host prefix reachable through a VTEP and router MAC
type HostRoute struct {
	Prefix netip.Prefix
	RMAC   MACAddr
	VTEP   netip.Addr
}

// prefixSet is an ordered set of host prefixes referencing an entry
type prefixSet []netip.Prefix

func comparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return cmp.Compare(a.Bits(), b.Bits())
}

func (s *prefixSet) add(p netip.Prefix) bool {
	i, found := slices.BinarySearchFunc(*s, p, comparePrefix)
	if found {
		return false
	}
	*s = slices.Insert(*s, i, p)
	return true
}

func (s *prefixSet) remove(p netip.Prefix) bool {
	i, found := slices.BinarySearchFunc(*s, p, comparePrefix)
	if !found {
		return false
	}
	*s = slices.Delete(*s, i, i+1)
	return true
}

// Nexthop is a remote VTEP used by host routes of an L3 VNI
type Nexthop struct {
	VTEP     netip.Addr
	RMAC     MACAddr
	prefixes prefixSet
}

// Prefixes returns the host prefixes using the nexthop
func (n *Nexthop) Prefixes() []netip.Prefix {
	return slices.Clone(n.prefixes)
}

// RMAC is a remote router MAC used by host routes of an L3 VNI
type RMAC struct {
	RMAC     MACAddr
	VTEP     netip.Addr
	prefixes prefixSet
}

// Prefixes returns the host prefixes using the router MAC
func (r *RMAC) Prefixes() []netip.Prefix {
	return slices.Clone(r.prefixes)
}

// L3VNI is a routed overlay segment
type L3VNI struct {
	L3VNIConfig

	nexthops map[netip.Addr]*Nexthop
	rmacs    map[MACAddr]*RMAC
	// router MAC and VTEP each prefix was last added with
	routes map[netip.Prefix]HostRoute
}

// Nexthops returns the nexthops ordered by VTEP
func (l *L3VNI) Nexthops() []*Nexthop {
	out := make([]*Nexthop, 0, len(l.nexthops))
	for _, nh := range l.nexthops {
		out = append(out, nh)
	}
	slices.SortFunc(out, func(a, b *Nexthop) int { return a.VTEP.Compare(b.VTEP) })
	return out
}

// RMACs returns the router MACs ordered by address
func (l *L3VNI) RMACs() []*RMAC {
	out := make([]*RMAC, 0, len(l.rmacs))
	for _, r := range l.rmacs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *RMAC) int { return compareMAC(a.RMAC, b.RMAC) })
	return out
}

// AddL3VNI provisions an L3 VNI or updates its configuration
func (e *Engine) AddL3VNI(cfg L3VNIConfig) error {
	if cfg.ID == 0 {
		return ErrInvalidUpdate
	}
	l, ok := e.l3vnis[cfg.ID]
	if ok && l.L3VNIConfig == cfg {
		return nil
	}
	if !ok {
		l = &L3VNI{
			nexthops: make(map[netip.Addr]*Nexthop),
			rmacs:    make(map[MACAddr]*RMAC),
			routes:   make(map[netip.Prefix]HostRoute),
		}
		e.l3vnis[cfg.ID] = l
	}
	l.L3VNIConfig = cfg
	e.log.WithFields(log.Fields{"l3vni": cfg.ID, "vrf": cfg.VRFID, "rmac": cfg.RMAC}).Info("L3 VNI added")
	if err := e.bgp.L3VNIAdd(cfg); err != nil {
		e.log.WithField("l3vni", cfg.ID).WithError(err).Error("failed to send L3 VNI add to BGP")
	}
	return nil
}

// DeleteL3VNI removes an L3 VNI and uninstalls its nexthops and router MACs
func (e *Engine) DeleteL3VNI(id uint32) error {
	l, err := e.lookupL3VNI(id)
	if err != nil {
		return err
	}
	for _, r := range l.RMACs() {
		e.dpCall("delete-rmac", e.dp.DeleteRMAC(RMACEntry{L3VNI: id, RMAC: r.RMAC, VTEP: r.VTEP}))
	}
	for _, nh := range l.Nexthops() {
		e.dpCall("delete-nexthop", e.dp.DeleteNexthop(NexthopEntry{L3VNI: id, VTEP: nh.VTEP, RMAC: nh.RMAC}))
	}
	delete(e.l3vnis, id)
	e.log.WithField("l3vni", id).Info("L3 VNI deleted")
	if err := e.bgp.L3VNIDel(id); err != nil {
		e.log.WithField("l3vni", id).WithError(err).Error("failed to send L3 VNI delete to BGP")
	}
	return nil
}

// L3VNIs returns the L3 VNIs ordered by id
func (e *Engine) L3VNIs() []*L3VNI {
	out := make([]*L3VNI, 0, len(e.l3vnis))
	for _, l := range e.l3vnis {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *L3VNI) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// AddRemoteHostRoute references the route's router MAC and nexthop,
// installing them on first use. A router MAC seen behind another VTEP, or a
// nexthop with a new router MAC, is re-installed. A prefix added again with
// another router MAC or VTEP releases the ones it used before.
func (e *Engine) AddRemoteHostRoute(l3vni uint32, hr HostRoute) error {
	l, err := e.lookupL3VNI(l3vni)
	if err != nil {
		return err
	}
	if !hr.VTEP.IsValid() || !hr.Prefix.IsValid() || hr.RMAC.IsZero() {
		return ErrInvalidUpdate
	}
	lg := e.log.WithFields(log.Fields{"l3vni": l3vni, "rmac": hr.RMAC, "vtep": hr.VTEP, "prefix": hr.Prefix})
	old, rebound := l.routes[hr.Prefix]
	if rebound && old == hr {
		return nil
	}

	r, ok := l.rmacs[hr.RMAC]
	switch {
	case !ok:
		r = &RMAC{RMAC: hr.RMAC, VTEP: hr.VTEP}
		l.rmacs[hr.RMAC] = r
		e.dpCall("upsert-rmac", e.dp.UpsertRMAC(RMACEntry{L3VNI: l3vni, RMAC: r.RMAC, VTEP: r.VTEP}))
	case r.VTEP != hr.VTEP:
		lg.WithField("old_vtep", r.VTEP).Info("router MAC moved to another VTEP")
		r.VTEP = hr.VTEP
		e.dpCall("upsert-rmac", e.dp.UpsertRMAC(RMACEntry{L3VNI: l3vni, RMAC: r.RMAC, VTEP: r.VTEP}))
	}
	r.prefixes.add(hr.Prefix)

	nh, ok := l.nexthops[hr.VTEP]
	switch {
	case !ok:
		nh = &Nexthop{VTEP: hr.VTEP, RMAC: hr.RMAC}
		l.nexthops[hr.VTEP] = nh
		e.dpCall("upsert-nexthop", e.dp.UpsertNexthop(NexthopEntry{L3VNI: l3vni, VTEP: nh.VTEP, RMAC: nh.RMAC}))
	case nh.RMAC != hr.RMAC:
		lg.WithField("old_rmac", nh.RMAC).Info("nexthop router MAC changed")
		nh.RMAC = hr.RMAC
		e.dpCall("upsert-nexthop", e.dp.UpsertNexthop(NexthopEntry{L3VNI: l3vni, VTEP: nh.VTEP, RMAC: nh.RMAC}))
	}
	nh.prefixes.add(hr.Prefix)
	l.routes[hr.Prefix] = hr

	if rebound {
		lg.WithFields(log.Fields{"old_rmac": old.RMAC, "old_vtep": old.VTEP}).Info("remote host route moved")
		if old.RMAC != hr.RMAC {
			e.unrefRMAC(l, old.RMAC, old.Prefix)
		}
		if old.VTEP != hr.VTEP {
			e.unrefNexthop(l, old.VTEP, old.Prefix)
		}
		return nil
	}
	lg.Debug("remote host route added")
	return nil
}

// DeleteRemoteHostRoute drops the references the prefix holds; router MACs
// and nexthops no prefix uses any more are uninstalled.
func (e *Engine) DeleteRemoteHostRoute(l3vni uint32, hr HostRoute) error {
	l, err := e.lookupL3VNI(l3vni)
	if err != nil {
		return err
	}
	old, ok := l.routes[hr.Prefix]
	if !ok {
		e.log.WithFields(log.Fields{"l3vni": l3vni, "prefix": hr.Prefix}).Warn("delete of unknown remote host route")
		return ErrNotFound
	}
	delete(l.routes, hr.Prefix)
	e.unrefRMAC(l, old.RMAC, old.Prefix)
	e.unrefNexthop(l, old.VTEP, old.Prefix)
	return nil
}

func (e *Engine) unrefRMAC(l *L3VNI, mac MACAddr, p netip.Prefix) {
	r, ok := l.rmacs[mac]
	if !ok || !r.prefixes.remove(p) || len(r.prefixes) > 0 {
		return
	}
	e.dpCall("delete-rmac", e.dp.DeleteRMAC(RMACEntry{L3VNI: l.ID, RMAC: r.RMAC, VTEP: r.VTEP}))
	delete(l.rmacs, mac)
}

func (e *Engine) unrefNexthop(l *L3VNI, vtep netip.Addr, p netip.Prefix) {
	nh, ok := l.nexthops[vtep]
	if !ok || !nh.prefixes.remove(p) || len(nh.prefixes) > 0 {
		return
	}
	e.dpCall("delete-nexthop", e.dp.DeleteNexthop(NexthopEntry{L3VNI: l.ID, VTEP: nh.VTEP, RMAC: nh.RMAC}))
	delete(l.nexthops, vtep)
}

func (e *Engine) lookupL3VNI(id uint32) (*L3VNI, error) {
	l, ok := e.l3vnis[id]
	if !ok {
		e.log.WithField("l3vni", id).Warn("update for unknown L3 VNI ignored")
		return nil, ErrUnknownL3VNI
	}
	return l, nil
}
