// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"
)

// syncMacIPAdd applies a route from a peer sharing one of our Ethernet
// Segments. The entry becomes LOCAL even when we have not seen it on the
// wire ourselves. A peer that sees the host locally marks it ES_PEER_ACTIVE,
// one that only relays the route marks it ES_PEER_PROXY.
func (e *Engine) syncMacIPAdd(v *VNI, r MacIPRoute) error {
	es, ok := e.es[r.ESI]
	if r.ESI.IsZero() || !ok {
		e.routeLog(r).WithField("esi", r.ESI).Warn("sync route for a non-local Ethernet Segment ignored")
		return ErrNotFound
	}
	proxy := r.Flags&FlagProxyAdvert != 0

	m, err := e.syncMACUpdate(v, es, r, proxy)
	if err != nil {
		return err
	}
	var oldMAC *MAC
	if r.HasIP() {
		if oldMAC, err = e.syncNeighUpdate(v, es, m, r, proxy); err != nil {
			e.commitMAC(v, m, projectOpts{})
			return err
		}
	}
	if oldMAC != nil {
		e.derefMAC(v, oldMAC)
		e.commitMAC(v, oldMAC, projectOpts{})
	}
	e.commitMAC(v, m, projectOpts{})
	return nil
}

func (e *Engine) syncMACUpdate(v *VNI, es *EthernetSegment, r MacIPRoute, proxy bool) (*MAC, error) {
	m, ok := v.macs[r.MAC]
	if !ok {
		var err error
		if m, err = e.newMAC(v, r.MAC); err != nil {
			return nil, err
		}
	}

	switch {
	case m.Owner != OwnerLocal:
		e.macLog(v, m).WithField("esi", es.ESI).Debugf("%s MAC synced from ES peer", m.Owner)
		m.Owner = OwnerLocal
		m.RemoteDefGW = false
		m.LocalInactive = true
		m.Fwd = localFwd(es.IfIndex, v.AccessVlan, es.ESI)
		m.LocSeq = max(m.LocSeq, r.Seq)
		e.processLocalNeighs(v, m)
	case m.Fwd.ESI != es.ESI:
		m.Fwd = localFwd(es.IfIndex, m.Fwd.Vlan, es.ESI)
		e.macESChanged(v, m)
	}
	m.Sticky = r.Flags&FlagSticky != 0

	active, px := m.PeerActive, m.PeerProxy
	switch {
	case r.HasIP():
		// a MAC-IP route vouches for the MAC only as a proxy
		if !m.HasPeerFlags() {
			px = true
		}
	case proxy:
		px = true
		if m.PeerActive && !e.macHoldRunning(v, m) {
			e.startMACHold(v, m)
		}
	default:
		active = true
		e.timers.stop(macTimer(timerMACHold, v.ID, m.Addr))
	}
	e.setMACPeerFlags(v, m, active, px)

	if r.Seq > m.LocSeq {
		m.LocSeq = r.Seq
		e.processLocalNeighs(v, m)
	}
	return m, nil
}

// syncNeighUpdate returns the MAC the neighbor was bound to before, if it
// changed
func (e *Engine) syncNeighUpdate(v *VNI, es *EthernetSegment, m *MAC, r MacIPRoute, proxy bool) (*MAC, error) {
	var oldMAC *MAC
	n, ok := v.neighs[r.IP]
	if !ok {
		var err error
		if n, err = e.newNeigh(v, r.IP); err != nil {
			return nil, err
		}
		n.Owner = OwnerLocal
		n.LocalInactive = true
		e.bindNeigh(m, n)
	} else {
		if n.Owner != OwnerLocal {
			e.neighLog(v, n).WithField("esi", es.ESI).Debugf("%s neighbor synced from ES peer", n.Owner)
			n.Owner = OwnerLocal
			n.VTEP = netip.Addr{}
			n.LocalInactive = true
		}
		if n.MAC != m.Addr {
			oldMAC = e.unbindNeigh(v, n)
			if n.HasPeerFlags() {
				e.setNeighPeerFlags(v, n, false, false)
			}
			e.bindNeigh(m, n)
		}
	}
	n.Router = r.Flags&FlagRouter != 0
	n.Active = m.Owner == OwnerLocal

	active, px := n.PeerActive, n.PeerProxy
	if proxy {
		px = true
		if n.PeerActive && !e.neighHoldRunning(v, n) {
			e.startNeighHold(v, n)
		}
	} else {
		active = true
		e.timers.stop(neighTimer(timerNeighHold, v.ID, n.IP))
	}
	e.setNeighPeerFlags(v, n, active, px)
	n.LocSeq = max(n.LocSeq, r.Seq, m.LocSeq)
	e.inheritMACDup(m, n)
	return oldMAC, nil
}

// syncMACDel drops the proxy vouching of a peer. An active peer is given the
// hold time to re-advertise before we stop treating the MAC as static.
func (e *Engine) syncMACDel(v *VNI, m *MAC) {
	e.macLog(v, m).Debug("ES peer withdrew sync MAC")
	if m.PeerActive && !e.macHoldRunning(v, m) {
		e.startMACHold(v, m)
	}
	e.setMACPeerFlags(v, m, m.PeerActive, false)
	e.commitMAC(v, m, projectOpts{})
}

func (e *Engine) syncNeighDel(v *VNI, n *Neigh) {
	e.neighLog(v, n).Debug("ES peer withdrew sync neighbor")
	if n.PeerActive && !e.neighHoldRunning(v, n) {
		e.startNeighHold(v, n)
	}
	e.setNeighPeerFlags(v, n, n.PeerActive, false)
	e.commitNeighWithMAC(v, n)
}

// macHoldExpired ends the ES_PEER_ACTIVE grace period. The MAC stays in the
// table; without peer flags it is handed back to kernel aging.
func (e *Engine) macHoldExpired(v *VNI, m *MAC) {
	if !m.PeerActive {
		return
	}
	e.macLog(v, m).Debug("ES peer active hold expired")
	e.setMACPeerFlags(v, m, false, m.PeerProxy)
	e.commitMAC(v, m, projectOpts{})
}

func (e *Engine) neighHoldExpired(v *VNI, n *Neigh) {
	if !n.PeerActive {
		return
	}
	e.neighLog(v, n).Debug("ES peer active hold expired")
	e.setNeighPeerFlags(v, n, false, n.PeerProxy)
	e.commitNeighWithMAC(v, n)
}

// commitNeighWithMAC commits the neighbor through its MAC, whose static-ness
// follows the neighbor's peer flags
func (e *Engine) commitNeighWithMAC(v *VNI, n *Neigh) {
	if m, ok := v.macs[n.MAC]; ok {
		if _, bound := m.neighs[n.IP]; bound {
			e.commitMAC(v, m, projectOpts{})
			return
		}
	}
	e.commitNeigh(v, n, projectOpts{})
}
