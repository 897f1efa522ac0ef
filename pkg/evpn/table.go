// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

func (e *Engine) tableFull(v *VNI) bool {
	return e.cfg.MaxEntriesPerVNI > 0 && v.entries() >= e.cfg.MaxEntriesPerVNI
}

func (e *Engine) newMAC(v *VNI, addr MACAddr) (*MAC, error) {
	if e.tableFull(v) {
		e.log.WithFields(log.Fields{"vni": v.ID, "mac": addr}).Error("MAC table full")
		return nil, ErrTableFull
	}
	m := &MAC{
		Addr:   addr,
		VNI:    v.ID,
		Owner:  OwnerAuto,
		neighs: make(map[netip.Addr]struct{}),
	}
	v.macs[addr] = m
	metrics.TableEntries.WithLabelValues("mac").Inc()
	return m, nil
}

func (e *Engine) newNeigh(v *VNI, ip netip.Addr) (*Neigh, error) {
	if e.tableFull(v) {
		e.log.WithFields(log.Fields{"vni": v.ID, "ip": ip}).Error("neighbor table full")
		return nil, ErrTableFull
	}
	n := &Neigh{IP: ip, VNI: v.ID}
	v.neighs[ip] = n
	metrics.TableEntries.WithLabelValues("neigh").Inc()
	return n, nil
}

// removeMAC drops a withdrawn MAC from the table. Neighbors still pointing
// at it keep the key and find nothing on lookup.
func (e *Engine) removeMAC(v *VNI, m *MAC) {
	if cur, ok := v.macs[m.Addr]; !ok || cur != m {
		return
	}
	delete(v.macs, m.Addr)
	e.timers.stop(macTimer(timerMACHold, v.ID, m.Addr))
	e.timers.stop(macTimer(timerMACDAD, v.ID, m.Addr))
	metrics.TableEntries.WithLabelValues("mac").Dec()
	e.macLog(v, m).Debug("MAC deleted")
}

func (e *Engine) removeNeigh(v *VNI, n *Neigh) {
	if cur, ok := v.neighs[n.IP]; !ok || cur != n {
		return
	}
	delete(v.neighs, n.IP)
	e.timers.stop(neighTimer(timerNeighHold, v.ID, n.IP))
	e.timers.stop(neighTimer(timerNeighDAD, v.ID, n.IP))
	metrics.TableEntries.WithLabelValues("neigh").Dec()
	e.neighLog(v, n).Debug("neighbor deleted")
}

// bindNeigh links n to m and accounts its peer flags on m
func (e *Engine) bindNeigh(m *MAC, n *Neigh) {
	n.MAC = m.Addr
	if _, ok := m.neighs[n.IP]; ok {
		return
	}
	m.neighs[n.IP] = struct{}{}
	if n.HasPeerFlags() {
		m.SyncNeighCnt++
	}
}

// unbindNeigh detaches n from its MAC, if the MAC still exists
func (e *Engine) unbindNeigh(v *VNI, n *Neigh) *MAC {
	m, ok := v.macs[n.MAC]
	if !ok {
		return nil
	}
	if _, ok := m.neighs[n.IP]; !ok {
		return m
	}
	delete(m.neighs, n.IP)
	if n.HasPeerFlags() {
		m.SyncNeighCnt--
	}
	return m
}

// setNeighPeerFlags is the only writer of neighbor peer flags so the owning
// MAC's SyncNeighCnt stays equal to the number of flagged dependents.
func (e *Engine) setNeighPeerFlags(v *VNI, n *Neigh, active, proxy bool) {
	had := n.HasPeerFlags()
	if n.PeerActive && !active {
		e.timers.stop(neighTimer(timerNeighHold, v.ID, n.IP))
	}
	n.PeerActive, n.PeerProxy = active, proxy
	has := n.HasPeerFlags()
	if had == has {
		return
	}
	m, ok := v.macs[n.MAC]
	if !ok {
		return
	}
	if _, bound := m.neighs[n.IP]; !bound {
		return
	}
	if has {
		m.SyncNeighCnt++
	} else {
		m.SyncNeighCnt--
	}
}

func (e *Engine) setMACPeerFlags(v *VNI, m *MAC, active, proxy bool) {
	if m.PeerActive && !active {
		e.timers.stop(macTimer(timerMACHold, v.ID, m.Addr))
	}
	m.PeerActive, m.PeerProxy = active, proxy
}

// derefMAC deletes an AUTO MAC once nothing depends on it
func (e *Engine) derefMAC(v *VNI, m *MAC) {
	if m == nil || m.Owner != OwnerAuto {
		return
	}
	if len(m.neighs) > 0 || m.HasPeerFlags() {
		return
	}
	m.deleted = true
}

func (e *Engine) startMACHold(v *VNI, m *MAC) {
	e.timers.start(macTimer(timerMACHold, v.ID, m.Addr), e.clock.Now().Add(e.cfg.PeerHoldTime))
}

func (e *Engine) startNeighHold(v *VNI, n *Neigh) {
	e.timers.start(neighTimer(timerNeighHold, v.ID, n.IP), e.clock.Now().Add(e.cfg.PeerHoldTime))
}

// macHoldRunning reports whether the peer-active hold timer of m is armed
func (e *Engine) macHoldRunning(v *VNI, m *MAC) bool {
	return e.timers.running(macTimer(timerMACHold, v.ID, m.Addr))
}

func (e *Engine) neighHoldRunning(v *VNI, n *Neigh) bool {
	return e.timers.running(neighTimer(timerNeighHold, v.ID, n.IP))
}
