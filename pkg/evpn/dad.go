// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"
	"time"

	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

// countMove advances the detection window of d for one move and reports
// whether the move limit was reached. Local learns open a new window when
// the previous one expired or never started. Remote learns only count inside
// an open window.
func (e *Engine) countMove(d *DADState, now time.Time, local bool) bool {
	reset := now.Sub(d.Start) > e.cfg.DAD.Time
	if local && !reset {
		reset = d.Count == 0
	}
	if reset {
		d.Count = 0
		if local {
			d.Start = now
		}
	} else if !local {
		d.Count++
	}
	if local {
		d.Count++
	}
	return d.Count >= e.cfg.DAD.MaxMoves
}

// detectMACDup runs duplicate detection for a move of m and reports whether
// the MAC is now frozen, i.e. must not be installed or advertised.
func (e *Engine) detectMACDup(v *VNI, m *MAC, local bool) bool {
	if !e.cfg.DAD.Enabled {
		return false
	}
	if m.Duplicate {
		return e.cfg.DAD.Freeze
	}
	now := e.clock.Now()
	if !e.countMove(&m.DAD, now, local) {
		return false
	}

	m.Duplicate = true
	m.DAD.DetectedAt = now
	metrics.DuplicatesDetected.WithLabelValues("mac").Inc()
	e.macLog(v, m).WithField("moves", m.DAD.Count).
		Warnf("duplicate MAC detected within %s, freeze %t", e.cfg.DAD.Time, e.cfg.DAD.Freeze)

	for _, ip := range m.Neighs() {
		n, ok := v.neighs[ip]
		if !ok || n.Owner != OwnerLocal {
			continue
		}
		n.Duplicate = true
		n.DAD.DetectedAt = now
	}

	e.timers.stop(macTimer(timerMACDAD, v.ID, m.Addr))
	if e.cfg.DAD.Freeze && e.cfg.DAD.FreezeTime > 0 {
		e.timers.start(macTimer(timerMACDAD, v.ID, m.Addr), now.Add(e.cfg.DAD.FreezeTime))
	}
	return e.cfg.DAD.Freeze
}

// detectNeighDup is detectMACDup for an IP move
func (e *Engine) detectNeighDup(v *VNI, n *Neigh, local bool) bool {
	if !e.cfg.DAD.Enabled {
		return false
	}
	if n.Duplicate {
		return e.cfg.DAD.Freeze
	}
	now := e.clock.Now()
	if !e.countMove(&n.DAD, now, local) {
		return false
	}

	n.Duplicate = true
	n.DAD.DetectedAt = now
	metrics.DuplicatesDetected.WithLabelValues("neigh").Inc()
	e.neighLog(v, n).WithField("moves", n.DAD.Count).
		Warnf("duplicate IP detected within %s, freeze %t", e.cfg.DAD.Time, e.cfg.DAD.Freeze)

	e.timers.stop(neighTimer(timerNeighDAD, v.ID, n.IP))
	if e.cfg.DAD.Freeze && e.cfg.DAD.FreezeTime > 0 {
		e.timers.start(neighTimer(timerNeighDAD, v.ID, n.IP), now.Add(e.cfg.DAD.FreezeTime))
	}
	return e.cfg.DAD.Freeze
}

// inheritMACDup marks a local neighbor duplicate when its MAC already is
func (e *Engine) inheritMACDup(m *MAC, n *Neigh) {
	if m == nil || !m.Duplicate || n.Duplicate {
		return
	}
	n.Duplicate = true
	n.DAD.DetectedAt = m.DAD.DetectedAt
}

func (e *Engine) clearMACDup(v *VNI, m *MAC) {
	for _, ip := range m.Neighs() {
		if n, ok := v.neighs[ip]; ok && n.Duplicate {
			e.clearNeighDup(v, n)
		}
	}
	m.Duplicate = false
	m.DAD.reset()
	e.timers.stop(macTimer(timerMACDAD, v.ID, m.Addr))
}

func (e *Engine) clearNeighDup(v *VNI, n *Neigh) {
	n.Duplicate = false
	n.DAD.reset()
	e.timers.stop(neighTimer(timerNeighDAD, v.ID, n.IP))
}

// macDADRecovered ends the freeze of a duplicate MAC and processes it as if
// it was just learnt: local entries are advertised and remote ones installed.
func (e *Engine) macDADRecovered(v *VNI, m *MAC) {
	if !m.Duplicate {
		return
	}
	e.macLog(v, m).Info("duplicate MAC auto-recovery")
	e.clearMACDup(v, m)
	e.commitMAC(v, m, projectOpts{})
}

func (e *Engine) neighDADRecovered(v *VNI, n *Neigh) {
	if !n.Duplicate {
		return
	}
	e.neighLog(v, n).Info("duplicate IP auto-recovery")
	e.clearNeighDup(v, n)
	e.commitNeigh(v, n, projectOpts{})
}

// ClearDuplicateMAC clears the duplicate state of a MAC and its neighbors
func (e *Engine) ClearDuplicateMAC(vni uint32, mac MACAddr) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	m, ok := v.macs[mac]
	if !ok {
		return ErrNotFound
	}
	e.macDADRecovered(v, m)
	return nil
}

// ClearDuplicateNeigh clears the duplicate state of one IP
func (e *Engine) ClearDuplicateNeigh(vni uint32, ip netip.Addr) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	n, ok := v.neighs[ip]
	if !ok {
		return ErrNotFound
	}
	if m, ok := v.macs[n.MAC]; ok && m.Duplicate {
		// the IP stays frozen as long as its MAC is
		return nil
	}
	e.neighDADRecovered(v, n)
	return nil
}

// ClearDuplicateVNI clears every duplicate entry of a VNI
func (e *Engine) ClearDuplicateVNI(vni uint32) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	for _, m := range v.MACs() {
		e.macDADRecovered(v, m)
	}
	for _, n := range v.Neighs() {
		e.neighDADRecovered(v, n)
	}
	return nil
}
