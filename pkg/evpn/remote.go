// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"

	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

// seqAccepted decides whether a route with sequence number seq may take over
// an entry currently held by owner. A LOCAL entry that was never advertised
// yields to a lower sequence number so both ends converge; once advertised
// only a strictly higher one wins.
func seqAccepted(owner Ownership, locSeq, remSeq uint32, advertised bool, seq uint32) bool {
	switch owner {
	case OwnerLocal:
		if seq > locSeq {
			return true
		}
		return seq < locSeq && !advertised
	case OwnerRemote:
		return seq >= remSeq
	}
	return true
}

// RemoteMacIPAdd applies a Type-2 route received from BGP. Routes carrying
// FlagSyncPath come from a peer attached to one of our Ethernet Segments.
func (e *Engine) RemoteMacIPAdd(r MacIPRoute) error {
	v, err := e.lookupVNI(r.VNI)
	if err != nil {
		return err
	}
	if r.Flags&FlagSyncPath != 0 {
		return e.syncMacIPAdd(v, r)
	}
	if !r.VTEP.IsValid() {
		e.routeLog(r).Warn("remote MAC-IP without VTEP ignored")
		return ErrInvalidUpdate
	}
	if e.isLocalVTEP(v, r.VTEP) {
		e.routeLog(r).Debug("remote MAC-IP from our own VTEP ignored")
		return nil
	}
	e.ensureVTEP(v, r.VTEP)

	m, err := e.remoteMACAdd(v, r)
	if err != nil || m == nil || !r.HasIP() {
		return err
	}
	return e.remoteNeighAdd(v, m, r)
}

// remoteMACAdd returns the MAC the route now points at, or nil when the
// route was rejected
func (e *Engine) remoteMACAdd(v *VNI, r MacIPRoute) (*MAC, error) {
	sticky := r.Flags&FlagSticky != 0
	gw := r.Flags&FlagGW != 0

	m, ok := v.macs[r.MAC]
	if ok && m.Owner == OwnerLocal && m.DefGW && gw {
		e.routeLog(r).Debug("remote gateway MAC overlaps a local gateway, ignored")
		return nil, nil
	}
	if ok && m.Owner == OwnerRemote && m.Sticky == sticky && m.RemoteDefGW == gw &&
		m.Fwd.VTEP == r.VTEP && m.Fwd.ESI == r.ESI && m.RemSeq == r.Seq {
		return m, nil
	}

	var err error
	if !ok {
		if m, err = e.newMAC(v, r.MAC); err != nil {
			return nil, err
		}
	} else if !seqAccepted(m.Owner, m.LocSeq, m.RemSeq, m.Advertised(), r.Seq) {
		metrics.StaleUpdates.WithLabelValues("mac").Inc()
		e.routeLog(r).WithField("loc_seq", m.LocSeq).WithField("rem_seq", m.RemSeq).
			Debugf("%s MAC keeps precedence over remote route", m.Owner)
		return nil, nil
	}

	doDAD := (m.Owner != OwnerRemote && m.DAD.Count > 0) || m.Duplicate
	if m.Owner == OwnerLocal {
		e.macLog(v, m).WithField("vtep", r.VTEP).Info("MAC moved from local to remote")
		if m.HasPeerFlags() {
			e.setMACPeerFlags(v, m, false, false)
		}
		e.deactivateLocalNeighs(v, m)
	}
	m.Owner = OwnerRemote
	m.Fwd = remoteFwd(r.VTEP, r.ESI)
	m.Sticky = sticky
	m.RemoteDefGW = gw
	m.DefGW = false
	m.LocalInactive = false
	m.RemSeq = r.Seq
	if doDAD {
		e.detectMACDup(v, m, false)
	}
	e.commitMAC(v, m, projectOpts{})
	return m, nil
}

func (e *Engine) remoteNeighAdd(v *VNI, m *MAC, r MacIPRoute) error {
	router := r.Flags&FlagRouter != 0

	n, ok := v.neighs[r.IP]
	if ok && n.Owner == OwnerRemote && n.MAC == r.MAC && n.VTEP == r.VTEP &&
		n.Router == router && n.RemSeq == r.Seq {
		return nil
	}

	var (
		err    error
		oldMAC *MAC
		doDAD  bool
	)
	if !ok {
		if n, err = e.newNeigh(v, r.IP); err != nil {
			return err
		}
	} else {
		if !seqAccepted(n.Owner, n.LocSeq, n.RemSeq, n.Advertised(), r.Seq) {
			metrics.StaleUpdates.WithLabelValues("neigh").Inc()
			e.routeLog(r).WithField("loc_seq", n.LocSeq).WithField("rem_seq", n.RemSeq).
				Debugf("%s neighbor keeps precedence over remote route", n.Owner)
			return nil
		}
		if n.Owner == OwnerLocal {
			e.neighLog(v, n).WithField("vtep", r.VTEP).Info("neighbor moved from local to remote")
			if n.HasPeerFlags() {
				e.setNeighPeerFlags(v, n, false, false)
			}
			doDAD = n.DAD.Count > 0
		}
		doDAD = doDAD || n.Duplicate
		if n.MAC != m.Addr {
			oldMAC = e.unbindNeigh(v, n)
		}
	}
	e.bindNeigh(m, n)
	n.Owner = OwnerRemote
	n.VTEP = r.VTEP
	n.IfIndex = 0
	n.Router = router
	n.DefGW = false
	n.LocalInactive = false
	n.Active = false
	n.RemSeq = r.Seq
	if doDAD {
		e.detectNeighDup(v, n, false)
	}

	if oldMAC != nil {
		e.derefMAC(v, oldMAC)
		e.commitMAC(v, oldMAC, projectOpts{})
	}
	e.commitNeigh(v, n, projectOpts{})
	return nil
}

// RemoteMacIPDel applies a Type-2 withdrawal. Withdrawing the sync route
// of a locally attached entry only drops the peer's vouching.
func (e *Engine) RemoteMacIPDel(r MacIPRoute) error {
	v, err := e.lookupVNI(r.VNI)
	if err != nil {
		return err
	}
	m, macOK := v.macs[r.MAC]
	var n *Neigh
	if r.HasIP() {
		var ok bool
		if n, ok = v.neighs[r.IP]; !ok {
			e.routeLog(r).Debug("remote delete of unknown neighbor")
			return ErrNotFound
		}
		if !macOK {
			e.routeLog(r).Warn("remote delete of a neighbor whose MAC is missing")
			return ErrNotFound
		}
	}
	if !macOK {
		e.routeLog(r).Debug("remote delete of unknown MAC")
		return ErrNotFound
	}
	if m.Owner == OwnerLocal && m.DefGW {
		e.routeLog(r).Debug("remote delete of a local gateway MAC ignored")
		return nil
	}

	if n != nil {
		if n.MAC != r.MAC {
			e.routeLog(r).WithField("cur_mac", n.MAC).Debug("remote delete for a stale MAC binding ignored")
			return nil
		}
		switch n.Owner {
		case OwnerRemote:
			om := e.unbindNeigh(v, n)
			n.deleted = true
			e.commitNeigh(v, n, projectOpts{})
			if om != nil {
				e.derefMAC(v, om)
				e.commitMAC(v, om, projectOpts{})
			}
		case OwnerLocal:
			if n.HasPeerFlags() {
				e.syncNeighDel(v, n)
			}
		}
		return nil
	}

	switch m.Owner {
	case OwnerRemote:
		if len(m.neighs) > 0 {
			m.Owner = OwnerAuto
			m.Fwd = Fwd{}
			m.Sticky = false
			m.RemoteDefGW = false
		} else {
			m.deleted = true
		}
		e.commitMAC(v, m, projectOpts{})
	case OwnerLocal:
		if m.HasPeerFlags() {
			e.syncMACDel(v, m)
		}
	}
	return nil
}

// ensureVTEP implicitly adds a VTEP learnt from a route. Without explicit
// configuration the VTEP gets no flood entry.
func (e *Engine) ensureVTEP(v *VNI, ip netip.Addr) {
	if _, ok := v.vteps[ip]; ok {
		return
	}
	v.vteps[ip] = &VTEP{IP: ip, Flood: FloodNone}
	e.log.WithField("vni", v.ID).WithField("vtep", ip).Debug("VTEP learnt from MAC-IP route")
}
