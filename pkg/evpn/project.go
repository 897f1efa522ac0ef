// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

type progKind uint8

const (
	// nothing of ours is in the dataplane
	progNone progKind = iota
	// the kernel learnt the entry itself and owns its aging
	progKernel
	progLocal
	progRemote
)

type macProg struct {
	kind   progKind
	local  LocalMACEntry
	remote RemoteMACEntry
}

type neighProg struct {
	kind   progKind
	local  LocalNeighEntry
	remote RemoteNeighEntry
}

// projectOpts are the overrides a caller may force on a dataplane projection
type projectOpts struct {
	forceInactive    bool
	forceClearStatic bool
}

func (e *Engine) frozen(duplicate bool) bool {
	return duplicate && e.cfg.DAD.Enabled && e.cfg.DAD.Freeze
}

// macReadyForBGP is LOCAL and locally active, or vouched active by an ES peer
func macReadyForBGP(m *MAC) bool {
	return m.Owner == OwnerLocal && (!m.LocalInactive || m.PeerActive)
}

// neighReadyForBGP additionally requires the owning MAC to be LOCAL
func neighReadyForBGP(m *MAC, n *Neigh) bool {
	if m == nil || m.Owner != OwnerLocal {
		return false
	}
	return n.Owner == OwnerLocal && n.Active && (!n.LocalInactive || n.PeerActive)
}

// commitMAC projects the MAC and then its dependent neighbors. Entries
// marked deleted are removed from the table once withdrawn.
func (e *Engine) commitMAC(v *VNI, m *MAC, opts projectOpts) {
	e.projectMACBGP(v, m)
	e.projectMACDataplane(v, m, opts)
	for _, ip := range m.Neighs() {
		if n, ok := v.neighs[ip]; ok {
			e.commitNeigh(v, n, projectOpts{})
		}
	}
	if m.deleted {
		e.removeMAC(v, m)
	}
}

func (e *Engine) commitNeigh(v *VNI, n *Neigh, opts projectOpts) {
	e.projectNeighBGP(v, n)
	e.projectNeighDataplane(v, n, opts)
	if n.deleted {
		e.removeNeigh(v, n)
	}
}

func (e *Engine) macRoute(v *VNI, m *MAC) MacIPRoute {
	r := MacIPRoute{VNI: v.ID, MAC: m.Addr, VTEP: v.LocalVTEP, Seq: m.LocSeq}
	if m.Fwd.Kind == FwdES {
		r.ESI = m.Fwd.ESI
	}
	if m.Sticky {
		r.Flags |= FlagSticky
	}
	if m.DefGW {
		r.Flags |= FlagGW
	}
	if m.LocalInactive {
		r.Flags |= FlagProxyAdvert
	}
	return r
}

func (e *Engine) neighRoute(v *VNI, m *MAC, n *Neigh) MacIPRoute {
	r := MacIPRoute{VNI: v.ID, MAC: n.MAC, IP: n.IP, VTEP: v.LocalVTEP, Seq: n.LocSeq}
	if m != nil && m.Fwd.Kind == FwdES {
		r.ESI = m.Fwd.ESI
	}
	if n.Router {
		r.Flags |= FlagRouter
	}
	if n.DefGW {
		r.Flags |= FlagGW
	}
	if n.LocalInactive {
		r.Flags |= FlagProxyAdvert
	}
	return r
}

func (e *Engine) projectMACBGP(v *VNI, m *MAC) {
	ready := !m.deleted && v.OperUp && macReadyForBGP(m)
	if ready && e.frozen(m.Duplicate) {
		return
	}
	var cur MacIPRoute
	if ready {
		cur = e.macRoute(v, m)
	}
	oldReady := m.adv != nil
	refresh := oldReady && ready && *m.adv != cur
	if oldReady == ready && !refresh {
		return
	}
	m.adv = e.projectBGP(v, m.adv, ready, cur, refresh)
}

func (e *Engine) projectNeighBGP(v *VNI, n *Neigh) {
	m := v.macs[n.MAC]
	ready := !n.deleted && v.OperUp && neighReadyForBGP(m, n)
	if ready && e.frozen(n.Duplicate) {
		return
	}
	var cur MacIPRoute
	if ready {
		cur = e.neighRoute(v, m, n)
	}
	oldReady := n.adv != nil
	refresh := oldReady && ready && *n.adv != cur
	if oldReady == ready && !refresh {
		return
	}
	n.adv = e.projectBGP(v, n.adv, ready, cur, refresh)
}

// projectBGP turns a readiness transition into BGP notifications and returns
// the route now advertised, or nil. A neighbor re-bound to another MAC is a
// different route, so the old one is withdrawn before the new one is sent.
func (e *Engine) projectBGP(v *VNI, old *MacIPRoute, ready bool, cur MacIPRoute, refresh bool) *MacIPRoute {
	oldReady := old != nil
	if oldReady == ready && !refresh {
		e.log.WithField("vni", v.ID).Warn("BGP projection requested without a readiness transition")
		return old
	}
	if v.closing {
		if ready {
			return &cur
		}
		return nil
	}
	if oldReady && (!ready || old.MAC != cur.MAC) {
		e.sendMacIPDel(*old)
	}
	if !ready {
		return nil
	}
	e.sendMacIPAdd(cur)
	return &cur
}

func (e *Engine) sendMacIPAdd(r MacIPRoute) {
	metrics.BGPUpdates.WithLabelValues("add").Inc()
	if err := e.bgp.MacIPAdd(r); err != nil {
		metrics.BGPErrors.Inc()
		e.routeLog(r).WithError(err).Error("failed to send MAC-IP add to BGP")
	}
}

func (e *Engine) sendMacIPDel(r MacIPRoute) {
	metrics.BGPUpdates.WithLabelValues("del").Inc()
	if err := e.bgp.MacIPDel(r); err != nil {
		metrics.BGPErrors.Inc()
		e.routeLog(r).WithError(err).Error("failed to send MAC-IP delete to BGP")
	}
}

// desiredMACProg computes what the dataplane should hold for m. Local MACs
// are only programmed while some ES peer vouches for them, or to hand a
// previously static entry back to the kernel with the static flag cleared.
func (e *Engine) desiredMACProg(v *VNI, m *MAC, opts projectOpts) macProg {
	if m.deleted || !v.OperUp {
		return macProg{}
	}
	switch m.Owner {
	case OwnerRemote:
		return macProg{kind: progRemote, remote: RemoteMACEntry{
			VNI:    v.ID,
			MAC:    m.Addr,
			VTEP:   m.Fwd.VTEP,
			ESI:    m.Fwd.ESI,
			Sticky: m.Sticky,
		}}
	case OwnerLocal:
		static := m.Static() && !opts.forceClearStatic
		if !static && m.prog.kind != progLocal {
			return macProg{kind: progKernel}
		}
		return macProg{kind: progLocal, local: LocalMACEntry{
			VNI:      v.ID,
			MAC:      m.Addr,
			IfIndex:  m.Fwd.IfIndex,
			Vlan:     m.Fwd.Vlan,
			Sticky:   m.Sticky,
			Static:   static,
			Inactive: m.LocalInactive || opts.forceInactive,
		}}
	}
	return macProg{}
}

func (e *Engine) projectMACDataplane(v *VNI, m *MAC, opts projectOpts) {
	want := e.desiredMACProg(v, m, opts)
	have := m.prog
	if want == have {
		return
	}
	if e.frozen(m.Duplicate) && (want.kind == progRemote || (want.kind == progLocal && want.local.Static)) {
		// a frozen duplicate gets no new install, only removals go through
		switch {
		case have.kind == progLocal && want.kind == progRemote:
			e.dpCall("delete-local-mac", e.dp.DeleteLocalMAC(have.local))
			m.prog = macProg{}
		case have.kind == progRemote && want.kind == progLocal:
			// the local learn already replaced the remote entry in the bridge
			m.prog = macProg{kind: progKernel}
		}
		return
	}
	switch have.kind {
	case progLocal:
		if want.kind == progNone || want.kind == progRemote {
			e.dpCall("delete-local-mac", e.dp.DeleteLocalMAC(have.local))
		}
	case progRemote:
		// a remote entry taken over locally was already replaced in the bridge
		if want.kind == progNone {
			e.dpCall("delete-remote-mac", e.dp.DeleteRemoteMAC(have.remote))
		}
	}
	switch want.kind {
	case progLocal:
		e.dpCall("upsert-local-mac", e.dp.UpsertLocalMAC(want.local))
		if !want.local.Static {
			// handed back to kernel aging
			want = macProg{kind: progKernel}
		}
	case progRemote:
		if have.kind == progRemote && (have.remote.ESI.IsZero() != want.remote.ESI.IsZero()) {
			// single VTEP and ES nexthop group entries cannot replace each other
			e.dpCall("delete-remote-mac", e.dp.DeleteRemoteMAC(have.remote))
		}
		e.dpCall("upsert-remote-mac", e.dp.UpsertRemoteMAC(want.remote))
	}
	m.prog = want
}

func (e *Engine) desiredNeighProg(v *VNI, n *Neigh, opts projectOpts) neighProg {
	if n.deleted || !v.OperUp {
		return neighProg{}
	}
	switch n.Owner {
	case OwnerRemote:
		return neighProg{kind: progRemote, remote: RemoteNeighEntry{
			VNI:    v.ID,
			IP:     n.IP,
			MAC:    n.MAC,
			Router: n.Router,
		}}
	case OwnerLocal:
		static := n.Static() && !opts.forceClearStatic
		if !static && n.prog.kind != progLocal {
			return neighProg{kind: progKernel}
		}
		return neighProg{kind: progLocal, local: LocalNeighEntry{
			VNI:      v.ID,
			IP:       n.IP,
			MAC:      n.MAC,
			IfIndex:  n.IfIndex,
			Router:   n.Router,
			Static:   static,
			Inactive: n.LocalInactive || opts.forceInactive,
		}}
	}
	return neighProg{}
}

func (e *Engine) projectNeighDataplane(v *VNI, n *Neigh, opts projectOpts) {
	want := e.desiredNeighProg(v, n, opts)
	have := n.prog
	if want == have {
		return
	}
	if e.frozen(n.Duplicate) && (want.kind == progRemote || (want.kind == progLocal && want.local.Static)) {
		switch {
		case have.kind == progLocal && want.kind == progRemote:
			e.dpCall("delete-local-neigh", e.dp.DeleteLocalNeigh(have.local))
			n.prog = neighProg{}
		case have.kind == progRemote && want.kind == progLocal:
			n.prog = neighProg{kind: progKernel}
		}
		return
	}
	switch have.kind {
	case progLocal:
		if want.kind == progNone || want.kind == progRemote {
			e.dpCall("delete-local-neigh", e.dp.DeleteLocalNeigh(have.local))
		}
	case progRemote:
		if want.kind == progNone {
			e.dpCall("delete-remote-neigh", e.dp.DeleteRemoteNeigh(have.remote))
		}
	}
	switch want.kind {
	case progLocal:
		e.dpCall("upsert-local-neigh", e.dp.UpsertLocalNeigh(want.local))
		if !want.local.Static {
			want = neighProg{kind: progKernel}
		}
	case progRemote:
		e.dpCall("upsert-remote-neigh", e.dp.UpsertRemoteNeigh(want.remote))
	}
	n.prog = want
}

func (e *Engine) dpCall(op string, err error) {
	if err != nil {
		metrics.DataplaneOps.WithLabelValues(op, "error").Inc()
		e.log.WithField("op", op).WithError(err).Error("dataplane programming failed")
		return
	}
	metrics.DataplaneOps.WithLabelValues(op, "ok").Inc()
}
