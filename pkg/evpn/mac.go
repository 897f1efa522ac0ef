// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

// LocalMACUpdate is a MAC learnt or refreshed on a local access port
type LocalMACUpdate struct {
	VNI     uint32
	MAC     MACAddr
	IfIndex int
	Vlan    uint16
	Sticky  bool

	// DefGW marks the MAC of a local SVI advertised as default gateway
	DefGW bool

	// LocalInactive is set when the kernel holds the entry without having
	// seen traffic from it
	LocalInactive bool

	// DPStatic is the static flag the kernel currently reports
	DPStatic bool
}

// UpsertLocalMAC applies a local learn. A move between ports, vlans or
// Ethernet Segments bumps the local sequence number so that BGP peers
// prefer the new location.
func (e *Engine) UpsertLocalMAC(u LocalMACUpdate) (*MAC, error) {
	v, err := e.lookupVNI(u.VNI)
	if err != nil {
		return nil, err
	}
	esi := e.esiForIf(u.IfIndex)

	m, ok := v.macs[u.MAC]
	if !ok {
		if m, err = e.newMAC(v, u.MAC); err != nil {
			return nil, err
		}
		m.Owner = OwnerLocal
		m.Fwd = localFwd(u.IfIndex, u.Vlan, esi)
		m.Sticky = u.Sticky
		m.DefGW = u.DefGW
		m.LocalInactive = u.LocalInactive
		e.macLog(v, m).WithField("ifindex", u.IfIndex).Debug("local MAC learnt")
		e.commitMAC(v, m, projectOpts{})
		return m, nil
	}

	switch m.Owner {
	case OwnerRemote:
		if m.Sticky {
			e.macLog(v, m).Warn("local learn of a sticky remote MAC ignored")
			// the kernel replaced our entry, put it back
			m.prog = macProg{}
			e.commitMAC(v, m, projectOpts{})
			return m, nil
		}
		e.macLog(v, m).WithField("vtep", m.Fwd.VTEP).Info("MAC moved from remote to local")
		m.LocSeq = max(m.LocSeq, m.RemSeq+1)
		m.Owner = OwnerLocal
		m.RemoteDefGW = false
		m.Fwd = localFwd(u.IfIndex, u.Vlan, esi)
		m.Sticky = u.Sticky
		m.DefGW = u.DefGW
		m.LocalInactive = u.LocalInactive
		e.detectMACDup(v, m, true)
		e.processLocalNeighs(v, m)

	case OwnerAuto:
		m.Owner = OwnerLocal
		m.Fwd = localFwd(u.IfIndex, u.Vlan, esi)
		m.Sticky = u.Sticky
		m.DefGW = u.DefGW
		m.LocalInactive = u.LocalInactive
		e.processLocalNeighs(v, m)

	case OwnerLocal:
		moved := m.Fwd.IfIndex != u.IfIndex || m.Fwd.Vlan != u.Vlan
		esChanged := m.Fwd.ESI != esi
		if !moved && !esChanged && m.Sticky == u.Sticky && m.DefGW == u.DefGW && m.LocalInactive == u.LocalInactive {
			if m.Static() && !u.DPStatic && m.prog.kind == progLocal {
				// the kernel lost the static flag we programmed
				m.prog = macProg{}
				e.commitMAC(v, m, projectOpts{})
			}
			return m, nil
		}
		m.Fwd = localFwd(u.IfIndex, u.Vlan, esi)
		m.Sticky = u.Sticky
		m.DefGW = u.DefGW
		m.LocalInactive = u.LocalInactive
		switch {
		case esChanged:
			e.macESChanged(v, m)
		case moved:
			e.macLog(v, m).WithField("ifindex", u.IfIndex).Debug("local MAC moved")
			m.LocSeq++
			e.detectMACDup(v, m, true)
			e.processLocalNeighs(v, m)
		}
	}
	e.commitMAC(v, m, projectOpts{})
	return m, nil
}

// DeleteLocalMAC applies a kernel delete or age-out. ifindex 0 matches any
// port. MACs still vouched for by an ES peer are re-installed as inactive.
func (e *Engine) DeleteLocalMAC(vni uint32, mac MACAddr, ifindex int) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	m, ok := v.macs[mac]
	if !ok {
		e.log.WithField("vni", vni).WithField("mac", mac).Debug("local delete of unknown MAC")
		return ErrNotFound
	}

	switch m.Owner {
	case OwnerRemote:
		// we own remote entries, the kernel may not drop them
		m.prog = macProg{}
		e.commitMAC(v, m, projectOpts{})
		return nil
	case OwnerAuto:
		return nil
	}
	if ifindex != 0 && m.Fwd.IfIndex != ifindex {
		e.macLog(v, m).WithField("ifindex", ifindex).Debug("delete from a stale port ignored")
		return nil
	}

	if m.Static() {
		e.macLog(v, m).Debug("local delete of a synced MAC, re-installing as inactive")
		m.LocalInactive = true
		m.prog = macProg{}
		e.commitMAC(v, m, projectOpts{forceInactive: true})
		return nil
	}

	e.deactivateLocalNeighs(v, m)
	m.Owner = OwnerAuto
	m.Fwd = Fwd{}
	m.Sticky = false
	m.DefGW = false
	m.LocalInactive = false
	e.derefMAC(v, m)
	e.commitMAC(v, m, projectOpts{})
	return nil
}

// macESChanged treats a change of the MAC's Ethernet Segment as a move.
// Peer flags were vouched for the old segment and are dropped.
func (e *Engine) macESChanged(v *VNI, m *MAC) {
	e.macLog(v, m).WithField("esi", m.Fwd.ESI).Info("MAC Ethernet Segment changed")
	m.LocSeq++
	if m.HasPeerFlags() {
		e.setMACPeerFlags(v, m, false, false)
	}
	e.processLocalNeighs(v, m)
}

// processLocalNeighs activates the local neighbors of a LOCAL MAC and
// carries the MAC's sequence number over to them
func (e *Engine) processLocalNeighs(v *VNI, m *MAC) {
	if m.Owner != OwnerLocal {
		return
	}
	for ip := range m.neighs {
		n, ok := v.neighs[ip]
		if !ok || n.Owner != OwnerLocal {
			continue
		}
		n.Active = true
		n.LocSeq = max(n.LocSeq, m.LocSeq)
		e.inheritMACDup(m, n)
	}
}

// deactivateLocalNeighs parks the local neighbors of a MAC that stops being
// LOCAL. They are withdrawn until the MAC is local again.
func (e *Engine) deactivateLocalNeighs(v *VNI, m *MAC) {
	for ip := range m.neighs {
		if n, ok := v.neighs[ip]; ok && n.Owner == OwnerLocal {
			n.Active = false
		}
	}
}
