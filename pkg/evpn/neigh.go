// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"
)

// LocalNeighUpdate is an ARP/ND entry learnt on a local SVI
type LocalNeighUpdate struct {
	VNI           uint32
	IP            netip.Addr
	MAC           MACAddr
	IfIndex       int
	Router        bool
	DefGW         bool
	LocalInactive bool
	DPStatic      bool
}

// UpsertLocalNeigh applies a local neighbor learn. The neighbor is only
// advertised while its MAC is LOCAL; a neighbor moving to another MAC bumps
// the new MAC's sequence number past the one it had before.
func (e *Engine) UpsertLocalNeigh(u LocalNeighUpdate) (*Neigh, error) {
	v, err := e.lookupVNI(u.VNI)
	if err != nil {
		return nil, err
	}
	if !u.IP.IsValid() {
		return nil, ErrInvalidUpdate
	}

	m, ok := v.macs[u.MAC]
	if !ok {
		if m, err = e.newMAC(v, u.MAC); err != nil {
			return nil, err
		}
	}

	var (
		oldMAC    *MAC
		oldMACSeq uint32
		macMoved  bool
		wasRemote bool
	)
	n, ok := v.neighs[u.IP]
	if !ok {
		if n, err = e.newNeigh(v, u.IP); err != nil {
			e.derefMAC(v, m)
			e.commitMAC(v, m, projectOpts{})
			return nil, err
		}
		n.Owner = OwnerLocal
		e.bindNeigh(m, n)
		e.neighLog(v, n).Debug("local neighbor learnt")
	} else {
		if n.Owner == OwnerLocal && n.MAC == u.MAC &&
			n.IfIndex == u.IfIndex && n.Router == u.Router && n.DefGW == u.DefGW &&
			n.LocalInactive == u.LocalInactive {
			if n.Static() && !u.DPStatic && n.prog.kind == progLocal {
				// the kernel lost the static flag we programmed
				n.prog = neighProg{}
				e.commitNeigh(v, n, projectOpts{})
			}
			return n, nil
		}
		wasRemote = n.Owner == OwnerRemote
		if n.MAC != u.MAC {
			if oldMAC = e.unbindNeigh(v, n); oldMAC != nil {
				macMoved = true
				oldMACSeq = oldMAC.LocSeq
				if oldMAC.Owner == OwnerRemote {
					oldMACSeq = oldMAC.RemSeq
				}
			}
			if n.HasPeerFlags() {
				e.setNeighPeerFlags(v, n, false, false)
			}
			e.bindNeigh(m, n)
			e.neighLog(v, n).Debug("neighbor moved to a new MAC")
		}
		if wasRemote {
			e.neighLog(v, n).WithField("vtep", n.VTEP).Info("neighbor moved from remote to local")
			n.Owner = OwnerLocal
			n.VTEP = netip.Addr{}
		}
	}
	n.IfIndex = u.IfIndex
	n.Router = u.Router
	n.DefGW = u.DefGW
	n.LocalInactive = u.LocalInactive

	if wasRemote {
		e.detectNeighDup(v, n, true)
	}
	e.inheritMACDup(m, n)

	n.Active = m.Owner == OwnerLocal
	if n.Active && (wasRemote || macMoved) {
		var seq uint32
		if macMoved {
			seq = oldMACSeq + 1
		}
		if wasRemote {
			seq = max(seq, n.RemSeq+1)
		}
		if seq > m.LocSeq {
			m.LocSeq = seq
			e.processLocalNeighs(v, m)
		}
	}
	if n.Active {
		n.LocSeq = max(n.LocSeq, m.LocSeq)
	}

	if oldMAC != nil {
		e.derefMAC(v, oldMAC)
		e.commitMAC(v, oldMAC, projectOpts{})
	}
	e.commitMAC(v, m, projectOpts{})
	return n, nil
}

// DeleteLocalNeigh applies a kernel neighbor delete. Neighbors an ES peer
// still vouches for are re-installed as inactive.
func (e *Engine) DeleteLocalNeigh(vni uint32, ip netip.Addr) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	n, ok := v.neighs[ip]
	if !ok {
		e.log.WithField("vni", vni).WithField("ip", ip).Debug("local delete of unknown neighbor")
		return ErrNotFound
	}

	switch n.Owner {
	case OwnerRemote:
		n.prog = neighProg{}
		e.commitNeigh(v, n, projectOpts{})
		return nil
	case OwnerAuto:
		return nil
	}

	if n.Static() {
		e.neighLog(v, n).Debug("local delete of a synced neighbor, re-installing as inactive")
		n.LocalInactive = true
		n.prog = neighProg{}
		e.commitNeigh(v, n, projectOpts{forceInactive: true})
		return nil
	}

	m := e.unbindNeigh(v, n)
	n.deleted = true
	e.commitNeigh(v, n, projectOpts{})
	if m != nil {
		e.derefMAC(v, m)
		e.commitMAC(v, m, projectOpts{})
	}
	return nil
}
