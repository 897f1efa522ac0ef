// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"slices"
)

// EthernetSegment is a multihomed access link shared with ES peers
type EthernetSegment struct {
	ESI     ESI
	IfIndex int
}

// AddLocalES attaches the access port ifindex to an Ethernet Segment. Local
// MACs already learnt on the port move onto the segment.
func (e *Engine) AddLocalES(esi ESI, ifindex int) error {
	if esi.IsZero() || ifindex <= 0 {
		return ErrInvalidUpdate
	}
	if es, ok := e.es[esi]; ok {
		if es.IfIndex == ifindex {
			return nil
		}
		delete(e.esIf, es.IfIndex)
	}
	e.es[esi] = &EthernetSegment{ESI: esi, IfIndex: ifindex}
	e.esIf[ifindex] = esi
	e.log.WithField("esi", esi).WithField("ifindex", ifindex).Info("local Ethernet Segment added")

	e.forEachLocalMAC(func(v *VNI, m *MAC) {
		switch {
		case m.Fwd.IfIndex == ifindex && m.Fwd.ESI != esi:
			m.Fwd = localFwd(ifindex, m.Fwd.Vlan, esi)
			e.macESChanged(v, m)
		case m.Fwd.ESI == esi && m.Fwd.IfIndex != ifindex:
			// the segment moved to another port, carry its MACs along
			m.Fwd = localFwd(ifindex, m.Fwd.Vlan, esi)
		default:
			return
		}
		e.commitMAC(v, m, projectOpts{})
	})
	return nil
}

// DeleteLocalES detaches an Ethernet Segment. Peer vouching for its MACs and
// neighbors is void and their static flag is cleared.
func (e *Engine) DeleteLocalES(esi ESI) error {
	es, ok := e.es[esi]
	if !ok {
		return ErrNotFound
	}
	delete(e.es, esi)
	delete(e.esIf, es.IfIndex)
	e.log.WithField("esi", esi).Info("local Ethernet Segment deleted")

	e.forEachLocalMAC(func(v *VNI, m *MAC) {
		if m.Fwd.ESI != esi {
			return
		}
		for _, ip := range m.Neighs() {
			if n, ok := v.neighs[ip]; ok && n.HasPeerFlags() {
				e.setNeighPeerFlags(v, n, false, false)
			}
		}
		m.Fwd = localFwd(m.Fwd.IfIndex, m.Fwd.Vlan, ESI{})
		e.macESChanged(v, m)
		e.commitMAC(v, m, projectOpts{forceClearStatic: true})
	})
	return nil
}

// ESs returns the local Ethernet Segments ordered by ESI
func (e *Engine) ESs() []EthernetSegment {
	out := make([]EthernetSegment, 0, len(e.es))
	for _, es := range e.es {
		out = append(out, *es)
	}
	slices.SortFunc(out, func(a, b EthernetSegment) int { return slices.Compare(a.ESI[:], b.ESI[:]) })
	return out
}

func (e *Engine) forEachLocalMAC(fn func(v *VNI, m *MAC)) {
	for _, v := range e.sortedVNIs() {
		for _, m := range v.MACs() {
			if m.Owner == OwnerLocal {
				fn(v, m)
			}
		}
	}
}
