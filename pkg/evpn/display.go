// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"context"
)

// MACView is the read-only rendering of a MAC entry
type MACView struct {
	VNI          uint32   `json:"vni"`
	MAC          string   `json:"mac"`
	Type         string   `json:"type"`
	IfIndex      int      `json:"ifindex,omitempty"`
	Vlan         uint16   `json:"vlan,omitempty"`
	VTEP         string   `json:"vtep,omitempty"`
	ESI          string   `json:"esi,omitempty"`
	Flags        []string `json:"flags,omitempty"`
	LocSeq       uint32   `json:"local_seq"`
	RemSeq       uint32   `json:"remote_seq"`
	Neighs       []string `json:"neighbors,omitempty"`
	SyncNeighCnt int      `json:"sync_neigh_count,omitempty"`
	DADCount     int      `json:"dad_count,omitempty"`
	Advertised   bool     `json:"advertised"`
}

// NeighView is the read-only rendering of a neighbor entry
type NeighView struct {
	VNI        uint32   `json:"vni"`
	IP         string   `json:"ip"`
	MAC        string   `json:"mac"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	VTEP       string   `json:"vtep,omitempty"`
	Flags      []string `json:"flags,omitempty"`
	LocSeq     uint32   `json:"local_seq"`
	RemSeq     uint32   `json:"remote_seq"`
	DADCount   int      `json:"dad_count,omitempty"`
	Advertised bool     `json:"advertised"`
}

// VNIView summarizes a VNI
type VNIView struct {
	VNI        uint32   `json:"vni"`
	VTEP       string   `json:"vtep"`
	OperUp     bool     `json:"oper_up"`
	L3VNI      uint32   `json:"l3vni,omitempty"`
	MACs       int      `json:"macs"`
	Neighs     int      `json:"neighbors"`
	Remote     []string `json:"remote_vteps,omitempty"`
	Duplicates int      `json:"duplicates"`
}

// Snapshot is a consistent copy of the engine tables
type Snapshot struct {
	VNIs   []VNIView   `json:"vnis"`
	MACs   []MACView   `json:"macs"`
	Neighs []NeighView `json:"neighbors"`
}

func flagNames(pairs ...any) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1].(bool) {
			out = append(out, pairs[i].(string))
		}
	}
	return out
}

func viewMAC(m *MAC) MACView {
	mv := MACView{
		VNI:          m.VNI,
		MAC:          m.Addr.String(),
		Type:         m.Owner.String(),
		LocSeq:       m.LocSeq,
		RemSeq:       m.RemSeq,
		SyncNeighCnt: m.SyncNeighCnt,
		DADCount:     m.DAD.Count,
		Advertised:   m.Advertised(),
		Flags: flagNames(
			"sticky", m.Sticky,
			"def-gw", m.DefGW,
			"remote-gw", m.RemoteDefGW,
			"duplicate", m.Duplicate,
			"peer-active", m.PeerActive,
			"peer-proxy", m.PeerProxy,
			"local-inactive", m.LocalInactive,
		),
	}
	switch m.Fwd.Kind {
	case FwdLocal:
		mv.IfIndex, mv.Vlan = m.Fwd.IfIndex, m.Fwd.Vlan
	case FwdRemote:
		mv.VTEP = m.Fwd.VTEP.String()
	case FwdES:
		mv.ESI = m.Fwd.ESI.String()
		if m.Fwd.VTEP.IsValid() {
			mv.VTEP = m.Fwd.VTEP.String()
		} else {
			mv.IfIndex, mv.Vlan = m.Fwd.IfIndex, m.Fwd.Vlan
		}
	}
	for _, ip := range m.Neighs() {
		mv.Neighs = append(mv.Neighs, ip.String())
	}
	return mv
}

func viewNeigh(n *Neigh) NeighView {
	nv := NeighView{
		VNI:        n.VNI,
		IP:         n.IP.String(),
		MAC:        n.MAC.String(),
		Type:       n.Owner.String(),
		State:      "inactive",
		LocSeq:     n.LocSeq,
		RemSeq:     n.RemSeq,
		DADCount:   n.DAD.Count,
		Advertised: n.Advertised(),
		Flags: flagNames(
			"router", n.Router,
			"def-gw", n.DefGW,
			"duplicate", n.Duplicate,
			"peer-active", n.PeerActive,
			"peer-proxy", n.PeerProxy,
			"local-inactive", n.LocalInactive,
		),
	}
	if n.Active || n.Owner == OwnerRemote {
		nv.State = "active"
	}
	if n.VTEP.IsValid() {
		nv.VTEP = n.VTEP.String()
	}
	return nv
}

// Snapshot copies the tables of one VNI, or of all VNIs when vni is 0. It
// must run on the engine goroutine, see SnapshotContext.
func (e *Engine) Snapshot(vni uint32) (Snapshot, error) {
	var s Snapshot
	vnis := e.sortedVNIs()
	if vni != 0 {
		v, err := e.lookupVNI(vni)
		if err != nil {
			return s, err
		}
		vnis = []*VNI{v}
	}
	for _, v := range vnis {
		vv := VNIView{
			VNI:    v.ID,
			OperUp: v.OperUp,
			L3VNI:  v.L3VNI,
			MACs:   len(v.macs),
			Neighs: len(v.neighs),
		}
		if v.LocalVTEP.IsValid() {
			vv.VTEP = v.LocalVTEP.String()
		}
		for _, t := range v.VTEPs() {
			vv.Remote = append(vv.Remote, t.IP.String())
		}
		for _, m := range v.MACs() {
			if m.Duplicate {
				vv.Duplicates++
			}
			s.MACs = append(s.MACs, viewMAC(m))
		}
		for _, n := range v.Neighs() {
			if n.Duplicate {
				vv.Duplicates++
			}
			s.Neighs = append(s.Neighs, viewNeigh(n))
		}
		s.VNIs = append(s.VNIs, vv)
	}
	return s, nil
}

// SnapshotContext takes a Snapshot from another goroutine
func (e *Engine) SnapshotContext(ctx context.Context, vni uint32) (Snapshot, error) {
	var s Snapshot
	err := e.Submit(ctx, func(e *Engine) error {
		var err error
		s, err = e.Snapshot(vni)
		return err
	})
	return s, err
}
