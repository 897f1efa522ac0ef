// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"
)

// AddRemoteVTEP adds or updates a remote VTEP of a VNI. Only head-end
// replication needs a flood entry in the dataplane.
func (e *Engine) AddRemoteVTEP(vni uint32, ip netip.Addr, flood FloodMode) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	if !ip.IsValid() {
		return ErrInvalidUpdate
	}
	if e.isLocalVTEP(v, ip) {
		e.log.WithField("vni", vni).WithField("vtep", ip).Debug("local VTEP ignored")
		return nil
	}
	t, ok := v.vteps[ip]
	if ok && t.Flood == flood {
		return nil
	}
	if !ok {
		t = &VTEP{IP: ip}
		v.vteps[ip] = t
	}
	if t.installed && t.Flood != flood {
		e.uninstallVTEP(v, t)
	}
	t.Flood = flood
	e.log.WithField("vni", vni).WithField("vtep", ip).Infof("remote VTEP flood %s", flood)
	e.projectVTEP(v, t)
	return nil
}

// DeleteRemoteVTEP removes a remote VTEP together with every remote entry
// learnt behind it
func (e *Engine) DeleteRemoteVTEP(vni uint32, ip netip.Addr) error {
	v, err := e.lookupVNI(vni)
	if err != nil {
		return err
	}
	t, ok := v.vteps[ip]
	if !ok {
		return ErrNotFound
	}

	for _, n := range v.Neighs() {
		if n.Owner != OwnerRemote || n.VTEP != ip {
			continue
		}
		m := e.unbindNeigh(v, n)
		n.deleted = true
		e.commitNeigh(v, n, projectOpts{})
		if m != nil {
			e.derefMAC(v, m)
			e.commitMAC(v, m, projectOpts{})
		}
	}
	for _, m := range v.MACs() {
		if m.Owner != OwnerRemote || m.Fwd.VTEP != ip {
			continue
		}
		if len(m.neighs) > 0 {
			m.Owner = OwnerAuto
			m.Fwd = Fwd{}
			m.Sticky = false
			m.RemoteDefGW = false
		} else {
			m.deleted = true
		}
		e.commitMAC(v, m, projectOpts{})
	}

	e.uninstallVTEP(v, t)
	delete(v.vteps, ip)
	e.log.WithField("vni", vni).WithField("vtep", ip).Info("remote VTEP deleted")
	return nil
}

func (e *Engine) projectVTEP(v *VNI, t *VTEP) {
	want := v.OperUp && !v.closing && t.Flood == FloodHER
	switch {
	case want && !t.installed:
		e.dpCall("upsert-vtep", e.dp.UpsertVTEP(VTEPEntry{VNI: v.ID, VTEP: t.IP, Flood: t.Flood}))
		t.installed = true
	case !want && t.installed:
		e.uninstallVTEP(v, t)
	}
}

func (e *Engine) uninstallVTEP(v *VNI, t *VTEP) {
	if !t.installed {
		return
	}
	e.dpCall("delete-vtep", e.dp.DeleteVTEP(VTEPEntry{VNI: v.ID, VTEP: t.IP, Flood: FloodHER}))
	t.installed = false
}
