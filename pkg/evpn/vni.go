// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"cmp"
	"slices"
)

// AddVNI provisions an L2 VNI or updates its configuration
func (e *Engine) AddVNI(cfg VNIConfig) error {
	if cfg.ID == 0 {
		return ErrInvalidUpdate
	}
	v, ok := e.vnis[cfg.ID]
	if ok {
		if v.VNIConfig == cfg {
			return nil
		}
		v.VNIConfig = cfg
		e.log.WithField("vni", cfg.ID).Info("VNI updated")
		if v.OperUp {
			e.notifyVNIAdd(v)
		}
		// advertised routes carry the local VTEP
		e.commitAll(v)
		return nil
	}

	v = newVNI(cfg)
	e.vnis[cfg.ID] = v
	e.log.WithField("vni", cfg.ID).WithField("vtep", cfg.LocalVTEP).Info("VNI added")
	e.notifyVNIAdd(v)
	return nil
}

// SetVNIOperState follows the operational state of the VXLAN device. A down
// VNI withdraws and uninstalls everything but keeps its tables.
func (e *Engine) SetVNIOperState(id uint32, up bool) error {
	v, err := e.lookupVNI(id)
	if err != nil {
		return err
	}
	if v.OperUp == up {
		return nil
	}
	v.OperUp = up
	e.log.WithField("vni", id).Infof("VNI oper up %t", up)
	if up {
		e.notifyVNIAdd(v)
	}
	e.commitAll(v)
	if !up {
		e.notifyVNIDel(v.ID)
	}
	return nil
}

// DeleteVNI removes an L2 VNI with all its entries. Routes are not
// withdrawn one by one; BGP drops them with the VNI.
func (e *Engine) DeleteVNI(id uint32) error {
	v, err := e.lookupVNI(id)
	if err != nil {
		return err
	}
	v.closing = true
	for _, n := range v.Neighs() {
		n.deleted = true
	}
	for _, m := range v.MACs() {
		m.deleted = true
		e.commitMAC(v, m, projectOpts{})
	}
	for _, n := range v.Neighs() {
		e.commitNeigh(v, n, projectOpts{})
	}
	for _, t := range v.VTEPs() {
		e.uninstallVTEP(v, t)
	}
	e.timers.stopVNI(id)
	delete(e.vnis, id)
	e.notifyVNIDel(id)
	e.log.WithField("vni", id).Info("VNI deleted")
	return nil
}

// VNIs returns the L2 VNIs ordered by id
func (e *Engine) VNIs() []*VNI {
	return e.sortedVNIs()
}

func (e *Engine) sortedVNIs() []*VNI {
	out := make([]*VNI, 0, len(e.vnis))
	for _, v := range e.vnis {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *VNI) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// commitAll re-projects every entry of the VNI
func (e *Engine) commitAll(v *VNI) {
	for _, m := range v.MACs() {
		e.commitMAC(v, m, projectOpts{})
	}
	for _, n := range v.Neighs() {
		// neighbors bound to a MAC were committed above
		if m, ok := v.macs[n.MAC]; ok {
			if _, bound := m.neighs[n.IP]; bound {
				continue
			}
		}
		e.commitNeigh(v, n, projectOpts{})
	}
	for _, t := range v.VTEPs() {
		e.projectVTEP(v, t)
	}
}

func (e *Engine) notifyVNIAdd(v *VNI) {
	if err := e.bgp.VNIAdd(v.VNIConfig); err != nil {
		e.log.WithField("vni", v.ID).WithError(err).Error("failed to send VNI add to BGP")
	}
}

func (e *Engine) notifyVNIDel(id uint32) {
	if err := e.bgp.VNIDel(id); err != nil {
		e.log.WithField("vni", id).WithError(err).Error("failed to send VNI delete to BGP")
	}
}

// ReplayBGP re-sends every VNI and advertised route. It is used once the
// BGP daemon connection is re-established, since the daemon forgets what
// it was told over the old one.
func (e *Engine) ReplayBGP() {
	for _, l := range e.L3VNIs() {
		if err := e.bgp.L3VNIAdd(l.L3VNIConfig); err != nil {
			e.log.WithField("l3vni", l.ID).WithError(err).Error("failed to replay L3 VNI to BGP")
		}
	}
	for _, v := range e.sortedVNIs() {
		if !v.OperUp {
			continue
		}
		e.notifyVNIAdd(v)
		for _, m := range v.MACs() {
			if m.adv != nil {
				e.sendMacIPAdd(*m.adv)
			}
		}
		for _, n := range v.Neighs() {
			if n.adv != nil {
				e.sendMacIPAdd(*n.adv)
			}
		}
	}
	e.log.Info("state replayed to BGP")
}
