// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package zapi

import (
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// Discard is the notifier used when no BGP daemon is configured. It logs
// what would have been sent.
type Discard struct {
	Log *log.Entry
}

func (d Discard) trace(cmd Command, fields log.Fields) error {
	if d.Log != nil {
		d.Log.WithFields(fields).Debugf("zapi disabled, %s not sent", cmd)
	}
	return nil
}

// VNIAdd implements evpn.Notifier
func (d Discard) VNIAdd(cfg evpn.VNIConfig) error {
	return d.trace(CmdVNIAdd, log.Fields{"vni": cfg.ID})
}

// VNIDel implements evpn.Notifier
func (d Discard) VNIDel(vni uint32) error {
	return d.trace(CmdVNIDel, log.Fields{"vni": vni})
}

// L3VNIAdd implements evpn.Notifier
func (d Discard) L3VNIAdd(cfg evpn.L3VNIConfig) error {
	return d.trace(CmdL3VNIAdd, log.Fields{"l3vni": cfg.ID})
}

// L3VNIDel implements evpn.Notifier
func (d Discard) L3VNIDel(l3vni uint32) error {
	return d.trace(CmdL3VNIDel, log.Fields{"l3vni": l3vni})
}

// MacIPAdd implements evpn.Notifier
func (d Discard) MacIPAdd(r evpn.MacIPRoute) error {
	return d.trace(CmdMacIPAdd, log.Fields{"vni": r.VNI, "mac": r.MAC, "ip": r.IP})
}

// MacIPDel implements evpn.Notifier
func (d Discard) MacIPDel(r evpn.MacIPRoute) error {
	return d.trace(CmdMacIPDel, log.Fields{"vni": r.VNI, "mac": r.MAC, "ip": r.IP})
}

var _ evpn.Notifier = Discard{}
