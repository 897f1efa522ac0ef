// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package netlink

import (
	"github.com/opiproject/opi-evpn-syncd/pkg/config"
)

// VNIDevices are the kernel devices of an L2 VNI
type VNIDevices struct {
	VNI         uint32
	AccessVlan  uint16
	VxlanDevice string
	Svi         string
}

// L3VNIDevices are the kernel devices of an L3 VNI
type L3VNIDevices struct {
	L3VNI       uint32
	VxlanDevice string
	Svi         string
}

// Topology maps VNIs to the devices carrying them
type Topology struct {
	Bridge string
	VNIs   []VNIDevices
	L3VNIs []L3VNIDevices
}

// TopologyFromConfig extracts the device names of every configured VNI
func TopologyFromConfig(cfg *config.Config) Topology {
	t := Topology{Bridge: cfg.Netlink.Bridge}
	for _, v := range cfg.Evpn.VNIs {
		t.VNIs = append(t.VNIs, VNIDevices{VNI: v.VNI, AccessVlan: v.AccessVlan, VxlanDevice: v.VxlanDevice, Svi: v.Svi})
	}
	for _, l := range cfg.Evpn.L3VNIs {
		t.L3VNIs = append(t.L3VNIs, L3VNIDevices{L3VNI: l.VNI, VxlanDevice: l.VxlanDevice, Svi: l.Svi})
	}
	return t
}

// VNI returns the devices of an L2 VNI
func (t Topology) VNI(vni uint32) (VNIDevices, bool) {
	for _, v := range t.VNIs {
		if v.VNI == vni {
			return v, true
		}
	}
	return VNIDevices{}, false
}

// L3VNI returns the devices of an L3 VNI
func (t Topology) L3VNI(l3vni uint32) (L3VNIDevices, bool) {
	for _, l := range t.L3VNIs {
		if l.L3VNI == l3vni {
			return l, true
		}
	}
	return L3VNIDevices{}, false
}

// VNIByVlan returns the L2 VNI mapped to an access vlan
func (t Topology) VNIByVlan(vlan uint16) (VNIDevices, bool) {
	for _, v := range t.VNIs {
		if v.AccessVlan == vlan {
			return v, true
		}
	}
	return VNIDevices{}, false
}
