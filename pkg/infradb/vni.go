// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package infradb

import (
	"fmt"
	"net/netip"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
)

// VniSpec is the provisioned part of an L2 VNI
type VniSpec struct {
	Vni          uint32
	VtepIP       netip.Addr
	McastGroup   netip.Addr
	VxlanDevice  string
	Svi          string
	AccessVlan   uint16
	L3Vni        uint32
	AdvertiseGW  bool
	AdvertiseSVI bool
}

// Vni is an L2 VNI object
type Vni struct {
	Name            string
	Spec            VniSpec
	Status          Status
	ResourceVersion string
}

// build time check that struct implements interface
var _ EvpnObject = (*Vni)(nil)

// VniName is the infradb key of an L2 VNI
func VniName(vni uint32) string {
	return fmt.Sprintf("vni-%d", vni)
}

// NewVni creates a VNI object from its configuration
func NewVni(in config.VNIConfig) (*Vni, error) {
	vtep, err := netip.ParseAddr(in.VTEP)
	if err != nil {
		return nil, fmt.Errorf("vni %d: %w", in.VNI, err)
	}
	var mcast netip.Addr
	if in.McastGroup != "" {
		if mcast, err = netip.ParseAddr(in.McastGroup); err != nil {
			return nil, fmt.Errorf("vni %d: %w", in.VNI, err)
		}
	}
	return &Vni{
		Name: VniName(in.VNI),
		Spec: VniSpec{
			Vni:          in.VNI,
			VtepIP:       vtep,
			McastGroup:   mcast,
			VxlanDevice:  in.VxlanDevice,
			Svi:          in.Svi,
			AccessVlan:   in.AccessVlan,
			L3Vni:        in.L3VNI,
			AdvertiseGW:  in.AdvertiseGW,
			AdvertiseSVI: in.AdvertiseSVI,
		},
		Status: Status{OperStatus: OperStatusDown},
	}, nil
}

// GetName returns object unique name
func (in *Vni) GetName() string {
	return in.Name
}

// GetResourceVersion returns the version of the stored object
func (in *Vni) GetResourceVersion() string {
	return in.ResourceVersion
}

func (in *Vni) setResourceVersion(v string) {
	in.ResourceVersion = v
}

func (in *Vni) status() *Status {
	return &in.Status
}
