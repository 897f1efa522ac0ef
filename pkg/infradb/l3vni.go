// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package infradb

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
)

// L3VniSpec is the provisioned part of a symmetric IRB L3 VNI
type L3VniSpec struct {
	Vni    uint32
	VrfID  uint32
	Rmac   string
	VtepIP netip.Addr
}

// L3Vni is an L3 VNI object
type L3Vni struct {
	Name            string
	Spec            L3VniSpec
	Status          Status
	ResourceVersion string
}

// build time check that struct implements interface
var _ EvpnObject = (*L3Vni)(nil)

// L3VniName is the infradb key of an L3 VNI
func L3VniName(vni uint32) string {
	return fmt.Sprintf("l3vni-%d", vni)
}

// NewL3Vni creates an L3 VNI object from its configuration
func NewL3Vni(in config.L3VNIConfig) (*L3Vni, error) {
	if _, err := net.ParseMAC(in.Rmac); err != nil {
		return nil, fmt.Errorf("l3vni %d: %w", in.VNI, err)
	}
	var vtep netip.Addr
	if in.VTEP != "" {
		var err error
		if vtep, err = netip.ParseAddr(in.VTEP); err != nil {
			return nil, fmt.Errorf("l3vni %d: %w", in.VNI, err)
		}
	}
	return &L3Vni{
		Name: L3VniName(in.VNI),
		Spec: L3VniSpec{
			Vni:    in.VNI,
			VrfID:  in.VrfID,
			Rmac:   in.Rmac,
			VtepIP: vtep,
		},
		Status: Status{OperStatus: OperStatusDown},
	}, nil
}

// GetName returns object unique name
func (in *L3Vni) GetName() string {
	return in.Name
}

// GetResourceVersion returns the version of the stored object
func (in *L3Vni) GetResourceVersion() string {
	return in.ResourceVersion
}

func (in *L3Vni) setResourceVersion(v string) {
	in.ResourceVersion = v
}

func (in *L3Vni) status() *Status {
	return &in.Status
}
