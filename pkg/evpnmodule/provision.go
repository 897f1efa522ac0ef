// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpnmodule

import (
	"errors"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb"
)

// Provision stores the objects of the configuration in infradb. L3 VNIs go
// first so that the VNIs referencing them find their VRF.
func Provision(cfg config.EvpnConfig) error {
	for _, c := range cfg.L3VNIs {
		obj, err := infradb.NewL3Vni(c)
		if err != nil {
			return err
		}
		if err := createOrUpdate(obj, infradb.CreateL3Vni, infradb.UpdateL3Vni); err != nil {
			return err
		}
	}
	for _, c := range cfg.VNIs {
		obj, err := infradb.NewVni(c)
		if err != nil {
			return err
		}
		if err := createOrUpdate(obj, infradb.CreateVni, infradb.UpdateVni); err != nil {
			return err
		}
	}
	for _, c := range cfg.EthernetSegments {
		obj, err := infradb.NewEs(c)
		if err != nil {
			return err
		}
		if err := createOrUpdate(obj, infradb.CreateEs, infradb.UpdateEs); err != nil {
			return err
		}
	}
	return nil
}

func createOrUpdate[T any](obj T, create, update func(T) error) error {
	err := create(obj)
	if errors.Is(err, infradb.ErrKeyExists) {
		return update(obj)
	}
	return err
}
