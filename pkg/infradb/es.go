// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package infradb

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
)

// EsSpec attaches an access interface to an Ethernet Segment
type EsSpec struct {
	Esi       string
	Interface string
}

// Es is an Ethernet Segment object
type Es struct {
	Name            string
	Spec            EsSpec
	Status          Status
	ResourceVersion string
}

// build time check that struct implements interface
var _ EvpnObject = (*Es)(nil)

// EsName is the infradb key of an Ethernet Segment
func EsName(esi string) string {
	return "es-" + strings.ToLower(strings.ReplaceAll(esi, ":", ""))
}

// NewEs creates an Ethernet Segment object from its configuration
func NewEs(in config.ESConfig) (*Es, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(in.ESI, ":", ""))
	if err != nil || len(b) != 10 {
		return nil, fmt.Errorf("invalid esi %q", in.ESI)
	}
	if in.Interface == "" {
		return nil, fmt.Errorf("esi %s: missing interface", in.ESI)
	}
	return &Es{
		Name:   EsName(in.ESI),
		Spec:   EsSpec{Esi: in.ESI, Interface: in.Interface},
		Status: Status{OperStatus: OperStatusDown},
	}, nil
}

// GetName returns object unique name
func (in *Es) GetName() string {
	return in.Name
}

// GetResourceVersion returns the version of the stored object
func (in *Es) GetResourceVersion() string {
	return in.ResourceVersion
}

func (in *Es) setResourceVersion(v string) {
	in.ResourceVersion = v
}

func (in *Es) status() *Status {
	return &in.Status
}
