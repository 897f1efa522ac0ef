// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"net/netip"
)

// MAC-IP route flags as carried on the BGP control-plane stream
const (
	FlagSticky      uint8 = 0x01
	FlagGW          uint8 = 0x02
	FlagRouter      uint8 = 0x04
	FlagOverride    uint8 = 0x08
	FlagSVIIP       uint8 = 0x10
	FlagProxyAdvert uint8 = 0x20
	FlagSyncPath    uint8 = 0x40
)

// MacIPRoute is an EVPN Type-2 route exchanged with BGP. IP is the zero
// netip.Addr for MAC-only routes.
type MacIPRoute struct {
	VNI   uint32
	MAC   MACAddr
	IP    netip.Addr
	VTEP  netip.Addr
	Flags uint8
	Seq   uint32
	ESI   ESI
}

// HasIP reports whether the route carries an IP binding
func (r MacIPRoute) HasIP() bool {
	return r.IP.IsValid()
}

// LocalMACEntry is a MAC programmed on a local access port
type LocalMACEntry struct {
	VNI      uint32
	MAC      MACAddr
	IfIndex  int
	Vlan     uint16
	Sticky   bool
	Static   bool
	Inactive bool
}

// RemoteMACEntry is a MAC programmed behind a VTEP or a remote ES
type RemoteMACEntry struct {
	VNI    uint32
	MAC    MACAddr
	VTEP   netip.Addr
	ESI    ESI
	Sticky bool
}

// LocalNeighEntry is a neighbor programmed on the VNI's SVI
type LocalNeighEntry struct {
	VNI      uint32
	IP       netip.Addr
	MAC      MACAddr
	IfIndex  int
	Router   bool
	Static   bool
	Inactive bool
}

// RemoteNeighEntry is a neighbor learnt from a remote VTEP
type RemoteNeighEntry struct {
	VNI    uint32
	IP     netip.Addr
	MAC    MACAddr
	Router bool
}

// VTEPEntry is the BUM flood entry towards a remote VTEP
type VTEPEntry struct {
	VNI   uint32
	VTEP  netip.Addr
	Flood FloodMode
}

// RMACEntry is a router MAC of a symmetric IRB L3 VNI
type RMACEntry struct {
	L3VNI uint32
	RMAC  MACAddr
	VTEP  netip.Addr
}

// NexthopEntry is a remote VTEP nexthop of an L3 VNI
type NexthopEntry struct {
	L3VNI uint32
	VTEP  netip.Addr
	RMAC  MACAddr
}

// Dataplane programs the forwarding plane. All calls are idempotent upserts
// or deletes.
type Dataplane interface {
	UpsertLocalMAC(LocalMACEntry) error
	DeleteLocalMAC(LocalMACEntry) error
	UpsertRemoteMAC(RemoteMACEntry) error
	DeleteRemoteMAC(RemoteMACEntry) error
	UpsertLocalNeigh(LocalNeighEntry) error
	DeleteLocalNeigh(LocalNeighEntry) error
	UpsertRemoteNeigh(RemoteNeighEntry) error
	DeleteRemoteNeigh(RemoteNeighEntry) error
	UpsertVTEP(VTEPEntry) error
	DeleteVTEP(VTEPEntry) error
	UpsertRMAC(RMACEntry) error
	DeleteRMAC(RMACEntry) error
	UpsertNexthop(NexthopEntry) error
	DeleteNexthop(NexthopEntry) error
}

// Notifier sends the engine's view to the BGP control plane
type Notifier interface {
	VNIAdd(cfg VNIConfig) error
	VNIDel(vni uint32) error
	L3VNIAdd(cfg L3VNIConfig) error
	L3VNIDel(l3vni uint32) error
	MacIPAdd(r MacIPRoute) error
	MacIPDel(r MacIPRoute) error
}
