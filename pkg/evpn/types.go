// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"encoding/hex"
	"net"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// MACAddr is an ethernet address usable as a map key
type MACAddr [6]byte

// ParseMAC parses s in any format accepted by net.ParseMAC
func ParseMAC(s string) (MACAddr, error) {
	var m MACAddr
	hw, err := net.ParseMAC(s)
	if err != nil {
		return m, err
	}
	if len(hw) != len(m) {
		return m, &net.AddrError{Err: "not an ethernet address", Addr: s}
	}
	copy(m[:], hw)
	return m, nil
}

// MustParseMAC is ParseMAC for constants and tests
func MustParseMAC(s string) MACAddr {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MACAddr) String() string {
	return net.HardwareAddr(m[:]).String()
}

// HardwareAddr returns a copy of m as a net.HardwareAddr
func (m MACAddr) HardwareAddr() net.HardwareAddr {
	return slices.Clone(m[:])
}

// IsZero reports whether m is 00:00:00:00:00:00
func (m MACAddr) IsZero() bool {
	return m == MACAddr{}
}

// ESI is a 10 byte Ethernet Segment Identifier
type ESI [10]byte

// ParseESI parses a colon separated ESI such as 03:44:38:39:ff:ff:01:00:00:01
func ParseESI(s string) (ESI, error) {
	var e ESI
	b, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return e, err
	}
	if len(b) != len(e) {
		return e, &net.AddrError{Err: "ESI must be 10 bytes", Addr: s}
	}
	copy(e[:], b)
	return e, nil
}

// IsZero reports whether e is the reserved all-zero ESI
func (e ESI) IsZero() bool {
	return e == ESI{}
}

func (e ESI) String() string {
	parts := make([]string, len(e))
	for i, b := range e {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// Ownership says which source of truth is authoritative for an entry
type Ownership uint8

const (
	// OwnerAuto is a MAC kept only because neighbors reference it
	OwnerAuto Ownership = iota
	// OwnerLocal is learnt on (or synced for) a local access port
	OwnerLocal
	// OwnerRemote is learnt from a BGP Type-2 route behind a remote VTEP
	OwnerRemote
)

func (o Ownership) String() string {
	switch o {
	case OwnerLocal:
		return "local"
	case OwnerRemote:
		return "remote"
	default:
		return "auto"
	}
}

// FwdKind selects which field of Fwd is authoritative
type FwdKind uint8

const (
	// FwdNone has no forwarding info (auto entries)
	FwdNone FwdKind = iota
	// FwdLocal forwards to IfIndex/Vlan
	FwdLocal
	// FwdRemote forwards to a single remote VTEP
	FwdRemote
	// FwdES forwards to an Ethernet Segment. Locally the ES access port is
	// kept in IfIndex/Vlan, remotely the originating VTEP is kept in VTEP.
	FwdES
)

// Fwd is the forwarding info of a MAC entry
type Fwd struct {
	Kind    FwdKind
	IfIndex int
	Vlan    uint16
	VTEP    netip.Addr
	ESI     ESI
}

func localFwd(ifindex int, vlan uint16, esi ESI) Fwd {
	if !esi.IsZero() {
		return Fwd{Kind: FwdES, IfIndex: ifindex, Vlan: vlan, ESI: esi}
	}
	return Fwd{Kind: FwdLocal, IfIndex: ifindex, Vlan: vlan}
}

func remoteFwd(vtep netip.Addr, esi ESI) Fwd {
	if !esi.IsZero() {
		return Fwd{Kind: FwdES, VTEP: vtep, ESI: esi}
	}
	return Fwd{Kind: FwdRemote, VTEP: vtep}
}

// DADState holds the duplicate address detection counters of an entry
type DADState struct {
	Count      int
	Start      time.Time
	DetectedAt time.Time
}

func (d *DADState) reset() {
	*d = DADState{}
}

// MAC is one entry of a VNI MAC table
type MAC struct {
	Addr  MACAddr
	VNI   uint32
	Owner Ownership
	Fwd   Fwd

	Sticky        bool
	DefGW         bool
	RemoteDefGW   bool
	Duplicate     bool
	PeerActive    bool
	PeerProxy     bool
	LocalInactive bool

	LocSeq uint32
	RemSeq uint32

	// SyncNeighCnt counts dependent neighbors carrying an ES peer flag
	SyncNeighCnt int
	DAD          DADState

	neighs  map[netip.Addr]struct{}
	prog    macProg
	adv     *MacIPRoute
	deleted bool
}

// HasPeerFlags reports whether an ES peer vouches for the MAC
func (m *MAC) HasPeerFlags() bool {
	return m.PeerActive || m.PeerProxy
}

// Static reports whether the dataplane must not age the MAC out
func (m *MAC) Static() bool {
	return m.SyncNeighCnt > 0 || m.HasPeerFlags()
}

// Neighs returns the addresses of the dependent neighbors in ascending order
func (m *MAC) Neighs() []netip.Addr {
	ips := make([]netip.Addr, 0, len(m.neighs))
	for ip := range m.neighs {
		ips = append(ips, ip)
	}
	slices.SortFunc(ips, func(a, b netip.Addr) int { return a.Compare(b) })
	return ips
}

// Advertised reports whether the MAC is currently advertised to BGP
func (m *MAC) Advertised() bool {
	return m.adv != nil
}

// Neigh is one entry of a VNI neighbor table
type Neigh struct {
	IP    netip.Addr
	VNI   uint32
	MAC   MACAddr
	Owner Ownership

	Active        bool
	Router        bool
	DefGW         bool
	Duplicate     bool
	PeerActive    bool
	PeerProxy     bool
	LocalInactive bool

	IfIndex int
	VTEP    netip.Addr

	LocSeq uint32
	RemSeq uint32
	DAD    DADState

	prog    neighProg
	adv     *MacIPRoute
	deleted bool
}

// HasPeerFlags reports whether an ES peer vouches for the neighbor
func (n *Neigh) HasPeerFlags() bool {
	return n.PeerActive || n.PeerProxy
}

// Static reports whether the dataplane must not age the neighbor out
func (n *Neigh) Static() bool {
	return n.HasPeerFlags()
}

// Advertised reports whether the neighbor is currently advertised to BGP
func (n *Neigh) Advertised() bool {
	return n.adv != nil
}

// FloodMode controls BUM replication towards a remote VTEP
type FloodMode uint8

const (
	// FloodNone installs no flood entry
	FloodNone FloodMode = iota
	// FloodHER uses head-end replication
	FloodHER
	// FloodPIM relies on the multicast underlay
	FloodPIM
)

func (f FloodMode) String() string {
	switch f {
	case FloodHER:
		return "head-end-replication"
	case FloodPIM:
		return "pim-sm"
	default:
		return "disabled"
	}
}

// VTEP is a remote tunnel endpoint of a VNI
type VTEP struct {
	IP    netip.Addr
	Flood FloodMode

	installed bool
}

// VNIConfig carries the provisioned attributes of an L2 VNI. AccessVlan is
// the bridge vlan the VNI is mapped to on access ports.
type VNIConfig struct {
	ID           uint32
	LocalVTEP    netip.Addr
	McastGroup   netip.Addr
	VxlanIfIndex int
	AccessVlan   uint16
	VRFID        uint32
	L3VNI        uint32
	AdvertiseGW  bool
	AdvertiseSVI bool
}

// VNI is an L2 overlay segment and owns its MAC, neighbor and VTEP tables
type VNI struct {
	VNIConfig
	OperUp bool

	macs    map[MACAddr]*MAC
	neighs  map[netip.Addr]*Neigh
	vteps   map[netip.Addr]*VTEP
	closing bool
}

func newVNI(cfg VNIConfig) *VNI {
	return &VNI{
		VNIConfig: cfg,
		OperUp:    true,
		macs:      make(map[MACAddr]*MAC),
		neighs:    make(map[netip.Addr]*Neigh),
		vteps:     make(map[netip.Addr]*VTEP),
	}
}

// MAC looks up a MAC entry
func (v *VNI) MAC(addr MACAddr) (*MAC, bool) {
	m, ok := v.macs[addr]
	return m, ok
}

// Neigh looks up a neighbor entry
func (v *VNI) Neigh(ip netip.Addr) (*Neigh, bool) {
	n, ok := v.neighs[ip]
	return n, ok
}

// VTEP looks up a remote VTEP
func (v *VNI) VTEP(ip netip.Addr) (*VTEP, bool) {
	t, ok := v.vteps[ip]
	return t, ok
}

// MACs returns the MAC entries ordered by address
func (v *VNI) MACs() []*MAC {
	out := make([]*MAC, 0, len(v.macs))
	for _, m := range v.macs {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *MAC) int { return compareMAC(a.Addr, b.Addr) })
	return out
}

// Neighs returns the neighbor entries ordered by address
func (v *VNI) Neighs() []*Neigh {
	out := make([]*Neigh, 0, len(v.neighs))
	for _, n := range v.neighs {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Neigh) int { return a.IP.Compare(b.IP) })
	return out
}

// VTEPs returns the remote VTEPs ordered by address
func (v *VNI) VTEPs() []*VTEP {
	out := make([]*VTEP, 0, len(v.vteps))
	for _, t := range v.vteps {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *VTEP) int { return a.IP.Compare(b.IP) })
	return out
}

func (v *VNI) entries() int {
	return len(v.macs) + len(v.neighs)
}

func compareMAC(a, b MACAddr) int {
	return slices.Compare(a[:], b[:])
}
