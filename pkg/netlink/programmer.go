// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package netlink

import (
	"net"
	"net/netip"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vn "github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// NTF_STICKY from linux/neighbour.h, missing in x/sys/unix
const ntfSticky = 0x40

// ErrNoDevice is returned when a VNI has no device configured for the entry
var ErrNoDevice = errors.New("no device configured")

// Programmer implements evpn.Dataplane on the Linux bridge and VXLAN
// devices
type Programmer struct {
	h        Handle
	topo     Topology
	installs *Installs
	log      *log.Entry
}

// build time check that struct implements interface
var _ evpn.Dataplane = (*Programmer)(nil)

// NewProgrammer creates a programmer for the devices of topo
func NewProgrammer(h Handle, topo Topology, logger *log.Entry) *Programmer {
	if logger == nil {
		logger = log.WithField("module", "netlink")
	}
	return &Programmer{h: h, topo: topo, installs: NewInstalls(), log: logger}
}

// Installs returns the static entries programmed for ES peers, to be
// shared with the Monitor reading the same tables
func (p *Programmer) Installs() *Installs {
	return p.installs
}

// IfIndex resolves an interface name
func (p *Programmer) IfIndex(name string) (int, error) {
	link, err := p.h.LinkByName(name)
	if err != nil {
		return 0, errors.Wrapf(err, "link %s", name)
	}
	return link.Attrs().Index, nil
}

func (p *Programmer) vniDevice(vni uint32, svi bool) (int, VNIDevices, error) {
	dev, ok := p.topo.VNI(vni)
	name := dev.VxlanDevice
	if svi {
		name = dev.Svi
	}
	if !ok || name == "" {
		return 0, dev, errors.Wrapf(ErrNoDevice, "vni %d", vni)
	}
	ifindex, err := p.IfIndex(name)
	return ifindex, dev, err
}

func (p *Programmer) l3vniDevice(l3vni uint32, svi bool) (int, error) {
	dev, ok := p.topo.L3VNI(l3vni)
	name := dev.VxlanDevice
	if svi {
		name = dev.Svi
	}
	if !ok || name == "" {
		return 0, errors.Wrapf(ErrNoDevice, "l3vni %d", l3vni)
	}
	return p.IfIndex(name)
}

func ipFamily(ip netip.Addr) int {
	if ip.Is4() {
		return vn.FAMILY_V4
	}
	return vn.FAMILY_V6
}

func netIP(ip netip.Addr) net.IP {
	return net.IP(ip.AsSlice())
}

func fdbState(static, inactive bool) int {
	switch {
	case static:
		return vn.NUD_NOARP
	case inactive:
		return vn.NUD_STALE
	default:
		return vn.NUD_REACHABLE
	}
}

func localFDB(e evpn.LocalMACEntry) *vn.Neigh {
	flags := unix.NTF_MASTER
	if e.Sticky {
		flags |= ntfSticky
	}
	return &vn.Neigh{
		LinkIndex:    e.IfIndex,
		Family:       unix.AF_BRIDGE,
		Flags:        flags,
		State:        fdbState(e.Static || e.Sticky, e.Inactive),
		Vlan:         int(e.Vlan),
		HardwareAddr: e.MAC.HardwareAddr(),
	}
}

// UpsertLocalMAC refreshes the bridge entry of a MAC on its access port
func (p *Programmer) UpsertLocalMAC(e evpn.LocalMACEntry) error {
	n := localFDB(e)
	if err := p.h.NeighSet(n); err != nil {
		return errors.Wrapf(err, "set local fdb %s", e.MAC)
	}
	p.installs.setMAC(n, e.MAC, e.Inactive)
	return nil
}

// DeleteLocalMAC removes the bridge entry of a local MAC
func (p *Programmer) DeleteLocalMAC(e evpn.LocalMACEntry) error {
	p.installs.delMAC(e.Vlan, e.MAC)
	return errors.Wrapf(p.h.NeighDel(localFDB(e)), "delete local fdb %s", e.MAC)
}

// remoteFDB returns the bridge entry on the VXLAN port and the VXLAN
// device entry pointing at the VTEP
func (p *Programmer) remoteFDB(e evpn.RemoteMACEntry) (*vn.Neigh, *vn.Neigh, error) {
	ifindex, dev, err := p.vniDevice(e.VNI, false)
	if err != nil {
		return nil, nil, err
	}
	flags := unix.NTF_MASTER | unix.NTF_EXT_LEARNED
	if e.Sticky {
		flags |= ntfSticky
	}
	master := &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       unix.AF_BRIDGE,
		Flags:        flags,
		State:        vn.NUD_NOARP,
		Vlan:         int(dev.AccessVlan),
		HardwareAddr: e.MAC.HardwareAddr(),
	}
	self := &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       unix.AF_BRIDGE,
		Flags:        unix.NTF_SELF | unix.NTF_EXT_LEARNED,
		State:        vn.NUD_NOARP,
		IP:           netIP(e.VTEP),
		HardwareAddr: e.MAC.HardwareAddr(),
	}
	return master, self, nil
}

// UpsertRemoteMAC points a MAC at its VTEP. MACs behind a remote Ethernet
// Segment use the VTEP of the route last accepted.
func (p *Programmer) UpsertRemoteMAC(e evpn.RemoteMACEntry) error {
	master, self, err := p.remoteFDB(e)
	if err != nil {
		return err
	}
	if err := p.h.NeighSet(self); err != nil {
		return errors.Wrapf(err, "set vxlan fdb %s via %s", e.MAC, e.VTEP)
	}
	return errors.Wrapf(p.h.NeighSet(master), "set remote fdb %s", e.MAC)
}

// DeleteRemoteMAC removes both entries of a remote MAC
func (p *Programmer) DeleteRemoteMAC(e evpn.RemoteMACEntry) error {
	master, self, err := p.remoteFDB(e)
	if err != nil {
		return err
	}
	if err := p.h.NeighDel(master); err != nil {
		return errors.Wrapf(err, "delete remote fdb %s", e.MAC)
	}
	return errors.Wrapf(p.h.NeighDel(self), "delete vxlan fdb %s", e.MAC)
}

func (p *Programmer) localNeigh(e evpn.LocalNeighEntry) (*vn.Neigh, error) {
	ifindex := e.IfIndex
	if ifindex == 0 {
		var err error
		if ifindex, _, err = p.vniDevice(e.VNI, true); err != nil {
			return nil, err
		}
	}
	flags := 0
	if e.Router {
		flags = unix.NTF_ROUTER
	}
	return &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       ipFamily(e.IP),
		Flags:        flags,
		State:        fdbState(e.Static, e.Inactive),
		IP:           netIP(e.IP),
		HardwareAddr: e.MAC.HardwareAddr(),
	}, nil
}

// UpsertLocalNeigh refreshes a neighbor on the SVI
func (p *Programmer) UpsertLocalNeigh(e evpn.LocalNeighEntry) error {
	n, err := p.localNeigh(e)
	if err != nil {
		return err
	}
	if err := p.h.NeighSet(n); err != nil {
		return errors.Wrapf(err, "set local neighbor %s", e.IP)
	}
	p.installs.setNeigh(n, e.IP, e.MAC, e.Inactive)
	return nil
}

// DeleteLocalNeigh removes a neighbor from the SVI
func (p *Programmer) DeleteLocalNeigh(e evpn.LocalNeighEntry) error {
	n, err := p.localNeigh(e)
	if err != nil {
		return err
	}
	p.installs.delNeigh(n.LinkIndex, e.IP)
	return errors.Wrapf(p.h.NeighDel(n), "delete local neighbor %s", e.IP)
}

func (p *Programmer) remoteNeigh(e evpn.RemoteNeighEntry) (*vn.Neigh, error) {
	ifindex, _, err := p.vniDevice(e.VNI, true)
	if err != nil {
		return nil, err
	}
	flags := unix.NTF_EXT_LEARNED
	if e.Router {
		flags |= unix.NTF_ROUTER
	}
	return &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       ipFamily(e.IP),
		Flags:        flags,
		State:        vn.NUD_NOARP,
		IP:           netIP(e.IP),
		HardwareAddr: e.MAC.HardwareAddr(),
	}, nil
}

// UpsertRemoteNeigh installs a neighbor learnt from BGP on the SVI
func (p *Programmer) UpsertRemoteNeigh(e evpn.RemoteNeighEntry) error {
	n, err := p.remoteNeigh(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighSet(n), "set remote neighbor %s", e.IP)
}

// DeleteRemoteNeigh removes a neighbor learnt from BGP
func (p *Programmer) DeleteRemoteNeigh(e evpn.RemoteNeighEntry) error {
	n, err := p.remoteNeigh(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighDel(n), "delete remote neighbor %s", e.IP)
}

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

func (p *Programmer) floodEntry(e evpn.VTEPEntry) (*vn.Neigh, error) {
	ifindex, _, err := p.vniDevice(e.VNI, false)
	if err != nil {
		return nil, err
	}
	return &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       unix.AF_BRIDGE,
		Flags:        unix.NTF_SELF,
		State:        vn.NUD_NOARP | vn.NUD_PERMANENT,
		IP:           netIP(e.VTEP),
		HardwareAddr: zeroMAC,
	}, nil
}

// UpsertVTEP adds the head-end replication entry of a VTEP. PIM flooding
// needs no per-VTEP entry.
func (p *Programmer) UpsertVTEP(e evpn.VTEPEntry) error {
	if e.Flood != evpn.FloodHER {
		p.log.WithField("vtep", e.VTEP).Debugf("flood mode %s needs no entry", e.Flood)
		return nil
	}
	n, err := p.floodEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighAppend(n), "append flood entry %s", e.VTEP)
}

// DeleteVTEP removes the head-end replication entry of a VTEP
func (p *Programmer) DeleteVTEP(e evpn.VTEPEntry) error {
	if e.Flood != evpn.FloodHER {
		return nil
	}
	n, err := p.floodEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighDel(n), "delete flood entry %s", e.VTEP)
}

func (p *Programmer) rmacEntry(e evpn.RMACEntry) (*vn.Neigh, error) {
	ifindex, err := p.l3vniDevice(e.L3VNI, false)
	if err != nil {
		return nil, err
	}
	return &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       unix.AF_BRIDGE,
		Flags:        unix.NTF_SELF | unix.NTF_EXT_LEARNED,
		State:        vn.NUD_NOARP,
		IP:           netIP(e.VTEP),
		HardwareAddr: e.RMAC.HardwareAddr(),
	}, nil
}

// UpsertRMAC points a router MAC at its VTEP on the L3 VXLAN device
func (p *Programmer) UpsertRMAC(e evpn.RMACEntry) error {
	n, err := p.rmacEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighSet(n), "set rmac %s", e.RMAC)
}

// DeleteRMAC removes a router MAC
func (p *Programmer) DeleteRMAC(e evpn.RMACEntry) error {
	n, err := p.rmacEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighDel(n), "delete rmac %s", e.RMAC)
}

func (p *Programmer) nexthopEntry(e evpn.NexthopEntry) (*vn.Neigh, error) {
	ifindex, err := p.l3vniDevice(e.L3VNI, true)
	if err != nil {
		return nil, err
	}
	return &vn.Neigh{
		LinkIndex:    ifindex,
		Family:       ipFamily(e.VTEP),
		Flags:        unix.NTF_EXT_LEARNED,
		State:        vn.NUD_NOARP,
		IP:           netIP(e.VTEP),
		HardwareAddr: e.RMAC.HardwareAddr(),
	}, nil
}

// UpsertNexthop resolves a VTEP nexthop to its router MAC on the L3 SVI
func (p *Programmer) UpsertNexthop(e evpn.NexthopEntry) error {
	n, err := p.nexthopEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighSet(n), "set nexthop %s", e.VTEP)
}

// DeleteNexthop removes a VTEP nexthop neighbor
func (p *Programmer) DeleteNexthop(e evpn.NexthopEntry) error {
	n, err := p.nexthopEntry(e)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.h.NeighDel(n), "delete nexthop %s", e.VTEP)
}
