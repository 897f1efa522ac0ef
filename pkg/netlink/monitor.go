// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package netlink

import (
	"context"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"
	vn "github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

// Poster hands work to the engine loop
type Poster interface {
	Post(fn func(*evpn.Engine))
}

type macKey struct {
	vni uint32
	mac evpn.MACAddr
}

type neighKey struct {
	vni uint32
	ip  netip.Addr
}

// snapshot is the locally learnt state seen in one poll
type snapshot struct {
	macs   map[macKey]evpn.LocalMACUpdate
	neighs map[neighKey]evpn.LocalNeighUpdate
	operUp map[uint32]bool
}

func newSnapshot() *snapshot {
	return &snapshot{
		macs:   make(map[macKey]evpn.LocalMACUpdate),
		neighs: make(map[neighKey]evpn.LocalNeighUpdate),
		operUp: make(map[uint32]bool),
	}
}

// Monitor polls the kernel tables and posts the local learning changes to
// the engine
type Monitor struct {
	h        Handle
	topo     Topology
	engine   Poster
	installs *Installs
	interval time.Duration
	log      *log.Entry

	current *snapshot
}

// NewMonitor creates a monitor polling every interval. Entries found in
// installs are reported inactive until the kernel shows local activity on
// them; installs may be nil.
func NewMonitor(h Handle, topo Topology, engine Poster, installs *Installs, interval time.Duration, logger *log.Entry) *Monitor {
	if logger == nil {
		logger = log.WithField("module", "netlink")
	}
	return &Monitor{
		h:        h,
		topo:     topo,
		engine:   engine,
		installs: installs,
		interval: interval,
		log:      logger,
		current:  newSnapshot(),
	}
}

// Run polls until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Infof("netlink monitor started, polling every %s", m.interval)
	for {
		m.Poll()
		select {
		case <-ctx.Done():
			m.log.Info("netlink monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Poll reads the kernel tables once and posts the differences with the
// previous poll
func (m *Monitor) Poll() {
	latest, err := m.read()
	if err != nil {
		metrics.NetlinkPolls.WithLabelValues("error").Inc()
		m.log.WithError(err).Warn("polling netlink databases failed")
		return
	}
	metrics.NetlinkPolls.WithLabelValues("ok").Inc()
	m.notifyChanges(m.current, latest)
	m.current = latest
}

func (m *Monitor) read() (*snapshot, error) {
	s := newSnapshot()

	bridge, err := m.h.LinkByName(m.topo.Bridge)
	if err != nil {
		return nil, err
	}
	// entries on the VXLAN ports are remote, programmed by us
	vxlanPorts := make(map[int]bool)
	for _, dev := range m.topo.VNIs {
		if dev.VxlanDevice == "" {
			continue
		}
		link, err := m.h.LinkByName(dev.VxlanDevice)
		if err != nil {
			m.log.WithField("vni", dev.VNI).WithError(err).Debug("vxlan device not found")
			continue
		}
		vxlanPorts[link.Attrs().Index] = true
		s.operUp[dev.VNI] = link.Attrs().OperState == vn.OperUp || link.Attrs().OperState == vn.OperUnknown
	}

	fdb, err := m.h.NeighList(0, unix.AF_BRIDGE)
	if err != nil {
		return nil, err
	}
	for i := range fdb {
		n := &fdb[i]
		if n.MasterIndex != bridge.Attrs().Index || vxlanPorts[n.LinkIndex] || !learntFDB(n) {
			continue
		}
		dev, ok := m.topo.VNIByVlan(uint16(n.Vlan))
		if !ok {
			continue
		}
		var mac evpn.MACAddr
		copy(mac[:], n.HardwareAddr)
		s.macs[macKey{dev.VNI, mac}] = evpn.LocalMACUpdate{
			VNI:           dev.VNI,
			MAC:           mac,
			IfIndex:       n.LinkIndex,
			Vlan:          uint16(n.Vlan),
			Sticky:        n.Flags&ntfSticky != 0,
			LocalInactive: n.State&vn.NUD_STALE != 0 || m.installs.inactiveMAC(n, mac),
			DPStatic:      n.State&vn.NUD_NOARP != 0,
		}
	}

	for _, dev := range m.topo.VNIs {
		if dev.Svi == "" {
			continue
		}
		svi, err := m.h.LinkByName(dev.Svi)
		if err != nil {
			m.log.WithField("vni", dev.VNI).WithError(err).Debug("svi not found")
			continue
		}
		for _, family := range []int{vn.FAMILY_V4, vn.FAMILY_V6} {
			neighs, err := m.h.NeighList(svi.Attrs().Index, family)
			if err != nil {
				return nil, err
			}
			for i := range neighs {
				n := &neighs[i]
				if !learntNeigh(n) {
					continue
				}
				ip, ok := netip.AddrFromSlice(n.IP)
				if !ok {
					continue
				}
				ip = ip.Unmap()
				var mac evpn.MACAddr
				copy(mac[:], n.HardwareAddr)
				s.neighs[neighKey{dev.VNI, ip}] = evpn.LocalNeighUpdate{
					VNI:           dev.VNI,
					IP:            ip,
					MAC:           mac,
					IfIndex:       n.LinkIndex,
					Router:        n.Flags&unix.NTF_ROUTER != 0,
					LocalInactive: n.State&vn.NUD_STALE != 0 || m.installs.inactiveNeigh(n, ip, mac),
					DPStatic:      n.State&(vn.NUD_NOARP|vn.NUD_PERMANENT) != 0,
				}
			}
		}
	}
	return s, nil
}

// learntFDB keeps the bridge entries learnt or configured on access ports
func learntFDB(n *vn.Neigh) bool {
	if n.Flags&(unix.NTF_SELF|unix.NTF_EXT_LEARNED) != 0 {
		return false
	}
	// permanent entries are the addresses of the bridge ports themselves
	if n.State&vn.NUD_PERMANENT != 0 {
		return false
	}
	return len(n.HardwareAddr) == 6
}

// learntNeigh keeps the resolved neighbors we did not install ourselves
func learntNeigh(n *vn.Neigh) bool {
	if n.Flags&unix.NTF_EXT_LEARNED != 0 {
		return false
	}
	if n.State&(vn.NUD_FAILED|vn.NUD_INCOMPLETE) != 0 || n.State == vn.NUD_NONE {
		return false
	}
	return len(n.HardwareAddr) == 6
}

// notifyChanges posts the entries added, changed or gone between two polls.
// MACs are added before the neighbors using them and deleted after.
func (m *Monitor) notifyChanges(old, latest *snapshot) {
	for vni, up := range latest.operUp {
		// a down VNI is reposted until the engine knows about it
		if was, ok := old.operUp[vni]; !ok || was != up || !up {
			m.post(func(e *evpn.Engine) error { return e.SetVNIOperState(vni, up) }, "oper state", log.Fields{"vni": vni})
		}
	}
	for k, u := range latest.macs {
		if prev, ok := old.macs[k]; !ok || prev != u {
			m.post(func(e *evpn.Engine) error {
				_, err := e.UpsertLocalMAC(u)
				return err
			}, "local mac", log.Fields{"vni": k.vni, "mac": k.mac})
		}
	}
	for k, u := range latest.neighs {
		if prev, ok := old.neighs[k]; !ok || prev != u {
			m.post(func(e *evpn.Engine) error {
				_, err := e.UpsertLocalNeigh(u)
				return err
			}, "local neighbor", log.Fields{"vni": k.vni, "ip": k.ip})
		}
	}
	for k := range old.neighs {
		if _, ok := latest.neighs[k]; !ok {
			m.post(func(e *evpn.Engine) error { return e.DeleteLocalNeigh(k.vni, k.ip) }, "local neighbor delete", log.Fields{"vni": k.vni, "ip": k.ip})
		}
	}
	for k, u := range old.macs {
		if _, ok := latest.macs[k]; !ok {
			m.post(func(e *evpn.Engine) error { return e.DeleteLocalMAC(k.vni, k.mac, u.IfIndex) }, "local mac delete", log.Fields{"vni": k.vni, "mac": k.mac})
		}
	}
}

func (m *Monitor) post(fn func(*evpn.Engine) error, what string, fields log.Fields) {
	logger := m.log.WithFields(fields)
	logger.Debugf("%s changed", what)
	m.engine.Post(func(e *evpn.Engine) {
		if err := fn(e); err != nil {
			logger.WithError(err).Warnf("%s not applied", what)
		}
	})
}
