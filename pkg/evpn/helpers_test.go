// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn_test

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

const testVNI = 100

var (
	localVTEP = netip.MustParseAddr("10.0.0.1")
	vtepA     = netip.MustParseAddr("10.0.0.2")
	vtepB     = netip.MustParseAddr("10.0.0.3")
	peerVTEP  = netip.MustParseAddr("10.0.0.4")

	mac1 = evpn.MustParseMAC("00:00:5e:00:53:01")
	mac2 = evpn.MustParseMAC("00:00:5e:00:53:02")

	ip1 = netip.MustParseAddr("192.0.2.10")
	ip2 = netip.MustParseAddr("192.0.2.11")

	esi1 = mustESI("03:44:38:39:ff:ff:01:00:00:01")
	esi2 = mustESI("03:44:38:39:ff:ff:01:00:00:02")
)

func mustESI(s string) evpn.ESI {
	e, err := evpn.ParseESI(s)
	if err != nil {
		panic(err)
	}
	return e
}

type macKey struct {
	vni uint32
	mac evpn.MACAddr
}

type neighKey struct {
	vni uint32
	ip  netip.Addr
}

// recorder is a Dataplane and Notifier keeping the programmed state and the
// sequence of BGP notifications
type recorder struct {
	ops []string

	localMACs    map[macKey]evpn.LocalMACEntry
	remoteMACs   map[macKey]evpn.RemoteMACEntry
	localNeighs  map[neighKey]evpn.LocalNeighEntry
	remoteNeighs map[neighKey]evpn.RemoteNeighEntry
	vteps        map[string]evpn.VTEPEntry
	rmacs        map[string]evpn.RMACEntry
	nexthops     map[string]evpn.NexthopEntry

	adds    []evpn.MacIPRoute
	dels    []evpn.MacIPRoute
	vniAdds []evpn.VNIConfig
	vniDels []uint32
	l3Adds  []evpn.L3VNIConfig
	l3Dels  []uint32
}

func newRecorder() *recorder {
	r := &recorder{}
	r.reset()
	return r
}

func (r *recorder) reset() {
	*r = recorder{
		localMACs:    make(map[macKey]evpn.LocalMACEntry),
		remoteMACs:   make(map[macKey]evpn.RemoteMACEntry),
		localNeighs:  make(map[neighKey]evpn.LocalNeighEntry),
		remoteNeighs: make(map[neighKey]evpn.RemoteNeighEntry),
		vteps:        make(map[string]evpn.VTEPEntry),
		rmacs:        make(map[string]evpn.RMACEntry),
		nexthops:     make(map[string]evpn.NexthopEntry),
	}
}

// clearLog forgets the calls made so far but keeps the programmed state
func (r *recorder) clearLog() {
	r.ops = nil
	r.adds, r.dels = nil, nil
	r.vniAdds, r.vniDels = nil, nil
	r.l3Adds, r.l3Dels = nil, nil
}

func (r *recorder) op(format string, args ...any) {
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
}

func (r *recorder) UpsertLocalMAC(e evpn.LocalMACEntry) error {
	r.op("upsert-local-mac %s", e.MAC)
	r.localMACs[macKey{e.VNI, e.MAC}] = e
	return nil
}

func (r *recorder) DeleteLocalMAC(e evpn.LocalMACEntry) error {
	r.op("delete-local-mac %s", e.MAC)
	delete(r.localMACs, macKey{e.VNI, e.MAC})
	return nil
}

func (r *recorder) UpsertRemoteMAC(e evpn.RemoteMACEntry) error {
	r.op("upsert-remote-mac %s %s", e.MAC, e.VTEP)
	r.remoteMACs[macKey{e.VNI, e.MAC}] = e
	return nil
}

func (r *recorder) DeleteRemoteMAC(e evpn.RemoteMACEntry) error {
	r.op("delete-remote-mac %s", e.MAC)
	delete(r.remoteMACs, macKey{e.VNI, e.MAC})
	return nil
}

func (r *recorder) UpsertLocalNeigh(e evpn.LocalNeighEntry) error {
	r.op("upsert-local-neigh %s", e.IP)
	r.localNeighs[neighKey{e.VNI, e.IP}] = e
	return nil
}

func (r *recorder) DeleteLocalNeigh(e evpn.LocalNeighEntry) error {
	r.op("delete-local-neigh %s", e.IP)
	delete(r.localNeighs, neighKey{e.VNI, e.IP})
	return nil
}

func (r *recorder) UpsertRemoteNeigh(e evpn.RemoteNeighEntry) error {
	r.op("upsert-remote-neigh %s %s", e.IP, e.MAC)
	r.remoteNeighs[neighKey{e.VNI, e.IP}] = e
	return nil
}

func (r *recorder) DeleteRemoteNeigh(e evpn.RemoteNeighEntry) error {
	r.op("delete-remote-neigh %s", e.IP)
	delete(r.remoteNeighs, neighKey{e.VNI, e.IP})
	return nil
}

func (r *recorder) UpsertVTEP(e evpn.VTEPEntry) error {
	r.op("upsert-vtep %s", e.VTEP)
	r.vteps[fmt.Sprintf("%d/%s", e.VNI, e.VTEP)] = e
	return nil
}

func (r *recorder) DeleteVTEP(e evpn.VTEPEntry) error {
	r.op("delete-vtep %s", e.VTEP)
	delete(r.vteps, fmt.Sprintf("%d/%s", e.VNI, e.VTEP))
	return nil
}

func (r *recorder) UpsertRMAC(e evpn.RMACEntry) error {
	r.op("upsert-rmac %s %s", e.RMAC, e.VTEP)
	r.rmacs[fmt.Sprintf("%d/%s", e.L3VNI, e.RMAC)] = e
	return nil
}

func (r *recorder) DeleteRMAC(e evpn.RMACEntry) error {
	r.op("delete-rmac %s", e.RMAC)
	delete(r.rmacs, fmt.Sprintf("%d/%s", e.L3VNI, e.RMAC))
	return nil
}

func (r *recorder) UpsertNexthop(e evpn.NexthopEntry) error {
	r.op("upsert-nexthop %s %s", e.VTEP, e.RMAC)
	r.nexthops[fmt.Sprintf("%d/%s", e.L3VNI, e.VTEP)] = e
	return nil
}

func (r *recorder) DeleteNexthop(e evpn.NexthopEntry) error {
	r.op("delete-nexthop %s", e.VTEP)
	delete(r.nexthops, fmt.Sprintf("%d/%s", e.L3VNI, e.VTEP))
	return nil
}

func (r *recorder) VNIAdd(cfg evpn.VNIConfig) error {
	r.vniAdds = append(r.vniAdds, cfg)
	return nil
}

func (r *recorder) VNIDel(vni uint32) error {
	r.vniDels = append(r.vniDels, vni)
	return nil
}

func (r *recorder) L3VNIAdd(cfg evpn.L3VNIConfig) error {
	r.l3Adds = append(r.l3Adds, cfg)
	return nil
}

func (r *recorder) L3VNIDel(l3vni uint32) error {
	r.l3Dels = append(r.l3Dels, l3vni)
	return nil
}

func (r *recorder) MacIPAdd(rt evpn.MacIPRoute) error {
	r.adds = append(r.adds, rt)
	return nil
}

func (r *recorder) MacIPDel(rt evpn.MacIPRoute) error {
	r.dels = append(r.dels, rt)
	return nil
}

func (r *recorder) lastAdd(t *testing.T) evpn.MacIPRoute {
	t.Helper()
	require.NotEmpty(t, r.adds, "no MAC-IP add sent")
	return r.adds[len(r.adds)-1]
}

type fixture struct {
	e     *evpn.Engine
	rec   *recorder
	clock *testclock.FakeClock
}

func testConfig() evpn.Config {
	cfg := evpn.DefaultConfig()
	cfg.DAD.Freeze = true
	return cfg
}

// watchingNotifier records like the recorder and hands every MAC-IP add to
// check first
type watchingNotifier struct {
	*recorder
	check func(evpn.MacIPRoute)
}

func (w watchingNotifier) MacIPAdd(rt evpn.MacIPRoute) error {
	w.check(rt)
	return w.recorder.MacIPAdd(rt)
}

// newFixture builds an engine with VNI 100 configured and the call log
// cleared
func newFixture(t *testing.T, cfg evpn.Config) *fixture {
	t.Helper()
	return newWatchedFixture(t, cfg, nil)
}

func newWatchedFixture(t *testing.T, cfg evpn.Config, check func(evpn.MacIPRoute)) *fixture {
	t.Helper()
	rec := newRecorder()
	var bgp evpn.Notifier = rec
	if check != nil {
		bgp = watchingNotifier{recorder: rec, check: check}
	}
	clk := testclock.NewFakeClock(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	e := evpn.New(cfg, rec, bgp,
		evpn.WithClock(clk),
		evpn.WithLogger(log.NewEntry(logger)),
	)
	require.NoError(t, e.AddVNI(evpn.VNIConfig{
		ID:         testVNI,
		LocalVTEP:  localVTEP,
		AccessVlan: 10,
	}))
	rec.clearLog()
	return &fixture{e: e, rec: rec, clock: clk}
}

func (f *fixture) vni(t *testing.T) *evpn.VNI {
	t.Helper()
	v, ok := f.e.VNI(testVNI)
	require.True(t, ok)
	return v
}

func (f *fixture) mac(t *testing.T, addr evpn.MACAddr) *evpn.MAC {
	t.Helper()
	m, ok := f.vni(t).MAC(addr)
	require.True(t, ok, "MAC %s missing", addr)
	return m
}

func (f *fixture) neigh(t *testing.T, ip netip.Addr) *evpn.Neigh {
	t.Helper()
	n, ok := f.vni(t).Neigh(ip)
	require.True(t, ok, "neighbor %s missing", ip)
	return n
}

// step advances the fake clock and fires the due timers
func (f *fixture) step(d time.Duration) {
	f.clock.Step(d)
	f.e.RunTimers()
}

func (f *fixture) learnMAC(t *testing.T, addr evpn.MACAddr, ifindex int) *evpn.MAC {
	t.Helper()
	m, err := f.e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: testVNI, MAC: addr, IfIndex: ifindex, Vlan: 10})
	require.NoError(t, err)
	return m
}

func (f *fixture) learnNeigh(t *testing.T, ip netip.Addr, addr evpn.MACAddr) *evpn.Neigh {
	t.Helper()
	n, err := f.e.UpsertLocalNeigh(evpn.LocalNeighUpdate{VNI: testVNI, IP: ip, MAC: addr, IfIndex: 20})
	require.NoError(t, err)
	return n
}

func (f *fixture) remote(t *testing.T, r evpn.MacIPRoute) {
	t.Helper()
	r.VNI = testVNI
	require.NoError(t, f.e.RemoteMacIPAdd(r))
}

// checkSyncNeighCnt verifies that every MAC counts exactly its dependent
// neighbors carrying a peer flag
func checkSyncNeighCnt(v *evpn.VNI) error {
	for _, m := range v.MACs() {
		want := 0
		for _, ip := range m.Neighs() {
			n, ok := v.Neigh(ip)
			if !ok {
				return fmt.Errorf("MAC %s references missing neighbor %s", m.Addr, ip)
			}
			if n.MAC != m.Addr {
				return fmt.Errorf("neighbor %s bound to %s is listed under %s", ip, n.MAC, m.Addr)
			}
			if n.HasPeerFlags() {
				want++
			}
		}
		if m.SyncNeighCnt != want {
			return fmt.Errorf("MAC %s sync neigh count %d, want %d", m.Addr, m.SyncNeighCnt, want)
		}
	}
	return nil
}
