// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

func TestAddVNI(t *testing.T) {
	f := newFixture(t, testConfig())
	cfg := evpn.VNIConfig{ID: 200, LocalVTEP: localVTEP, AccessVlan: 20}

	require.NoError(t, f.e.AddVNI(cfg))
	require.NoError(t, f.e.AddVNI(cfg))

	assert.Equal(t, []evpn.VNIConfig{cfg}, f.rec.vniAdds)
	v, ok := f.e.VNI(200)
	require.True(t, ok)
	assert.True(t, v.OperUp)
	assert.Len(t, f.e.VNIs(), 2)

	assert.ErrorIs(t, f.e.AddVNI(evpn.VNIConfig{}), evpn.ErrInvalidUpdate)
}

func TestVNIUpdateRefreshesRoutes(t *testing.T) {
	f := newFixture(t, testConfig())
	f.learnMAC(t, mac1, 5)
	newVTEP := netip.MustParseAddr("10.0.0.9")

	require.NoError(t, f.e.AddVNI(evpn.VNIConfig{ID: testVNI, LocalVTEP: newVTEP, AccessVlan: 10}))

	require.Len(t, f.rec.vniAdds, 1)
	require.Len(t, f.rec.adds, 2)
	assert.Equal(t, newVTEP, f.rec.lastAdd(t).VTEP)
}

func TestDeleteVNI(t *testing.T) {
	f := newFixture(t, testConfig())
	f.remote(t, evpn.MacIPRoute{MAC: mac1, IP: ip1, VTEP: vtepA})
	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepB, evpn.FloodHER))
	f.learnMAC(t, mac2, 5)
	f.rec.clearLog()

	require.NoError(t, f.e.DeleteVNI(testVNI))

	assert.Equal(t, []string{
		"delete-remote-mac 00:00:5e:00:53:01",
		"delete-remote-neigh 192.0.2.10",
		"delete-vtep 10.0.0.3",
	}, f.rec.ops)
	// BGP drops the routes with the VNI
	assert.Empty(t, f.rec.dels)
	assert.Equal(t, []uint32{testVNI}, f.rec.vniDels)
	assert.Equal(t, 0, f.e.PendingTimers())
	_, ok := f.e.VNI(testVNI)
	assert.False(t, ok)
	assert.ErrorIs(t, f.e.DeleteVNI(testVNI), evpn.ErrUnknownVNI)
}

func TestDeleteVNIStopsTimers(t *testing.T) {
	f := newFixture(t, testConfig())
	require.NoError(t, f.e.AddLocalES(esi1, esIfIndex))
	f.remote(t, syncRoute(mac1, 0))
	require.NoError(t, f.e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac1}))
	require.Equal(t, 1, f.e.PendingTimers())

	require.NoError(t, f.e.DeleteVNI(testVNI))

	assert.Equal(t, 0, f.e.PendingTimers())
	f.step(time.Hour)
}

func TestVNIOperState(t *testing.T) {
	f := newFixture(t, testConfig())
	f.learnMAC(t, mac1, 5)
	f.remote(t, evpn.MacIPRoute{MAC: mac2, VTEP: vtepA})
	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepA, evpn.FloodHER))
	f.rec.clearLog()

	require.NoError(t, f.e.SetVNIOperState(testVNI, false))

	assert.Equal(t, []string{
		"delete-remote-mac 00:00:5e:00:53:02",
		"delete-vtep 10.0.0.2",
	}, f.rec.ops)
	require.Len(t, f.rec.dels, 1)
	assert.Equal(t, []uint32{testVNI}, f.rec.vniDels)
	// the tables survive
	assert.Len(t, f.vni(t).MACs(), 2)

	require.NoError(t, f.e.SetVNIOperState(testVNI, false))
	assert.Len(t, f.rec.vniDels, 1)

	f.rec.clearLog()
	require.NoError(t, f.e.SetVNIOperState(testVNI, true))

	require.Len(t, f.rec.vniAdds, 1)
	require.Len(t, f.rec.adds, 1)
	assert.Equal(t, mac1, f.rec.adds[0].MAC)
	assert.Equal(t, []string{
		"upsert-remote-mac 00:00:5e:00:53:02 10.0.0.2",
		"upsert-vtep 10.0.0.2",
	}, f.rec.ops)
}

func TestRemoteVTEPFlood(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepA, evpn.FloodHER))
	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepA, evpn.FloodHER))
	assert.Equal(t, []string{"upsert-vtep 10.0.0.2"}, f.rec.ops)

	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepA, evpn.FloodPIM))
	assert.Equal(t, []string{"upsert-vtep 10.0.0.2", "delete-vtep 10.0.0.2"}, f.rec.ops)
	assert.Empty(t, f.rec.vteps)

	require.NoError(t, f.e.AddRemoteVTEP(testVNI, localVTEP, evpn.FloodHER))
	_, ok := f.vni(t).VTEP(localVTEP)
	assert.False(t, ok)

	assert.ErrorIs(t, f.e.AddRemoteVTEP(testVNI, netip.Addr{}, evpn.FloodHER), evpn.ErrInvalidUpdate)
	assert.ErrorIs(t, f.e.AddRemoteVTEP(999, vtepA, evpn.FloodHER), evpn.ErrUnknownVNI)
}

func TestDeleteRemoteVTEP(t *testing.T) {
	f := newFixture(t, testConfig())
	f.remote(t, evpn.MacIPRoute{MAC: mac1, IP: ip1, VTEP: vtepA})
	f.remote(t, evpn.MacIPRoute{MAC: mac2, VTEP: vtepB})
	require.NoError(t, f.e.AddRemoteVTEP(testVNI, vtepA, evpn.FloodHER))
	f.rec.clearLog()

	require.NoError(t, f.e.DeleteRemoteVTEP(testVNI, vtepA))

	assert.Equal(t, []string{
		"delete-remote-neigh 192.0.2.10",
		"delete-remote-mac 00:00:5e:00:53:01",
		"delete-vtep 10.0.0.2",
	}, f.rec.ops)
	v := f.vni(t)
	require.Len(t, v.MACs(), 1)
	assert.Equal(t, mac2, v.MACs()[0].Addr)
	assert.Empty(t, v.Neighs())
	require.Len(t, v.VTEPs(), 1)
	assert.Equal(t, vtepB, v.VTEPs()[0].IP)

	assert.ErrorIs(t, f.e.DeleteRemoteVTEP(testVNI, vtepA), evpn.ErrNotFound)
}

func TestReplayBGP(t *testing.T) {
	f := newFixture(t, testConfig())
	require.NoError(t, f.e.AddL3VNI(evpn.L3VNIConfig{ID: 5000, VRFID: 1, LocalVTEP: localVTEP}))
	f.learnMAC(t, mac1, 5)
	f.learnNeigh(t, ip1, mac1)
	f.remote(t, evpn.MacIPRoute{MAC: mac2, VTEP: vtepA})
	advertised := append([]evpn.MacIPRoute(nil), f.rec.adds...)
	f.rec.clearLog()

	f.e.ReplayBGP()

	assert.Len(t, f.rec.l3Adds, 1)
	require.Len(t, f.rec.vniAdds, 1)
	assert.Equal(t, uint32(testVNI), f.rec.vniAdds[0].ID)
	assert.Equal(t, advertised, f.rec.adds)
	assert.Empty(t, f.rec.ops)
}
