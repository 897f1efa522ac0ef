// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn_test

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return parameters
}

// TestProperty_RemoteSeqNeverDecreases replays random remote updates and
// checks that an accepted route never lowers the remote sequence number
func TestProperty_RemoteSeqNeverDecreases(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("remote sequence number is monotonic", prop.ForAll(
		func(seqs []uint32) bool {
			f := newFixture(t, testConfig())
			var last uint32
			for i, seq := range seqs {
				vtep := vtepA
				if i%2 == 1 {
					vtep = vtepB
				}
				if err := f.e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac1, VTEP: vtep, Seq: seq}); err != nil {
					return false
				}
				m, ok := f.vni(t).MAC(mac1)
				if !ok || m.RemSeq < last {
					t.Logf("remote seq went from %d to %d", last, m.RemSeq)
					return false
				}
				last = m.RemSeq
			}
			return true
		},
		gen.SliceOf(gen.UInt32Range(0, 20)),
	))

	properties.TestingRun(t)
}

// TestProperty_LocalSeqNeverDecreases mixes local moves, remote take-overs
// and kernel deletes
func TestProperty_LocalSeqNeverDecreases(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("local sequence number is monotonic while the MAC exists", prop.ForAll(
		func(ops []int) bool {
			f := newFixture(t, testConfig())
			var last uint32
			for _, op := range ops {
				switch op % 3 {
				case 0:
					_, _ = f.e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: testVNI, MAC: mac1, IfIndex: (op/3)%4 + 1, Vlan: 10})
				case 1:
					_ = f.e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac1, VTEP: vtepA, Seq: uint32(op % 7)})
				case 2:
					_ = f.e.DeleteLocalMAC(testVNI, mac1, 0)
				}
				m, ok := f.vni(t).MAC(mac1)
				if !ok {
					last = 0
					continue
				}
				if m.LocSeq < last {
					t.Logf("local seq went from %d to %d", last, m.LocSeq)
					return false
				}
				last = m.LocSeq
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 59)),
	))

	properties.TestingRun(t)
}

// TestProperty_DuplicateAfterMaxMoves checks that without freezing a MAC
// is flagged duplicate exactly when it moved MaxMoves times in the window
func TestProperty_DuplicateAfterMaxMoves(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("duplicate iff moves reach the limit", prop.ForAll(
		func(moves int) bool {
			cfg := testConfig()
			cfg.DAD.Freeze = false
			f := newFixture(t, cfg)
			f.learnMAC(t, mac1, 1)
			for i := 1; i <= moves; i++ {
				f.learnMAC(t, mac1, i%2+2)
			}
			m := f.mac(t, mac1)
			return m.Duplicate == (moves >= cfg.DAD.MaxMoves)
		},
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// TestProperty_SyncNeighCount drives an ES fixture with random sync, local
// and remote operations and checks the per MAC count of flagged neighbors
func TestProperty_SyncNeighCount(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	macs := []evpn.MACAddr{mac1, mac2}
	ips := []netip.Addr{ip1, ip2}

	properties.Property("sync neighbor count matches flagged dependents", prop.ForAll(
		func(ops []int) bool {
			f := newESFixture(t)
			for _, op := range ops {
				mac := macs[(op/9)%2]
				ip := ips[(op/18)%2]
				flag := (op/36)%2 == 1
				var flags uint8
				if flag {
					flags = evpn.FlagProxyAdvert
				}

				switch op % 9 {
				case 0:
					r := syncRoute(mac, flags)
					r.VNI, r.IP = testVNI, ip
					_ = f.e.RemoteMacIPAdd(r)
				case 1:
					r := syncRoute(mac, flags)
					r.VNI = testVNI
					_ = f.e.RemoteMacIPAdd(r)
				case 2:
					_ = f.e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac, IP: ip})
				case 3:
					_ = f.e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac})
				case 4:
					_, _ = f.e.UpsertLocalNeigh(evpn.LocalNeighUpdate{VNI: testVNI, IP: ip, MAC: mac, IfIndex: 20})
				case 5:
					_ = f.e.DeleteLocalNeigh(testVNI, ip)
				case 6:
					_ = f.e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac, IP: ip, VTEP: vtepA, Seq: uint32(op)})
				case 7:
					f.step(600 * time.Second)
				case 8:
					if flag {
						_, _ = f.e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: testVNI, MAC: mac, IfIndex: esIfIndex, Vlan: 10})
					} else {
						_ = f.e.DeleteLocalMAC(testVNI, mac, 0)
					}
				}
				if err := checkSyncNeighCnt(f.vni(t)); err != nil {
					t.Logf("after op %d: %v", op, err)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 71)),
	))

	properties.TestingRun(t)
}

// TestProperty_AdvertisedIPHasLocalMAC checks at the moment each MAC-IP add
// is sent that the MAC it carries is LOCAL
func TestProperty_AdvertisedIPHasLocalMAC(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	macs := []evpn.MACAddr{mac1, mac2}
	ips := []netip.Addr{ip1, ip2}

	properties.Property("MAC-IP adds are sent only for LOCAL MACs", prop.ForAll(
		func(ops []int) bool {
			var f *fixture
			violation := ""
			f = newWatchedFixture(t, testConfig(), func(r evpn.MacIPRoute) {
				v, _ := f.e.VNI(testVNI)
				m, ok := v.MAC(r.MAC)
				switch {
				case !ok:
					violation = fmt.Sprintf("add %s %s without a MAC entry", r.MAC, r.IP)
				case m.Owner != evpn.OwnerLocal:
					violation = fmt.Sprintf("add %s %s while the MAC is %s", r.MAC, r.IP, m.Owner)
				}
			})
			if err := f.e.AddLocalES(esi1, esIfIndex); err != nil {
				return false
			}
			for _, op := range ops {
				mac := macs[(op/10)%2]
				ip := ips[(op/20)%2]
				flag := (op/40)%2 == 1
				var flags uint8
				if flag {
					flags = evpn.FlagProxyAdvert
				}

				switch op % 10 {
				case 0:
					r := syncRoute(mac, flags)
					r.VNI, r.IP = testVNI, ip
					_ = f.e.RemoteMacIPAdd(r)
				case 1:
					r := syncRoute(mac, flags)
					r.VNI = testVNI
					_ = f.e.RemoteMacIPAdd(r)
				case 2:
					_ = f.e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac, IP: ip})
				case 3:
					_ = f.e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac})
				case 4:
					_, _ = f.e.UpsertLocalNeigh(evpn.LocalNeighUpdate{VNI: testVNI, IP: ip, MAC: mac, IfIndex: 20, LocalInactive: flag})
				case 5:
					_ = f.e.DeleteLocalNeigh(testVNI, ip)
				case 6:
					_ = f.e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac, IP: ip, VTEP: vtepA, Seq: uint32(op)})
				case 7:
					_ = f.e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac, VTEP: vtepB, Seq: uint32(op)})
				case 8:
					ifindex := 3
					if flag {
						ifindex = esIfIndex
					}
					_, _ = f.e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: testVNI, MAC: mac, IfIndex: ifindex, Vlan: 10})
				case 9:
					if flag {
						f.step(600 * time.Second)
					} else {
						_ = f.e.DeleteLocalMAC(testVNI, mac, 0)
					}
				}
				if violation != "" {
					t.Logf("after op %d: %s", op, violation)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 79)),
	))

	properties.TestingRun(t)
}
