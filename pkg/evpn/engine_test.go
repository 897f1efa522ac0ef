// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn_test

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// startEngine runs the fixture engine loop until the test ends
func startEngine(t *testing.T, f *fixture) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRunProcessesEvents(t *testing.T) {
	f := newFixture(t, testConfig())
	startEngine(t, f)
	ctx := context.Background()

	f.e.Post(func(e *evpn.Engine) {
		_, _ = e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: testVNI, MAC: mac1, IfIndex: 5, Vlan: 10})
	})
	err := f.e.Submit(ctx, func(e *evpn.Engine) error {
		return e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac2, VTEP: vtepA, Seq: 1})
	})
	require.NoError(t, err)

	s, err := f.e.SnapshotContext(ctx, testVNI)
	require.NoError(t, err)
	require.Len(t, s.MACs, 2)
	assert.Equal(t, "local", s.MACs[0].Type)
	assert.True(t, s.MACs[0].Advertised)
	assert.Equal(t, "remote", s.MACs[1].Type)
	assert.Equal(t, "10.0.0.2", s.MACs[1].VTEP)
	require.Len(t, s.VNIs, 1)
	assert.Equal(t, []string{"10.0.0.2"}, s.VNIs[0].Remote)

	_, err = f.e.SnapshotContext(ctx, 999)
	assert.ErrorIs(t, err, evpn.ErrUnknownVNI)
}

func TestRunFiresTimers(t *testing.T) {
	f := newESFixture(t)
	startEngine(t, f)
	ctx := context.Background()

	require.NoError(t, f.e.Submit(ctx, func(e *evpn.Engine) error {
		if err := e.RemoteMacIPAdd(evpn.MacIPRoute{VNI: testVNI, MAC: mac1, VTEP: peerVTEP, ESI: esi1, Flags: evpn.FlagSyncPath}); err != nil {
			return err
		}
		return e.RemoteMacIPDel(evpn.MacIPRoute{VNI: testVNI, MAC: mac1})
	}))
	f.clock.Step(f.e.Config().PeerHoldTime)

	require.Eventually(t, func() bool {
		// the loop re-arms its timer after each event, step until it fires
		f.clock.Step(time.Second)
		var active bool
		err := f.e.Submit(ctx, func(e *evpn.Engine) error {
			v, ok := e.VNI(testVNI)
			if !ok {
				return evpn.ErrUnknownVNI
			}
			m, _ := v.MAC(mac1)
			active = m.PeerActive
			return nil
		})
		return err == nil && !active
	}, 5*time.Second, 10*time.Millisecond)

	s, err := f.e.SnapshotContext(ctx, 0)
	require.NoError(t, err)
	require.Len(t, s.MACs, 1)
	assert.Contains(t, s.MACs[0].Flags, "local-inactive")
	assert.NotContains(t, s.MACs[0].Flags, "peer-active")
	assert.False(t, s.MACs[0].Advertised)
}

func TestSubmitHonoursContext(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	rec := newRecorder()
	e := evpn.New(evpn.DefaultConfig(), rec, rec,
		evpn.WithClock(testclock.NewFakeClock(time.Now())),
		evpn.WithLogger(log.NewEntry(logger)),
		evpn.WithQueueSize(0),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Submit(ctx, func(*evpn.Engine) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotShowsDuplicates(t *testing.T) {
	f := newFixture(t, testConfig())
	f.learnMAC(t, mac1, 1)
	f.learnNeigh(t, ip1, mac1)
	for ifindex := 2; ifindex <= 6; ifindex++ {
		f.learnMAC(t, mac1, ifindex)
	}

	s, err := f.e.Snapshot(0)
	require.NoError(t, err)

	require.Len(t, s.VNIs, 1)
	assert.Equal(t, 2, s.VNIs[0].Duplicates)
	require.Len(t, s.MACs, 1)
	assert.Contains(t, s.MACs[0].Flags, "duplicate")
	assert.Equal(t, 5, s.MACs[0].DADCount)
	assert.Equal(t, []string{"192.0.2.10"}, s.MACs[0].Neighs)
	require.Len(t, s.Neighs, 1)
	assert.Equal(t, "active", s.Neighs[0].State)
	assert.Equal(t, "00:00:5e:00:53:01", s.Neighs[0].MAC)
}
