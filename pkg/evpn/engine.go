// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package evpn implements the EVPN MAC/IP synchronization engine. It merges
// local kernel learning, remote BGP Type-2 routes and Ethernet Segment peer
// sync routes into one per-VNI view, runs duplicate address detection and
// projects the result to the dataplane and back to BGP.
//
// All table state is owned by a single goroutine running Engine.Run. Other
// goroutines hand work to it with Post or Submit.
package evpn

import (
	"context"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// DADConfig configures duplicate address detection
type DADConfig struct {
	Enabled    bool
	MaxMoves   int
	Time       time.Duration
	Freeze     bool
	FreezeTime time.Duration
}

// Config configures the engine
type Config struct {
	DAD              DADConfig
	PeerHoldTime     time.Duration
	MaxEntriesPerVNI int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		DAD: DADConfig{
			Enabled:  true,
			MaxMoves: 5,
			Time:     180 * time.Second,
		},
		PeerHoldTime: 1080 * time.Second,
	}
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger replaces the engine logger
func WithLogger(l *log.Entry) Option {
	return func(e *Engine) { e.log = l }
}

// WithQueueSize sets the capacity of the event queue
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.events = make(chan func(*Engine), n) }
}

// Engine holds every VNI, L3 VNI and Ethernet Segment known to the daemon
type Engine struct {
	cfg   Config
	dp    Dataplane
	bgp   Notifier
	clock clock.Clock
	log   *log.Entry

	vnis   map[uint32]*VNI
	l3vnis map[uint32]*L3VNI
	es     map[ESI]*EthernetSegment
	esIf   map[int]ESI
	timers *timerTable

	events chan func(*Engine)
}

// New creates an engine programming dp and advertising through bgp
func New(cfg Config, dp Dataplane, bgp Notifier, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		dp:     dp,
		bgp:    bgp,
		clock:  clock.RealClock{},
		log:    log.WithField("module", "evpn"),
		vnis:   make(map[uint32]*VNI),
		l3vnis: make(map[uint32]*L3VNI),
		es:     make(map[ESI]*EthernetSegment),
		esIf:   make(map[int]ESI),
		timers: newTimerTable(),
		events: make(chan func(*Engine), 1024),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Post queues fn to run on the engine goroutine
func (e *Engine) Post(fn func(*Engine)) {
	e.events <- fn
}

// Submit runs fn on the engine goroutine and waits for its result
func (e *Engine) Submit(ctx context.Context, fn func(*Engine) error) error {
	done := make(chan error, 1)
	select {
	case e.events <- func(e *Engine) { done <- fn(e) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued events and timer expiries until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	timer := e.clock.NewTimer(time.Hour)
	defer timer.Stop()

	e.log.Info("EVPN engine started")
	for {
		e.armTimer(timer)
		select {
		case <-ctx.Done():
			e.log.Info("EVPN engine stopped")
			return
		case fn := <-e.events:
			fn(e)
		case <-timer.C():
			e.RunTimers()
		}
	}
}

func (e *Engine) armTimer(t clock.Timer) {
	if !t.Stop() {
		select {
		case <-t.C():
		default:
		}
	}
	next, ok := e.timers.next()
	if !ok {
		t.Reset(time.Hour)
		return
	}
	d := next.Sub(e.clock.Now())
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

// RunTimers fires every timer that is due. Each timer looks its entry up
// again, so a timer whose entry is gone does nothing.
func (e *Engine) RunTimers() {
	for _, k := range e.timers.expire(e.clock.Now()) {
		v, ok := e.vnis[k.vni]
		if !ok {
			e.log.WithField("vni", k.vni).Debugf("%s timer fired for a deleted VNI", k.kind)
			continue
		}
		switch k.kind {
		case timerMACHold, timerMACDAD:
			m, ok := v.macs[k.mac]
			if !ok {
				e.log.WithFields(log.Fields{"vni": k.vni, "mac": k.mac}).Debugf("%s timer fired for a deleted MAC", k.kind)
				continue
			}
			if k.kind == timerMACHold {
				e.macHoldExpired(v, m)
			} else {
				e.macDADRecovered(v, m)
			}
		case timerNeighHold, timerNeighDAD:
			n, ok := v.neighs[k.ip]
			if !ok {
				e.log.WithFields(log.Fields{"vni": k.vni, "ip": k.ip}).Debugf("%s timer fired for a deleted neighbor", k.kind)
				continue
			}
			if k.kind == timerNeighHold {
				e.neighHoldExpired(v, n)
			} else {
				e.neighDADRecovered(v, n)
			}
		}
	}
}

// PendingTimers returns the number of armed timers
func (e *Engine) PendingTimers() int {
	return e.timers.len()
}

// VNI looks up an L2 VNI
func (e *Engine) VNI(id uint32) (*VNI, bool) {
	v, ok := e.vnis[id]
	return v, ok
}

// L3VNI looks up an L3 VNI
func (e *Engine) L3VNI(id uint32) (*L3VNI, bool) {
	l, ok := e.l3vnis[id]
	return l, ok
}

func (e *Engine) lookupVNI(id uint32) (*VNI, error) {
	v, ok := e.vnis[id]
	if !ok {
		e.log.WithField("vni", id).Warn("update for unknown VNI ignored")
		return nil, ErrUnknownVNI
	}
	return v, nil
}

func (e *Engine) macLog(v *VNI, m *MAC) *log.Entry {
	return e.log.WithFields(log.Fields{"vni": v.ID, "mac": m.Addr})
}

func (e *Engine) neighLog(v *VNI, n *Neigh) *log.Entry {
	return e.log.WithFields(log.Fields{"vni": v.ID, "ip": n.IP, "mac": n.MAC})
}

func (e *Engine) routeLog(r MacIPRoute) *log.Entry {
	f := log.Fields{"vni": r.VNI, "mac": r.MAC, "seq": r.Seq}
	if r.HasIP() {
		f["ip"] = r.IP
	}
	if r.VTEP.IsValid() {
		f["vtep"] = r.VTEP
	}
	return e.log.WithFields(f)
}

func (e *Engine) esiForIf(ifindex int) ESI {
	return e.esIf[ifindex]
}

func (e *Engine) isLocalVTEP(v *VNI, ip netip.Addr) bool {
	return v.LocalVTEP.IsValid() && v.LocalVTEP == ip
}
