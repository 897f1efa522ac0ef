// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package evpn

import (
	"cmp"
	"net/netip"
	"slices"
	"time"
)

type timerKind uint8

const (
	timerMACHold timerKind = iota
	timerNeighHold
	timerMACDAD
	timerNeighDAD
)

func (k timerKind) String() string {
	switch k {
	case timerMACHold:
		return "mac-hold"
	case timerNeighHold:
		return "neigh-hold"
	case timerMACDAD:
		return "mac-dad-recovery"
	default:
		return "neigh-dad-recovery"
	}
}

// timerKey names a timer by what it acts on rather than holding the entry.
// The entry is looked up again when the timer fires.
type timerKey struct {
	kind timerKind
	vni  uint32
	mac  MACAddr
	ip   netip.Addr
}

type timerTable struct {
	deadlines map[timerKey]time.Time
}

func newTimerTable() *timerTable {
	return &timerTable{deadlines: make(map[timerKey]time.Time)}
}

func (t *timerTable) start(k timerKey, at time.Time) {
	t.deadlines[k] = at
}

func (t *timerTable) stop(k timerKey) bool {
	_, ok := t.deadlines[k]
	delete(t.deadlines, k)
	return ok
}

func (t *timerTable) running(k timerKey) bool {
	_, ok := t.deadlines[k]
	return ok
}

func (t *timerTable) deadline(k timerKey) (time.Time, bool) {
	at, ok := t.deadlines[k]
	return at, ok
}

// next returns the earliest deadline
func (t *timerTable) next() (time.Time, bool) {
	var first time.Time
	found := false
	for _, at := range t.deadlines {
		if !found || at.Before(first) {
			first, found = at, true
		}
	}
	return first, found
}

// expire removes and returns the timers due at now, earliest first
func (t *timerTable) expire(now time.Time) []timerKey {
	var due []timerKey
	for k, at := range t.deadlines {
		if !at.After(now) {
			due = append(due, k)
		}
	}
	slices.SortFunc(due, func(a, b timerKey) int {
		if c := t.deadlines[a].Compare(t.deadlines[b]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.vni, b.vni); c != 0 {
			return c
		}
		if c := compareMAC(a.mac, b.mac); c != 0 {
			return c
		}
		return a.ip.Compare(b.ip)
	})
	for _, k := range due {
		delete(t.deadlines, k)
	}
	return due
}

// stopVNI cancels every timer of a VNI
func (t *timerTable) stopVNI(vni uint32) {
	for k := range t.deadlines {
		if k.vni == vni {
			delete(t.deadlines, k)
		}
	}
}

func (t *timerTable) len() int {
	return len(t.deadlines)
}

func macTimer(kind timerKind, vni uint32, mac MACAddr) timerKey {
	return timerKey{kind: kind, vni: vni, mac: mac}
}

func neighTimer(kind timerKind, vni uint32, ip netip.Addr) timerKey {
	return timerKey{kind: kind, vni: vni, ip: ip}
}
