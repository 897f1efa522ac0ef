// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package netlink

import (
	"bytes"
	"fmt"
	"sync"

	vn "github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// fakeHandle is an in-memory kernel. Entries written through it show up in
// the tables it lists.
type fakeHandle struct {
	mu     sync.Mutex
	links  map[string]vn.Link
	master int
	fdb    []vn.Neigh
	neighs map[int][]vn.Neigh
	ops    []string
	err    error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		links:  make(map[string]vn.Link),
		neighs: make(map[int][]vn.Neigh),
	}
}

func (f *fakeHandle) addLink(name string, index int, state vn.LinkOperState) {
	f.links[name] = &vn.Dummy{LinkAttrs: vn.LinkAttrs{Name: name, Index: index, OperState: state}}
}

func (f *fakeHandle) LinkByName(name string) (vn.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.links[name]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("link %s not found", name)
}

func (f *fakeHandle) NeighList(linkIndex, family int) ([]vn.Neigh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if linkIndex == 0 {
		return append([]vn.Neigh(nil), f.fdb...), nil
	}
	var out []vn.Neigh
	for _, n := range f.neighs[linkIndex] {
		if n.Family == family {
			out = append(out, n)
		}
	}
	return out, nil
}

func describe(op string, n *vn.Neigh) string {
	return fmt.Sprintf("%s link=%d family=%d flags=%#x state=%#x vlan=%d ip=%s mac=%s",
		op, n.LinkIndex, n.Family, n.Flags, n.State, n.Vlan, n.IP, n.HardwareAddr)
}

func (f *fakeHandle) record(op string, n *vn.Neigh) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, describe(op, n))
	if f.err != nil {
		return f.err
	}
	e := *n
	if e.Family == unix.AF_BRIDGE {
		if e.Flags&unix.NTF_MASTER != 0 {
			e.MasterIndex = f.master
		}
		f.fdb = apply(f.fdb, op, e, sameFDB)
		return nil
	}
	f.neighs[e.LinkIndex] = apply(f.neighs[e.LinkIndex], op, e, func(a, b *vn.Neigh) bool {
		return a.IP.Equal(b.IP)
	})
	return nil
}

// sameFDB matches bridge entries by address and vlan, VXLAN device entries
// also by port and destination
func sameFDB(a, b *vn.Neigh) bool {
	if a.Flags&unix.NTF_SELF != b.Flags&unix.NTF_SELF || a.Vlan != b.Vlan ||
		!bytes.Equal(a.HardwareAddr, b.HardwareAddr) {
		return false
	}
	if a.Flags&unix.NTF_SELF == 0 {
		return true
	}
	return a.LinkIndex == b.LinkIndex && a.IP.Equal(b.IP)
}

func apply(table []vn.Neigh, op string, e vn.Neigh, same func(a, b *vn.Neigh) bool) []vn.Neigh {
	for i := range table {
		if !same(&table[i], &e) {
			continue
		}
		switch op {
		case "set":
			table[i] = e
			return table
		case "del":
			return append(table[:i], table[i+1:]...)
		}
	}
	if op == "del" {
		return table
	}
	return append(table, e)
}

func (f *fakeHandle) NeighSet(n *vn.Neigh) error    { return f.record("set", n) }
func (f *fakeHandle) NeighAppend(n *vn.Neigh) error { return f.record("append", n) }
func (f *fakeHandle) NeighDel(n *vn.Neigh) error    { return f.record("del", n) }
