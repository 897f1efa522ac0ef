// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package zapi

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// Message is a decoded frame body
type Message interface {
	Command() Command
}

// VNIMessage is a VNI_ADD or VNI_DEL
type VNIMessage struct {
	Add    bool
	Config evpn.VNIConfig
}

// L3VNIMessage is an L3VNI_ADD or L3VNI_DEL
type L3VNIMessage struct {
	Add    bool
	Config evpn.L3VNIConfig
}

// MacIPMessage is a local or remote MAC-IP add or delete
type MacIPMessage struct {
	Cmd   Command
	Route evpn.MacIPRoute
}

// VTEPMessage is a REMOTE_VTEP_ADD or REMOTE_VTEP_DEL
type VTEPMessage struct {
	Add   bool
	VNI   uint32
	VTEP  netip.Addr
	Flood evpn.FloodMode
}

// HostRouteMessage is a REMOTE_HOST_ROUTE_ADD or REMOTE_HOST_ROUTE_DEL
type HostRouteMessage struct {
	Add   bool
	L3VNI uint32
	Route evpn.HostRoute
}

// Command implements Message
func (m VNIMessage) Command() Command { return pick(m.Add, CmdVNIAdd, CmdVNIDel) }

// Command implements Message
func (m L3VNIMessage) Command() Command { return pick(m.Add, CmdL3VNIAdd, CmdL3VNIDel) }

// Command implements Message
func (m MacIPMessage) Command() Command { return m.Cmd }

// Command implements Message
func (m VTEPMessage) Command() Command { return pick(m.Add, CmdRemoteVTEPAdd, CmdRemoteVTEPDel) }

// Command implements Message
func (m HostRouteMessage) Command() Command {
	return pick(m.Add, CmdRemoteHostRouteAdd, CmdRemoteHostRouteDel)
}

func pick(add bool, a, d Command) Command {
	if add {
		return a
	}
	return d
}

// body walks a frame body. The first short read sticks.
type body struct {
	b   []byte
	err error
}

func (r *body) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.b) < n {
		r.err = errors.Wrapf(ErrDecode, "body truncated, need %d more bytes, have %d", n, len(r.b))
		r.b = nil
		return make([]byte, n)
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *body) u8() uint8   { return r.take(1)[0] }
func (r *body) u32() uint32 { return binary.BigEndian.Uint32(r.take(4)) }

func (r *body) ipv4() netip.Addr {
	a := netip.AddrFrom4([4]byte(r.take(4)))
	if a.IsUnspecified() {
		return netip.Addr{}
	}
	return a
}

func (r *body) mac() (m evpn.MACAddr) {
	copy(m[:], r.take(len(m)))
	return m
}

func (r *body) ip(n int) netip.Addr {
	switch n {
	case 0:
		return netip.Addr{}
	case 4, 16:
		a, _ := netip.AddrFromSlice(r.take(n))
		return a
	}
	if r.err == nil {
		r.err = errors.Wrapf(ErrDecode, "invalid ip length %d", n)
	}
	return netip.Addr{}
}

func (r *body) done(cmd Command) error {
	if r.err != nil {
		return errors.WithMessage(r.err, cmd.String())
	}
	if len(r.b) != 0 {
		return errors.Wrapf(ErrDecode, "%s: %d trailing bytes", cmd, len(r.b))
	}
	return nil
}

// Decode parses the body of a frame read by ReadFrame
func Decode(f Frame) (Message, error) {
	r := &body{b: f.Body}
	var m Message
	switch cmd := f.Command; cmd {
	case CmdVNIAdd:
		cfg := evpn.VNIConfig{ID: r.u32(), LocalVTEP: r.ipv4(), McastGroup: r.ipv4()}
		cfg.VRFID = r.u32()
		m = VNIMessage{Add: true, Config: cfg}
	case CmdVNIDel:
		m = VNIMessage{Config: evpn.VNIConfig{ID: r.u32()}}
	case CmdL3VNIAdd:
		cfg := evpn.L3VNIConfig{ID: r.u32(), VRFID: r.u32()}
		cfg.RMAC = r.mac()
		cfg.LocalVTEP = r.ipv4()
		m = L3VNIMessage{Add: true, Config: cfg}
	case CmdL3VNIDel:
		m = L3VNIMessage{Config: evpn.L3VNIConfig{ID: r.u32()}}
	case CmdMacIPAdd, CmdMacIPDel, CmdRemoteMacIPAdd, CmdRemoteMacIPDel:
		rt := evpn.MacIPRoute{VNI: r.u32(), MAC: r.mac()}
		rt.IP = r.ip(int(r.u32()))
		rt.VTEP = r.ipv4()
		if isAdd(cmd) {
			rt.Flags = r.u8()
			rt.Seq = r.u32()
			copy(rt.ESI[:], r.take(len(rt.ESI)))
		}
		m = MacIPMessage{Cmd: cmd, Route: rt}
	case CmdRemoteVTEPAdd, CmdRemoteVTEPDel:
		vm := VTEPMessage{Add: cmd == CmdRemoteVTEPAdd, VNI: r.u32(), VTEP: r.ipv4()}
		if vm.Add {
			vm.Flood = evpn.FloodMode(r.u8())
		}
		m = vm
	case CmdRemoteHostRouteAdd, CmdRemoteHostRouteDel:
		hm := HostRouteMessage{Add: cmd == CmdRemoteHostRouteAdd, L3VNI: r.u32()}
		family, bits := r.u8(), int(r.u8())
		var addr netip.Addr
		switch family {
		case familyIPv4:
			addr = r.ip(4)
		case familyIPv6:
			addr = r.ip(16)
		default:
			return nil, errors.Wrapf(ErrDecode, "%s: unknown address family %d", cmd, family)
		}
		if bits > addr.BitLen() {
			return nil, errors.Wrapf(ErrDecode, "%s: prefix length %d", cmd, bits)
		}
		hm.Route.Prefix = netip.PrefixFrom(addr, bits)
		hm.Route.RMAC = r.mac()
		hm.Route.VTEP = r.ipv4()
		m = hm
	default:
		return nil, errors.Wrapf(ErrDecode, "unknown command %s", cmd)
	}
	if err := r.done(f.Command); err != nil {
		return nil, err
	}
	return m, nil
}
