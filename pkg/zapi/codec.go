// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package zapi speaks the length-prefixed message stream between the EVPN
// engine and the BGP daemon
package zapi

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	"github.com/pkg/errors"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
)

// Frame constants
const (
	HeaderSize = 10
	Marker     = 0xFE
	Version    = 6
	MaxFrame   = 0xFFFF
)

// ErrDecode is wrapped by every malformed frame or body error
var ErrDecode = errors.New("zapi decode error")

// Command identifies the message carried by a frame
type Command uint16

// Commands sent to BGP, then commands received from BGP
const (
	CmdVNIAdd Command = iota + 1
	CmdVNIDel
	CmdL3VNIAdd
	CmdL3VNIDel
	CmdMacIPAdd
	CmdMacIPDel
	CmdRemoteVTEPAdd
	CmdRemoteVTEPDel
	CmdRemoteMacIPAdd
	CmdRemoteMacIPDel
	CmdRemoteHostRouteAdd
	CmdRemoteHostRouteDel
)

var commandNames = map[Command]string{
	CmdVNIAdd:             "VNI_ADD",
	CmdVNIDel:             "VNI_DEL",
	CmdL3VNIAdd:           "L3VNI_ADD",
	CmdL3VNIDel:           "L3VNI_DEL",
	CmdMacIPAdd:           "MACIP_ADD",
	CmdMacIPDel:           "MACIP_DEL",
	CmdRemoteVTEPAdd:      "REMOTE_VTEP_ADD",
	CmdRemoteVTEPDel:      "REMOTE_VTEP_DEL",
	CmdRemoteMacIPAdd:     "REMOTE_MACIP_ADD",
	CmdRemoteMacIPDel:     "REMOTE_MACIP_DEL",
	CmdRemoteHostRouteAdd: "REMOTE_HOST_ROUTE_ADD",
	CmdRemoteHostRouteDel: "REMOTE_HOST_ROUTE_DEL",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("COMMAND_%d", uint16(c))
}

// Header precedes every body. Length covers header and body.
type Header struct {
	Length  uint16
	Marker  uint8
	Version uint8
	VrfID   uint32
	Command Command
}

// Frame is one decoded header with its raw body
type Frame struct {
	Header
	Body []byte
}

// ReadFrame reads the next frame. A frame with a bad marker or version is
// still consumed whole and returned with an ErrDecode error so the stream
// stays aligned. Any other error leaves the stream unusable.
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return f, err
	}
	f.Header = Header{
		Length:  binary.BigEndian.Uint16(hdr[0:2]),
		Marker:  hdr[2],
		Version: hdr[3],
		VrfID:   binary.BigEndian.Uint32(hdr[4:8]),
		Command: Command(binary.BigEndian.Uint16(hdr[8:10])),
	}
	if f.Length < HeaderSize {
		return f, errors.Wrapf(ErrDecode, "frame length %d shorter than header", f.Length)
	}
	f.Body = make([]byte, int(f.Length)-HeaderSize)
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return f, err
	}
	if f.Marker != Marker || f.Version != Version {
		return f, errors.Wrapf(ErrDecode, "bad marker %#x or version %d", f.Marker, f.Version)
	}
	return f, nil
}

func frame(cmd Command, vrfID uint32, body []byte) ([]byte, error) {
	length := HeaderSize + len(body)
	if length > MaxFrame {
		return nil, fmt.Errorf("%s body of %d bytes does not fit a frame", cmd, len(body))
	}
	b := make([]byte, 0, length)
	b = binary.BigEndian.AppendUint16(b, uint16(length))
	b = append(b, Marker, Version)
	b = binary.BigEndian.AppendUint32(b, vrfID)
	b = binary.BigEndian.AppendUint16(b, uint16(cmd))
	return append(b, body...), nil
}

func appendIPv4(b []byte, ip netip.Addr) ([]byte, error) {
	if !ip.IsValid() {
		return append(b, 0, 0, 0, 0), nil
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	a := ip.As4()
	return append(b, a[:]...), nil
}

// EncodeVNIAdd encodes vni(4) | vtep(4) | mcast(4) | vrf_id(4)
func EncodeVNIAdd(cfg evpn.VNIConfig) ([]byte, error) {
	b := binary.BigEndian.AppendUint32(nil, cfg.ID)
	b, err := appendIPv4(b, cfg.LocalVTEP)
	if err != nil {
		return nil, err
	}
	if b, err = appendIPv4(b, cfg.McastGroup); err != nil {
		return nil, err
	}
	b = binary.BigEndian.AppendUint32(b, cfg.VRFID)
	return frame(CmdVNIAdd, cfg.VRFID, b)
}

// EncodeVNIDel encodes vni(4)
func EncodeVNIDel(vni uint32) ([]byte, error) {
	return frame(CmdVNIDel, 0, binary.BigEndian.AppendUint32(nil, vni))
}

// EncodeL3VNIAdd encodes l3vni(4) | vrf_id(4) | rmac(6) | vtep(4)
func EncodeL3VNIAdd(cfg evpn.L3VNIConfig) ([]byte, error) {
	b := binary.BigEndian.AppendUint32(nil, cfg.ID)
	b = binary.BigEndian.AppendUint32(b, cfg.VRFID)
	b = append(b, cfg.RMAC[:]...)
	b, err := appendIPv4(b, cfg.LocalVTEP)
	if err != nil {
		return nil, err
	}
	return frame(CmdL3VNIAdd, cfg.VRFID, b)
}

// EncodeL3VNIDel encodes l3vni(4)
func EncodeL3VNIDel(l3vni uint32) ([]byte, error) {
	return frame(CmdL3VNIDel, 0, binary.BigEndian.AppendUint32(nil, l3vni))
}

// EncodeMacIP encodes vni(4) | mac(6) | ip_len(4) | ip | vtep_ip(4) and,
// for the add commands, flags(1) | seq(4) | esi(10)
func EncodeMacIP(cmd Command, r evpn.MacIPRoute) ([]byte, error) {
	b := binary.BigEndian.AppendUint32(nil, r.VNI)
	b = append(b, r.MAC[:]...)
	if r.HasIP() {
		ip := r.IP.Unmap().AsSlice()
		b = binary.BigEndian.AppendUint32(b, uint32(len(ip)))
		b = append(b, ip...)
	} else {
		b = binary.BigEndian.AppendUint32(b, 0)
	}
	b, err := appendIPv4(b, r.VTEP)
	if err != nil {
		return nil, err
	}
	if isAdd(cmd) {
		b = append(b, r.Flags)
		b = binary.BigEndian.AppendUint32(b, r.Seq)
		b = append(b, r.ESI[:]...)
	}
	return frame(cmd, 0, b)
}

// EncodeRemoteVTEP encodes vni(4) | vtep(4) and, for an add, flood(1)
func EncodeRemoteVTEP(cmd Command, vni uint32, vtep netip.Addr, flood evpn.FloodMode) ([]byte, error) {
	b := binary.BigEndian.AppendUint32(nil, vni)
	b, err := appendIPv4(b, vtep)
	if err != nil {
		return nil, err
	}
	if cmd == CmdRemoteVTEPAdd {
		b = append(b, byte(flood))
	}
	return frame(cmd, 0, b)
}

// EncodeHostRoute encodes l3vni(4) | family(1) | prefix_len(1) |
// prefix(4|16) | rmac(6) | vtep(4)
func EncodeHostRoute(cmd Command, l3vni uint32, hr evpn.HostRoute) ([]byte, error) {
	b := binary.BigEndian.AppendUint32(nil, l3vni)
	addr := hr.Prefix.Addr().Unmap()
	family := byte(familyIPv4)
	if addr.Is6() {
		family = familyIPv6
	}
	b = append(b, family, byte(hr.Prefix.Bits()))
	b = append(b, addr.AsSlice()...)
	b = append(b, hr.RMAC[:]...)
	b, err := appendIPv4(b, hr.VTEP)
	if err != nil {
		return nil, err
	}
	return frame(cmd, 0, b)
}

// address families of the host route body
const (
	familyIPv4 = 2
	familyIPv6 = 10
)

func isAdd(cmd Command) bool {
	return cmd == CmdMacIPAdd || cmd == CmdRemoteMacIPAdd
}
