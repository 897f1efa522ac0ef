// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package zapi_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"net/netip"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/zapi"
)

var (
	mac1  = evpn.MustParseMAC("00:aa:bb:cc:dd:01")
	rmac  = evpn.MustParseMAC("02:00:00:00:00:01")
	vtepA = netip.MustParseAddr("10.0.0.2")
	local = netip.MustParseAddr("10.0.0.1")
	esi   = evpn.ESI{0x03, 0x44, 0x38, 0x39, 0xff, 0xff, 0x01, 0x00, 0x00, 0x01}
)

func decode(b []byte) (zapi.Message, error) {
	f, err := zapi.ReadFrame(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return zapi.Decode(f)
}

// macIPBody builds a MAC-IP delete body with an arbitrary ip_len
func macIPBody(ipLen uint32, ip []byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, 100)
	b = append(b, mac1[:]...)
	b = binary.BigEndian.AppendUint32(b, ipLen)
	b = append(b, ip...)
	return append(b, 10, 0, 0, 2)
}

func rawFrame(marker, version byte, cmd zapi.Command, body []byte) []byte {
	b := binary.BigEndian.AppendUint16(nil, uint16(zapi.HeaderSize+len(body)))
	b = append(b, marker, version, 0, 0, 0, 0)
	b = binary.BigEndian.AppendUint16(b, uint16(cmd))
	return append(b, body...)
}

var _ = Describe("Codec", func() {
	Context("header", func() {
		It("writes length, marker, version, vrf and command in network order", func() {
			b, err := zapi.EncodeL3VNIAdd(evpn.L3VNIConfig{ID: 5000, VRFID: 7, RMAC: rmac, LocalVTEP: local})
			Expect(err).NotTo(HaveOccurred())

			Expect(b).To(HaveLen(zapi.HeaderSize + 18))
			Expect(binary.BigEndian.Uint16(b[0:2])).To(BeEquivalentTo(len(b)))
			Expect(b[2]).To(BeEquivalentTo(zapi.Marker))
			Expect(b[3]).To(BeEquivalentTo(zapi.Version))
			Expect(binary.BigEndian.Uint32(b[4:8])).To(BeEquivalentTo(7))
			Expect(zapi.Command(binary.BigEndian.Uint16(b[8:10]))).To(Equal(zapi.CmdL3VNIAdd))
		})

		It("consumes a frame with a bad marker and reports it", func() {
			good, err := zapi.EncodeVNIDel(100)
			Expect(err).NotTo(HaveOccurred())
			stream := bytes.NewReader(append(rawFrame(0xAA, zapi.Version, zapi.CmdVNIDel, []byte{0, 0, 0, 1}), good...))

			_, err = zapi.ReadFrame(stream)
			Expect(err).To(MatchError(zapi.ErrDecode))
			f, err := zapi.ReadFrame(stream)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Command).To(Equal(zapi.CmdVNIDel))
		})

		It("rejects a length shorter than the header", func() {
			_, err := zapi.ReadFrame(bytes.NewReader([]byte{0, 4, zapi.Marker, zapi.Version, 0, 0, 0, 0, 0, 1}))
			Expect(err).To(MatchError(zapi.ErrDecode))
		})

		It("reports a short stream as unexpected EOF", func() {
			b, _ := zapi.EncodeVNIDel(100)
			_, err := zapi.ReadFrame(bytes.NewReader(b[:12]))
			Expect(err).To(MatchError(io.ErrUnexpectedEOF))
		})
	})

	DescribeTable("MAC-IP routes",
		func(cmd zapi.Command, r evpn.MacIPRoute) {
			b, err := zapi.EncodeMacIP(cmd, r)
			Expect(err).NotTo(HaveOccurred())

			m, err := decode(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(zapi.MacIPMessage{Cmd: cmd, Route: r}))
		},
		Entry("MAC only add", zapi.CmdMacIPAdd,
			evpn.MacIPRoute{VNI: 100, MAC: mac1, VTEP: local, Flags: evpn.FlagSticky, Seq: 3}),
		Entry("IPv4 add with ESI", zapi.CmdMacIPAdd,
			evpn.MacIPRoute{VNI: 100, MAC: mac1, IP: netip.MustParseAddr("192.168.1.10"), VTEP: local, Seq: 1, ESI: esi}),
		Entry("IPv6 remote add", zapi.CmdRemoteMacIPAdd,
			evpn.MacIPRoute{VNI: 100, MAC: mac1, IP: netip.MustParseAddr("2001:db8::10"), VTEP: vtepA, Flags: evpn.FlagRouter, Seq: 9}),
		Entry("remote delete", zapi.CmdRemoteMacIPDel,
			evpn.MacIPRoute{VNI: 100, MAC: mac1, IP: netip.MustParseAddr("192.168.1.10"), VTEP: vtepA}),
	)

	It("sizes a MAC-IP add by its ip length", func() {
		b, err := zapi.EncodeMacIP(zapi.CmdMacIPAdd, evpn.MacIPRoute{VNI: 100, MAC: mac1, IP: netip.MustParseAddr("2001:db8::10"), VTEP: local})
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(HaveLen(zapi.HeaderSize + 4 + 6 + 4 + 16 + 4 + 1 + 4 + 10))
	})

	It("refuses an IPv6 VTEP", func() {
		_, err := zapi.EncodeMacIP(zapi.CmdMacIPAdd, evpn.MacIPRoute{VNI: 100, MAC: mac1, VTEP: netip.MustParseAddr("2001:db8::1")})
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("malformed MAC-IP bodies",
		func(body []byte) {
			_, err := decode(rawFrame(zapi.Marker, zapi.Version, zapi.CmdRemoteMacIPDel, body))
			Expect(err).To(MatchError(zapi.ErrDecode))
		},
		Entry("ip length 5", macIPBody(5, []byte{1, 2, 3, 4, 5})),
		Entry("ip length 16 with 4 bytes", macIPBody(16, []byte{192, 168, 1, 10})),
		Entry("truncated", macIPBody(0, nil)[:8]),
		Entry("trailing bytes", append(macIPBody(0, nil), 0xff)),
	)

	It("rejects an unknown command", func() {
		_, err := decode(rawFrame(zapi.Marker, zapi.Version, zapi.Command(999), nil))
		Expect(err).To(MatchError(zapi.ErrDecode))
	})

	It("encodes VNI and L3 VNI lifecycle messages", func() {
		cfg := evpn.VNIConfig{ID: 100, LocalVTEP: local, McastGroup: netip.MustParseAddr("239.1.1.1"), VRFID: 3}
		b, err := zapi.EncodeVNIAdd(cfg)
		Expect(err).NotTo(HaveOccurred())
		m, err := decode(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(zapi.VNIMessage{Add: true, Config: cfg}))

		l3 := evpn.L3VNIConfig{ID: 5000, VRFID: 3, RMAC: rmac, LocalVTEP: local}
		b, err = zapi.EncodeL3VNIAdd(l3)
		Expect(err).NotTo(HaveOccurred())
		m, err = decode(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(zapi.L3VNIMessage{Add: true, Config: l3}))

		b, _ = zapi.EncodeL3VNIDel(5000)
		m, err = decode(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Command()).To(Equal(zapi.CmdL3VNIDel))
	})

	It("carries the flood mode only on VTEP adds", func() {
		add, err := zapi.EncodeRemoteVTEP(zapi.CmdRemoteVTEPAdd, 100, vtepA, evpn.FloodHER)
		Expect(err).NotTo(HaveOccurred())
		del, err := zapi.EncodeRemoteVTEP(zapi.CmdRemoteVTEPDel, 100, vtepA, evpn.FloodHER)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(add) - len(del)).To(Equal(1))

		m, err := decode(add)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(zapi.VTEPMessage{Add: true, VNI: 100, VTEP: vtepA, Flood: evpn.FloodHER}))
		m, err = decode(del)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(zapi.VTEPMessage{VNI: 100, VTEP: vtepA}))
	})

	DescribeTable("host routes",
		func(prefix string) {
			hr := evpn.HostRoute{Prefix: netip.MustParsePrefix(prefix), RMAC: rmac, VTEP: vtepA}
			b, err := zapi.EncodeHostRoute(zapi.CmdRemoteHostRouteAdd, 5000, hr)
			Expect(err).NotTo(HaveOccurred())

			m, err := decode(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(m).To(Equal(zapi.HostRouteMessage{Add: true, L3VNI: 5000, Route: hr}))
		},
		Entry("IPv4", "192.168.1.10/32"),
		Entry("IPv6", "2001:db8::10/128"),
	)

	It("rejects a host route with an unknown family", func() {
		body := binary.BigEndian.AppendUint32(nil, 5000)
		body = append(body, 7, 32, 192, 168, 1, 10)
		body = append(body, rmac[:]...)
		body = append(body, 10, 0, 0, 2)
		_, err := decode(rawFrame(zapi.Marker, zapi.Version, zapi.CmdRemoteHostRouteDel, body))
		Expect(err).To(MatchError(zapi.ErrDecode))
	})
})
