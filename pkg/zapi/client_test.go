// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package zapi_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
	"github.com/opiproject/opi-evpn-syncd/pkg/zapi"
)

// nopDataplane accepts every programming call
type nopDataplane struct{}

func (nopDataplane) UpsertLocalMAC(evpn.LocalMACEntry) error     { return nil }
func (nopDataplane) DeleteLocalMAC(evpn.LocalMACEntry) error     { return nil }
func (nopDataplane) UpsertRemoteMAC(evpn.RemoteMACEntry) error   { return nil }
func (nopDataplane) DeleteRemoteMAC(evpn.RemoteMACEntry) error   { return nil }
func (nopDataplane) UpsertLocalNeigh(evpn.LocalNeighEntry) error { return nil }
func (nopDataplane) DeleteLocalNeigh(evpn.LocalNeighEntry) error { return nil }
func (nopDataplane) UpsertRemoteNeigh(evpn.RemoteNeighEntry) error {
	return nil
}
func (nopDataplane) DeleteRemoteNeigh(evpn.RemoteNeighEntry) error {
	return nil
}
func (nopDataplane) UpsertVTEP(evpn.VTEPEntry) error       { return nil }
func (nopDataplane) DeleteVTEP(evpn.VTEPEntry) error       { return nil }
func (nopDataplane) UpsertRMAC(evpn.RMACEntry) error       { return nil }
func (nopDataplane) DeleteRMAC(evpn.RMACEntry) error       { return nil }
func (nopDataplane) UpsertNexthop(evpn.NexthopEntry) error { return nil }
func (nopDataplane) DeleteNexthop(evpn.NexthopEntry) error { return nil }

func quietLogger() *log.Entry {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return log.NewEntry(l)
}

// bgpPeer plays the BGP daemon side of a session
type bgpPeer struct {
	ln   *net.TCPListener
	conn net.Conn
}

func (p *bgpPeer) accept() {
	GinkgoHelper()
	Expect(p.ln.SetDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	conn, err := p.ln.Accept()
	Expect(err).NotTo(HaveOccurred())
	p.conn = conn
}

func (p *bgpPeer) next() zapi.Message {
	GinkgoHelper()
	Expect(p.conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	f, err := zapi.ReadFrame(p.conn)
	Expect(err).NotTo(HaveOccurred())
	m, err := zapi.Decode(f)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func (p *bgpPeer) send(b []byte, err error) {
	GinkgoHelper()
	Expect(err).NotTo(HaveOccurred())
	_, err = p.conn.Write(b)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("Client", func() {
	var (
		engine *evpn.Engine
		client *zapi.Client
		peer   *bgpPeer
		cancel context.CancelFunc
	)

	// remoteMAC reads the owner of mac1 from the engine loop
	remoteMAC := func() evpn.Ownership {
		owner := evpn.OwnerAuto
		Expect(engine.Submit(context.Background(), func(e *evpn.Engine) error {
			v, _ := e.VNI(100)
			if m, ok := v.MAC(mac1); ok {
				owner = m.Owner
			}
			return nil
		})).To(Succeed())
		return owner
	}

	BeforeEach(func() {
		ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
		Expect(err).NotTo(HaveOccurred())
		peer = &bgpPeer{ln: ln}
		DeferCleanup(func() { _ = ln.Close() })

		client = zapi.NewClient(ln.Addr().String(), 50*time.Millisecond, quietLogger())
		client.InitialBackoff = 10 * time.Millisecond
		engine = evpn.New(evpn.DefaultConfig(), nopDataplane{}, client, evpn.WithLogger(quietLogger()))
	})

	It("fails notifications while disconnected", func() {
		Expect(client.Connected()).To(BeFalse())
		Expect(client.VNIDel(100)).To(MatchError(zapi.ErrNotConnected))
	})

	It("replays state on connect and feeds remote routes to the engine", func() {
		Expect(engine.AddVNI(evpn.VNIConfig{ID: 100, LocalVTEP: local, AccessVlan: 10})).To(Succeed())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(func() { cancel() })
		go engine.Run(ctx)
		go client.Run(ctx, engine)

		By("replaying the VNI once the session is up")
		peer.accept()
		Expect(peer.next()).To(Equal(zapi.VNIMessage{Add: true, Config: evpn.VNIConfig{ID: 100, LocalVTEP: local}}))
		Eventually(client.Connected).Should(BeTrue())

		By("installing a remote MAC")
		peer.send(zapi.EncodeRemoteVTEP(zapi.CmdRemoteVTEPAdd, 100, vtepA, evpn.FloodHER))
		peer.send(zapi.EncodeMacIP(zapi.CmdRemoteMacIPAdd, evpn.MacIPRoute{VNI: 100, MAC: mac1, VTEP: vtepA, Seq: 1}))
		Eventually(remoteMAC).Should(Equal(evpn.OwnerRemote))

		By("dropping a malformed frame without closing the session")
		dropped := metrics.DecodeErrors.WithLabelValues(zapi.CmdRemoteMacIPDel.String())
		before := testutil.ToFloat64(dropped)
		peer.send(rawFrame(zapi.Marker, zapi.Version, zapi.CmdRemoteMacIPDel, macIPBody(5, []byte{1, 2, 3, 4, 5})), nil)
		Eventually(func() float64 { return testutil.ToFloat64(dropped) }).Should(Equal(before + 1))
		peer.send(zapi.EncodeMacIP(zapi.CmdRemoteMacIPDel, evpn.MacIPRoute{VNI: 100, MAC: mac1, VTEP: vtepA}))
		Eventually(remoteMAC).Should(Equal(evpn.OwnerAuto))

		By("advertising a local MAC")
		Expect(engine.Submit(ctx, func(e *evpn.Engine) error {
			_, err := e.UpsertLocalMAC(evpn.LocalMACUpdate{VNI: 100, MAC: mac1, IfIndex: 5, Vlan: 10})
			return err
		})).To(Succeed())
		m := peer.next()
		Expect(m.Command()).To(Equal(zapi.CmdMacIPAdd))
		Expect(m.(zapi.MacIPMessage).Route.MAC).To(Equal(mac1))
		Expect(m.(zapi.MacIPMessage).Route.VTEP).To(Equal(local))

		By("reconnecting and replaying after the peer goes away")
		reconnects := testutil.ToFloat64(metrics.ZapiReconnects)
		Expect(peer.conn.Close()).To(Succeed())
		peer.accept()
		Expect(peer.next()).To(Equal(zapi.VNIMessage{Add: true, Config: evpn.VNIConfig{ID: 100, LocalVTEP: local}}))
		m = peer.next()
		Expect(m.Command()).To(Equal(zapi.CmdMacIPAdd))
		Expect(testutil.ToFloat64(metrics.ZapiReconnects)).To(Equal(reconnects + 1))
	})

	It("stops retrying once cancelled", func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		Expect(peer.ln.Close()).To(Succeed())
		done := make(chan struct{})
		go func() {
			client.Run(ctx, engine)
			close(done)
		}()
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
