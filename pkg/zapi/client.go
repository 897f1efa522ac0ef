// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package zapi

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

// ErrNotConnected is returned by the Notifier calls while the session is down
var ErrNotConnected = errors.New("zapi: not connected")

// Poster queues work on the engine loop
type Poster interface {
	Post(fn func(*evpn.Engine))
}

const writeTimeout = 5 * time.Second

// Client is the engine's evpn.Notifier towards BGP. It keeps one session to
// the BGP daemon, replays the engine state each time the session comes up
// and feeds the remote routes it receives back to the engine.
type Client struct {
	address string
	log     *log.Entry

	// InitialBackoff and MaxBackoff bound the reconnect interval
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	dialer         net.Dialer

	mu        sync.Mutex
	conn      net.Conn
	connected bool
}

// NewClient returns a client of the BGP daemon listening on address
func NewClient(address string, maxBackoff time.Duration, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Client{
		address:        address,
		log:            logger,
		InitialBackoff: backoff.DefaultInitialInterval,
		MaxBackoff:     maxBackoff,
	}
}

// Run connects and serves sessions until ctx is done. Received routes are
// posted to engine.
func (c *Client) Run(ctx context.Context, engine Poster) {
	first := true
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			c.log.WithError(err).Info("zapi client stopped")
			return
		}
		if !first {
			metrics.ZapiReconnects.Inc()
		}
		first = false
		c.serve(ctx, conn, engine)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	if c.MaxBackoff > 0 {
		b.MaxInterval = c.MaxBackoff
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = c.dialer.DialContext(ctx, "tcp", c.address)
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.WithError(err).WithField("retry", next).Warn("zapi connect failed")
	}
	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// serve owns one session until it breaks or ctx is done
func (c *Client) serve(ctx context.Context, conn net.Conn, engine Poster) {
	c.setConn(conn)
	c.log.WithField("peer", conn.RemoteAddr()).Info("zapi session up")
	engine.Post(func(e *evpn.Engine) { e.ReplayBGP() })

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := c.readLoop(conn, engine)
	c.setConn(nil)
	_ = conn.Close()
	c.log.WithError(err).Warn("zapi session down")
}

func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = conn != nil
	if c.connected {
		metrics.ZapiConnected.Set(1)
	} else {
		metrics.ZapiConnected.Set(0)
	}
}

// Connected reports whether a session is up
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) readLoop(conn net.Conn, engine Poster) error {
	r := bufio.NewReader(conn)
	for {
		f, err := ReadFrame(r)
		if err != nil {
			if errors.Is(err, ErrDecode) && f.Length >= HeaderSize {
				c.dropFrame(f, err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return err
		}
		m, err := Decode(f)
		if err != nil {
			c.dropFrame(f, err)
			continue
		}
		c.dispatch(engine, m)
	}
}

func (c *Client) dropFrame(f Frame, err error) {
	metrics.DecodeErrors.WithLabelValues(f.Command.String()).Inc()
	c.log.WithError(err).WithField("command", f.Command).Warn("dropping zapi frame")
}

// dispatch hands a received message to the engine loop
func (c *Client) dispatch(engine Poster, m Message) {
	logger := c.log.WithField("command", m.Command())
	var apply func(e *evpn.Engine) error
	switch m := m.(type) {
	case MacIPMessage:
		switch m.Cmd {
		case CmdRemoteMacIPAdd:
			apply = func(e *evpn.Engine) error { return e.RemoteMacIPAdd(m.Route) }
		case CmdRemoteMacIPDel:
			apply = func(e *evpn.Engine) error { return e.RemoteMacIPDel(m.Route) }
		}
	case VTEPMessage:
		if m.Add {
			apply = func(e *evpn.Engine) error { return e.AddRemoteVTEP(m.VNI, m.VTEP, m.Flood) }
		} else {
			apply = func(e *evpn.Engine) error { return e.DeleteRemoteVTEP(m.VNI, m.VTEP) }
		}
	case HostRouteMessage:
		if m.Add {
			apply = func(e *evpn.Engine) error { return e.AddRemoteHostRoute(m.L3VNI, m.Route) }
		} else {
			apply = func(e *evpn.Engine) error { return e.DeleteRemoteHostRoute(m.L3VNI, m.Route) }
		}
	}
	if apply == nil {
		logger.Debug("ignoring message only sent to BGP")
		return
	}
	engine.Post(func(e *evpn.Engine) {
		if err := apply(e); err != nil {
			logger.WithError(err).Warn("remote update rejected")
		}
	})
}

func (c *Client) send(b []byte, err error) error {
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "zapi write deadline")
	}
	if _, err := c.conn.Write(b); err != nil {
		// the reader sees the broken session and reconnects
		_ = c.conn.Close()
		return errors.Wrap(err, "zapi write")
	}
	return nil
}

// VNIAdd implements evpn.Notifier
func (c *Client) VNIAdd(cfg evpn.VNIConfig) error {
	return c.send(EncodeVNIAdd(cfg))
}

// VNIDel implements evpn.Notifier
func (c *Client) VNIDel(vni uint32) error {
	return c.send(EncodeVNIDel(vni))
}

// L3VNIAdd implements evpn.Notifier
func (c *Client) L3VNIAdd(cfg evpn.L3VNIConfig) error {
	return c.send(EncodeL3VNIAdd(cfg))
}

// L3VNIDel implements evpn.Notifier
func (c *Client) L3VNIDel(l3vni uint32) error {
	return c.send(EncodeL3VNIDel(l3vni))
}

// MacIPAdd implements evpn.Notifier
func (c *Client) MacIPAdd(r evpn.MacIPRoute) error {
	return c.send(EncodeMacIP(CmdMacIPAdd, r))
}

// MacIPDel implements evpn.Notifier
func (c *Client) MacIPDel(r evpn.MacIPRoute) error {
	return c.send(EncodeMacIP(CmdMacIPDel, r))
}

var _ evpn.Notifier = (*Client)(nil)
