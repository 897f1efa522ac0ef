// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package metrics holds the prometheus collectors of the daemon.
// They are exposed on /metrics by the http server started in cmd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace is the prometheus namespace of every collector
	Namespace = "opi_evpn_syncd"

	// collector subsystems
	SubsystemEngine  = "engine"
	SubsystemZapi    = "zapi"
	SubsystemNetlink = "netlink"
	SubsystemInfraDB = "infradb"
)

var (
	registerOnce sync.Once

	// TableEntries tracks the entries held by the engine
	// Labels: table (mac/neigh)
	TableEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "table_entries",
			Help:      "Number of MAC and neighbor entries across all VNIs",
		},
		[]string{"table"},
	)

	// DuplicatesDetected counts duplicate address detections
	// Labels: table (mac/neigh)
	DuplicatesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "duplicates_detected_total",
			Help:      "Number of MACs and IPs declared duplicate",
		},
		[]string{"table"},
	)

	// StaleUpdates counts remote routes dropped by the sequence number rule
	StaleUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "stale_updates_total",
			Help:      "Number of remote MAC-IP routes rejected for their sequence number",
		},
		[]string{"table"},
	)

	// BGPUpdates counts MAC-IP notifications sent to BGP
	// Labels: op (add/del)
	BGPUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "bgp_updates_total",
			Help:      "Number of MAC-IP adds and deletes sent to BGP",
		},
		[]string{"op"},
	)

	// BGPErrors counts notifications BGP could not be sent
	BGPErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "bgp_errors_total",
			Help:      "Number of MAC-IP notifications that failed to be sent",
		},
	)

	// DataplaneOps counts dataplane programming calls
	// Labels: op, result (ok/error)
	DataplaneOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "dataplane_ops_total",
			Help:      "Number of dataplane programming calls",
		},
		[]string{"op", "result"},
	)

	// ZapiConnected is 1 while the BGP control-plane session is up
	ZapiConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemZapi,
			Name:      "connected",
			Help:      "Whether the zapi session to BGP is established",
		},
	)

	// ZapiReconnects counts session re-establishments
	ZapiReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemZapi,
			Name:      "reconnects_total",
			Help:      "Number of zapi session re-establishments",
		},
	)

	// DecodeErrors counts dropped malformed frames
	// Labels: command
	DecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemZapi,
			Name:      "decode_errors_total",
			Help:      "Number of zapi frames dropped because they could not be decoded",
		},
		[]string{"command"},
	)

	// NetlinkPolls counts kernel table polls
	// Labels: result (ok/error)
	NetlinkPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemNetlink,
			Name:      "polls_total",
			Help:      "Number of FDB and neighbor table polls",
		},
		[]string{"result"},
	)

	// InfraDBTasks counts object changes delivered to subscribers
	// Labels: result (success/error/timeout)
	InfraDBTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemInfraDB,
			Name:      "tasks_total",
			Help:      "Number of object change notifications processed",
		},
		[]string{"result"},
	)
)

// Register adds every collector to the default registry
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(TableEntries)
		prometheus.MustRegister(DuplicatesDetected)
		prometheus.MustRegister(StaleUpdates)
		prometheus.MustRegister(BGPUpdates)
		prometheus.MustRegister(BGPErrors)
		prometheus.MustRegister(DataplaneOps)
		prometheus.MustRegister(ZapiConnected)
		prometheus.MustRegister(ZapiReconnects)
		prometheus.MustRegister(DecodeErrors)
		prometheus.MustRegister(NetlinkPolls)
		prometheus.MustRegister(InfraDBTasks)
	})
}
