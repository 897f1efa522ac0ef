// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package evpnmodule is the infradb subscriber applying VNI, L3 VNI and
// Ethernet Segment objects to the EVPN engine
package evpnmodule

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/config"
	"github.com/opiproject/opi-evpn-syncd/pkg/evpn"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/common"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/subscriberframework/eventbus"
)

// ModuleName is the subscriber and component name of this module
const ModuleName = "evpn"

const (
	maxRetry      = time.Minute
	submitTimeout = 10 * time.Second
)

// LinkResolver maps interface names to ifindexes
type LinkResolver interface {
	IfIndex(name string) (int, error)
}

// ModuleEvpnHandler handles the infradb events of the module
type ModuleEvpnHandler struct {
	engine *evpn.Engine
	links  LinkResolver
	log    *log.Entry
}

// NewHandler creates a handler applying objects to engine
func NewHandler(engine *evpn.Engine, links LinkResolver, logger *log.Entry) *ModuleEvpnHandler {
	if logger == nil {
		logger = log.WithField("module", ModuleName)
	}
	return &ModuleEvpnHandler{engine: engine, links: links, log: logger}
}

// Init subscribes the handler to the events the configuration lists for
// the evpn module
func Init(h *ModuleEvpnHandler, subscribers []config.SubscriberConfig) {
	eb := eventbus.EBus
	for _, subscriberConfig := range subscribers {
		if subscriberConfig.Name != ModuleName {
			continue
		}
		for _, eventType := range subscriberConfig.Events {
			eb.StartSubscriber(subscriberConfig.Name, eventType, subscriberConfig.Priority, h)
		}
	}
}

// HandleEvent applies the notified object version and reports the outcome
func (h *ModuleEvpnHandler) HandleEvent(eventType string, objectData *eventbus.ObjectData) {
	logger := h.log.WithFields(log.Fields{"type": eventType, "name": objectData.Name})
	var err error
	switch eventType {
	case infradb.VniType:
		err = h.handleVni(objectData)
	case infradb.L3VniType:
		err = h.handleL3Vni(objectData)
	case infradb.EsType:
		err = h.handleEs(objectData)
	default:
		logger.Error("unknown event type")
		return
	}
	if err != nil {
		logger.WithError(err).Error("failed to update object status")
	}
}

func (h *ModuleEvpnHandler) submit(fn func(*evpn.Engine) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	return h.engine.Submit(ctx, fn)
}

// result builds the component status reported for an apply error
func (h *ModuleEvpnHandler) result(status *infradb.Status, name string, applyErr error) common.Component {
	comp := common.Component{Name: ModuleName, CompStatus: common.ComponentStatusSuccess}
	if applyErr == nil {
		return comp
	}
	prev, _ := status.Component(ModuleName)
	comp.CompStatus = common.ComponentStatusError
	comp.Details = applyErr.Error()
	comp.Timer = common.NextRetry(prev.Timer, maxRetry)
	h.log.WithField("name", name).WithError(applyErr).Warnf("apply failed, retrying in %s", comp.Timer)
	return comp
}

func (h *ModuleEvpnHandler) handleVni(objectData *eventbus.ObjectData) error {
	vni, err := infradb.GetVni(objectData.Name)
	if err != nil {
		h.log.WithField("name", objectData.Name).WithError(err).Debug("vni not readable")
		return nil
	}
	var applyErr error
	if vni.Status.OperStatus == infradb.OperStatusToBeDeleted {
		applyErr = h.submit(func(e *evpn.Engine) error {
			return ignoreMissing(e.DeleteVNI(vni.Spec.Vni))
		})
	} else {
		var cfg evpn.VNIConfig
		if cfg, applyErr = h.vniConfig(vni); applyErr == nil {
			applyErr = h.submit(func(e *evpn.Engine) error {
				return e.AddVNI(cfg)
			})
		}
	}
	comp := h.result(&vni.Status, vni.Name, applyErr)
	return infradb.UpdateVniStatus(objectData.Name, objectData.ResourceVersion, objectData.NotificationID, comp)
}

func (h *ModuleEvpnHandler) vniConfig(vni *infradb.Vni) (evpn.VNIConfig, error) {
	cfg := evpn.VNIConfig{
		ID:           vni.Spec.Vni,
		LocalVTEP:    vni.Spec.VtepIP,
		McastGroup:   vni.Spec.McastGroup,
		AccessVlan:   vni.Spec.AccessVlan,
		L3VNI:        vni.Spec.L3Vni,
		AdvertiseGW:  vni.Spec.AdvertiseGW,
		AdvertiseSVI: vni.Spec.AdvertiseSVI,
	}
	if vni.Spec.VxlanDevice != "" {
		ifindex, err := h.links.IfIndex(vni.Spec.VxlanDevice)
		if err != nil {
			return cfg, err
		}
		cfg.VxlanIfIndex = ifindex
	}
	if cfg.L3VNI != 0 {
		if l3vni, err := infradb.GetL3Vni(infradb.L3VniName(cfg.L3VNI)); err == nil {
			cfg.VRFID = l3vni.Spec.VrfID
		}
	}
	return cfg, nil
}

func (h *ModuleEvpnHandler) handleL3Vni(objectData *eventbus.ObjectData) error {
	l3vni, err := infradb.GetL3Vni(objectData.Name)
	if err != nil {
		h.log.WithField("name", objectData.Name).WithError(err).Debug("l3vni not readable")
		return nil
	}
	var applyErr error
	if l3vni.Status.OperStatus == infradb.OperStatusToBeDeleted {
		applyErr = h.submit(func(e *evpn.Engine) error {
			return ignoreMissing(e.DeleteL3VNI(l3vni.Spec.Vni))
		})
	} else {
		var rmac evpn.MACAddr
		if rmac, applyErr = evpn.ParseMAC(l3vni.Spec.Rmac); applyErr == nil {
			cfg := evpn.L3VNIConfig{ID: l3vni.Spec.Vni, VRFID: l3vni.Spec.VrfID, RMAC: rmac, LocalVTEP: l3vni.Spec.VtepIP}
			applyErr = h.submit(func(e *evpn.Engine) error {
				return e.AddL3VNI(cfg)
			})
		}
	}
	comp := h.result(&l3vni.Status, l3vni.Name, applyErr)
	return infradb.UpdateL3VniStatus(objectData.Name, objectData.ResourceVersion, objectData.NotificationID, comp)
}

func (h *ModuleEvpnHandler) handleEs(objectData *eventbus.ObjectData) error {
	es, err := infradb.GetEs(objectData.Name)
	if err != nil {
		h.log.WithField("name", objectData.Name).WithError(err).Debug("es not readable")
		return nil
	}
	esi, applyErr := evpn.ParseESI(es.Spec.Esi)
	if applyErr == nil {
		if es.Status.OperStatus == infradb.OperStatusToBeDeleted {
			applyErr = h.submit(func(e *evpn.Engine) error {
				return ignoreMissing(e.DeleteLocalES(esi))
			})
		} else {
			var ifindex int
			if ifindex, applyErr = h.links.IfIndex(es.Spec.Interface); applyErr == nil {
				applyErr = h.submit(func(e *evpn.Engine) error {
					return e.AddLocalES(esi, ifindex)
				})
			}
		}
	}
	comp := h.result(&es.Status, es.Name, applyErr)
	return infradb.UpdateEsStatus(objectData.Name, objectData.ResourceVersion, objectData.NotificationID, comp)
}

// ignoreMissing treats deleting what the engine does not have as done
func ignoreMissing(err error) error {
	if errors.Is(err, evpn.ErrNotFound) || errors.Is(err, evpn.ErrUnknownVNI) || errors.Is(err, evpn.ErrUnknownL3VNI) {
		return nil
	}
	return err
}
