// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package infradb keeps the provisioned VNI, L3 VNI and Ethernet Segment
// objects and walks every change through the subscribed modules
package infradb

import (
	"errors"
	"sort"
	"sync"

	"github.com/philippgille/gokv"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/common"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/subscriberframework/eventbus"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/taskmanager"
	"github.com/opiproject/opi-evpn-syncd/pkg/storage"
)

// Object types, also used as event bus event types
const (
	VniType   = "vni"
	L3VniType = "l3vni"
	EsType    = "es"
)

var infradb *InfraDB
var globalLock sync.Mutex
var logger = log.WithField("module", "db")

// InfraDB is the object store
type InfraDB struct {
	client gokv.Store
}

var (
	// ErrKeyNotFound is returned when the object does not exist
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned when creating an object that already exists
	ErrKeyExists = errors.New("key already exists")
	// ErrComponentNotFound is returned for a status of an unknown subscriber
	ErrComponentNotFound = errors.New("component not found")
)

// NewInfraDB opens the store of type dbtype
func NewInfraDB(address string, dbtype string) error {
	store, err := storage.NewStore(dbtype, address)
	if err != nil {
		return err
	}

	infradb = &InfraDB{
		client: store.GetClient(),
	}
	return nil
}

// SetLogger replaces the logger of the package
func SetLogger(l *log.Entry) {
	logger = l
}

// Close closes the store
func Close() error {
	return infradb.client.Close()
}

func indexKey(objectType string) string {
	return objectType + "s"
}

func pendingComponents(subscribers []*eventbus.Subscriber) []common.Component {
	components := make([]common.Component, 0, len(subscribers))
	for _, sub := range subscribers {
		components = append(components, common.Component{Name: sub.Name, CompStatus: common.ComponentStatusPending})
	}
	return components
}

func getIndex(objectType string) (map[string]bool, error) {
	// a map and not a list so that a delete does not need to walk it
	index := make(map[string]bool)
	if _, err := infradb.client.Get(indexKey(objectType), &index); err != nil {
		return nil, err
	}
	return index, nil
}

func setIndex(objectType, name string, present bool) error {
	index, err := getIndex(objectType)
	if err != nil {
		return err
	}
	if present {
		index[name] = false
	} else {
		delete(index, name)
	}
	return infradb.client.Set(indexKey(objectType), index)
}

func getObject[T any, PT interface {
	*T
	EvpnObject
}](name string) (PT, error) {
	obj := PT(new(T))
	found, err := infradb.client.Get(name, obj)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return obj, nil
}

// storeAndNotify saves a new version of obj and queues it for the
// subscribers of objectType. Without subscribers the change completes
// immediately.
func storeAndNotify(objectType string, obj EvpnObject) error {
	subscribers := eventbus.EBus.GetSubscribers(objectType)
	st := obj.status()
	obj.setResourceVersion(generateVersion())
	st.Components = pendingComponents(subscribers)

	if len(subscribers) == 0 {
		logger.WithField("name", obj.GetName()).Warnf("no subscribers for %s objects", objectType)
		if st.OperStatus == OperStatusToBeDeleted {
			return removeObject(objectType, obj.GetName())
		}
		st.OperStatus = OperStatusUp
	}
	if err := infradb.client.Set(obj.GetName(), obj); err != nil {
		return err
	}
	if len(subscribers) > 0 {
		taskmanager.TaskMan.CreateTask(obj.GetName(), objectType, obj.GetResourceVersion(), subscribers)
	}
	return nil
}

func removeObject(objectType, name string) error {
	if err := infradb.client.Delete(name); err != nil {
		return err
	}
	return setIndex(objectType, name, false)
}

func createObject[T any, PT interface {
	*T
	EvpnObject
}](objectType string, obj PT) error {
	globalLock.Lock()
	defer globalLock.Unlock()

	if _, err := getObject[T, PT](obj.GetName()); err == nil {
		return ErrKeyExists
	} else if !errors.Is(err, ErrKeyNotFound) {
		return err
	}

	obj.status().OperStatus = OperStatusDown
	if err := setIndex(objectType, obj.GetName(), true); err != nil {
		return err
	}
	if err := storeAndNotify(objectType, obj); err != nil {
		return err
	}
	logger.WithField("name", obj.GetName()).Infof("%s created", objectType)
	return nil
}

func updateObject[T any, PT interface {
	*T
	EvpnObject
}](objectType string, obj PT) error {
	globalLock.Lock()
	defer globalLock.Unlock()

	old, err := getObject[T, PT](obj.GetName())
	if err != nil {
		return err
	}
	if old.status().OperStatus == OperStatusToBeDeleted {
		return ErrKeyNotFound
	}
	obj.status().OperStatus = OperStatusDown
	if err := storeAndNotify(objectType, obj); err != nil {
		return err
	}
	logger.WithField("name", obj.GetName()).Infof("%s updated", objectType)
	return nil
}

func deleteObject[T any, PT interface {
	*T
	EvpnObject
}](objectType, name string) error {
	globalLock.Lock()
	defer globalLock.Unlock()

	obj, err := getObject[T, PT](name)
	if err != nil {
		return err
	}
	// subscribers remove the object before it leaves the store
	obj.status().OperStatus = OperStatusToBeDeleted
	if err := storeAndNotify(objectType, obj); err != nil {
		return err
	}
	logger.WithField("name", name).Infof("%s marked for deletion", objectType)
	return nil
}

func getAllObjects[T any, PT interface {
	*T
	EvpnObject
}](objectType string) ([]PT, error) {
	globalLock.Lock()
	defer globalLock.Unlock()

	index, err := getIndex(objectType)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}
	sort.Strings(names)

	objs := make([]PT, 0, len(names))
	for _, name := range names {
		obj, err := getObject[T, PT](name)
		if err != nil {
			logger.WithError(err).WithField("name", name).Warnf("indexed %s not readable", objectType)
			continue
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// updateObjectStatus records the status of one subscriber. Once every
// subscriber succeeded the object is up, or removed when it was being
// deleted.
func updateObjectStatus[T any, PT interface {
	*T
	EvpnObject
}](objectType, name, resourceVersion, notificationID string, component common.Component) error {
	globalLock.Lock()
	defer globalLock.Unlock()

	// on a store error the task manager times the task out and retries
	obj, err := getObject[T, PT](name)
	if errors.Is(err, ErrKeyNotFound) {
		taskmanager.TaskMan.StatusUpdated(name, objectType, resourceVersion, notificationID, true, &component)
		logger.WithField("name", name).Debugf("status for a %s no longer in the store", objectType)
		return nil
	}
	if err != nil {
		return err
	}

	if obj.GetResourceVersion() != resourceVersion {
		taskmanager.TaskMan.StatusUpdated(name, objectType, obj.GetResourceVersion(), notificationID, true, &component)
		logger.WithField("name", name).Debugf("status for an old version %s of %s", resourceVersion, objectType)
		return nil
	}

	st := obj.status()
	found := false
	allSucceeded := true
	for i := range st.Components {
		if st.Components[i].Name == component.Name {
			st.Components[i] = component
			found = true
		}
		if st.Components[i].CompStatus != common.ComponentStatusSuccess {
			allSucceeded = false
		}
	}
	if !found {
		return ErrComponentNotFound
	}

	switch {
	case allSucceeded && st.OperStatus == OperStatusToBeDeleted:
		if err := removeObject(objectType, name); err != nil {
			return err
		}
		logger.WithField("name", name).Infof("%s deleted", objectType)
	default:
		if allSucceeded {
			st.OperStatus = OperStatusUp
		}
		if err := infradb.client.Set(name, obj); err != nil {
			return err
		}
	}

	taskmanager.TaskMan.StatusUpdated(name, objectType, resourceVersion, notificationID, false, &component)
	return nil
}

// CreateVni stores a new L2 VNI
func CreateVni(vni *Vni) error {
	return createObject(VniType, vni)
}

// UpdateVni stores a new version of an L2 VNI
func UpdateVni(vni *Vni) error {
	return updateObject(VniType, vni)
}

// DeleteVni removes an L2 VNI once its subscribers released it
func DeleteVni(name string) error {
	return deleteObject[Vni](VniType, name)
}

// GetVni returns an L2 VNI
func GetVni(name string) (*Vni, error) {
	globalLock.Lock()
	defer globalLock.Unlock()
	return getObject[Vni](name)
}

// GetAllVnis returns every L2 VNI ordered by name
func GetAllVnis() ([]*Vni, error) {
	return getAllObjects[Vni](VniType)
}

// UpdateVniStatus records the status a subscriber reports for an L2 VNI
func UpdateVniStatus(name, resourceVersion, notificationID string, component common.Component) error {
	return updateObjectStatus[Vni](VniType, name, resourceVersion, notificationID, component)
}

// CreateL3Vni stores a new L3 VNI
func CreateL3Vni(l3vni *L3Vni) error {
	return createObject(L3VniType, l3vni)
}

// UpdateL3Vni stores a new version of an L3 VNI
func UpdateL3Vni(l3vni *L3Vni) error {
	return updateObject(L3VniType, l3vni)
}

// DeleteL3Vni removes an L3 VNI once its subscribers released it
func DeleteL3Vni(name string) error {
	return deleteObject[L3Vni](L3VniType, name)
}

// GetL3Vni returns an L3 VNI
func GetL3Vni(name string) (*L3Vni, error) {
	globalLock.Lock()
	defer globalLock.Unlock()
	return getObject[L3Vni](name)
}

// GetAllL3Vnis returns every L3 VNI ordered by name
func GetAllL3Vnis() ([]*L3Vni, error) {
	return getAllObjects[L3Vni](L3VniType)
}

// UpdateL3VniStatus records the status a subscriber reports for an L3 VNI
func UpdateL3VniStatus(name, resourceVersion, notificationID string, component common.Component) error {
	return updateObjectStatus[L3Vni](L3VniType, name, resourceVersion, notificationID, component)
}

// CreateEs stores a new Ethernet Segment
func CreateEs(es *Es) error {
	return createObject(EsType, es)
}

// UpdateEs stores a new version of an Ethernet Segment
func UpdateEs(es *Es) error {
	return updateObject(EsType, es)
}

// DeleteEs removes an Ethernet Segment once its subscribers released it
func DeleteEs(name string) error {
	return deleteObject[Es](EsType, name)
}

// GetEs returns an Ethernet Segment
func GetEs(name string) (*Es, error) {
	globalLock.Lock()
	defer globalLock.Unlock()
	return getObject[Es](name)
}

// GetAllEss returns every Ethernet Segment ordered by name
func GetAllEss() ([]*Es, error) {
	return getAllObjects[Es](EsType)
}

// UpdateEsStatus records the status a subscriber reports for an Ethernet
// Segment
func UpdateEsStatus(name, resourceVersion, notificationID string, component common.Component) error {
	return updateObjectStatus[Es](EsType, name, resourceVersion, notificationID, component)
}
