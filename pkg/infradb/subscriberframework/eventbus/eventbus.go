// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package eventbus delivers infradb object changes to the subscribed modules
package eventbus

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// EBus is the event bus of the daemon
var EBus = NewEventBus()

// EventBus keeps the subscribers of every object type in priority order
type EventBus struct {
	subscribers   map[string][]*Subscriber
	eventHandlers map[string]EventHandler
	mutex         sync.RWMutex
	publishL      sync.RWMutex
}

// Subscriber is one module registered for one object type
type Subscriber struct {
	Name     string
	Ch       chan interface{}
	Quit     chan bool
	Priority int
}

// EventHandler is implemented by the modules
type EventHandler interface {
	HandleEvent(string, *ObjectData)
}

// ObjectData identifies the object version a notification is about
type ObjectData struct {
	ResourceVersion string
	Name            string
	NotificationID  string
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers:   make(map[string][]*Subscriber),
		eventHandlers: make(map[string]EventHandler),
	}
}

// StartSubscriber registers the module for eventType and starts the
// goroutine handing notifications to eventHandler
func (e *EventBus) StartSubscriber(moduleName, eventType string, priority int, eventHandler EventHandler) {
	subscriber := e.Subscribe(moduleName, eventType, priority, eventHandler)

	go func() {
		for {
			select {
			case event := <-subscriber.Ch:
				log.Debugf("Subscriber %s for %s received event", moduleName, eventType)
				handler, ok := e.handler(moduleName, eventType)
				if !ok {
					log.Errorf("Subscriber %s has no handler for %s", moduleName, eventType)
					continue
				}
				objectData, ok := event.(*ObjectData)
				if !ok {
					log.Errorf("Subscriber %s received an unexpected event %T", moduleName, event)
					continue
				}
				handler.HandleEvent(eventType, objectData)
			case <-subscriber.Quit:
				return
			}
		}
	}()
}

func (e *EventBus) handler(moduleName, eventType string) (EventHandler, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	h, ok := e.eventHandlers[moduleName+"."+eventType]
	return h, ok
}

// Subscribe registers a subscriber to the given eventType
func (e *EventBus) Subscribe(moduleName, eventType string, priority int, eventHandler EventHandler) *Subscriber {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	subscriber := &Subscriber{
		Name:     moduleName,
		Ch:       make(chan interface{}, 1),
		Quit:     make(chan bool),
		Priority: priority,
	}

	e.subscribers[eventType] = append(e.subscribers[eventType], subscriber)
	e.eventHandlers[moduleName+"."+eventType] = eventHandler

	sort.SliceStable(e.subscribers[eventType], func(i, j int) bool {
		return e.subscribers[eventType][i].Priority < e.subscribers[eventType][j].Priority
	})

	log.Infof("Subscriber %s registered for event %s with priority %d", moduleName, eventType, priority)
	return subscriber
}

// GetSubscribers returns the subscribers of eventType, highest priority
// (lowest value) first
func (e *EventBus) GetSubscribers(eventType string) []*Subscriber {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return append([]*Subscriber(nil), e.subscribers[eventType]...)
}

// Publish hands objectData to one subscriber
func (e *EventBus) Publish(objectData *ObjectData, subscriber *Subscriber) {
	e.publishL.RLock()
	defer e.publishL.RUnlock()
	subscriber.Ch <- objectData
}

// UnsubscribeEvent removes the subscriber from eventType and stops its
// goroutine
func (e *EventBus) UnsubscribeEvent(subscriber *Subscriber, eventType string) {
	e.mutex.Lock()
	subscribers, ok := e.subscribers[eventType]
	found := false
	if ok {
		for i, sub := range subscribers {
			if sub == subscriber {
				e.subscribers[eventType] = append(subscribers[:i:i], subscribers[i+1:]...)
				delete(e.eventHandlers, subscriber.Name+"."+eventType)
				found = true
				break
			}
		}
		if len(e.subscribers[eventType]) == 0 {
			delete(e.subscribers, eventType)
		}
	}
	e.mutex.Unlock()

	if found {
		close(subscriber.Quit)
		log.Infof("Subscriber %s is unsubscribed for event %s", subscriber.Name, eventType)
	}
}
