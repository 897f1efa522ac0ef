// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package taskmanager walks every infradb object change through its
// subscribers in priority order
package taskmanager

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/common"
	"github.com/opiproject/opi-evpn-syncd/pkg/infradb/subscriberframework/eventbus"
	"github.com/opiproject/opi-evpn-syncd/pkg/metrics"
)

// TaskMan is the task manager of the daemon
var TaskMan = newTaskManager()

// TaskManager dequeues tasks and waits for each subscriber's status
type TaskManager struct {
	taskQueue      *TaskQueue
	taskStatusChan chan *TaskStatus
	// StatusTimeout is how long a subscriber may take before the task is
	// requeued
	StatusTimeout time.Duration
}

// Task is one object version to be applied by its subscribers
type Task struct {
	name            string
	objectType      string
	resourceVersion string
	subIndex        int
	retryTimer      time.Duration
	subs            []*eventbus.Subscriber
}

// TaskStatus is the answer of a subscriber to a notification
type TaskStatus struct {
	name            string
	objectType      string
	resourceVersion string
	notificationID  string
	dropTask        bool
	component       *common.Component
}

func newTaskManager() *TaskManager {
	return &TaskManager{
		taskQueue:      NewTaskQueue(),
		taskStatusChan: make(chan *TaskStatus, 64),
		StatusTimeout:  30 * time.Second,
	}
}

func newTask(name, objectType, resourceVersion string, subs []*eventbus.Subscriber) *Task {
	return &Task{
		name:            name,
		objectType:      objectType,
		resourceVersion: resourceVersion,
		subs:            subs,
	}
}

// StartTaskManager starts processing the queued tasks
func (t *TaskManager) StartTaskManager() {
	go t.processTasks()
	log.Info("Task Manager has started")
}

// CreateTask queues a change of the object for its subscribers
func (t *TaskManager) CreateTask(name, objectType, resourceVersion string, subs []*eventbus.Subscriber) {
	task := newTask(name, objectType, resourceVersion, subs)
	// enqueue from a goroutine so a full queue never blocks the caller
	go t.taskQueue.Enqueue(task)
	log.WithFields(log.Fields{"name": name, "type": objectType, "version": resourceVersion}).Debug("task created")
}

// StatusUpdated reports the result of a subscriber. dropTask tells the
// manager to abandon the task because the object changed or is gone.
func (t *TaskManager) StatusUpdated(name, objectType, resourceVersion, notificationID string, dropTask bool, component *common.Component) {
	t.taskStatusChan <- &TaskStatus{
		name:            name,
		objectType:      objectType,
		resourceVersion: resourceVersion,
		notificationID:  notificationID,
		dropTask:        dropTask,
		component:       component,
	}
	log.WithFields(log.Fields{"name": name, "type": objectType, "notification": notificationID}).Debug("task status received")
}

func (t *TaskManager) processTasks() {
	for {
		task := t.taskQueue.Dequeue()
		t.processTask(task)
	}
}

func (t *TaskManager) processTask(task *Task) {
	logger := log.WithFields(log.Fields{"name": task.name, "type": task.objectType, "version": task.resourceVersion})

	for i, sub := range task.subs[task.subIndex:] {
		objectData := &eventbus.ObjectData{
			Name:            task.name,
			ResourceVersion: task.resourceVersion,
			// tells a late status apart from the answer to this notification
			NotificationID: uuid.NewString(),
		}
		eventbus.EBus.Publish(objectData, sub)
		logger.WithField("subscriber", sub.Name).Debug("notification sent")

		taskStatus := t.waitStatus(objectData.NotificationID)
		if taskStatus == nil {
			logger.WithField("subscriber", sub.Name).Warn("no status received, requeueing task")
			metrics.InfraDBTasks.WithLabelValues("timeout").Inc()
			task.subIndex += i
			go t.taskQueue.Enqueue(task)
			return
		}
		if taskStatus.dropTask {
			logger.Debug("task dropped")
			return
		}

		if taskStatus.component.CompStatus == common.ComponentStatusSuccess {
			metrics.InfraDBTasks.WithLabelValues("success").Inc()
			continue
		}
		metrics.InfraDBTasks.WithLabelValues("error").Inc()
		task.subIndex += i
		task.retryTimer = taskStatus.component.Timer
		logger.WithField("subscriber", sub.Name).Infof("task failed, retrying in %s", task.retryTimer)
		time.AfterFunc(task.retryTimer, func() {
			t.taskQueue.Enqueue(task)
		})
		return
	}
}

// waitStatus skips statuses answering older notifications. It returns nil
// on timeout.
func (t *TaskManager) waitStatus(notificationID string) *TaskStatus {
	timeout := time.NewTimer(t.StatusTimeout)
	defer timeout.Stop()
	for {
		select {
		case taskStatus := <-t.taskStatusChan:
			if taskStatus.notificationID == notificationID {
				return taskStatus
			}
			log.WithField("notification", taskStatus.notificationID).Debug("ignoring stale task status")
		case <-timeout.C:
			return nil
		}
	}
}
