// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

package taskmanager

// TaskQueue is a bounded FIFO of tasks
type TaskQueue struct {
	channel chan *Task
}

// NewTaskQueue creates a queue holding up to 200 tasks
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		channel: make(chan *Task, 200),
	}
}

// Enqueue blocks while the queue is full
func (q *TaskQueue) Enqueue(task *Task) {
	q.channel <- task
}

// Dequeue blocks until a task is available
func (q *TaskQueue) Dequeue() *Task {
	return <-q.channel
}

// Close closes the queue
func (q *TaskQueue) Close() {
	close(q.channel)
}
