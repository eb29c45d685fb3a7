// Package queue carries report generation tasks from the API to workers.
// Delivery is at least once: a task is redelivered until acknowledged.
package queue

import (
	"context"
	"time"
)

type Task struct {
	ReportID   string    `json:"reportId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Delivery is a received task plus the handle needed to acknowledge it.
type Delivery struct {
	Task    Task
	receipt string
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Receive waits for at least one task or until the backend's poll
	// interval elapses, in which case it returns an empty slice.
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}

// Memory is an in-process queue for development and tests. Tasks do not
// survive a restart; the report worker's recovery sweep re-enqueues them.
type Memory struct {
	tasks chan Task
	poll  time.Duration
}

func NewMemory(capacity int) *Memory {
	return &Memory{tasks: make(chan Task, capacity), poll: time.Second}
}

func (m *Memory) Enqueue(ctx context.Context, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	select {
	case m.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Receive(ctx context.Context) ([]Delivery, error) {
	timer := time.NewTimer(m.poll)
	defer timer.Stop()

	var out []Delivery
	select {
	case t := <-m.tasks:
		out = append(out, Delivery{Task: t})
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for len(out) < 10 {
		select {
		case t := <-m.tasks:
			out = append(out, Delivery{Task: t})
		default:
			return out, nil
		}
	}
	return out, nil
}

func (m *Memory) Ack(context.Context, Delivery) error { return nil }

// Len reports the number of tasks waiting.
func (m *Memory) Len() int { return len(m.tasks) }
