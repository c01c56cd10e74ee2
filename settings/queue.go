package settings

import (
	"github.com/sirupsen/logrus"
)

// DefaultQueueCapacity is the number of settings the pipeline's queue
// can hold between two capture frames.
const DefaultQueueCapacity = 100

// Queue is a bounded FIFO mailbox between setting producers and the
// single capture-thread consumer. Post never blocks; when the queue is
// full it reports failure and the producer decides whether to retry.
//
// The implementation is a buffered channel: sends and receives are
// wait-free with respect to the pipeline's processing lock, and enqueue
// order is preserved across producers.
type Queue struct {
	ch chan Setting
}

// NewQueue creates a queue with the given capacity. Capacities below one
// fall back to DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Setting, capacity)}
}

// Post inserts a setting without blocking. It returns false when the
// queue is full; the setting is not enqueued in that case and the caller
// is expected to retry or accept that an older in-flight value wins.
func (q *Queue) Post(s Setting) bool {
	select {
	case q.ch <- s:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Queue.Post",
			"kind":     s.Kind().String(),
			"capacity": cap(q.ch),
		}).Warn("Runtime setting queue full, setting rejected")
		return false
	}
}

// Drain removes every queued setting in enqueue order and applies each
// one exactly once. It returns the number of settings applied. Only the
// single consumer may call Drain; partial drains do not occur because
// Drain empties everything visible at call time.
func (q *Queue) Drain(apply func(Setting)) int {
	applied := 0
	for {
		select {
		case s := <-q.ch:
			apply(s)
			applied++
		default:
			return applied
		}
	}
}

// Len returns the number of settings currently queued.
func (q *Queue) Len() int { return len(q.ch) }

// Capacity returns the fixed queue capacity.
func (q *Queue) Capacity() int { return cap(q.ch) }
