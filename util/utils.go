// Package util holds small cross-cutting helpers shared by the allocator
// engine and the configuration store.
package util

import "container/heap"

// Cascade runs a sequence of independent steps already executed by the
// caller and returns the first non-nil error, the same short-circuit
// contract the scheduler's own startup sequence relies on
// (taskStore.Open(); taskRuntimeStore.Open(); ...; initDriver()).
func Cascade(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// delayedMessage is a single pending closure, ordered by fire time.
type delayedMessage struct {
	fireAt int64 // unix nanoseconds
	seq    int64 // insertion order, tiebreaks equal fire times
	fn     func()
}

type messageHeap []*delayedMessage

func (h messageHeap) Len() int { return len(h) }
func (h messageHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}
func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(*delayedMessage))
}
func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ActorQueue orders an engine's delayed self-messages by fire time, the
// generalization of the scheduler's task-keyed PostPriorityQueue to
// arbitrary closures. The allocator engine uses it for the
// maintenance-recovery resume timer; its allocation timer is a ticker and
// filter expiries run on their own timers.
type ActorQueue struct {
	h      messageHeap
	nextSeq int64
}

// NewActorQueue returns an empty queue.
func NewActorQueue() *ActorQueue {
	q := &ActorQueue{h: make(messageHeap, 0)}
	heap.Init(&q.h)
	return q
}

// Schedule enqueues fn to run at fireAt (unix nanoseconds).
func (q *ActorQueue) Schedule(fireAt int64, fn func()) {
	heap.Push(&q.h, &delayedMessage{fireAt: fireAt, seq: q.nextSeq, fn: fn})
	q.nextSeq++
}

// Len returns the number of pending messages.
func (q *ActorQueue) Len() int { return q.h.Len() }

// Peek returns the fire time of the earliest pending message, and whether
// one exists.
func (q *ActorQueue) Peek() (int64, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].fireAt, true
}

// PopReady pops and returns every message whose fireAt is <= now, in fire
// order.
func (q *ActorQueue) PopReady(now int64) []func() {
	var ready []func()
	for q.h.Len() > 0 && q.h[0].fireAt <= now {
		item := heap.Pop(&q.h).(*delayedMessage)
		ready = append(ready, item.fn)
	}
	return ready
}
