package event

import "container/heap"

// Queue is a min-heap of pending events ordered by Event.Before.
// It is not safe for concurrent use; the scheduler owns it.
type Queue struct {
	items   eventHeap
	nextSeq uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push schedules an event and returns its sequence number.
func (q *Queue) Push(ev Event) uint64 {
	q.nextSeq++
	ev.Seq = q.nextSeq
	heap.Push(&q.items, &ev)
	return ev.Seq
}

// Pop removes and returns the earliest event.
func (q *Queue) Pop() (Event, bool) {
	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := heap.Pop(&q.items).(*Event)
	return *ev, true
}

// Peek returns the earliest event without removing it.
func (q *Queue) Peek() (Event, bool) {
	if len(q.items) == 0 {
		return Event{}, false
	}
	return *q.items[0], true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.items)
}

type eventHeap []*Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
