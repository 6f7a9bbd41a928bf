package connection

import "socsync/pkg/models"

type outbound struct {
	msg  *models.Message
	data []byte
}

// Queue is a bounded FIFO of outgoing messages held while disconnected.
// When full, the oldest entry is evicted to make room for the newest.
type Queue struct {
	items []outbound
	head  int
	size  int
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{items: make([]outbound, capacity)}
}

// Push appends item and returns the evicted entry, if any.
func (q *Queue) Push(item outbound) (outbound, bool) {
	capacity := len(q.items)
	if q.size == capacity {
		evicted := q.items[q.head]
		q.items[q.head] = item
		q.head = (q.head + 1) % capacity
		return evicted, true
	}
	q.items[(q.head+q.size)%capacity] = item
	q.size++
	return outbound{}, false
}

// Drain removes and returns every queued entry, oldest first.
func (q *Queue) Drain() []outbound {
	out := make([]outbound, 0, q.size)
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.items)
		out = append(out, q.items[idx])
		q.items[idx] = outbound{}
	}
	q.head = 0
	q.size = 0
	return out
}

// Requeue puts items back at the front in their original order. Entries
// beyond capacity are dropped from the oldest end and returned.
func (q *Queue) Requeue(items []outbound) []outbound {
	rest := q.Drain()
	all := append(append([]outbound(nil), items...), rest...)
	var dropped []outbound
	if over := len(all) - len(q.items); over > 0 {
		dropped = all[:over]
		all = all[over:]
	}
	for _, item := range all {
		q.Push(item)
	}
	return dropped
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return q.size
}

// Cap returns the queue bound.
func (q *Queue) Cap() int {
	return len(q.items)
}
