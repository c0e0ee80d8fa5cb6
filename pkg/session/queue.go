package session

import "sync"

// DefaultQueueCapacity bounds the number of undelivered records.
const DefaultQueueCapacity = 128

// Queue is a bounded FIFO of undelivered records. When full, pushing
// evicts the oldest record. Every push wakes goroutines blocked on Changed.
type Queue struct {
	mu       sync.Mutex
	items    []Response
	capacity int
	changed  chan struct{}
	evicted  uint64
}

// NewQueue creates a queue holding at most capacity records.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items:    make([]Response, 0, capacity),
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// Push appends r, evicting and returning the oldest record when over capacity.
func (q *Queue) Push(r Response) (evicted Response, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, r)
	if len(q.items) > q.capacity {
		evicted, ok = q.items[0], true
		q.items = q.removeLocked(0)
		q.evicted++
	}

	close(q.changed)
	q.changed = make(chan struct{})
	return evicted, ok
}

// Take removes and returns the oldest record whose cmd equals cmd.
// An empty cmd matches any record.
func (q *Queue) Take(cmd string) (Response, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, r := range q.items {
		if cmd == "" || r.Cmd() == cmd {
			q.items = q.removeLocked(i)
			return r, true
		}
	}
	return Response{}, false
}

func (q *Queue) removeLocked(i int) []Response {
	copy(q.items[i:], q.items[i+1:])
	q.items[len(q.items)-1] = Response{}
	return q.items[:len(q.items)-1]
}

// Changed returns a channel closed by the next Push.
func (q *Queue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Evicted returns how many records were dropped on overflow.
func (q *Queue) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Snapshot returns the queued records, oldest first.
func (q *Queue) Snapshot() []Response {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Response(nil), q.items...)
}
