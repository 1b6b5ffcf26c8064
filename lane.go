package thumbnail

import "sync"

// lane is a FIFO of work items waiting for the worker goroutine.
// Producers push from any goroutine; only the worker pops.
type lane[E any] struct {
	mu    sync.Mutex
	items []E
	wake  chan<- struct{}
}

func newLane[E any](wake chan<- struct{}) *lane[E] {
	return &lane[E]{wake: wake}
}

func (q *lane[E]) push(items ...E) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *lane[E]) pop() (e E, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	e = q.items[0]
	var zero E
	q.items[0] = zero
	q.items = q.items[1:]
	return e, true
}

// clear drops every queued item and returns how many there were
func (q *lane[E]) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *lane[E]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
