package thumbnail

import (
	"context"
	"image"
	"sync"
)

// Mailbox is an Executor whose tasks run on whichever goroutine
// calls Drain or Run, typically the consumer's UI loop.
// Post never blocks: the queue is unbounded.
type Mailbox struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
}

// NewMailbox creates an empty Mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{
		notify: make(chan struct{}, 1),
	}
}

// Post queues task to run on the consumer goroutine
func (m *Mailbox) Post(task func()) {
	if task == nil {
		return
	}
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Ready receives a value after Post has queued at least one task.
// Use it in a select alongside other consumer events, then call Drain.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.notify
}

// Len returns the number of tasks waiting to run
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Drain runs every queued task, in the order posted, on the calling
// goroutine and returns the number run. Tasks posted while draining
// are run as well.
func (m *Mailbox) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		tasks := m.tasks
		m.tasks = nil
		m.mu.Unlock()

		if len(tasks) == 0 {
			return n
		}
		for _, task := range tasks {
			task()
			n++
		}
	}
}

// Run drains the mailbox each time tasks arrive, until ctx ends
func (m *Mailbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.notify:
			m.Drain()
		}
	}
}

// deliver runs on the consumer goroutine. The checks happen here rather
// than when the task was posted, since the handle may have been
// reassigned or the worker stopped in between.
func (w *Worker[T]) deliver(handle T, url string, img image.Image) {
	if w.quit.Load() {
		w.stats.droppedQuit.Add(1)
		w.log.WithField("url", url).Debug("worker has quit, dropping thumbnail")
		return
	}
	l := w.listener.Load()
	if l == nil {
		// The request stays outstanding; the next QueueThumbnail for handle retries it
		w.stats.droppedNoListener.Add(1)
		w.log.WithField("url", url).Warn("no listener registered, thumbnail dropped")
		return
	}
	if !w.ledger.CompareAndDelete(handle, url) {
		w.stats.droppedStale.Add(1)
		w.log.WithField("url", url).Debug("stale thumbnail dropped")
		return
	}
	w.stats.delivered.Add(1)
	(*l)(handle, img)
}
