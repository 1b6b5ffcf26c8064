package thumbnail

import "sync"

// Ledger records the most recently requested URL for each handle.
// A later Set for the same handle replaces the earlier URL.
// It is safe for concurrent use.
type Ledger[T comparable] struct {
	mu   sync.RWMutex
	urls map[T]string
}

// NewLedger creates an empty Ledger
func NewLedger[T comparable]() *Ledger[T] {
	return &Ledger[T]{
		urls: make(map[T]string),
	}
}

// Set records url as the current request for handle
func (l *Ledger[T]) Set(handle T, url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls[handle] = url
}

// Get returns the current URL for handle
func (l *Ledger[T]) Get(handle T) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	url, ok := l.urls[handle]
	return url, ok
}

// Delete forgets handle
func (l *Ledger[T]) Delete(handle T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.urls, handle)
}

// CompareAndDelete removes handle only if its current URL is url,
// reporting whether it did so.
func (l *Ledger[T]) CompareAndDelete(handle T, url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.urls[handle]; !ok || cur != url {
		return false
	}
	delete(l.urls, handle)
	return true
}

// Len returns the number of handles with an outstanding request
func (l *Ledger[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.urls)
}

// Clear forgets every handle
func (l *Ledger[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = make(map[T]string)
}
