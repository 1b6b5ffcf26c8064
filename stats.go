package thumbnail

import "sync/atomic"

// Stats is a snapshot of a Worker's activity
type Stats struct {
	// Requests counts thumbnail requests the worker started on
	Requests uint64
	// Preloads counts preload items the worker started on
	Preloads uint64
	// Hits and Misses count decode cache lookups
	Hits   uint64
	Misses uint64
	// Fetches counts calls to the Fetcher, FetchErrors those that failed
	Fetches     uint64
	FetchErrors uint64
	// Delivered counts images handed to the listener
	Delivered uint64
	// DroppedStale counts results discarded because the handle moved on
	DroppedStale uint64
	// DroppedQuit counts results discarded because the worker had quit
	DroppedQuit uint64
	// DroppedNoListener counts results discarded because no listener was set
	DroppedNoListener uint64

	PendingPrimary int
	PendingPreload int
	// Outstanding is the number of handles still awaiting delivery
	Outstanding int
}

type counters struct {
	requests     atomic.Uint64
	preloads     atomic.Uint64
	hits         atomic.Uint64
	misses       atomic.Uint64
	fetches      atomic.Uint64
	fetchErrors  atomic.Uint64
	delivered    atomic.Uint64
	droppedStale atomic.Uint64
	droppedQuit  atomic.Uint64
	// set only by the consumer goroutine
	droppedNoListener atomic.Uint64
}

// Stats returns the worker's counters. It is safe to call at any time.
func (w *Worker[T]) Stats() Stats {
	return Stats{
		Requests:          w.stats.requests.Load(),
		Preloads:          w.stats.preloads.Load(),
		Hits:              w.stats.hits.Load(),
		Misses:            w.stats.misses.Load(),
		Fetches:           w.stats.fetches.Load(),
		FetchErrors:       w.stats.fetchErrors.Load(),
		Delivered:         w.stats.delivered.Load(),
		DroppedStale:      w.stats.droppedStale.Load(),
		DroppedQuit:       w.stats.droppedQuit.Load(),
		DroppedNoListener: w.stats.droppedNoListener.Load(),
		PendingPrimary:    w.primary.len(),
		PendingPreload:    w.preload.len(),
		Outstanding:       w.ledger.Len(),
	}
}
