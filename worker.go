package thumbnail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrTimeout = errors.New("timeout exceeded")
var ErrInvalidContext = errors.New("context has already ended")
var ErrInvalidFetcher = errors.New("fetcher must not be nil")
var ErrInvalidExecutor = errors.New("executor must not be nil")
var ErrInvalidPreloadCount = errors.New("preload count must be zero or positive integer")
var ErrAlreadyStarted = errors.New("worker has already been started")
var ErrWorkerQuit = errors.New("worker has quit and is unusable")

const (
	spanRequest = "thumbnail.request"
	spanPreload = "thumbnail.preload"
)

type cacheQuery struct {
	c chan []string
}

// Worker fetches thumbnails on a single background goroutine and hands
// them to a Listener through an Executor.
//
// Requests are keyed by handle and only the most recent URL queued for a
// handle is ever delivered. Preloads share the decode cache but are never
// delivered. All methods may be called from the consumer goroutine while
// the worker runs.
type Worker[T comparable] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	fetcher Fetcher
	post    Executor
	opts    options
	log     *logrus.Entry
	tracer  trace.Tracer

	// cache is only touched by the loop goroutine
	cache *DecodeCache

	ledger  *Ledger[T]
	primary *lane[T]
	preload *lane[string]
	wake    chan struct{}
	query   chan *cacheQuery
	done    chan struct{}

	listener atomic.Pointer[Listener[T]]
	started  atomic.Bool
	quit     atomic.Bool
	quitOnce sync.Once
	stats    counters
}

// NewWorker creates a Worker that fetches with fetcher and posts deliveries
// to post. The worker does nothing until Start is called, although requests
// may be queued beforehand. Cancelling ctx has the same effect as Quit.
func NewWorker[T comparable](ctx context.Context, fetcher Fetcher, post Executor, opts ...Option) (*Worker[T], error) {

	select {
	case <-ctx.Done():
		return nil, ErrInvalidContext
	default:
	}

	if fetcher == nil {
		return nil, ErrInvalidFetcher
	}
	if post == nil {
		return nil, ErrInvalidExecutor
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.preloadCount < 0 {
		return nil, ErrInvalidPreloadCount
	}

	cache, err := NewDecodeCache(o.cacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)

	return &Worker[T]{
		ctx:     ctx,
		cancel:  cancel,
		fetcher: fetcher,
		post:    post,
		opts:    o,
		log:     o.log.WithField("component", "thumbnail"),
		tracer:  o.tp.Tracer(tracerName),
		cache:   cache,
		ledger:  NewLedger[T](),
		primary: newLane[T](wake),
		preload: newLane[string](wake),
		wake:    wake,
		query:   make(chan *cacheQuery),
		done:    make(chan struct{}),
	}, nil
}

// SetListener registers the callback that receives delivered thumbnails.
// It replaces any earlier listener.
func (w *Worker[T]) SetListener(l Listener[T]) {
	if l == nil {
		w.listener.Store(nil)
		return
	}
	w.listener.Store(&l)
}

// Start launches the background goroutine
func (w *Worker[T]) Start() error {
	if w.quit.Load() {
		return ErrWorkerQuit
	}
	if !w.started.CompareAndSwap(false, true) {
		if w.quit.Load() {
			return ErrWorkerQuit
		}
		return ErrAlreadyStarted
	}
	go w.loop()
	w.log.Info("background worker started")
	return nil
}

// Quit stops the worker. Queued work is dropped, the cache is released and
// no delivery reaches the listener afterwards, including results of a fetch
// that was already running. Calling Quit more than once is harmless.
func (w *Worker[T]) Quit() {
	w.quitOnce.Do(func() {
		w.quit.Store(true)
		w.cancel()
		if !w.started.Swap(true) {
			// Never started, so there is no loop to tidy up
			w.discard()
			close(w.done)
		}
		w.log.Info("background worker quit")
	})
}

// Done is closed once the worker has stopped
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// QueueThumbnail asks for url to be delivered for handle, replacing any
// earlier request for the same handle. An empty url cancels the request
// for handle instead. It never blocks.
func (w *Worker[T]) QueueThumbnail(handle T, url string) error {
	if w.quit.Load() {
		return ErrWorkerQuit
	}
	if url == "" {
		w.ledger.Delete(handle)
		return nil
	}
	w.log.WithField("url", url).Debug("thumbnail queued")
	w.ledger.Set(handle, url)
	w.primary.push(handle)
	return nil
}

// LoadCache queues the URLs of items, in order, to be fetched into the
// cache without notifying anyone. Items with an empty URL are skipped.
func (w *Worker[T]) LoadCache(items []Item[T]) error {
	if w.quit.Load() {
		return ErrWorkerQuit
	}
	urls := make([]string, 0, len(items))
	for _, it := range items {
		if it.URL != "" {
			urls = append(urls, it.URL)
		}
	}
	w.preload.push(urls...)
	w.log.WithField("count", len(urls)).Debug("cache preload queued")
	return nil
}

// LoadCacheWindow preloads the items around the visible range
// [firstVisible, lastVisible] of items; see PreloadWindow. Preloads still
// queued from an earlier window are dropped first.
func (w *Worker[T]) LoadCacheWindow(items []Item[T], firstVisible, lastVisible int) error {
	start, end, err := PreloadWindow(firstVisible, lastVisible, len(items), w.opts.preloadCount)
	if err != nil {
		w.log.WithError(err).Warn("preload window rejected")
		return err
	}
	w.ClearPreloadQueue()
	return w.LoadCache(items[start:end])
}

// ClearQueue drops thumbnail requests that have not started and forgets
// every handle. A fetch already running is not interrupted, but its
// result will not be delivered.
func (w *Worker[T]) ClearQueue() {
	n := w.primary.clear()
	w.ledger.Clear()
	w.log.WithField("dropped", n).Debug("request queue cleared")
}

// ClearPreloadQueue drops preloads that have not started
func (w *Worker[T]) ClearPreloadQueue() {
	n := w.preload.clear()
	w.log.WithField("dropped", n).Debug("preload queue cleared")
}

// CacheLen returns the number of images in the decode cache
func (w *Worker[T]) CacheLen(ctx context.Context) (int, error) {
	keys, err := w.CachedURLs(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// CachedURLs returns the URLs in the decode cache, most recently used first.
// The answer comes from the worker goroutine, so it waits for any fetch in
// progress to finish.
func (w *Worker[T]) CachedURLs(ctx context.Context) ([]string, error) {

	select {
	case <-ctx.Done():
		return nil, ErrInvalidContext
	default:
	}

	if w.quit.Load() {
		return nil, ErrWorkerQuit
	}

	q := &cacheQuery{c: make(chan []string, 1)}

	timer := time.NewTimer(w.opts.timeout)
	defer timer.Stop()

	select {
	case w.query <- q:
	case <-w.done:
		return nil, ErrWorkerQuit
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}

	select {
	case keys := <-q.c:
		return keys, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (w *Worker[T]) loop() {
	// Deferred calls run in reverse: stop deliveries first,
	// release state, then signal Done
	defer close(w.done)
	defer w.discard()
	defer w.quit.Store(true)

	for {
		select {
		case <-w.ctx.Done():
			return
		case q := <-w.query:
			q.c <- w.cache.Keys()
			continue
		default:
		}

		// The primary lane is drained before each single preload
		if handle, ok := w.primary.pop(); ok {
			w.handleRequest(handle)
			continue
		}
		if url, ok := w.preload.pop(); ok {
			w.preloadImage(url)
			continue
		}

		select {
		case <-w.ctx.Done():
			return
		case q := <-w.query:
			q.c <- w.cache.Keys()
		case <-w.wake:
		}
	}
}

func (w *Worker[T]) handleRequest(handle T) {
	url, ok := w.ledger.Get(handle)
	if !ok {
		return
	}
	w.stats.requests.Add(1)

	ctx, span := w.tracer.Start(w.ctx, spanRequest, trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	img, err := w.resolve(ctx, url)
	if err != nil {
		w.logFetchError(err, url, "error downloading image")
		return
	}

	w.post.Post(func() {
		w.deliver(handle, url, img)
	})
}

func (w *Worker[T]) preloadImage(url string) {
	w.stats.preloads.Add(1)

	ctx, span := w.tracer.Start(w.ctx, spanPreload, trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	if _, err := w.resolve(ctx, url); err != nil {
		w.logFetchError(err, url, "error preloading image")
	}
}

func (w *Worker[T]) logFetchError(err error, url, msg string) {
	log := w.log.WithError(err).WithField("url", url)
	if w.ctx.Err() != nil {
		log.Debug("fetch abandoned, worker stopping")
		return
	}
	log.Error(msg)
}

func (w *Worker[T]) discard() {
	w.primary.clear()
	w.preload.clear()
	w.ledger.Clear()
	w.cache.Clear()
}
