package thumbnail

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/gford1000-go/thumbnail"

type options struct {
	cacheSize    int
	preloadCount int
	timeout      time.Duration
	log          *logrus.Entry
	tp           trace.TracerProvider
}

func defaultOptions() options {
	return options{
		cacheSize:    DefaultCacheSize,
		preloadCount: DefaultPreloadCount,
		timeout:      5 * time.Second,
		log:          logrus.NewEntry(logrus.StandardLogger()),
		tp:           noop.NewTracerProvider(),
	}
}

// Option configures a Worker
type Option func(*options)

// WithCacheSize sets how many decoded images are kept.
// Zero means unbounded; negative values are rejected by NewWorker.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithPreloadCount sets how many images around the visible range
// LoadCacheWindow asks for, split evenly before and after it.
func WithPreloadCount(n int) Option {
	return func(o *options) {
		o.preloadCount = n
	}
}

// WithTimeout bounds how long CacheLen and CachedURLs wait for the worker.
// If d <= 0 then an effectively infinite timeout is used.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			d = 24 * time.Hour
		}
		o.timeout = d
	}
}

// WithLogger sets the entry the worker logs through
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTracerProvider sets where request and preload spans are reported
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tp = tp
		}
	}
}
