package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrNilImage = errors.New("fetcher returned no image")

const (
	oTELCacheHit     = "DecodeCache hit"
	oTELCacheMiss    = "DecodeCache miss"
	oTELFetchStarted = "Fetch started"
	oTELFetchEnded   = "Fetch ended"
	oTELFetchError   = "Fetch Error"
)

// resolve returns the image for url from the cache, fetching and
// caching it on a miss. Only called from the loop goroutine.
func (w *Worker[T]) resolve(ctx context.Context, url string) (image.Image, error) {
	curSpan := trace.SpanFromContext(ctx)

	if img, ok := w.cache.Get(url); ok {
		w.stats.hits.Add(1)
		curSpan.AddEvent(oTELCacheHit, trace.WithTimestamp(time.Now().UTC()))
		w.log.WithField("url", url).Debug("image served from cache")
		return img, nil
	}

	w.stats.misses.Add(1)
	curSpan.AddEvent(oTELCacheMiss, trace.WithTimestamp(time.Now().UTC()))

	img, err := w.fetch(ctx, url)
	if err != nil {
		// A fetch cut short by Quit is not a fetch failure
		if w.ctx.Err() == nil {
			w.stats.fetchErrors.Add(1)
		}
		return nil, err
	}

	w.cache.Put(url, img)
	w.log.WithField("url", url).Debug("image downloaded")
	return img, nil
}

// fetch calls the Fetcher, converting a panic or a missing image into an error
func (w *Worker[T]) fetch(ctx context.Context, url string) (img image.Image, err error) {

	curSpan := trace.SpanFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
		if err == nil && img == nil {
			err = ErrNilImage
		}
		if err != nil {
			img = nil
			curSpan.AddEvent(oTELFetchError, trace.WithTimestamp(time.Now().UTC()))
			curSpan.SetStatus(codes.Error, err.Error())
			return
		}
		b := img.Bounds()
		curSpan.AddEvent(oTELFetchEnded, trace.WithAttributes(attribute.Int("Width", b.Dx()), attribute.Int("Height", b.Dy())), trace.WithTimestamp(time.Now().UTC()))
	}()

	curSpan.AddEvent(oTELFetchStarted, trace.WithTimestamp(time.Now().UTC()))
	w.stats.fetches.Add(1)

	return w.fetcher.Fetch(ctx, url)
}
