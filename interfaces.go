package thumbnail

import (
	"context"
	"image"
)

// Item pairs a consumer handle with the URL of the image it should show
type Item[T comparable] struct {
	// Handle is the opaque consumer identity, passed back unchanged on delivery
	Handle T
	// URL of the image
	URL string
}

// Fetcher retrieves and decodes the image at a URL.
// It is called from the worker's background goroutine and may block.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// FetcherFunc adapts a plain func to the Fetcher interface
type FetcherFunc func(ctx context.Context, url string) (image.Image, error)

// Fetch calls f(ctx, url)
func (f FetcherFunc) Fetch(ctx context.Context, url string) (image.Image, error) {
	return f(ctx, url)
}

// Executor runs tasks on the consumer's own goroutine.
// Post must never block the caller.
type Executor interface {
	Post(task func())
}

// Listener receives a decoded image for a handle, on the consumer's goroutine
type Listener[T comparable] func(handle T, img image.Image)
