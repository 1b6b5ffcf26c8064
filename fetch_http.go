package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var ErrSchemeNotAllowed = errors.New("scheme not allowed")
var ErrMissingHost = errors.New("missing host")
var ErrHTTPStatus = errors.New("unexpected HTTP status")
var ErrTooLarge = errors.New("image exceeds maximum size")
var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// HTTPConfig controls an HTTPFetcher
type HTTPConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	// RateLimit is requests per second across all callers; zero disables limiting
	RateLimit      rate.Limit
	RateBurst      int
	MaxContentSize int64
	// MaxPixels caps width*height before decoding; zero disables the check
	MaxPixels      int
	MaxRedirects   int
	AllowedSchemes []string
}

// DefaultHTTPConfig returns settings suited to fetching small thumbnails
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		UserAgent:      "thumbnail/1.0",
		RequestTimeout: 30 * time.Second,
		RateLimit:      rate.Limit(10),
		RateBurst:      20,
		MaxContentSize: 10 * 1024 * 1024,
		MaxPixels:      4096 * 4096,
		MaxRedirects:   5,
		AllowedSchemes: []string{"https", "http"},
	}
}

// HTTPFetcher downloads and decodes images over HTTP.
// It is safe for concurrent use, so one HTTPFetcher may serve several
// Workers; simultaneous fetches of the same URL share a single download.
type HTTPFetcher struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewHTTPFetcher creates an HTTPFetcher
func NewHTTPFetcher(config HTTPConfig) *HTTPFetcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(config.RateLimit, max(config.RateBurst, 1))
	}

	client := &http.Client{
		Timeout: config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPFetcher{
		config:  config,
		client:  client,
		limiter: limiter,
	}
}

// Fetch downloads the image at rawURL and decodes it.
// Callers fetching the same URL at once share one download, which runs
// until it completes or RequestTimeout passes even if some of them give up.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := f.group.DoChan(rawURL, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if f.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, f.config.RequestTimeout)
			defer cancel()
		}
		return f.fetch(shared, rawURL)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string) (image.Image, error) {
	parsed, err := f.validateURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	data, err := f.fetchURL(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}

	if f.config.MaxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		if px := int64(cfg.Width) * int64(cfg.Height); px > int64(f.config.MaxPixels) {
			return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	return img, nil
}

func (f *HTTPFetcher) validateURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(f.config.AllowedSchemes, parsed.Scheme) {
		return nil, fmt.Errorf("%w: %q", ErrSchemeNotAllowed, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, ErrMissingHost
	}
	return parsed, nil
}

func (f *HTTPFetcher) fetchURL(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}

	body := io.Reader(resp.Body)
	if f.config.MaxContentSize > 0 {
		// Read one byte past the limit to tell "exactly max" from "too big"
		body = io.LimitReader(resp.Body, f.config.MaxContentSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.config.MaxContentSize > 0 && int64(len(data)) > f.config.MaxContentSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
