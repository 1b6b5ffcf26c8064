// Command thumbfetch lists a page of Flickr photos (or takes URLs on the
// command line), fetches the thumbnails of the visible ones through a
// thumbnail.Worker, preloads those around them and prints what was delivered.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/gford1000-go/thumbnail"
	"github.com/gford1000-go/thumbnail/internal/config"
	"github.com/gford1000-go/thumbnail/internal/flickr"
)

type cliOptions struct {
	configPath string
	query      string
	page       int
	apiKey     string
	urls       []string
	visible    int
	cacheSize  int
	timeout    time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if opts.apiKey != "" {
		cfg.Flickr.APIKey = opts.apiKey
	}
	if opts.cacheSize >= 0 {
		cfg.Worker.CacheSize = opts.cacheSize
	}

	logger := cfg.Logger()
	logger.SetOutput(stderr)
	log := logger.WithField("cmd", "thumbfetch")

	if err := fetchAll(ctx, cfg, opts, log, stdout); err != nil {
		log.WithError(err).Error("thumbfetch failed")
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("thumbfetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to the TOML configuration file")
	fs.StringVarP(&opts.query, "query", "q", "", "search text; recent photos are listed when empty")
	fs.IntVarP(&opts.page, "page", "p", 1, "listing page to fetch")
	fs.StringVar(&opts.apiKey, "api-key", "", "Flickr API key (overrides config and environment)")
	fs.StringArrayVarP(&opts.urls, "url", "u", nil, "thumbnail URL to fetch instead of listing Flickr (repeatable)")
	fs.IntVarP(&opts.visible, "visible", "n", 10, "number of leading items treated as visible")
	fs.IntVar(&opts.cacheSize, "cache-size", -1, "decode cache capacity (overrides config)")
	fs.DurationVarP(&opts.timeout, "timeout", "t", time.Minute, "give up after this long")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.visible < 1 {
		return opts, fmt.Errorf("--visible must be at least 1")
	}
	if opts.timeout <= 0 {
		return opts, fmt.Errorf("--timeout must be positive")
	}
	return opts, nil
}

func listItems(ctx context.Context, cfg *config.Config, opts cliOptions, log *logrus.Entry) ([]thumbnail.Item[int], error) {
	if len(opts.urls) > 0 {
		items := make([]thumbnail.Item[int], len(opts.urls))
		for i, u := range opts.urls {
			items[i] = thumbnail.Item[int]{Handle: i, URL: u}
		}
		return items, nil
	}

	client, err := flickr.New(flickr.Config{
		APIKey:    cfg.Flickr.APIKey,
		Endpoint:  cfg.Flickr.Endpoint,
		PerPage:   cfg.Flickr.PerPage,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.RequestTimeout),
		RateLimit: rate.Limit(cfg.Fetch.RateLimit),
		RateBurst: cfg.Fetch.RateBurst,
	})
	if err != nil {
		return nil, err
	}
	page, err := client.Search(ctx, opts.query, opts.page)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	log.WithFields(logrus.Fields{
		"page":   page.Page,
		"pages":  page.Pages,
		"photos": len(page.Photos),
	}).Debug("listed photos")
	return page.Items(), nil
}

func fetchAll(ctx context.Context, cfg *config.Config, opts cliOptions, log *logrus.Entry, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	items, err := listItems(ctx, cfg, opts, log)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		log.Info("nothing to fetch")
		return nil
	}
	visible := min(opts.visible, len(items))

	fetcher := thumbnail.NewHTTPFetcher(thumbnail.HTTPConfig{
		UserAgent:      cfg.Fetch.UserAgent,
		RequestTimeout: time.Duration(cfg.Fetch.RequestTimeout),
		RateLimit:      rate.Limit(cfg.Fetch.RateLimit),
		RateBurst:      cfg.Fetch.RateBurst,
		MaxContentSize: cfg.Fetch.MaxContentSize,
		MaxPixels:      cfg.Fetch.MaxPixels,
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		AllowedSchemes: []string{"https", "http"},
	})

	// This goroutine is the consumer: every delivery runs here via Drain
	mailbox := thumbnail.NewMailbox()

	w, err := thumbnail.NewWorker[int](ctx, fetcher, mailbox,
		thumbnail.WithLogger(log),
		thumbnail.WithCacheSize(cfg.Worker.CacheSize),
		thumbnail.WithPreloadCount(cfg.Worker.PreloadCount),
	)
	if err != nil {
		return err
	}
	defer w.Quit()

	w.SetListener(func(handle int, img image.Image) {
		b := img.Bounds()
		fmt.Fprintf(stdout, "%d\t%dx%d\t%s\n", handle, b.Dx(), b.Dy(), items[handle].URL)
	})

	if err := w.Start(); err != nil {
		return err
	}

	for _, item := range items[:visible] {
		if err := w.QueueThumbnail(item.Handle, item.URL); err != nil {
			return err
		}
	}
	if err := w.LoadCacheWindow(items, 0, visible-1); err != nil {
		return err
	}

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			mailbox.Drain()
			s := w.Stats()
			log.WithFields(logrus.Fields{
				"delivered":   s.Delivered,
				"outstanding": s.Outstanding,
			}).Warn("stopped before all thumbnails arrived")
			return ctx.Err()
		case <-mailbox.Ready():
			mailbox.Drain()
		case <-tick.C:
			s := w.Stats()
			if s.PendingPrimary > 0 || s.PendingPreload > 0 {
				continue
			}
			// Served only once the item in hand is finished
			n, err := w.CacheLen(ctx)
			if err != nil {
				continue
			}
			mailbox.Drain()
			s = w.Stats()
			log.WithFields(logrus.Fields{
				"delivered":    s.Delivered,
				"fetch_errors": s.FetchErrors,
				"cached":       n,
				"preloads":     s.Preloads,
			}).Info("done")
			return nil
		}
	}
}
