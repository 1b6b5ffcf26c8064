// Package flickr lists photos from the Flickr REST API a page at a time,
// for the gallery to request thumbnails of.
package flickr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/gford1000-go/thumbnail"
)

const (
	methodRecent = "flickr.photos.getRecent"
	methodSearch = "flickr.photos.search"
)

var ErrMissingAPIKey = errors.New("flickr API key is required")

// APIError is returned when Flickr answers with stat "fail"
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flickr error %d: %s", e.Code, e.Message)
}

// Config holds client settings
type Config struct {
	APIKey    string
	Endpoint  string
	PerPage   int
	UserAgent string
	Timeout   time.Duration
	RateLimit rate.Limit
	RateBurst int
}

// Photo is a listed photo with its small thumbnail URL
type Photo struct {
	ID    string
	Title string
	URL   string
}

// Page is one page of a listing
type Page struct {
	Photos  []Photo
	Page    int
	Pages   int
	PerPage int
	Total   int
}

// HasNext reports whether a later page exists
func (p Page) HasNext() bool {
	return p.Page < p.Pages
}

// Items returns the photos as worker items, each handle being the photo's
// position on the page
func (p Page) Items() []thumbnail.Item[int] {
	items := make([]thumbnail.Item[int], len(p.Photos))
	for i, ph := range p.Photos {
		items[i] = thumbnail.Item[int]{Handle: i, URL: ph.URL}
	}
	return items
}

// Client fetches photo listings
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Endpoint == "" {
		config.Endpoint = "https://api.flickr.com/services/rest/"
	}
	if config.PerPage <= 0 {
		config.PerPage = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(config.RateLimit, max(config.RateBurst, 1))
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: limiter,
	}, nil
}

// Recent returns a page of recently uploaded photos. Pages start at 1.
func (c *Client) Recent(ctx context.Context, page int) (Page, error) {
	return c.list(ctx, methodRecent, nil, page)
}

// Search returns a page of photos matching text. An empty text lists recent photos.
func (c *Client) Search(ctx context.Context, text string, page int) (Page, error) {
	if text == "" {
		return c.Recent(ctx, page)
	}
	return c.list(ctx, methodSearch, url.Values{"text": {text}}, page)
}

type listResponse struct {
	Photos struct {
		Page    flexInt `json:"page"`
		Pages   flexInt `json:"pages"`
		PerPage flexInt `json:"perpage"`
		Total   flexInt `json:"total"`
		Photo   []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			URL   string `json:"url_s"`
		} `json:"photo"`
	} `json:"photos"`
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) list(ctx context.Context, method string, params url.Values, page int) (Page, error) {
	if page < 1 {
		page = 1
	}

	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return Page{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	q.Set("method", method)
	q.Set("api_key", c.config.APIKey)
	q.Set("format", "json")
	q.Set("nojsoncallback", "1")
	q.Set("extras", "url_s")
	q.Set("per_page", strconv.Itoa(c.config.PerPage))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, err
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return Page{}, fmt.Errorf("HTTP %d: %s: reading body: %w", resp.StatusCode, resp.Status, err)
		}
		return Page{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Page{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if body.Stat != "ok" {
		return Page{}, &APIError{Code: body.Code, Message: body.Message}
	}

	p := Page{
		Photos:  make([]Photo, 0, len(body.Photos.Photo)),
		Page:    int(body.Photos.Page),
		Pages:   int(body.Photos.Pages),
		PerPage: int(body.Photos.PerPage),
		Total:   int(body.Photos.Total),
	}
	for _, ph := range body.Photos.Photo {
		// Not every photo has a small size
		if ph.URL == "" {
			continue
		}
		p.Photos = append(p.Photos, Photo{ID: ph.ID, Title: ph.Title, URL: ph.URL})
	}
	return p, nil
}

// flexInt decodes a number Flickr may send either bare or quoted
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*n = flexInt(v)
	return nil
}
