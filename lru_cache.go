package thumbnail

import (
	"container/list"
	"errors"
	"image"
)

// DefaultCacheSize is the number of decoded images a Worker keeps by default
const DefaultCacheSize = 100

var ErrInvalidMaxEntries = errors.New("maxEntries must be zero or positive integer")

// DecodeCache is an LRU of decoded images keyed by URL.
// Both Get and Put count as use. It is not safe for concurrent access;
// a Worker only touches it from its own goroutine.
type DecodeCache struct {
	// capacity is the maximum number of images before the
	// least recently used is evicted. Zero means no limit.
	capacity int

	ll    *list.List
	index map[string]*list.Element
}

type decoded struct {
	url string
	img image.Image
}

// NewDecodeCache creates an empty cache holding at most capacity images.
// A capacity of zero means the cache grows without bound.
func NewDecodeCache(capacity int) (*DecodeCache, error) {
	if capacity < 0 {
		return nil, ErrInvalidMaxEntries
	}
	return &DecodeCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}, nil
}

// Put stores img for url, making it the most recently used entry
func (c *DecodeCache) Put(url string, img image.Image) {
	if c.index == nil {
		c.index = make(map[string]*list.Element)
		c.ll = list.New()
	}
	if ee, ok := c.index[url]; ok {
		c.ll.MoveToFront(ee)
		ee.Value.(*decoded).img = img
		return
	}
	c.index[url] = c.ll.PushFront(&decoded{url, img})
	for c.capacity != 0 && c.ll.Len() > c.capacity {
		c.removeOldest()
	}
}

// Get returns the image for url, if present
func (c *DecodeCache) Get(url string) (img image.Image, ok bool) {
	if c.index == nil {
		return
	}
	if ele, hit := c.index[url]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(*decoded).img, true
	}
	return
}

// Remove drops url from the cache, if present
func (c *DecodeCache) Remove(url string) {
	if c.index == nil {
		return
	}
	if ele, hit := c.index[url]; hit {
		c.removeElement(ele)
	}
}

func (c *DecodeCache) removeOldest() {
	if ele := c.ll.Back(); ele != nil {
		c.removeElement(ele)
	}
}

func (c *DecodeCache) removeElement(e *list.Element) {
	c.ll.Remove(e)
	delete(c.index, e.Value.(*decoded).url)
}

// Len returns the number of cached images
func (c *DecodeCache) Len() int {
	if c.index == nil {
		return 0
	}
	return c.ll.Len()
}

// Keys returns the cached URLs, most recently used first
func (c *DecodeCache) Keys() []string {
	if c.index == nil {
		return []string{}
	}
	keys := make([]string, 0, c.ll.Len())
	for e := c.ll.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*decoded).url)
	}
	return keys
}

// Clear purges all cached images
func (c *DecodeCache) Clear() {
	c.ll = nil
	c.index = nil
}
