package imaging

import (
	"context"
	"image"
	"sync"
)

// Fetcher returns the raw bytes stored under key.
type Fetcher func(ctx context.Context, key string) ([]byte, error)

// Cache keeps decoded captures keyed by their object store key, so repeated
// region reads against one capture decode it once.
//
// Cache is safe for concurrent use. When full, the oldest entry is evicted.
type Cache struct {
	mu     sync.Mutex
	max    int
	order  []string
	images map[string]image.Image
}

// NewCache returns a cache holding at most max images (minimum 1).
func NewCache(max int) *Cache {
	if max < 1 {
		max = 1
	}
	return &Cache{
		max:    max,
		images: make(map[string]image.Image),
	}
}

// Load returns the cached image for key, fetching and decoding it on a miss.
// Decode failures are UnreadableImage errors and are not cached.
func (c *Cache) Load(ctx context.Context, key string, fetch Fetcher) (image.Image, error) {
	c.mu.Lock()
	if img, ok := c.images[key]; ok {
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	data, err := fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[key]; !ok {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.images, oldest)
		}
		c.order = append(c.order, key)
	}
	c.images[key] = img
	return img, nil
}

// Evict drops key from the cache.
func (c *Cache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.images[key]; !ok {
		return
	}
	delete(c.images, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.order = nil
	c.mu.Unlock()
}

// Len is the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}
