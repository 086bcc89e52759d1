package rules

import "github.com/dgraph-io/ristretto/v2"

// Cache is an in-process cache for rule-file contents, keyed by path and
// mtime so edits invalidate naturally. It is shared across runs; the
// per-run dedup state lives in each Loader's seen set, never here.
type Cache struct {
	c *ristretto.Cache[string, string]
}

// NewCache creates a cache bounded to maxCostBytes of rule content.
func NewCache(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) get(key string) (string, bool) {
	if c == nil || c.c == nil {
		return "", false
	}
	return c.c.Get(key)
}

func (c *Cache) set(key, value string) {
	if c == nil || c.c == nil {
		return
	}
	c.c.Set(key, value, int64(len(value)))
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	if c != nil && c.c != nil {
		c.c.Close()
	}
}
