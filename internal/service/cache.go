package service

import (
	"sort"
	"sync"

	"github.com/yegors/aussie-atis/pkg/logger"
)

// Cache holds the latest entry for each airport. Entries are never modified
// after they are stored; an update replaces the pointer.
type Cache struct {
	entries map[string]*Entry
	logger  *logger.Logger
	mu      sync.RWMutex
}

// NewCache creates an empty cache
func NewCache(log *logger.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		logger:  log.Named("atis-cache"),
	}
}

// Get returns the entry for an airport, or nil when nothing has been decoded yet
func (c *Cache) Get(code string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[code]
}

// Set replaces the entry for an airport and returns the previous one
func (c *Cache) Set(entry *Entry) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.entries[entry.Airport]
	c.entries[entry.Airport] = entry

	c.logger.Debug("Cache entry updated",
		logger.String("airport", entry.Airport),
		logger.String("state", entry.State),
		logger.Time("fetched_at", entry.FetchedAt))

	return prev
}

// All returns every cached entry sorted by airport code
func (c *Cache) All() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Airport < out[j].Airport })
	return out
}

// Len returns the number of cached airports
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
