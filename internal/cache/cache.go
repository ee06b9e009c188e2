package cache

import (
	"go-syncbridge/internal/config"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the key-value lookaside used for entity sync status reads. The
// durable store stays authoritative; entries here only short-circuit lookups.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Remove(key string)
}

type TTLCache struct {
	lru *expirable.LRU[string, any]
}

// NewTTLCache builds a bounded LRU whose entries expire after the configured TTL.
func NewTTLCache(cfg *config.Config) Cache {
	return &TTLCache{
		lru: expirable.NewLRU[string, any](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

func (c *TTLCache) Get(key string) (any, bool) {
	return c.lru.Get(key)
}

func (c *TTLCache) Set(key string, value any) {
	c.lru.Add(key, value)
}

func (c *TTLCache) Remove(key string) {
	c.lru.Remove(key)
}
