// Package doccache keeps extracted document text by URL so a re-run does not
// download the same files again.
package doccache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/climarisk/internal/helpers"
	"github.com/mohammad-safakhou/climarisk/models"
	"github.com/mohammad-safakhou/climarisk/tools/doccache/inmemory"
	redis_cache "github.com/mohammad-safakhou/climarisk/tools/doccache/redis"
)

const DefaultTTL = 48 * time.Hour

// Store caches documents. Get reports a miss with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (doc models.Document, ok bool, err error)
	Put(ctx context.Context, key string, doc models.Document, ttl time.Duration) error
}

// NewStore uses client when it is set and memory otherwise.
func NewStore(client *redis.Client) Store {
	if client != nil {
		return redis_cache.NewWithClient(client)
	}
	return inmemory.NewInMemoryStore()
}

// Cache wraps a Store with URL keys and a default TTL.
type Cache struct {
	Store Store
	TTL   time.Duration
}

func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{Store: store, TTL: ttl}
}

// Key derives the cache key of a URL.
func Key(rawURL string) (string, error) {
	fp, err := helpers.URLFingerprint(rawURL)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	return "doccache:" + fp, nil
}

// Lookup returns the cached document of rawURL, tagged as coming from the cache.
func (c *Cache) Lookup(ctx context.Context, rawURL string) (models.Document, bool, error) {
	key, err := Key(rawURL)
	if err != nil {
		return models.Document{}, false, err
	}
	doc, ok, err := c.Store.Get(ctx, key)
	if err != nil || !ok {
		return models.Document{}, false, err
	}
	doc.Source = models.SourceCache
	return doc, true, nil
}

// Remember stores doc under its URL.
func (c *Cache) Remember(ctx context.Context, doc models.Document) error {
	key, err := Key(doc.URL)
	if err != nil {
		return err
	}
	return c.Store.Put(ctx, key, doc, c.TTL)
}

// Fetch returns the cached document or calls load and caches its result.
// Cache failures never fail the fetch.
func (c *Cache) Fetch(ctx context.Context, rawURL string, load func(ctx context.Context) (models.Document, error)) (models.Document, error) {
	if doc, ok, err := c.Lookup(ctx, rawURL); err == nil && ok {
		return doc, nil
	}
	doc, err := load(ctx)
	if err != nil {
		return models.Document{}, err
	}
	_ = c.Remember(ctx, doc)
	return doc, nil
}
