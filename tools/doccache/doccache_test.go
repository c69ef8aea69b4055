package doccache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/climarisk/models"
	"github.com/mohammad-safakhou/climarisk/tools/doccache/inmemory"
	redis_cache "github.com/mohammad-safakhou/climarisk/tools/doccache/redis"
)

func TestNewStore(t *testing.T) {
	if _, ok := NewStore(nil).(*inmemory.Store); !ok {
		t.Fatalf("expected in-memory store without a redis client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, ok := NewStore(client).(*redis_cache.Store); !ok {
		t.Fatalf("expected redis store when a client is given")
	}
}

func TestKeyIgnoresTrackingParams(t *testing.T) {
	a, err := Key("https://Paris.fr/dicrim.pdf?utm_source=x")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	b, _ := Key("https://paris.fr/dicrim.pdf")
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if _, err := Key(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestFetchLoadsOnce(t *testing.T) {
	cache := New(inmemory.NewInMemoryStore(), time.Hour)
	loads := 0
	load := func(context.Context) (models.Document, error) {
		loads++
		return models.Document{URL: "https://paris.fr/pcs.pdf", Text: "plan communal", Source: models.SourceWebSearch}, nil
	}
	first, err := cache.Fetch(context.Background(), "https://paris.fr/pcs.pdf", load)
	if err != nil || first.Source != models.SourceWebSearch {
		t.Fatalf("first fetch: %+v, %v", first, err)
	}
	second, err := cache.Fetch(context.Background(), "https://paris.fr/pcs.pdf", load)
	if err != nil || second.Source != models.SourceCache || second.Text != "plan communal" {
		t.Fatalf("second fetch: %+v, %v", second, err)
	}
	if loads != 1 {
		t.Fatalf("load called %d times", loads)
	}
}

func TestFetchDoesNotCacheFailures(t *testing.T) {
	store := inmemory.NewInMemoryStore()
	cache := New(store, 0)
	boom := errors.New("timeout")
	_, err := cache.Fetch(context.Background(), "https://a.fr/x.pdf", func(context.Context) (models.Document, error) {
		return models.Document{}, boom
	})
	if !errors.Is(err, boom) || store.Len() != 0 {
		t.Fatalf("failure must not be cached: %v, %d entries", err, store.Len())
	}
	if cache.TTL != DefaultTTL {
		t.Fatalf("ttl = %s", cache.TTL)
	}
}
