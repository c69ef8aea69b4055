//go:build integration

package redis_cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/climarisk/models"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	store := NewRedisStore(fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	defer store.Close()

	if _, ok, err := store.Get(ctx, "doccache:missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got %v, %v", ok, err)
	}
	doc := models.Document{URL: "https://lyon.fr/plu.pdf", Text: "plan local d'urbanisme", Kind: "PLU"}
	if err := store.Put(ctx, "doccache:plu", doc, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, "doccache:plu")
	if err != nil || !ok || got != doc {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
}
