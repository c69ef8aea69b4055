package redis_cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/climarisk/models"
)

type Store struct {
	client *redis.Client
}

func NewRedisStore(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

// NewWithClient reuses an existing connection.
func NewWithClient(client *redis.Client) *Store { return &Store{client: client} }

func (store *Store) Get(ctx context.Context, key string) (models.Document, bool, error) {
	val, err := store.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Document{}, false, nil
	}
	if err != nil {
		return models.Document{}, false, err
	}
	var doc models.Document
	if err := json.Unmarshal(val, &doc); err != nil {
		// a corrupt entry is a miss; it will be overwritten
		return models.Document{}, false, nil
	}
	return doc, true, nil
}

func (store *Store) Put(ctx context.Context, key string, doc models.Document, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return store.client.Set(ctx, key, data, ttl).Err()
}

func (store *Store) Close() error { return store.client.Close() }
