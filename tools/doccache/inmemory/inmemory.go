package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/mohammad-safakhou/climarisk/models"
)

type entry struct {
	doc       models.Document
	expiresAt time.Time
}

type Store struct {
	entries map[string]entry
	mu      sync.RWMutex
	now     func() time.Time
}

func NewInMemoryStore() *Store {
	return &Store{entries: make(map[string]entry), now: time.Now}
}

func (store *Store) Get(_ context.Context, key string) (models.Document, bool, error) {
	store.mu.RLock()
	e, ok := store.entries[key]
	store.mu.RUnlock()
	if !ok {
		return models.Document{}, false, nil
	}
	if !e.expiresAt.IsZero() && store.now().After(e.expiresAt) {
		store.mu.Lock()
		delete(store.entries, key)
		store.mu.Unlock()
		return models.Document{}, false, nil
	}
	return e.doc, true, nil
}

func (store *Store) Put(_ context.Context, key string, doc models.Document, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	e := entry{doc: doc}
	if ttl > 0 {
		e.expiresAt = store.now().Add(ttl)
	}
	store.entries[key] = e
	return nil
}

// Len returns the number of entries, expired ones included.
func (store *Store) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.entries)
}
