package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lakestack/hometrace/internal/calendar"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is an in-memory map with per-entry expiry
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
	now   func() time.Time
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]entry[V]), now: time.Now}
}

// Get returns a value that exists and has not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value. A ttl of zero never expires.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Sweep drops expired entries and returns how many went
func (c *TTLCache[K, V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Memory is the single-process Store
type Memory struct {
	cache *TTLCache[string, calendar.Snapshot]
}

func NewMemory() *Memory {
	return &Memory{cache: NewTTLCache[string, calendar.Snapshot]()}
}

func (m *Memory) Get(_ context.Context, userID uuid.UUID) (*calendar.Snapshot, error) {
	snap, ok := m.cache.Get(key(userID))
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) Put(_ context.Context, userID uuid.UUID, snap calendar.Snapshot, ttl time.Duration) error {
	m.cache.Set(key(userID), snap, ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, userID uuid.UUID) error {
	m.cache.Delete(key(userID))
	return nil
}

// Sweep drops expired snapshots
func (m *Memory) Sweep() int { return m.cache.Sweep() }
