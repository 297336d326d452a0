package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Store. It is the default driver and the test
// double for anything that takes a Store.
type Memory struct {
	c *gocache.Cache
}

func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *Memory) Set(_ context.Context, key, payload string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, payload, ttl)
}
