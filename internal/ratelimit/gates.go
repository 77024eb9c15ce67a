// Package ratelimit holds the token-bucket gates behind the per-category
// API limit and the per-target snapshot throttle.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// gates lazily creates one token bucket per key, all with the same shape.
type gates struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	byKey map[string]*rate.Limiter
}

func newGates(limit rate.Limit, burst int) *gates {
	return &gates{
		limit: limit,
		burst: max(1, burst),
		byKey: make(map[string]*rate.Limiter),
	}
}

func (g *gates) get(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	gate, ok := g.byKey[key]
	if !ok {
		gate = rate.NewLimiter(g.limit, g.burst)
		g.byKey[key] = gate
	}
	return gate
}

func (g *gates) forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byKey, key)
}

func (g *gates) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byKey)
}
