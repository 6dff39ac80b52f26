package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by caller, here the client IP
// of an upload request.
type RateLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	windowStart := now.Add(-r.window)
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(windowStart)
		r.lastSweep = now
	}
	recent := r.prune(key, windowStart)
	if len(recent) >= r.limit {
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// Len reports how many keys are tracked.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}

// sweep drops every key without a hit inside the window. It runs at most once
// per window, so the map holds only keys seen in the last two windows.
func (r *RateLimiter) sweep(windowStart time.Time) {
	for key := range r.hits {
		r.prune(key, windowStart)
	}
}

// prune drops hits of key older than windowStart and forgets the key once it
// has none left.
func (r *RateLimiter) prune(key string, windowStart time.Time) []time.Time {
	slice := r.hits[key]
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	slice = slice[:idx]
	if len(slice) == 0 {
		delete(r.hits, key)
		return nil
	}
	r.hits[key] = slice
	return slice
}
