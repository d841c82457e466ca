package ratelimiter

import (
	"sync"
	"time"
)

// RequestCounter tracks request count and reset time for a client
type RequestCounter struct {
	Count     int
	ResetTime time.Time
}

// RateLimiter implements fixed-window rate limiting with in-memory tracking,
// keyed by client IP. It shields the chain RPC from a single client
// saturating the relay endpoints.
type RateLimiter struct {
	requests map[string]*RequestCounter
	mutex    sync.RWMutex
	limit    int
	window   time.Duration
}

// New creates a new RateLimiter with the specified limit and window
func New(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*RequestCounter),
		limit:    limit,
		window:   window,
	}
}

// IsAllowed checks whether the client may make another request in the
// current window.
func (rl *RateLimiter) IsAllowed(client string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()

	counter, exists := rl.requests[client]
	if !exists {
		rl.requests[client] = &RequestCounter{
			Count:     1,
			ResetTime: now.Add(rl.window),
		}
		return true
	}

	if now.After(counter.ResetTime) {
		counter.Count = 1
		counter.ResetTime = now.Add(rl.window)
		return true
	}

	if counter.Count >= rl.limit {
		return false
	}

	counter.Count++
	return true
}

// GetRequestInfo returns current request count and reset time for a client
func (rl *RateLimiter) GetRequestInfo(client string) (count int, resetTime time.Time) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	counter, exists := rl.requests[client]
	if !exists || time.Now().After(counter.ResetTime) {
		return 0, time.Now().Add(rl.window)
	}

	return counter.Count, counter.ResetTime
}

// Cleanup removes expired entries to prevent memory growth
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	for client, counter := range rl.requests {
		if now.After(counter.ResetTime) {
			delete(rl.requests, client)
		}
	}
}
