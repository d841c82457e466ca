package keymutex

import (
	"sync"
	"sync/atomic"
	"time"
)

// KeyMutex provides per-key mutex locking so concurrent requests against the
// same account serialize without a global lock. Used by the in-memory ledger
// and quota stores to give per-account linearizability.
type KeyMutex struct {
	mutexes    map[string]*mutexEntry
	mapMutex   sync.RWMutex
	cleanupTTL time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// mutexEntry holds a mutex and its last access time for cleanup.
// lastAccess is unix nanos and must be read and written atomically, since
// Get touches it while holding only the map's read lock.
type mutexEntry struct {
	mutex      *sync.Mutex
	lastAccess atomic.Int64
}

func (e *mutexEntry) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// New creates a new KeyMutex with automatic cleanup of idle entries
func New(cleanupTTL time.Duration) *KeyMutex {
	km := &KeyMutex{
		mutexes:    make(map[string]*mutexEntry),
		cleanupTTL: cleanupTTL,
		stopCh:     make(chan struct{}),
	}

	go km.cleanup()

	return km
}

// Get returns the mutex for key, creating one if it doesn't exist
func (km *KeyMutex) Get(key string) *sync.Mutex {
	km.mapMutex.RLock()
	entry, exists := km.mutexes[key]
	if exists {
		entry.touch()
		km.mapMutex.RUnlock()
		return entry.mutex
	}
	km.mapMutex.RUnlock()

	km.mapMutex.Lock()
	defer km.mapMutex.Unlock()

	// Double-check in case another goroutine created it
	if entry, exists := km.mutexes[key]; exists {
		entry.touch()
		return entry.mutex
	}

	newEntry := &mutexEntry{mutex: &sync.Mutex{}}
	newEntry.touch()
	km.mutexes[key] = newEntry

	return newEntry.mutex
}

// Lock locks the mutex for key
func (km *KeyMutex) Lock(key string) {
	km.Get(key).Lock()
}

// Unlock unlocks the mutex for key
func (km *KeyMutex) Unlock(key string) {
	km.mapMutex.RLock()
	entry, exists := km.mutexes[key]
	km.mapMutex.RUnlock()

	if exists {
		entry.mutex.Unlock()
	}
}

// Size returns the number of mutexes currently tracked
func (km *KeyMutex) Size() int {
	km.mapMutex.RLock()
	defer km.mapMutex.RUnlock()
	return len(km.mutexes)
}

// cleanup runs periodically to drop idle mutexes
func (km *KeyMutex) cleanup() {
	ticker := time.NewTicker(km.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			km.removeIdle()
		case <-km.stopCh:
			return
		}
	}
}

// removeIdle removes mutexes that haven't been accessed recently and are
// not currently held.
func (km *KeyMutex) removeIdle() {
	km.mapMutex.Lock()
	defer km.mapMutex.Unlock()

	now := time.Now()
	for key, entry := range km.mutexes {
		if now.Sub(time.Unix(0, entry.lastAccess.Load())) > km.cleanupTTL {
			if entry.mutex.TryLock() {
				entry.mutex.Unlock()
				delete(km.mutexes, key)
			}
		}
	}
}

// Stop stops the cleanup goroutine
func (km *KeyMutex) Stop() {
	km.stopOnce.Do(func() {
		close(km.stopCh)
	})
}
