package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/phuhao00/conflux-demo/pkg/keymutex"
)

// dayCounters tracks one account's consumption within one UTC day
type dayCounters struct {
	TxCount  int64 `json:"tx_count"`
	SpentFen int64 `json:"spent_fen"`
}

// MemoryStore is an in-memory quota counter store for single-instance
// deployments, optionally snapshotted to a JSON file. Counters for past
// days are reaped in the background rather than expired per key.
type MemoryStore struct {
	days     map[string]dayCounters
	mapMu    sync.RWMutex
	locks    *keymutex.KeyMutex
	filePath string
	fileMu   sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// quotaSnapshot is the on-disk JSON shape
type quotaSnapshot struct {
	Days map[string]dayCounters `json:"days"`
}

// NewMemoryStore creates a memory-backed quota store. When filePath is
// non-empty the store loads an existing snapshot and persists one after each
// consume.
func NewMemoryStore(filePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		days:     make(map[string]dayCounters),
		locks:    keymutex.New(10 * time.Minute),
		filePath: filePath,
		stopCh:   make(chan struct{}),
	}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			var snap quotaSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("parse quota snapshot %s: %w", filePath, err)
			}
			if snap.Days != nil {
				s.days = snap.Days
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read quota snapshot %s: %w", filePath, err)
		}
	}

	go s.reapLoop()
	return s, nil
}

func bucketKey(accountID, day string) string {
	return day + "|" + accountID
}

// Consume implements Store. The per-bucket mutex makes the check and the two
// increments one atomic step for a given (account, day).
func (s *MemoryStore) Consume(ctx context.Context, accountID, day string, amountFen, maxTxPerDay, maxFenPerDay int64, ttl time.Duration) (bool, error) {
	key := bucketKey(accountID, day)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.mapMu.Lock()
	counters := s.days[key]
	if maxTxPerDay > 0 && counters.TxCount+1 > maxTxPerDay {
		s.mapMu.Unlock()
		return false, nil
	}
	if maxFenPerDay > 0 && counters.SpentFen+amountFen > maxFenPerDay {
		s.mapMu.Unlock()
		return false, nil
	}
	counters.TxCount++
	counters.SpentFen += amountFen
	s.days[key] = counters
	s.mapMu.Unlock()

	if err := s.persist(); err != nil {
		// the bucket lock is still held, so undoing the consume cannot
		// interleave with another one
		counters.TxCount--
		counters.SpentFen -= amountFen
		s.mapMu.Lock()
		s.days[key] = counters
		s.mapMu.Unlock()
		return false, err
	}
	return true, nil
}

// Usage implements Store
func (s *MemoryStore) Usage(ctx context.Context, accountID, day string) (int64, int64, error) {
	s.mapMu.RLock()
	defer s.mapMu.RUnlock()

	counters := s.days[bucketKey(accountID, day)]
	return counters.TxCount, counters.SpentFen, nil
}

// persist writes the snapshot file when configured
func (s *MemoryStore) persist() error {
	if s.filePath == "" {
		return nil
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	s.mapMu.RLock()
	snap := quotaSnapshot{Days: make(map[string]dayCounters, len(s.days))}
	for k, v := range s.days {
		snap.Days[k] = v
	}
	s.mapMu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// reapLoop drops counters for days strictly before today. Yesterday's
// buckets linger until the first tick after midnight, which is harmless
// because lookups are always keyed by the current day.
func (s *MemoryStore) reapLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap(DayKey(time.Now()))
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) reap(today string) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	for key := range s.days {
		day, _, found := strings.Cut(key, "|")
		if found && day < today {
			delete(s.days, key)
		}
	}
}

// Stop terminates the reaper and the lock table's cleanup goroutine
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.locks.Stop()
}
