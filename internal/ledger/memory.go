package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/phuhao00/conflux-demo/pkg/keymutex"
)

// MemoryStore is an in-memory balance store for single-instance deployments,
// optionally snapshotted to a JSON file after every mutation. Per-account
// linearizability comes from a per-account mutex; the map itself is guarded
// separately so accounts don't block each other.
type MemoryStore struct {
	balances map[string]int64
	mapMu    sync.RWMutex
	locks    *keymutex.KeyMutex
	filePath string
	fileMu   sync.Mutex
}

// ledgerSnapshot is the on-disk JSON shape
type ledgerSnapshot struct {
	Balances map[string]int64 `json:"balances"`
}

// NewMemoryStore creates a memory-backed ledger. When filePath is non-empty
// the store loads an existing snapshot and persists one after each mutation.
func NewMemoryStore(filePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		balances: make(map[string]int64),
		locks:    keymutex.New(10 * time.Minute),
		filePath: filePath,
	}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			var snap ledgerSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("parse ledger snapshot %s: %w", filePath, err)
			}
			if snap.Balances != nil {
				s.balances = snap.Balances
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read ledger snapshot %s: %w", filePath, err)
		}
	}

	return s, nil
}

// Credit implements Store
func (s *MemoryStore) Credit(ctx context.Context, accountID string, amountFen int64) (int64, error) {
	if amountFen <= 0 {
		return 0, ErrInvalidAmount
	}
	accountID = NormalizeAccount(accountID)

	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)

	s.mapMu.Lock()
	newBalance := s.balances[accountID] + amountFen
	s.balances[accountID] = newBalance
	s.mapMu.Unlock()

	if err := s.persist(); err != nil {
		// the account lock is still held, so undoing the credit cannot
		// interleave with another mutation
		s.mapMu.Lock()
		s.balances[accountID] = newBalance - amountFen
		s.mapMu.Unlock()
		return 0, err
	}
	return newBalance, nil
}

// Balance implements Store
func (s *MemoryStore) Balance(ctx context.Context, accountID string) (int64, error) {
	accountID = NormalizeAccount(accountID)

	s.mapMu.RLock()
	defer s.mapMu.RUnlock()
	return s.balances[accountID], nil
}

// ReserveAndCharge implements Store
func (s *MemoryStore) ReserveAndCharge(ctx context.Context, accountID string, amountFen, minReserveFen int64) (bool, error) {
	if amountFen <= 0 {
		return false, ErrInvalidAmount
	}
	if minReserveFen < 0 {
		minReserveFen = 0
	}
	accountID = NormalizeAccount(accountID)

	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)

	s.mapMu.Lock()
	current := s.balances[accountID]
	if current < amountFen+minReserveFen {
		s.mapMu.Unlock()
		return false, nil
	}
	s.balances[accountID] = current - amountFen
	s.mapMu.Unlock()

	if err := s.persist(); err != nil {
		// a charge that cannot be snapshotted is reported as failed, so
		// the debit must not stay applied
		s.mapMu.Lock()
		s.balances[accountID] = current
		s.mapMu.Unlock()
		return false, err
	}
	return true, nil
}

// persist writes the snapshot file when configured. Serialized so
// concurrent mutations don't interleave partial writes.
func (s *MemoryStore) persist() error {
	if s.filePath == "" {
		return nil
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	s.mapMu.RLock()
	snap := ledgerSnapshot{Balances: make(map[string]int64, len(s.balances))}
	for k, v := range s.balances {
		snap.Balances[k] = v
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

// Stop releases the per-account lock table's cleanup goroutine
func (s *MemoryStore) Stop() {
	s.locks.Stop()
}
