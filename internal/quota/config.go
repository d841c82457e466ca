package quota

import (
	"context"
	"sync"
	"time"
)

// Config is one version of the per-account limits. A zero value for any cap
// means unlimited for that dimension. Amounts are in fen.
type Config struct {
	MaxTxPerDay       int64     `json:"max_tx_per_day" bson:"max_tx_per_day"`
	MaxFenPerTx       int64     `json:"max_fen_per_tx" bson:"max_fen_per_tx"`
	MaxFenPerDay      int64     `json:"max_fen_per_day" bson:"max_fen_per_day"`
	AlertThresholdFen int64     `json:"alert_threshold_fen" bson:"alert_threshold_fen"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}

// ConfigStore holds the current limits and their append-only history.
// SetLimits is last-write-wins: omitted fields arrive as zero (unlimited)
// and are stored as such, never merged with the previous version.
type ConfigStore interface {
	// Current returns the most recently appended configuration, or the
	// static default if none has ever been set.
	Current(ctx context.Context) (Config, error)

	// SetLimits appends a new configuration version.
	SetLimits(ctx context.Context, cfg Config) error
}

// MemoryConfigStore keeps the configuration history in memory
type MemoryConfigStore struct {
	mu       sync.RWMutex
	versions []Config
	fallback Config
}

// NewMemoryConfigStore creates a config store that falls back to the given
// static default until the first SetLimits.
func NewMemoryConfigStore(fallback Config) *MemoryConfigStore {
	return &MemoryConfigStore{fallback: fallback}
}

// Current implements ConfigStore
func (s *MemoryConfigStore) Current(ctx context.Context) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.versions) == 0 {
		return s.fallback, nil
	}
	return s.versions[len(s.versions)-1], nil
}

// SetLimits implements ConfigStore
func (s *MemoryConfigStore) SetLimits(ctx context.Context, cfg Config) error {
	cfg.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions = append(s.versions, cfg)
	return nil
}

// History returns a copy of all appended versions, oldest first
func (s *MemoryConfigStore) History() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Config, len(s.versions))
	copy(out, s.versions)
	return out
}
