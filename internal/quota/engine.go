package quota

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrStorage wraps backend failures so callers can map them uniformly
	ErrStorage = errors.New("quota storage error")
)

// Store applies the daily counters for one (account, day) pair. Consume must
// be atomic: either both the transaction count and the spend total advance,
// or neither does. A denied consume leaves the counters untouched.
type Store interface {
	Consume(ctx context.Context, accountID, day string, amountFen, maxTxPerDay, maxFenPerDay int64, ttl time.Duration) (bool, error)

	// Usage reports the current counters for one (account, day) pair.
	Usage(ctx context.Context, accountID, day string) (txCount, spentFen int64, err error)
}

// Decision is the outcome of one quota check
type Decision struct {
	Allowed bool
	// Config is the limits version the decision was made under
	Config Config
}

// Engine gates relay operations against the current limits. Limits are read
// fresh on every check, so an admin update applies to the next request
// without a restart.
type Engine struct {
	store  Store
	config ConfigStore
	now    func() time.Time
}

// NewEngine creates a quota engine over the given counter store and
// limit configuration source.
func NewEngine(store Store, config ConfigStore) *Engine {
	return &Engine{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// CheckAndConsume evaluates the per-transaction cap and then atomically
// applies the daily caps. The per-transaction gate is stateless: a request
// over that cap is denied without touching the day's counters. amountFen is
// the estimated fiat cost in fen.
func (e *Engine) CheckAndConsume(ctx context.Context, accountID string, amountFen int64) (Decision, error) {
	cfg, err := e.config.Current(ctx)
	if err != nil {
		return Decision{}, err
	}

	allowed, err := e.Consume(ctx, accountID, cfg, amountFen)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: allowed, Config: cfg}, nil
}

// Consume applies the caps from an already-fetched limits version, for
// callers that inspected the configuration before gating.
func (e *Engine) Consume(ctx context.Context, accountID string, cfg Config, amountFen int64) (bool, error) {
	if cfg.MaxFenPerTx > 0 && amountFen > cfg.MaxFenPerTx {
		return false, nil
	}

	now := e.now().UTC()
	return e.store.Consume(ctx, NormalizeAccount(accountID), DayKey(now),
		amountFen, cfg.MaxTxPerDay, cfg.MaxFenPerDay, untilNextDay(now))
}

// Usage reports today's consumed counters for an account
func (e *Engine) Usage(ctx context.Context, accountID string) (txCount, spentFen int64, err error) {
	return e.store.Usage(ctx, NormalizeAccount(accountID), DayKey(e.now().UTC()))
}

// Limits returns the configuration currently in force
func (e *Engine) Limits(ctx context.Context) (Config, error) {
	return e.config.Current(ctx)
}

// DayKey returns the UTC calendar-day bucket for a point in time
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// untilNextDay returns the time remaining until the next UTC midnight, with
// a small margin so a counter never expires inside its own day.
func untilNextDay(now time.Time) time.Duration {
	next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return next.Sub(now) + time.Minute
}

// NormalizeAccount lower-cases an account address so checksummed and plain
// forms share one bucket.
func NormalizeAccount(accountID string) string {
	return strings.ToLower(strings.TrimSpace(accountID))
}
