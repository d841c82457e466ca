package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *MemoryStore, *MemoryConfigStore) {
	t.Helper()

	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(store.Stop)

	configStore := NewMemoryConfigStore(cfg)
	return NewEngine(store, configStore), store, configStore
}

func TestEngine_CheckAndConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("allows when all caps unlimited", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, Config{})

		decision, err := engine.CheckAndConsume(ctx, "0xAbC", 1_000_000)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("denies over per-transaction cap without consuming", func(t *testing.T) {
		engine, store, _ := newTestEngine(t, Config{MaxFenPerTx: 500})

		decision, err := engine.CheckAndConsume(ctx, "0xabc", 501)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)

		txCount, spentFen, err := store.Usage(ctx, "0xabc", DayKey(time.Now()))
		require.NoError(t, err)
		assert.Zero(t, txCount, "denied request must not advance the transaction count")
		assert.Zero(t, spentFen)
	})

	t.Run("allows exactly at per-transaction cap", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, Config{MaxFenPerTx: 500})

		decision, err := engine.CheckAndConsume(ctx, "0xabc", 500)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("denies transaction N+1 of the day", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, Config{MaxTxPerDay: 3})

		for i := 0; i < 3; i++ {
			decision, err := engine.CheckAndConsume(ctx, "0xabc", 10)
			require.NoError(t, err)
			require.True(t, decision.Allowed, "transaction %d should pass", i+1)
		}

		decision, err := engine.CheckAndConsume(ctx, "0xabc", 10)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("denies when day spend would exceed the cap", func(t *testing.T) {
		engine, store, _ := newTestEngine(t, Config{MaxFenPerDay: 100})

		decision, err := engine.CheckAndConsume(ctx, "0xabc", 60)
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = engine.CheckAndConsume(ctx, "0xabc", 41)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)

		// denial left the day total where it was, so a smaller charge fits
		decision, err = engine.CheckAndConsume(ctx, "0xabc", 40)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)

		txCount, spentFen, err := store.Usage(ctx, "0xabc", DayKey(time.Now()))
		require.NoError(t, err)
		assert.Equal(t, int64(2), txCount)
		assert.Equal(t, int64(100), spentFen)
	})

	t.Run("accounts are independent", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, Config{MaxTxPerDay: 1})

		decision, err := engine.CheckAndConsume(ctx, "0xaaa", 10)
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = engine.CheckAndConsume(ctx, "0xbbb", 10)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("address case shares one bucket", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, Config{MaxTxPerDay: 1})

		decision, err := engine.CheckAndConsume(ctx, "0xAbCdEf", 10)
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = engine.CheckAndConsume(ctx, "0xabcdef", 10)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})

	t.Run("limit update applies to the next request", func(t *testing.T) {
		engine, _, configStore := newTestEngine(t, Config{MaxFenPerTx: 100})

		decision, err := engine.CheckAndConsume(ctx, "0xabc", 150)
		require.NoError(t, err)
		require.False(t, decision.Allowed)

		require.NoError(t, configStore.SetLimits(ctx, Config{MaxFenPerTx: 200}))

		decision, err = engine.CheckAndConsume(ctx, "0xabc", 150)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("consume gates on the provided limits version", func(t *testing.T) {
		engine, _, configStore := newTestEngine(t, Config{MaxFenPerTx: 100})

		cfg, err := engine.Limits(ctx)
		require.NoError(t, err)
		require.NoError(t, configStore.SetLimits(ctx, Config{MaxFenPerTx: 1000}))

		allowed, err := engine.Consume(ctx, "0xabc", cfg, 150)
		require.NoError(t, err)
		assert.False(t, allowed, "a caller-pinned version gates the request, not the newest one")
	})

	t.Run("set limits is last write wins", func(t *testing.T) {
		configStore := NewMemoryConfigStore(Config{MaxTxPerDay: 5, MaxFenPerDay: 1000})

		// the new version omits the day-spend cap, which means unlimited
		require.NoError(t, configStore.SetLimits(context.Background(), Config{MaxTxPerDay: 10}))

		cfg, err := configStore.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(10), cfg.MaxTxPerDay)
		assert.Zero(t, cfg.MaxFenPerDay, "omitted cap must not be merged from the previous version")
	})
}

func TestEngine_DayRollover(t *testing.T) {
	ctx := context.Background()

	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(store.Stop)

	engine := NewEngine(store, NewMemoryConfigStore(Config{MaxTxPerDay: 1}))

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	engine.now = func() time.Time { return day1 }

	decision, err := engine.CheckAndConsume(ctx, "0xabc", 10)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = engine.CheckAndConsume(ctx, "0xabc", 10)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// two minutes later it is a new UTC day with fresh counters
	engine.now = func() time.Time { return day1.Add(2 * time.Minute) }

	decision, err = engine.CheckAndConsume(ctx, "0xabc", 10)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryStore_Reap(t *testing.T) {
	ctx := context.Background()

	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(store.Stop)

	allowed, err := store.Consume(ctx, "0xabc", "2026-02-27", 10, 0, 0, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = store.Consume(ctx, "0xabc", "2026-02-28", 20, 0, 0, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)

	store.reap("2026-02-28")

	txCount, _, err := store.Usage(ctx, "0xabc", "2026-02-27")
	require.NoError(t, err)
	assert.Zero(t, txCount)

	txCount, spentFen, err := store.Usage(ctx, "0xabc", "2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, int64(1), txCount)
	assert.Equal(t, int64(20), spentFen)
}

func TestMemoryStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/quota.json"

	store, err := NewMemoryStore(path)
	require.NoError(t, err)

	allowed, err := store.Consume(ctx, "0xabc", "2026-03-01", 42, 0, 0, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)
	store.Stop()

	reloaded, err := NewMemoryStore(path)
	require.NoError(t, err)
	t.Cleanup(reloaded.Stop)

	txCount, spentFen, err := reloaded.Usage(ctx, "0xabc", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), txCount)
	assert.Equal(t, int64(42), spentFen)
}

func TestMemoryStore_SnapshotFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	store, err := NewMemoryStore("")
	require.NoError(t, err)
	t.Cleanup(store.Stop)

	allowed, err := store.Consume(ctx, "0xabc", "2026-03-01", 10, 0, 0, time.Hour)
	require.NoError(t, err)
	require.True(t, allowed)

	// point the snapshot at a directory that does not exist so every
	// persist fails from here on
	store.filePath = t.TempDir() + "/missing/quota.json"

	allowed, err = store.Consume(ctx, "0xabc", "2026-03-01", 5, 0, 0, time.Hour)
	assert.ErrorIs(t, err, ErrStorage)
	assert.False(t, allowed)

	txCount, spentFen, err := store.Usage(ctx, "0xabc", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), txCount, "a failed consume must not advance the counters")
	assert.Equal(t, int64(10), spentFen)
}

func TestDayKey(t *testing.T) {
	// a local-time instant must bucket by its UTC day
	loc := time.FixedZone("UTC+8", 8*3600)
	localMorning := time.Date(2026, 3, 2, 6, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-01", DayKey(localMorning))
}
