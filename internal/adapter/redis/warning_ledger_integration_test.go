package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedkulp/n3rdbot/internal/domain"
)

func TestWarningLedger_BumpIncrements(t *testing.T) {
	client := setupTestClient(t)
	ledger := NewWarningLedger(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := ledger.Bump(ctx, "1001", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	current, err := ledger.Current(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)
}

func TestWarningLedger_BumpRefreshesWindow(t *testing.T) {
	client := setupTestClient(t)
	ledger := NewWarningLedger(client)
	ctx := context.Background()

	_, err := ledger.Bump(ctx, "1002", 5*time.Second)
	require.NoError(t, err)
	_, err = ledger.Bump(ctx, "1002", time.Minute)
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, "warning_threshold:1002").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestWarningLedger_CountRestartsAfterWindow(t *testing.T) {
	client := setupTestClient(t)
	ledger := NewWarningLedger(client)
	ctx := context.Background()

	_, err := ledger.Bump(ctx, "1003", time.Second)
	require.NoError(t, err)
	_, err = ledger.Bump(ctx, "1003", time.Second)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := ledger.Current(ctx, "1003")
		return err == nil && n == 0
	}, 5*time.Second, 100*time.Millisecond)

	got, err := ledger.Bump(ctx, "1003", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestWarningLedger_ConcurrentBumpsAreDistinct(t *testing.T) {
	client := setupTestClient(t)
	ledger := NewWarningLedger(client)
	ctx := context.Background()

	const n = 50
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			v, err := ledger.Bump(ctx, "1004", time.Minute)
			assert.NoError(t, err)
			results <- v
		})
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		assert.False(t, seen[v], "value %d observed twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestWarningLedger_Reset(t *testing.T) {
	client := setupTestClient(t)
	ledger := NewWarningLedger(client)
	ctx := context.Background()

	_, err := ledger.Bump(ctx, "1005", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ledger.Reset(ctx, "1005"))

	n, err := ledger.Current(ctx, "1005")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWarningLedger_UnreachableStore(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	ledger := NewWarningLedger(client)

	_, err := ledger.Bump(context.Background(), "1006", time.Minute)
	assert.ErrorIs(t, err, domain.ErrCounterUnavailable)
}
