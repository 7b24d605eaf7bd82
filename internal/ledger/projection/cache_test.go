package projection

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

func testCache(t *testing.T) (*BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewBalanceCache(client, time.Minute, nil), mr
}

func TestBalanceCacheRoundTrip(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1, 42)
	require.False(t, ok)

	cache.Set(ctx, 1, 42, dec("1234.56"))
	bal, ok := cache.Get(ctx, 1, 42)
	require.True(t, ok)
	require.True(t, bal.Equal(dec("1234.56")))

	cache.Delete(ctx, 1, 42)
	_, ok = cache.Get(ctx, 1, 42)
	require.False(t, ok)
}

func TestBalanceCacheTenantIsolation(t *testing.T) {
	cache, _ := testCache(t)
	ctx := context.Background()

	cache.Set(ctx, 1, 42, dec("100.00"))
	_, ok := cache.Get(ctx, 2, 42)
	require.False(t, ok)
}

func TestBalanceCacheExpiry(t *testing.T) {
	cache, mr := testCache(t)
	ctx := context.Background()

	cache.Set(ctx, 1, 42, dec("100.00"))
	mr.FastForward(2 * time.Minute)
	_, ok := cache.Get(ctx, 1, 42)
	require.False(t, ok)
}

func TestBalanceCacheUnparsableValue(t *testing.T) {
	cache, mr := testCache(t)

	require.NoError(t, mr.Set("ledger:balance:1:42", "not-a-number"))
	_, ok := cache.Get(context.Background(), 1, 42)
	require.False(t, ok)
}

func TestBalanceCacheNilClient(t *testing.T) {
	// A repo wired without Redis degrades to replay on every read.
	var cache *BalanceCache
	ctx := context.Background()
	_, ok := cache.Get(ctx, 1, 1)
	require.False(t, ok)
	cache.Set(ctx, 1, 1, dec("10.00"))
	cache.Delete(ctx, 1, 1)
}

func TestProjectorUsesCache(t *testing.T) {
	cache, _ := testCache(t)
	repo := newStubRepo()
	repo.accounts[1] = accounts.Account{ID: 1, Type: accounts.AccountTypeAsset}
	repo.totals[1] = totals{debit: dec("70.00")}
	p := NewProjector(repo, cache, nil)
	ctx := context.Background()

	bal, err := p.AccountBalance(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.True(t, bal.Equal(dec("70.00")))
	require.Equal(t, 1, repo.sumCalls)

	// Second read is served from Redis; the ledger is not replayed.
	bal, err = p.AccountBalance(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.True(t, bal.Equal(dec("70.00")))
	require.Equal(t, 1, repo.sumCalls)

	// Posting invalidates; the next read replays.
	p.Invalidate(ctx, 1, 1)
	repo.totals[1] = totals{debit: dec("90.00")}
	bal, err = p.AccountBalance(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.True(t, bal.Equal(dec("90.00")))
	require.Equal(t, 2, repo.sumCalls)
}

func TestAsOfBypassesCache(t *testing.T) {
	cache, _ := testCache(t)
	repo := newStubRepo()
	repo.accounts[1] = accounts.Account{ID: 1, Type: accounts.AccountTypeAsset}
	repo.totals[1] = totals{debit: dec("500.00")}
	repo.asOfTotals[1] = totals{debit: dec("200.00")}
	p := NewProjector(repo, cache, nil)
	ctx := context.Background()

	// Warm the cache with the current balance.
	_, err := p.AccountBalance(ctx, 1, 1, nil)
	require.NoError(t, err)

	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	bal, err := p.AccountBalance(ctx, 1, 1, &asOf)
	require.NoError(t, err)
	require.True(t, bal.Equal(dec("200.00")))
}
