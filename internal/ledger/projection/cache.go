package projection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BalanceCache keeps derived balances in Redis with a TTL. It is never
// authoritative; a miss or a stale delete simply forces a replay.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewBalanceCache constructs the cache.
func NewBalanceCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *BalanceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BalanceCache{client: client, ttl: ttl, logger: logger}
}

func balanceKey(tenantID, accountID int64) string {
	return fmt.Sprintf("ledger:balance:%d:%d", tenantID, accountID)
}

// Get returns the cached balance, if present.
func (c *BalanceCache) Get(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, bool) {
	if c == nil || c.client == nil {
		return decimal.Zero, false
	}
	raw, err := c.client.Get(ctx, balanceKey(tenantID, accountID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("balance cache holds unparsable value", slog.String("value", raw))
		}
		return decimal.Zero, false
	}
	return bal, true
}

// Set stores a balance. Failures are logged and ignored.
func (c *BalanceCache) Set(ctx context.Context, tenantID, accountID int64, bal decimal.Decimal) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, balanceKey(tenantID, accountID), bal.String(), c.ttl).Err(); err != nil {
		if c.logger != nil {
			c.logger.Warn("balance cache set", slog.Any("error", err))
		}
	}
}

// Delete drops a cached balance.
func (c *BalanceCache) Delete(ctx context.Context, tenantID, accountID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, balanceKey(tenantID, accountID)).Err(); err != nil {
		if c.logger != nil {
			c.logger.Warn("balance cache delete", slog.Any("error", err))
		}
	}
}
