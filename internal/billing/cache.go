package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/billbook-app/billbook/internal/challans"
)

// Cache keeps the per-party unbilled challan list in Redis. It is purely
// an accelerator: every failure degrades to the store, never to an error.
type Cache struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache.
func NewCache(logger *slog.Logger, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{logger: logger, client: client, ttl: ttl}
}

func unbilledKey(businessID, partyID string) string {
	return fmt.Sprintf("billing:unbilled:%s:%s", businessID, partyID)
}

// GetUnbilled returns the cached candidate list, or ok=false on miss.
func (c *Cache) GetUnbilled(ctx context.Context, businessID, partyID string) ([]challans.Challan, bool) {
	payload, err := c.client.Get(ctx, unbilledKey(businessID, partyID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("unbilled cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var list []challans.Challan
	if err := json.Unmarshal(payload, &list); err != nil {
		c.logger.Warn("unbilled cache decode failed", slog.Any("error", err))
		return nil, false
	}
	return list, true
}

// SetUnbilled stores the candidate list with a short TTL.
func (c *Cache) SetUnbilled(ctx context.Context, businessID, partyID string, list []challans.Challan) {
	payload, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, unbilledKey(businessID, partyID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("unbilled cache write failed", slog.Any("error", err))
	}
}

// InvalidateUnbilled drops the cached list after any mutation that can
// change a party's candidate pool.
func (c *Cache) InvalidateUnbilled(ctx context.Context, businessID, partyID string) {
	if err := c.client.Del(ctx, unbilledKey(businessID, partyID)).Err(); err != nil {
		c.logger.Warn("unbilled cache invalidation failed", slog.Any("error", err))
	}
}
