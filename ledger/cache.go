package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BalanceCache stores computed balances keyed by group and history version.
// Every write to a group bumps its version, so stale entries are never read.
// The service stays correct without a cache; it is purely an optimization.
type BalanceCache interface {
	Version(ctx context.Context, groupID uuid.UUID) (int64, error)
	Bump(ctx context.Context, groupID uuid.UUID) error
	Get(ctx context.Context, groupID uuid.UUID, version int64) ([]BalanceEntry, bool, error)
	Set(ctx context.Context, groupID uuid.UUID, version int64, entries []BalanceEntry) error
}

const defaultBalanceCacheTTL = 5 * time.Minute

type RedisBalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisBalanceCache(client redis.UniversalClient, ttl time.Duration) *RedisBalanceCache {
	if ttl <= 0 {
		ttl = defaultBalanceCacheTTL
	}
	return &RedisBalanceCache{client: client, ttl: ttl}
}

func versionKey(groupID uuid.UUID) string {
	return "ledger:group:" + groupID.String() + ":version"
}

func balancesKey(groupID uuid.UUID, version int64) string {
	return "ledger:group:" + groupID.String() + ":balances:" + strconv.FormatInt(version, 10)
}

func (c *RedisBalanceCache) Version(ctx context.Context, groupID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(groupID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading balance version: %w", err)
	}
	return v, nil
}

func (c *RedisBalanceCache) Bump(ctx context.Context, groupID uuid.UUID) error {
	if err := c.client.Incr(ctx, versionKey(groupID)).Err(); err != nil {
		return fmt.Errorf("bumping balance version: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Get(ctx context.Context, groupID uuid.UUID, version int64) ([]BalanceEntry, bool, error) {
	raw, err := c.client.Get(ctx, balancesKey(groupID, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached balances: %w", err)
	}

	var entries []BalanceEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decoding cached balances: %w", err)
	}
	return entries, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, groupID uuid.UUID, version int64, entries []BalanceEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, balancesKey(groupID, version), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching balances: %w", err)
	}
	return nil
}
