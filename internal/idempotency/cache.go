package idempotency

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"veritas/pkg/domain"
)

const (
	cacheKeyPrefix  = "veritas:idem:"
	defaultCacheTTL = 24 * time.Hour
)

// cachedRecord is the Redis representation of a terminal record. Only
// terminal records are cached; in-flight admissions must always hit the
// store so the uniqueness constraint stays the single arbiter.
type cachedRecord struct {
	UnitID      string    `json:"unit_id"`
	Outcome     string    `json:"outcome"`
	Snapshot    []byte    `json:"snapshot"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Cache is a best-effort read-through cache of terminal idempotency records
// so hot webhook replays answer without touching PostgreSQL. Every cache
// failure degrades to the store path; correctness never depends on Redis.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewCache wraps a Redis client. A nil client yields a disabled cache.
func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{client: client, logger: logger, ttl: defaultCacheTTL}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Lookup returns a cached terminal record, or nil on miss or error.
func (c *Cache) Lookup(ctx context.Context, externalEventID domain.ExternalEventID) *Record {
	if !c.enabled() {
		return nil
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+externalEventID.String()).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.WarnContext(ctx, "idempotency cache lookup failed", "error", err)
		}
		return nil
	}
	var cached cachedRecord
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	unitID, err := domain.ParseUnitID(cached.UnitID)
	if err != nil {
		return nil
	}
	return &Record{
		ExternalEventID: externalEventID,
		UnitID:          unitID,
		Outcome:         cached.Outcome,
		ResultSnapshot:  cached.Snapshot,
		CreatedAt:       cached.CreatedAt,
		CompletedAt:     cached.CompletedAt,
	}
}

// Store caches a terminal record, best-effort.
func (c *Cache) Store(ctx context.Context, record Record) {
	if !c.enabled() || !record.Terminal() {
		return
	}
	raw, err := json.Marshal(cachedRecord{
		UnitID:      record.UnitID.String(),
		Outcome:     record.Outcome,
		Snapshot:    record.ResultSnapshot,
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
	})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+record.ExternalEventID.String(), raw, c.ttl).Err(); err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "idempotency cache store failed", "error", err)
		}
	}
}
