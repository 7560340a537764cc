package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/gaze/internal/config"
	"github.com/gosight/gosight/gaze/internal/storage"
)

const keyPrefix = "attention:"

// AttentionStore persists flushed attention summaries
type AttentionStore interface {
	UpsertAttention(ctx context.Context, row storage.AttentionRow) error
}

// Aggregator aggregates per-target attention in Redis
type Aggregator struct {
	store AttentionStore
	redis *redis.Client
	ttl   time.Duration
}

// NewAggregator creates a new attention aggregator
func NewAggregator(store AttentionStore, redisCfg config.RedisConfig) *Aggregator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	return &Aggregator{
		store: store,
		redis: rdb,
		ttl:   time.Hour,
	}
}

// Client exposes the Redis connection for other readers such as the
// settings loader
func (a *Aggregator) Client() *redis.Client {
	return a.redis
}

// Update folds one interaction into the target's running totals
func (a *Aggregator) Update(ctx context.Context, row storage.InteractionRow) error {
	if a.redis == nil || row.TargetID == "" {
		return nil
	}

	key := keyPrefix + row.TargetID

	// Use Redis pipeline for efficiency
	pipe := a.redis.Pipeline()

	pipe.HSet(ctx, key, "last_seen", row.Timestamp.UnixMilli())
	pipe.HSetNX(ctx, key, "first_seen", row.Timestamp.UnixMilli())

	switch row.State {
	case "enter":
		pipe.HIncrBy(ctx, key, "enters", 1)
	case "fixation":
		pipe.HIncrBy(ctx, key, "fixations", 1)
	case "dwell":
		pipe.HIncrBy(ctx, key, "dwells", 1)
	case "exit":
		pipe.HIncrBy(ctx, key, "exits", 1)
		// attention is credited once, when the target is left
		pipe.HIncrBy(ctx, key, "attention_ms", int64(row.ElapsedMs))
	}

	pipe.Expire(ctx, key, a.ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("target_id", row.TargetID).Msg("Failed to update attention in Redis")
	}
	return err
}

// FlushTarget moves one target's totals to ClickHouse. The hash is read
// and deleted in one transaction so updates arriving meanwhile start a new
// delta; the table sums deltas per target.
func (a *Aggregator) FlushTarget(ctx context.Context, targetID string) error {
	if a.redis == nil || a.store == nil {
		return nil
	}

	key := keyPrefix + targetID

	var get *redis.MapStringStringCmd
	if _, err := a.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	}); err != nil {
		return err
	}

	data := get.Val()
	if len(data) == 0 {
		return nil
	}

	if err := a.store.UpsertAttention(ctx, parseAttentionData(targetID, data)); err != nil {
		a.restore(ctx, key, data)
		return err
	}

	return nil
}

// restore folds a delta that could not be stored back into the hash
func (a *Aggregator) restore(ctx context.Context, key string, data map[string]string) {
	pipe := a.redis.Pipeline()
	for _, field := range counterFields {
		if v, ok := data[field]; ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				pipe.HIncrBy(ctx, key, field, n)
			}
		}
	}
	for _, field := range []string{"first_seen", "last_seen"} {
		if v, ok := data[field]; ok {
			pipe.HSetNX(ctx, key, field, v)
		}
	}
	pipe.Expire(ctx, key, a.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to restore attention delta")
	}
}

var counterFields = []string{"enters", "fixations", "dwells", "exits", "attention_ms"}

func parseAttentionData(targetID string, data map[string]string) storage.AttentionRow {
	row := storage.AttentionRow{
		TargetID: targetID,
	}

	row.Enters = parseUint32(data["enters"])
	row.Fixations = parseUint32(data["fixations"])
	row.Dwells = parseUint32(data["dwells"])
	row.Exits = parseUint32(data["exits"])

	if v, ok := data["attention_ms"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			row.AttentionMs = n
		}
	}
	if v, ok := data["first_seen"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			row.FirstSeen = time.UnixMilli(ms)
		}
	}
	if v, ok := data["last_seen"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			row.LastSeen = time.UnixMilli(ms)
		}
	}

	return row
}

func parseUint32(v string) uint32 {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// FlushAll flushes every pending target to ClickHouse
func (a *Aggregator) FlushAll(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}

	keys, err := a.redis.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return err
	}

	for _, key := range keys {
		targetID := strings.TrimPrefix(key, keyPrefix)
		if err := a.FlushTarget(ctx, targetID); err != nil {
			log.Error().Err(err).Str("target_id", targetID).Msg("Failed to flush attention")
		}
	}

	return nil
}

// Close closes the aggregator
func (a *Aggregator) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
