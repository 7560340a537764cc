package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisKey is the hash holding settings overrides
const DefaultRedisKey = "gaze:settings"

// HashReader is the subset of the redis client used for loading settings
type HashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// LoadRedis reads every field of the settings hash into a bag.
// A missing hash yields an empty bag.
func LoadRedis(ctx context.Context, rdb HashReader, key string) (Bag, error) {
	if key == "" {
		key = DefaultRedisKey
	}

	data, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load settings hash %q: %w", key, err)
	}

	bag := make(Bag, len(data))
	for k, v := range data {
		bag[k] = v
	}

	log.Debug().Str("key", key).Int("count", len(bag)).Msg("Loaded settings from Redis")
	return bag, nil
}
