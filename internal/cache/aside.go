package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/observability"

	"github.com/redis/go-redis/v9"
)

// UnreadCountTTL bounds how stale an unread counter can be if an invalidation is lost.
var UnreadCountTTL = 30 * time.Second

// UnreadCountKey is the cache key holding a user's unread notification count.
func UnreadCountKey(userID uint) string {
	return fmt.Sprintf("notifications:unread:%d", userID)
}

// generationTTL outlives any single load so a generation never resets under a reader.
const generationTTL = 24 * time.Hour

var errStaleLoad = errors.New("cache invalidated during load")

func generationKey(key string) string {
	return key + ":gen"
}

// Aside loads key into dest, falling back to fn and populating the cache on a miss.
// Without a Redis client it just calls fn. Cache errors never fail the read.
//
// A value loaded while the key was invalidated is returned but not cached: every
// Invalidate bumps the key's generation and the write only happens, under WATCH,
// if the generation read before the load is still current.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fn func() error) error {
	rdb := GetClient()
	if rdb == nil {
		return fn()
	}

	raw, err := rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			observability.CacheLookups.WithLabelValues("hit").Inc()
			return nil
		}
		middleware.Logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	observability.CacheLookups.WithLabelValues("miss").Inc()
	gen, genErr := generation(ctx, rdb, key)
	if err := fn(); err != nil {
		return err
	}
	if genErr != nil {
		middleware.Logger.WarnContext(ctx, "cache generation read failed", slog.String("key", key), slog.String("error", genErr.Error()))
		return nil
	}

	payload, err := json.Marshal(dest)
	if err != nil {
		return nil
	}

	genKey := generationKey(key)
	err = rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleLoad
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleLoad), errors.Is(err, redis.TxFailedErr):
		middleware.Logger.DebugContext(ctx, "skipping cache write for invalidated key", slog.String("key", key))
	default:
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

func generation(ctx context.Context, c redis.StringCmdable, key string) (int64, error) {
	gen, err := c.Get(ctx, generationKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate deletes keys and bumps their generations so loads already in flight
// do not write back. Failures are logged; the TTL bounds staleness.
func Invalidate(ctx context.Context, keys ...string) {
	rdb := GetClient()
	if rdb == nil || len(keys) == 0 {
		return
	}
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			genKey := generationKey(key)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateUnreadCounts drops the unread counters of every listed user.
func InvalidateUnreadCounts(ctx context.Context, userIDs ...uint) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, UnreadCountKey(id))
	}
	Invalidate(ctx, keys...)
}
