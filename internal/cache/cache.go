// Package cache invalidates downstream report caches when a sync run
// changes derived attribution state.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// reportKeyPrefix namespaces the cached report projections.
const reportKeyPrefix = "attrib:report:"

// Invalidator drops cached report projections after derived state
// changes.
type Invalidator interface {
	InvalidateReports(ctx context.Context) error
}

// RedisInvalidator deletes report keys from a shared Redis so every
// serving instance sees fresh attribution after a sync completes.
type RedisInvalidator struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedis creates an invalidator from a Redis URL. Returns nil when the
// URL is empty, meaning no cache layer is configured.
func NewRedis(url string) (*RedisInvalidator, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return &RedisInvalidator{client: client, log: zap.L().Named("cache")}, nil
}

// InvalidateReports deletes every cached report key under the prefix.
func (r *RedisInvalidator) InvalidateReports(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, reportKeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return eris.Wrapf(err, "cache: delete %s", iter.Val())
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "cache: scan report keys")
	}
	r.log.Debug("invalidated report cache", zap.Int("keys", deleted))
	return nil
}

// Close releases the Redis connection.
func (r *RedisInvalidator) Close() error {
	return r.client.Close()
}

// Noop is used when no cache layer is configured.
type Noop struct{}

func (Noop) InvalidateReports(context.Context) error { return nil }

// Recorder counts invalidations, for tests.
type Recorder struct {
	Calls int
}

func (r *Recorder) InvalidateReports(context.Context) error {
	r.Calls++
	return nil
}
