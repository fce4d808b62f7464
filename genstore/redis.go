package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares scope generations across processes and survives restarts.
// Scope names are used verbatim as Redis keys; they already carry the
// "gen:<namespace>:" prefix.
// Optionally, a TTL can be applied to generation keys to prevent unbounded growth.
// If a generation key expires, readers observe gen=0 and guarded entries fail
// their stamp check and self-heal.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ttl time.Duration // optional TTL for generation keys; 0 disables expiry
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore creates a Redis-backed generation store without TTL.
func NewRedisGenStore(client redis.UniversalClient) *RedisGenStore {
	return &RedisGenStore{rdb: client}
}

// NewRedisGenStoreWithTTL creates a Redis-backed generation store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisGenStoreWithTTL(client redis.UniversalClient, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ttl: ttl}
}

// Snapshot returns the current generation.
// Missing keys are treated as generation 0.
func (s *RedisGenStore) Snapshot(ctx context.Context, scope string) (uint64, error) {
	res, err := s.rdb.Get(ctx, scope).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(scope, res)
}

// SnapshotMany reads all scopes with a single MGET. Missing keys map to 0.
// In cluster mode the scopes of one guard set can live on different slots;
// go-redis splits the MGET per node for ClusterClient.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, scopes []string) (map[string]uint64, error) {
	if len(scopes) == 0 {
		return map[string]uint64{}, nil
	}
	vals, err := s.rdb.MGet(ctx, scopes...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(scopes))
	for i, v := range vals {
		var (
			g   uint64
			err error
		)
		switch vv := v.(type) {
		case nil:
		case string:
			g, err = parseGen(scopes[i], vv)
		case []byte:
			g, err = parseGen(scopes[i], string(vv))
		default:
			g, err = parseGen(scopes[i], fmt.Sprint(vv))
		}
		if err != nil {
			return nil, err
		}
		out[scopes[i]] = g
	}
	return out, nil
}

// Bump atomically increments the generation and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip and the
// INCR result is captured from the pipeline (no extra INCR).
func (s *RedisGenStore) Bump(ctx context.Context, scope string) (uint64, error) {
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, scope).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, scope)
		p.Expire(ctx, scope, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is not applicable for RedisGenStore (Redis handles expiry if TTL is set).
func (s *RedisGenStore) Cleanup(time.Duration) {}

// Close closes the underlying Redis client.
func (s *RedisGenStore) Close(context.Context) error { return s.rdb.Close() }

func parseGen(scope, raw string) (uint64, error) {
	u, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse at %s: %w", scope, err)
	}
	return u, nil
}
