package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the only component with direct access to the backing
// store on the message ingestion path. Besides the JSON object layer of
// the Storage interface it exposes the list, sorted-set, pub/sub and
// optimistic-transaction primitives the message DAO and the ingestion
// worker are built on.
type RedisStorage struct {
	rdb redis.UniversalClient
}

func NewRedisStorage(db redis.UniversalClient) *RedisStorage {
	return &RedisStorage{
		rdb: db,
	}
}

func (s *RedisStorage) Conn() redis.UniversalClient {
	return s.rdb
}

func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, redis.TxFailedErr):
		return ErrTxAborted
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTxAborted), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *RedisStorage) Get(ctx context.Context, key string, val any) error {
	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return wrapErr(err)
	}
	return json.Unmarshal([]byte(raw), val)
}

func (s *RedisStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	raw, err := marshal(val)
	if err != nil {
		return err
	}
	return wrapErr(s.rdb.Set(ctx, key, raw, expiresIn).Err())
}

func (s *RedisStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, 0)
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return wrapErr(err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	return wrapErr(s.rdb.ExpireAt(ctx, key, expiresAt).Err())
}

// TTL returns the remaining lifetime of a key, ErrNotFound if the key
// does not exist and 0 if the key has no expiry.
func (s *RedisStorage) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	// go-redis passes the -2 (missing key) and -1 (no expiry) replies
	// through as raw durations.
	if d == time.Duration(-2) {
		return 0, ErrNotFound
	}
	if d == time.Duration(-1) {
		return 0, nil
	}
	return d, nil
}

// - plain string keys

func (s *RedisStorage) GetString(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	return val, wrapErr(err)
}

func (s *RedisStorage) SetString(ctx context.Context, key, val string, expiresIn time.Duration) error {
	return wrapErr(s.rdb.Set(ctx, key, val, expiresIn).Err())
}

// - lists

func (s *RedisStorage) ListPush(ctx context.Context, key string, vals ...string) error {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return wrapErr(s.rdb.RPush(ctx, key, args...).Err())
}

func (s *RedisStorage) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	return vals, wrapErr(err)
}

func (s *RedisStorage) ListRemove(ctx context.Context, key, member string) error {
	return wrapErr(s.rdb.LRem(ctx, key, 0, member).Err())
}

func (s *RedisStorage) ListLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	return n, wrapErr(err)
}

// - sorted sets

func (s *RedisStorage) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return wrapErr(s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *RedisStorage) SortedSetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr(s.rdb.ZRem(ctx, key, args...).Err())
}

func (s *RedisStorage) SortedSetRangeAll(ctx context.Context, key string) ([]string, error) {
	vals, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	return vals, wrapErr(err)
}

// SortedSetLast returns the highest-ranked member, or ErrNotFound for an
// empty or missing set.
func (s *RedisStorage) SortedSetLast(ctx context.Context, key string) (string, error) {
	vals, err := s.rdb.ZRange(ctx, key, -1, -1).Result()
	if err != nil {
		return "", wrapErr(err)
	}
	if len(vals) == 0 {
		return "", ErrNotFound
	}
	return vals[0], nil
}

// - sets

func (s *RedisStorage) SetAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr(s.rdb.SAdd(ctx, key, args...).Err())
}

func (s *RedisStorage) SetRemove(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr(s.rdb.SRem(ctx, key, args...).Err())
}

func (s *RedisStorage) SetMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := s.rdb.SMembers(ctx, key).Result()
	return vals, wrapErr(err)
}

// - pub/sub

func (s *RedisStorage) Publish(ctx context.Context, topic, payload string) error {
	return wrapErr(s.rdb.Publish(ctx, topic, payload).Err())
}

func (s *RedisStorage) Subscribe(ctx context.Context, topic string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, topic)
}
