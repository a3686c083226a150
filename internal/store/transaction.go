package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tx is an optimistic transaction: reads run immediately on the watched
// connection, writes are staged through Commit and applied atomically.
// If any watched key changes before Commit, the commit fails with
// ErrTxAborted and none of the staged operations are applied.
type Tx struct {
	rtx *redis.Tx
}

func (t *Tx) Get(ctx context.Context, key string) (string, error) {
	val, err := t.rtx.Get(ctx, key).Result()
	return val, wrapErr(err)
}

func (t *Tx) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := t.rtx.LRange(ctx, key, start, stop).Result()
	return vals, wrapErr(err)
}

func (t *Tx) SortedSetLast(ctx context.Context, key string) (string, error) {
	vals, err := t.rtx.ZRange(ctx, key, -1, -1).Result()
	if err != nil {
		return "", wrapErr(err)
	}
	if len(vals) == 0 {
		return "", ErrNotFound
	}
	return vals[0], nil
}

// Commit stages writes through ops and executes them as one MULTI/EXEC
// block guarded by the watched keys.
func (t *Tx) Commit(ctx context.Context, stage func(ops *Ops)) error {
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		stage(&Ops{ctx: ctx, pipe: pipe})
		return nil
	})
	return wrapErr(err)
}

// Ops stages write operations inside a transaction. Nothing is applied
// until the enclosing Commit succeeds.
type Ops struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (o *Ops) Set(key, val string) {
	o.pipe.Set(o.ctx, key, val, 0)
}

func (o *Ops) SetWithExpiry(key, val string, ttl time.Duration) {
	o.pipe.Set(o.ctx, key, val, ttl)
}

func (o *Ops) ListPush(key, val string) {
	o.pipe.RPush(o.ctx, key, val)
}

func (o *Ops) ListPop(key string) {
	o.pipe.LPop(o.ctx, key)
}

func (o *Ops) SortedSetAdd(key string, score float64, member string) {
	o.pipe.ZAdd(o.ctx, key, redis.Z{Score: score, Member: member})
}

func (o *Ops) Publish(topic, payload string) {
	o.pipe.Publish(o.ctx, topic, payload)
}

// Watch runs fn inside an optimistic transaction watching the given
// keys. A concurrent change to any watched key surfaces as ErrTxAborted
// from the transaction's Commit.
func (s *RedisStorage) Watch(ctx context.Context, fn func(tx *Tx) error, keys ...string) error {
	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&Tx{rtx: rtx})
	}, keys...)
	return wrapErr(err)
}
