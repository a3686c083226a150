package leader

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaseElector implements election with an expiring store lease: SET NX
// with a TTL, renewed while held. A crashed leader simply stops
// renewing and the lease expires; nothing blocks the next candidate.
type LeaseElector struct {
	rdb         redis.UniversalClient
	key         string
	instanceID  string
	leaseTTL    time.Duration
	renewPeriod time.Duration
	retryAfter  time.Duration
	events      chan Event
	resign      chan struct{}
}

type LeaseConfig struct {
	Key         string
	LeaseTTL    time.Duration
	RenewPeriod time.Duration
	RetryAfter  time.Duration
}

func NewLeaseElector(rdb redis.UniversalClient, cfg LeaseConfig) *LeaseElector {
	return &LeaseElector{
		rdb:         rdb,
		key:         cfg.Key,
		instanceID:  uuid.NewString(),
		leaseTTL:    cfg.LeaseTTL,
		renewPeriod: cfg.RenewPeriod,
		retryAfter:  cfg.RetryAfter,
		events:      make(chan Event, 4),
		resign:      make(chan struct{}, 1),
	}
}

func (e *LeaseElector) Events() <-chan Event {
	return e.events
}

func (e *LeaseElector) Resign() {
	select {
	case e.resign <- struct{}{}:
	default:
	}
}

func (e *LeaseElector) Run(ctx context.Context) {
	for {
		acquired, err := e.rdb.SetNX(ctx, e.key, e.instanceID, e.leaseTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("leader election attempt failed", "key", e.key, "error", err)
		}
		if acquired {
			e.events <- Event{Type: BecameLeader}
			slog.Info("acquired leadership lease", "key", e.key, "instance", e.instanceID)
			e.hold(ctx)
			e.events <- Event{Type: LostLeadership}
			if ctx.Err() != nil {
				e.release(context.Background())
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.retryAfter):
		}
	}
}

// hold renews the lease until it is lost, resigned, or ctx ends.
func (e *LeaseElector) hold(ctx context.Context) {
	ticker := time.NewTicker(e.renewPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.resign:
			slog.Info("resigning leadership", "key", e.key, "instance", e.instanceID)
			e.release(ctx)
			return
		case <-ticker.C:
			ok, err := e.renew(ctx)
			if err != nil {
				slog.Warn("lease renewal failed", "key", e.key, "error", err)
				return
			}
			if !ok {
				slog.Warn("leadership lease lost", "key", e.key, "instance", e.instanceID)
				return
			}
		}
	}
}

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

func (e *LeaseElector) renew(ctx context.Context) (bool, error) {
	res, err := renewScript.Run(ctx, e.rdb, []string{e.key}, e.instanceID, e.leaseTTL.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (e *LeaseElector) release(ctx context.Context) {
	if _, err := releaseScript.Run(ctx, e.rdb, []string{e.key}, e.instanceID).Result(); err != nil {
		slog.Warn("failed to release leadership lease", "key", e.key, "error", err)
	}
}
