package renderqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis broker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Default "slidecast".
	Prefix string
}

// Redis is a Broker backed by Redis. Ready messages sit in a sorted set scored
// by the time they become visible, leased messages in a sorted set scored by
// lease expiry. Each message has a hash holding its priority and lease token.
// Every state change runs as a Lua script so token checks are atomic.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// candidateWindow bounds how many visible messages are compared by priority
// on each lease.
const candidateWindow = 64

var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then return 0 end
redis.call('HSET', KEYS[3], 'job_id', ARGV[1], 'priority', ARGV[2], 'enqueued_at', ARGV[3], 'deliveries', 0)
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
return 1
`)

// KEYS: ready, leased. ARGV: now, expiry, token, consumer, message key prefix, window.
var leaseScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], ARGV[1], id)
  redis.call('HDEL', ARGV[5] .. id, 'token', 'consumer')
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[6]))
if #ids == 0 then return false end
local best, bestPriority = nil, nil
for _, id in ipairs(ids) do
  local p = tonumber(redis.call('HGET', ARGV[5] .. id, 'priority') or '0')
  if best == nil or p > bestPriority then
    best, bestPriority = id, p
  end
end
redis.call('ZREM', KEYS[1], best)
redis.call('ZADD', KEYS[2], ARGV[2], best)
local key = ARGV[5] .. best
redis.call('HSET', key, 'token', ARGV[3], 'consumer', ARGV[4])
local deliveries = redis.call('HINCRBY', key, 'deliveries', 1)
return {best, redis.call('HGET', key, 'priority') or '0', redis.call('HGET', key, 'enqueued_at') or '0', tostring(deliveries)}
`)

// KEYS: leased, message. ARGV: job id, token, new expiry.
var extendScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// KEYS: leased, message. ARGV: job id, token.
var ackScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// KEYS: leased, message, ready. ARGV: job id, token, visible at.
var nackScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], 'token', 'consumer')
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: leased, message, dead. ARGV: job id, token, payload.
var deadLetterScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
redis.call('LPUSH', KEYS[3], ARGV[3])
return 1
`)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, queueErr("open", errors.New("missing redis address"))
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "slidecast"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, queueErr("open", fmt.Errorf("redis ping: %w", err))
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (q *Redis) readyKey() string { return q.prefix + ":render:ready" }
func (q *Redis) leasedKey() string { return q.prefix + ":render:leased" }
func (q *Redis) deadKey() string { return q.prefix + ":render:dead" }
func (q *Redis) messagePrefix() string { return q.prefix + ":render:msg:" }
func (q *Redis) messageKey(id string) string { return q.messagePrefix() + id }

func (q *Redis) Enqueue(ctx context.Context, msg Message) error {
	now := time.Now()
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = now
	}
	err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.leasedKey(), q.messageKey(msg.JobID)},
		msg.JobID, msg.Priority, msg.EnqueuedAt.UnixMilli(), now.UnixMilli(),
	).Err()
	return queueErr("enqueue", err)
}

func (q *Redis) Lease(ctx context.Context, consumer string, leaseFor time.Duration) (*Lease, error) {
	now := time.Now()
	lease := &Lease{Token: newToken(), Consumer: consumer, ExpiresAt: now.Add(leaseFor)}
	res, err := leaseScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.leasedKey()},
		now.UnixMilli(), lease.ExpiresAt.UnixMilli(), lease.Token, consumer, q.messagePrefix(), candidateWindow,
	).StringSlice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, queueErr("lease", err)
	}
	if len(res) != 4 {
		return nil, queueErr("lease", fmt.Errorf("unexpected lease reply %v", res))
	}
	lease.JobID = res[0]
	lease.Priority, _ = strconv.Atoi(res[1])
	if ms, err := strconv.ParseInt(res[2], 10, 64); err == nil {
		lease.EnqueuedAt = time.UnixMilli(ms)
	}
	lease.Deliveries, _ = strconv.Atoi(res[3])
	return lease, nil
}

func (q *Redis) runLeased(ctx context.Context, op string, script *goredis.Script, lease *Lease, keys []string, args ...any) error {
	ok, err := script.Run(ctx, q.rdb, keys, append([]any{lease.JobID, lease.Token}, args...)...).Int()
	if err != nil {
		return queueErr(op, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *Redis) Extend(ctx context.Context, lease *Lease, leaseFor time.Duration) error {
	if lease == nil {
		return ErrLeaseLost
	}
	expires := time.Now().Add(leaseFor)
	if err := q.runLeased(ctx, "extend", extendScript, lease,
		[]string{q.leasedKey(), q.messageKey(lease.JobID)}, expires.UnixMilli()); err != nil {
		return err
	}
	lease.ExpiresAt = expires
	return nil
}

func (q *Redis) Ack(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return ErrLeaseLost
	}
	return q.runLeased(ctx, "ack", ackScript, lease, []string{q.leasedKey(), q.messageKey(lease.JobID)})
}

func (q *Redis) Nack(ctx context.Context, lease *Lease, delay time.Duration) error {
	if lease == nil {
		return ErrLeaseLost
	}
	return q.runLeased(ctx, "nack", nackScript, lease,
		[]string{q.leasedKey(), q.messageKey(lease.JobID), q.readyKey()},
		time.Now().Add(delay).UnixMilli(),
	)
}

type deadLetter struct {
	JobID      string    `json:"jobId"`
	Reason     string    `json:"reason"`
	Deliveries int       `json:"deliveries"`
	FailedAt   time.Time `json:"failedAt"`
}

func (q *Redis) DeadLetter(ctx context.Context, lease *Lease, reason string) error {
	if lease == nil {
		return ErrLeaseLost
	}
	payload, err := json.Marshal(deadLetter{JobID: lease.JobID, Reason: reason, Deliveries: lease.Deliveries, FailedAt: time.Now().UTC()})
	if err != nil {
		return queueErr("dead-letter", err)
	}
	return q.runLeased(ctx, "dead-letter", deadLetterScript, lease,
		[]string{q.leasedKey(), q.messageKey(lease.JobID), q.deadKey()},
		string(payload),
	)
}

func (q *Redis) Has(ctx context.Context, jobID string) (bool, error) {
	n, err := q.rdb.Exists(ctx, q.messageKey(jobID)).Result()
	if err != nil {
		return false, queueErr("has", err)
	}
	return n > 0, nil
}

func (q *Redis) Stats(ctx context.Context) (Stats, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	pipe := q.rdb.Pipeline()
	ready := pipe.ZCount(ctx, q.readyKey(), "-inf", now)
	delayed := pipe.ZCount(ctx, q.readyKey(), "("+now, "+inf")
	leased := pipe.ZCount(ctx, q.leasedKey(), "("+now, "+inf")
	expired := pipe.ZCount(ctx, q.leasedKey(), "-inf", now)
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, queueErr("stats", err)
	}
	return Stats{
		Backend:     "redis",
		Ready:       int(ready.Val() + expired.Val()),
		Delayed:     int(delayed.Val()),
		Leased:      int(leased.Val()),
		DeadLetters: int(dead.Val()),
	}, nil
}

func (q *Redis) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
