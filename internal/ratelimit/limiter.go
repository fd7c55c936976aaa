// Package ratelimit guards the event-history read path. Dashboards poll
// aggressively; a per-client token bucket keeps that polling from turning
// into a durable-store scan storm.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "syncmon:ratelimit:"

// Limiter is a distributed token bucket backed by Redis, shared across all
// monitor replicas.
type Limiter struct {
	client *redis.Client
	burst  int
	refill float64 // tokens per second
	ttl    time.Duration
}

// NewLimiter constructs a bucket with the given burst capacity and refill rate.
func NewLimiter(client *redis.Client, burst int, refillPerSecond float64) *Limiter {
	return &Limiter{
		client: client,
		burst:  burst,
		refill: refillPerSecond,
		ttl:    time.Hour,
	}
}

// Allow consumes one token for clientID if available.
func (l *Limiter) Allow(ctx context.Context, clientID string) (bool, error) {
	key := keyPrefix + clientID
	now := time.Now().UnixMilli()
	res, err := refillScript.Run(ctx, l.client, []string{key}, l.burst, l.refill, now, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("run rate limit script: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected type from rate limit script: %T", res)
	}
	return n == 1, nil
}

var refillScript = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'refreshed_ms')
local tokens = tonumber(state[1])
local refreshed = tonumber(state[2])
if tokens == nil then tokens = burst end
if refreshed == nil then refreshed = now end

local elapsed = math.max(0, now - refreshed)
tokens = math.min(burst, tokens + elapsed / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'refreshed_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return allowed
`)
