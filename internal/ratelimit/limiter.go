package ratelimit

import (
	"context"
	"sync"
	"time"

	"notiflow/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter is a per-scope throttle gate for outbound provider calls. Acquire
// blocks until a token is available (or the context ends); it never rejects.
// Token state lives in redis so multiple instances share one budget; when
// redis is unreachable the limiter falls back to a process-local bucket.
type Limiter struct {
	rdb   *redis.Client
	mu    sync.Mutex
	rates map[string]Rate
	local map[string]*rate.Limiter
}

type Rate struct {
	PerSecond float64
	Burst     int
}

// tokenBucketScript implements the Token Bucket algorithm.
// Input: ARGV[1]=rate, ARGV[2]=capacity, ARGV[3]=now, ARGV[4]=requested
// Output: { allowed, remaining, reset_after }
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local fill_time = capacity / rate
local ttl = math.ceil(fill_time * 2)

-- Load state
local last_tokens = tonumber(redis.call("get", tokens_key))
if last_tokens == nil then last_tokens = capacity end

local last_ts = tonumber(redis.call("get", ts_key))
if last_ts == nil then last_ts = now end

-- Refill
local delta = math.max(0, now - last_ts)
local filled_tokens = math.min(capacity, last_tokens + (delta * rate))
local allowed = 0
local remaining = filled_tokens
local reset_after = 0

if filled_tokens >= requested then
    allowed = 1
    filled_tokens = filled_tokens - requested
    remaining = filled_tokens
else
    allowed = 0
    remaining = filled_tokens
    reset_after = (requested - filled_tokens) / rate
end

if allowed == 1 then
    redis.call("set", tokens_key, filled_tokens, "EX", ttl)
    redis.call("set", ts_key, now, "EX", ttl)
end

return { allowed, remaining, reset_after }
`)

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:   rdb,
		rates: make(map[string]Rate),
		local: make(map[string]*rate.Limiter),
	}
}

// SetRate registers the budget for a provider scope. Unregistered scopes get
// a conservative 1 rps.
func (l *Limiter) SetRate(scope string, r Rate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates[scope] = r
	delete(l.local, scope)
}

func (l *Limiter) rateFor(scope string) Rate {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rates[scope]; ok && r.PerSecond > 0 {
		return r
	}
	return Rate{PerSecond: 1, Burst: 1}
}

func (l *Limiter) localFor(scope string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.local[scope]; ok {
		return lim
	}
	r, ok := l.rates[scope]
	if !ok || r.PerSecond <= 0 {
		r = Rate{PerSecond: 1, Burst: 1}
	}
	burst := r.Burst
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(r.PerSecond), burst)
	l.local[scope] = lim
	return lim
}

// Acquire blocks until one token for the scope is available. The only error
// it returns is the context's.
func (l *Limiter) Acquire(ctx context.Context, scope string) error {
	r := l.rateFor(scope)

	for {
		now := float64(time.Now().UnixMicro()) / 1e6
		keys := []string{"ratelimit:" + scope + ":tokens", "ratelimit:" + scope + ":ts"}
		args := []any{r.PerSecond, float64(max(r.Burst, 1)), now, 1}

		callCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		result, err := tokenBucketScript.Run(callCtx, l.rdb, keys, args...).Result()
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Redis down: degrade to the process-local bucket rather than
			// letting the batch stall or bypass throttling entirely.
			logger.Warn("redis rate limit unavailable, using local bucket",
				zap.String("scope", scope), zap.Error(err))
			return l.localFor(scope).Wait(ctx)
		}

		resSlice, ok := result.([]any)
		if !ok || len(resSlice) != 3 {
			logger.Error("invalid rate limit script response", zap.Any("response", result))
			return l.localFor(scope).Wait(ctx)
		}

		if toInt(resSlice[0]) == 1 {
			return nil
		}

		wait := time.Duration(toFloat(resSlice[2]) * float64(time.Second))
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func toInt(v any) int64 {
	if val, ok := v.(int64); ok {
		return val
	}
	if val, ok := v.(float64); ok {
		return int64(val)
	}
	return 0
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	default:
		return 0
	}
}
