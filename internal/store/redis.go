package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xizzxy/quotagate/internal/config"
)

// takeTokenScript refills and consumes one token atomically.
// A rejected call writes nothing so accumulated refill credit is kept.
var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = burst
local last = now
local raw = redis.call('GET', key)
if raw then
	local t, l = string.match(raw, '^([%d%.%-]+)|(%-?%d+)$')
	if t then
		tokens = tonumber(t)
		last = tonumber(l)
	end
end

local elapsed = now - last
if elapsed < 0 then
	elapsed = 0
end
tokens = math.min(burst, tokens + math.floor(elapsed / 1000 * rate))

if tokens < 1 then
	return {0, string.format('%.4f', tokens)}
end

tokens = tokens - 1
redis.call('SET', key, string.format('%.4f', tokens) .. '|' .. ARGV[3], 'PX', ARGV[4])
return {1, string.format('%.4f', tokens)}
`)

// RedisStore is a CounterStore shared by every gateway instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient builds a go-redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, fmt.Errorf("redis incr %s: %w", key, ErrNotInteger)
		}
		if strings.Contains(err.Error(), "would overflow") {
			return 0, fmt.Errorf("redis incr %s: %w", key, ErrOverflow)
		}
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.ExpireNX(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// TakeToken runs the token-bucket step inside Redis.
func (s *RedisStore) TakeToken(ctx context.Context, key string, burst int64, refillRate float64, nowMs int64, ttl time.Duration) (bool, float64, error) {
	res, err := takeTokenScript.Run(ctx, s.client, []string{key}, burst, refillRate, nowMs, ttl.Milliseconds()).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis token bucket eval: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis token bucket eval: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	raw, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("redis token bucket eval: parse tokens: %w", err)
	}
	return allowed == 1, tokens, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Stats returns the Redis "stats" INFO section as a flat map.
func (s *RedisStore) Stats(ctx context.Context) map[string]any {
	info, err := s.client.Info(ctx, "stats").Result()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	stats := make(map[string]any)
	for _, line := range strings.Split(info, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		stats[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return stats
}
