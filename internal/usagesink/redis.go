package usagesink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/promptfn/runtime/internal/core/error"
	"github.com/promptfn/runtime/internal/telemetry"
	logx "github.com/promptfn/runtime/pkg/logger"
)

const recordTimeout = 2 * time.Second

// RedisUsageSink subscribes to the telemetry bus and accumulates per-function
// token totals in Redis hashes. Writes happen off the publisher's goroutine so
// publication never blocks a call, and write failures are logged, never
// surfaced to the instrumented call.
type RedisUsageSink struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisUsageSink creates the sink. A non-positive ttl keeps counters
// forever.
func NewRedisUsageSink(rdb redis.Cmdable, ttl time.Duration) *RedisUsageSink {
	return &RedisUsageSink{rdb: rdb, ttl: ttl}
}

func (s *RedisUsageSink) usageKey(function string) string {
	return fmt.Sprintf("promptfn:usage:%s", function)
}

func (s *RedisUsageSink) Publish(e telemetry.Event) {
	if e.Kind != telemetry.EventStop {
		return
	}
	go s.record(e)
}

func (s *RedisUsageSink) record(e telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	key := s.usageKey(e.Metadata.Function)
	usage := e.Measurements.Usage

	pipe := s.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, "input_tokens", int64(usage.InputTokens))
	pipe.HIncrBy(ctx, key, "output_tokens", int64(usage.OutputTokens))
	pipe.HIncrBy(ctx, key, "total_tokens", int64(usage.TotalTokens))
	pipe.HIncrBy(ctx, key, "calls", 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(errx.WrapRedis(err)).Str("key", key).Msg("failed to accumulate usage in redis")
	}
}

// Totals reads the accumulated counters for a function. Missing keys come
// back as zero totals, matching a function that was never called.
func (s *RedisUsageSink) Totals(ctx context.Context, function string) (map[string]string, error) {
	key := s.usageKey(function)
	vals, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to read usage totals from redis")
		return nil, errx.WrapRedis(err)
	}
	return vals, nil
}
