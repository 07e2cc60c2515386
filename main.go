package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptfn/runtime/internal/collector"
	"github.com/promptfn/runtime/internal/core"
	"github.com/promptfn/runtime/internal/engine"
	"github.com/promptfn/runtime/internal/runtime"
	"github.com/promptfn/runtime/internal/stream"
	"github.com/promptfn/runtime/internal/telemetry"
	"github.com/promptfn/runtime/internal/usagesink"
	logx "github.com/promptfn/runtime/pkg/logger"
	pkgredis "github.com/promptfn/runtime/pkg/redis"
)

// AppConfig defines all configurable parameters for the bridge example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// Bridge
	Engine    engine.GeminiConfig
	Telemetry telemetry.Config
	Stream    stream.Config

	// How long accumulated usage counters live in Redis.
	UsageTTL time.Duration `envconfig:"USAGE_TTL" default:"24h"`
}

func main() {
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	eng, err := engine.NewGeminiEngine(ctx, cfg.Engine)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	bus := telemetry.NewFanout(
		telemetry.LogBus{},
		telemetry.NewPromBus(prometheus.DefaultRegisterer),
		usagesink.NewRedisUsageSink(rdb, cfg.UsageTTL),
		runtime.NewCostBus(cfg.Engine.Model),
	)

	client := runtime.NewClient(eng, bus, cfg.Stream)

	// ====================================================
	// Single-shot call
	fmt.Println("🚀 Single-shot call: SummarizeTicket")
	env, err := client.Invoke(ctx, runtime.InvocationDescriptor{
		Function:  "SummarizeTicket",
		Args:      map[string]any{"ticket": "Customer reports the checkout page hangs after entering a discount code."},
		Resource:  "support",
		Action:    "summarize",
		Telemetry: &cfg.Telemetry,
	})
	if err != nil {
		log.Fatalf("Invoke failed: %v", err)
	}
	if msg, ok := env.Data.(*schema.Message); ok {
		fmt.Printf("✅ Result: %s\n", msg.Content)
	}
	fmt.Printf("Usage: input=%d output=%d total=%d model=%s\n",
		env.Usage.InputTokens, env.Usage.OutputTokens, env.Usage.TotalTokens, env.Model)

	// ====================================================
	// Streaming call
	fmt.Println("🚀 Streaming call: DraftReply")
	sess := client.OpenStream(ctx, runtime.InvocationDescriptor{
		Function: "DraftReply",
		Args:     map[string]any{"tone": "friendly", "topic": "checkout fix shipped"},
		Resource: "support",
		Action:   "draft",
	})
	defer sess.Close()

	// The sequence yields every non-empty chunk in production order, then the
	// concatenated final value as its last element.
	var elems []*schema.Message
	for {
		chunk, err := sess.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("Stream failed: %v", err)
		}
		elems = append(elems, chunk)
		fmt.Printf("chunk %02d: %q\n", len(elems), chunk.Content)
	}
	if n := len(elems); n > 0 {
		fmt.Printf("✅ Final: %s\n", elems[n-1].Content)
	}

	streamUsage := collector.Snapshot(sess.Collector())
	fmt.Printf("Stream usage: input=%d output=%d total=%d (phase=%s)\n",
		streamUsage.InputTokens, streamUsage.OutputTokens, streamUsage.TotalTokens, sess.Phase())

	fmt.Println("🎉 Done")
}
