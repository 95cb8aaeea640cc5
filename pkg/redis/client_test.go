package redis

import (
	"context"
	"testing"
	"time"

	"github.com/cartpay-io/cartpay-backend/pkg/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.RedisConfig{
		URL:          "redis://localhost:6379/2",
		PoolSize:     15,
		MinIdleConns: 3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 4 * time.Second,
	}

	opts, err := optionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %s", opts.Addr)
	}
	if opts.DB != 2 {
		t.Fatalf("unexpected db %d", opts.DB)
	}
	if opts.PoolSize != 15 || opts.MinIdleConns != 3 {
		t.Fatalf("pool settings not applied")
	}
	if opts.DialTimeout != 2*time.Second || opts.ReadTimeout != 3*time.Second || opts.WriteTimeout != 4*time.Second {
		t.Fatalf("timeouts not applied")
	}
}

func TestOptionsFromConfigRequiresURL(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected missing url to fail")
	}
	if _, err := optionsFromConfig(config.RedisConfig{URL: "::bad::"}); err == nil {
		t.Fatalf("expected invalid url to fail")
	}
}

func TestKeyBuilders(t *testing.T) {
	c := &Client{}

	if got := c.IdempotencyKey("webhook:dispute", "evt_123"); got != "cartpay:idempotency:webhook:dispute:evt_123" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := c.RateLimitKey("payments"); got != "cartpay:rate_limit:payments" {
		t.Fatalf("unexpected rate limit key %q", got)
	}
	if got := c.CounterKey("captures"); got != "cartpay:counter:captures" {
		t.Fatalf("unexpected counter key %q", got)
	}
	if got := c.LockKey("cron"); got != "cartpay:lock:cron" {
		t.Fatalf("unexpected lock key %q", got)
	}
	// Empty segments collapse rather than producing double separators.
	if got := c.IdempotencyKey("", "evt_123"); got != "cartpay:idempotency:evt_123" {
		t.Fatalf("unexpected key with empty scope %q", got)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if _, err := c.SetNX(ctx, "k", "v", 0); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := c.Ping(ctx); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
}
