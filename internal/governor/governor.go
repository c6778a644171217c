// Package governor decides how long a throttled caller must back off.
//
// The governor keeps no shared budget: every caller that sees a throttling
// response sleeps its own cooldown, so concurrent units back off independently.
package governor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/metrics"
	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// Defaults mirror the platform's typical rate-limit guidance.
const (
	DefaultCooldown = 3 * time.Second
	DefaultMargin   = 2 * time.Second
)

// Config tunes cooldown computation.
type Config struct {
	// DefaultCooldown applies when the throttle carried no retry-after hint.
	DefaultCooldown time.Duration
	// SafetyMargin is added to any server-provided retry-after.
	SafetyMargin time.Duration
}

// Governor blocks throttled callers until it is safe to retry.
type Governor struct {
	cfg     Config
	sleeper reddit.Sleeper
	logger  *zap.Logger

	throttles atomic.Int64
}

// New creates a Governor. Zero config values fall back to the package defaults.
func New(cfg Config, sleeper reddit.Sleeper, logger *zap.Logger) *Governor {
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = DefaultCooldown
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultMargin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{cfg: cfg, sleeper: sleeper, logger: logger}
}

// Cooldown returns how long a caller must wait after err.
func (g *Governor) Cooldown(err error) time.Duration {
	if retryAfter := reddit.RetryAfterOf(err); retryAfter > 0 {
		return retryAfter + g.cfg.SafetyMargin
	}
	return g.cfg.DefaultCooldown
}

// AwaitReady sleeps the cooldown for err on behalf of the calling unit.
func (g *Governor) AwaitReady(ctx context.Context, operation string, err error) error {
	wait := g.Cooldown(err)
	g.throttles.Add(1)
	g.logger.Warn("Throttled; backing off",
		zap.String("operation", operation),
		zap.Duration("retry_after", reddit.RetryAfterOf(err)),
		zap.Duration("cooldown", wait),
	)
	metrics.ObserveThrottle(operation)
	if sleepErr := g.sleeper.Sleep(ctx, wait); sleepErr != nil {
		return fmt.Errorf("await cooldown: %w", sleepErr)
	}
	metrics.ObserveCooldown(wait)
	return nil
}

// Throttles counts the throttle events seen so far. It does not influence
// cooldowns.
func (g *Governor) Throttles() int {
	return int(g.throttles.Load())
}
