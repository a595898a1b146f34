package watch

import (
	"context"
	"time"

	"github.com/fiffu/redditwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter is the process-wide poll budget. Every topic poller shares this one
// bucket; permits are not topic-specific, so a slow topic cannot hoard them.
// Burst is 1, so a daemon restart never opens with a thundering herd.
type Limiter struct {
	rl *rate.Limiter
}

func NewLimiter(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *Limiter {
	log.Sugar().Infof("Rate limiter budget: %d requests/minute", cfg.Reddit.RateLimitPerMinute)
	return NewLimiterWithBudget(cfg.Reddit.RateLimitPerMinute, time.Minute)
}

// NewLimiterWithBudget grants at most n permits per window, refilled
// continuously at n/window.
func NewLimiterWithBudget(n int, window time.Duration) *Limiter {
	return &Limiter{rate.NewLimiter(rate.Every(window/time.Duration(n)), 1)}
}

// Acquire blocks until a permit is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.rl.Wait(ctx)
}
