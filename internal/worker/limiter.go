package worker

import (
	"context"
	"fmt"

	"github.com/ppiankov/uicheck/internal/explain"
	"golang.org/x/time/rate"
)

// LaunchLimiter throttles how often solver processes are started. Each
// launch loads a full fact directory, so a batch that starts them all at
// once stalls the machine.
type LaunchLimiter struct {
	limiter *rate.Limiter
}

// NewLaunchLimiter allows launchesPerSecond launches with the given burst.
// A non-positive rate disables throttling.
func NewLaunchLimiter(launchesPerSecond float64, burst int) *LaunchLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(launchesPerSecond)
	if launchesPerSecond <= 0 {
		limit = rate.Inf
	}
	return &LaunchLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a launch is allowed or ctx ends
func (l *LaunchLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a launch may start now, consuming a token if so
func (l *LaunchLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Throttle wraps open so every call first waits for a launch slot
func (l *LaunchLimiter) Throttle(open explain.Opener) explain.Opener {
	return func(ctx context.Context, factsDir, specPath string) (explain.Explainer, error) {
		if err := l.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for launch slot: %w", err)
		}
		return open(ctx, factsDir, specPath)
	}
}
