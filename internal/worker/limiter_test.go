package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/uicheck/internal/explain"
)

func TestLaunchLimiter_Burst(t *testing.T) {
	l := NewLaunchLimiter(1, 2)
	if !l.Allow() || !l.Allow() {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow() {
		t.Error("expected third launch to be throttled")
	}
}

func TestLaunchLimiter_DefaultBurst(t *testing.T) {
	l := NewLaunchLimiter(1, 0)
	if !l.Allow() {
		t.Fatal("expected first launch to be allowed")
	}
	if l.Allow() {
		t.Error("expected default burst of 1")
	}
}

func TestLaunchLimiter_Unlimited(t *testing.T) {
	l := NewLaunchLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("launch %d throttled with rate 0", i)
		}
	}
}

func TestLaunchLimiter_Wait(t *testing.T) {
	l := NewLaunchLimiter(20, 1) // one launch every 50ms
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected throttling, three launches took %v", elapsed)
	}
}

func TestLaunchLimiter_WaitCancelled(t *testing.T) {
	l := NewLaunchLimiter(0.001, 1)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error when the next slot is beyond the deadline")
	}
}

type nopExplainer struct{}

func (nopExplainer) Explain(context.Context, string) (map[string]any, error) { return nil, nil }
func (nopExplainer) Close() error                                            { return nil }

func TestLaunchLimiter_Throttle(t *testing.T) {
	l := NewLaunchLimiter(0.001, 1)
	calls := 0
	open := l.Throttle(func(ctx context.Context, factsDir, specPath string) (explain.Explainer, error) {
		calls++
		return nopExplainer{}, nil
	})

	if _, err := open(context.Background(), "facts", "spec.dl"); err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := open(ctx, "facts", "spec.dl")
	if err == nil {
		t.Fatal("expected second open to be throttled")
	}
	if calls != 1 {
		t.Errorf("expected 1 launch, got %d", calls)
	}
	if errors.Is(err, explain.ErrLaunchTimeout) {
		t.Error("throttling is not a launch timeout")
	}
}
