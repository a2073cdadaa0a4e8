package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/uicheck/internal/report"
)

var errSolverFailed = errors.New("solver failed")

// stubBuild stands in for a report build: it optionally takes time, then
// yields a BuildResult carrying a report path or an error.
type stubBuild struct {
	index int
	delay time.Duration
	fail  bool

	running *int32
	peak    *int32
}

func (b *stubBuild) Execute(ctx context.Context) Result {
	res := &BuildResult{Index: b.index, Job: BatchJob{Name: fmt.Sprintf("app-%d", b.index)}}

	if b.running != nil {
		n := atomic.AddInt32(b.running, 1)
		defer atomic.AddInt32(b.running, -1)
		for {
			p := atomic.LoadInt32(b.peak)
			if n <= p || atomic.CompareAndSwapInt32(b.peak, p, n) {
				break
			}
		}
	}

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			res.Error = ctx.Err()
			return res
		}
	}
	if b.fail {
		res.Error = errSolverFailed
		return res
	}
	res.Report = &report.Result{ReportPath: fmt.Sprintf("out/app-%d/report.json", b.index)}
	return res
}

func builds(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = &stubBuild{index: i}
	}
	return jobs
}

func TestNewPool_WorkerCount(t *testing.T) {
	tests := []struct {
		requested int
		want      int
	}{
		{requested: 3, want: 3},
		{requested: 0, want: 1},
		{requested: -4, want: 1},
	}
	for _, tt := range tests {
		if got := NewPool(context.Background(), tt.requested).workers; got != tt.want {
			t.Errorf("NewPool(%d): %d workers, want %d", tt.requested, got, tt.want)
		}
	}
}

func TestPool_RunCollectsEveryBuild(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	results := pool.Run(builds(12))
	if len(results) != 12 {
		t.Fatalf("expected 12 results, got %d", len(results))
	}

	var indexes []int
	for _, r := range results {
		br, ok := r.(*BuildResult)
		if !ok {
			t.Fatalf("unexpected result type %T", r)
		}
		if br.Err() != nil || br.Report == nil {
			t.Errorf("%s: expected a report, got err=%v", br.Job.Name, br.Err())
		}
		indexes = append(indexes, br.Index)
	}
	sort.Ints(indexes)
	for i, idx := range indexes {
		if idx != i {
			t.Fatalf("build %d missing from results %v", i, indexes)
		}
	}
}

func TestPool_RunMoreBuildsThanQueue(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	done := make(chan []Result)
	go func() { done <- pool.Run(builds(100)) }()

	select {
	case results := <-done:
		if len(results) != 100 {
			t.Errorf("expected 100 results, got %d", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool deadlocked")
	}
}

func TestPool_ConcurrencyBounded(t *testing.T) {
	const workers = 2
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var running, peak int32
	jobs := make([]Job, 8)
	for i := range jobs {
		jobs[i] = &stubBuild{index: i, delay: 10 * time.Millisecond, running: &running, peak: &peak}
	}

	if results := pool.Run(jobs); len(results) != len(jobs) {
		t.Errorf("expected %d results, got %d", len(jobs), len(results))
	}
	if peak > workers {
		t.Errorf("%d builds ran at once with %d workers", peak, workers)
	}
}

func TestPool_FailedBuildsDoNotStopOthers(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	results := pool.Run([]Job{
		&stubBuild{index: 0, fail: true},
		&stubBuild{index: 1},
		&stubBuild{index: 2, fail: true},
	})

	failed := 0
	for _, r := range results {
		if errors.Is(r.Err(), errSolverFailed) {
			failed++
		}
	}
	if len(results) != 3 || failed != 2 {
		t.Errorf("expected 3 results with 2 failures, got %d results, %d failures", len(results), failed)
	}
}

func TestPool_CancelStopsQueuedBuilds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	jobs := make([]Job, 10)
	for i := range jobs {
		jobs[i] = &stubBuild{index: i, delay: time.Minute}
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(jobs)
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancelled pool took %v", elapsed)
	}
	if len(results) >= len(jobs) {
		t.Errorf("expected queued builds to be dropped, got %d results", len(results))
	}
}
