package worker_pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_PreservesOrder(t *testing.T) {
	wp := NewWorkerPool(2)
	tasks := make([]Task[int], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(5-i) * time.Millisecond)
			return i * 10, nil
		}
	}

	results := Run(context.Background(), wp, tasks)
	for i, r := range results {
		if r.Error != nil || r.Value != i*10 {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestRun_LimitsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	var running, peak atomic.Int64

	tasks := make([]Task[struct{}], 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		}
	}

	Run(context.Background(), wp, tasks)
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestRun_ErrorsAndCancellation(t *testing.T) {
	boom := errors.New("boom")
	results := Run(context.Background(), NewWorkerPool(1), []Task[string]{
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { return "ok", nil },
	})
	if !errors.Is(results[0].Error, boom) || results[1].Value != "ok" {
		t.Errorf("unexpected results %+v", results)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wp := NewWorkerPool(1)
	if !wp.sem.TryAcquire(1) {
		t.Fatal("could not occupy the only slot")
	}
	results = Run(ctx, wp, []Task[string]{
		func(ctx context.Context) (string, error) { return "never", nil },
	})
	if !errors.Is(results[0].Error, context.Canceled) {
		t.Errorf("expected cancellation, got %+v", results[0])
	}
}

func TestNewWorkerPool_DefaultsToCPUCount(t *testing.T) {
	if NewWorkerPool(0).GetMaxWorkers() < 1 {
		t.Error("expected at least one worker")
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	results := Run(context.Background(), NewWorkerPool(2), []Task[int]{
		func(ctx context.Context) (int, error) { panic("provider adapter bug") },
		func(ctx context.Context) (int, error) { return 7, nil },
	})
	if results[0].Error == nil || results[1].Value != 7 {
		t.Errorf("unexpected results %+v", results)
	}
}
