// Package worker_pool fans independent probes out with bounded concurrency,
// e.g. the per-provider credential checks. The chat tool loop does not use
// it; tool calls within a turn stay sequential.
package worker_pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is a unit of work producing a T
type Task[T any] func(ctx context.Context) (T, error)

// Result is the outcome of one task
type Result[T any] struct {
	Value T
	Error error
}

// WorkerPool caps how many tasks run at once. One pool may serve several
// concurrent Run calls; the cap is shared.
type WorkerPool struct {
	size int
	sem  *semaphore.Weighted
}

// NewWorkerPool creates a pool of size slots; size <= 0 means one per CPU
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &WorkerPool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

func (wp *WorkerPool) GetMaxWorkers() int { return wp.size }

// Run executes tasks and returns their results in task order. A task still
// waiting for a slot when ctx ends reports ctx.Err(); a panicking task
// reports the panic as its error.
func Run[T any](ctx context.Context, wp *WorkerPool, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				return
			}
			if err := wp.sem.Acquire(ctx, 1); err != nil {
				results[i].Error = err
				return
			}
			defer wp.sem.Release(1)
			results[i] = runOne(ctx, task)
		}()
	}
	wg.Wait()

	return results
}

func runOne[T any](ctx context.Context, task Task[T]) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = Result[T]{Error: fmt.Errorf("task panicked: %v", p)}
		}
	}()
	v, err := task(ctx)
	return Result[T]{Value: v, Error: err}
}
