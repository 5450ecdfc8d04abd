package worker

import (
	"context"
	"runtime"
	"sync"
)

// Batch converts a fixed set of jobs.
type Batch struct {
	conv    Converter
	workers int
}

// NewBatch creates a Batch running at most workers conversions at once
// (runtime.NumCPU() when <= 0).
func NewBatch(conv Converter, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch{conv: conv, workers: workers}
}

// Run converts jobs and returns their results in input order. Jobs not
// started before ctx is cancelled get ctx.Err() as their error.
func (b *Batch) Run(ctx context.Context, jobs []Job) *BatchResult {
	results := make([]*JobResult, len(jobs))

	workers := b.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	if workers <= 1 {
		for i, job := range jobs {
			results[i] = run(ctx, b.conv, job)
		}
	} else {
		next := make(chan int)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for i := range next {
					results[i] = run(ctx, b.conv, jobs[i])
				}
			}()
		}
		for i := range jobs {
			next <- i
		}
		close(next)
		wg.Wait()
	}

	batch := &BatchResult{Results: results, TotalJobs: len(jobs)}
	for _, r := range results {
		batch.add(r)
	}
	return batch
}
