package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
)

// Converter merges one job's input. Implementations must be safe for
// concurrent use.
type Converter interface {
	Convert(ctx context.Context, job Job, rep issue.Reporter) (*element.Complex, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, job Job, rep issue.Reporter) (*element.Complex, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, job Job, rep issue.Reporter) (*element.Complex, error) {
	return f(ctx, job, rep)
}

// run executes one job with a fresh Outcome.
func run(ctx context.Context, conv Converter, job Job) *JobResult {
	start := time.Now()
	res := &JobResult{ID: job.ID, Outcome: issue.NewOutcome()}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Record, res.Err = conv.Convert(ctx, job, issue.NewOutcomeReporter(res.Outcome))
	if res.Err != nil {
		res.Record = nil
	}
	res.Duration = time.Since(start)
	return res
}

// Pool is a fixed set of goroutines converting submitted jobs. Finished
// results queue up until they are read from Results or collected by
// CloseAndWait, so workers never wait on a reader.
type Pool struct {
	workers int
	conv    Converter
	jobs    chan Job
	done    chan *JobResult
	results chan *JobResult
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	busy      atomic.Int64
}

// NewPool starts workers goroutines (runtime.NumCPU() when <= 0).
func NewPool(conv Converter, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		conv:    conv,
		jobs:    make(chan Job, workers*2),
		done:    make(chan *JobResult, workers),
		results: make(chan *JobResult),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	go p.dispatch()
	return p
}

// dispatch moves finished results from the workers to Results, holding any
// that nobody has read yet. Results is closed once every worker has exited
// and the backlog is delivered.
func (p *Pool) dispatch() {
	defer close(p.results)
	in := p.done
	var backlog []*JobResult
	for in != nil || len(backlog) > 0 {
		var (
			out  chan<- *JobResult
			next *JobResult
		)
		if len(backlog) > 0 {
			out, next = p.results, backlog[0]
		}
		select {
		case r, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, r)
		case out <- next:
			backlog[0] = nil
			backlog = backlog[1:]
		}
	}
}

// Submit queues job, blocking while the queue is full. It returns false once
// the pool is closed. Workers keep draining the queue whether or not Results
// is read, so a blocked Submit always makes progress.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		p.submitted.Add(1)
		return true
	}
}

// TrySubmit queues job without blocking.
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// Results delivers results in completion order. It is closed after Close or
// CloseAndWait once every result has been delivered. Reading it is optional.
func (p *Pool) Results() <-chan *JobResult {
	return p.results
}

// CloseAndWait stops accepting jobs, waits for the queued ones and returns
// every result not yet read from Results.
func (p *Pool) CloseAndWait() *BatchResult {
	if !p.markClosed() {
		return &BatchResult{}
	}
	close(p.jobs)

	batch := &BatchResult{TotalJobs: int(p.submitted.Load())}
	for r := range p.results {
		batch.Results = append(batch.Results, r)
		batch.add(r)
	}
	return batch
}

// Close cancels queued jobs and discards pending results.
func (p *Pool) Close() {
	p.cancel()
	if !p.markClosed() {
		return
	}
	close(p.jobs)
	for range p.results {
	}
}

func (p *Pool) markClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	return true
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int
	Submitted uint64
	Completed uint64
	Busy      int64
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Busy:      p.busy.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.busy.Add(1)
		res := run(p.ctx, p.conv, job)
		p.busy.Add(-1)
		p.completed.Add(1)
		p.done <- res
	}
}
