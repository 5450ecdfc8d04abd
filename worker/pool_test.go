package worker

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
)

var errBroken = errors.New("broken input")

// fakeConverter reports one warning per job and fails on input "bad".
type fakeConverter struct {
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeConverter) Convert(ctx context.Context, job Job, rep issue.Reporter) (*element.Complex, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if string(job.Input) == "bad" {
		return nil, errBroken
	}
	if err := rep.ReportValidationWarning(job.ResourceType, errors.New("note "+job.ID)); err != nil {
		return nil, err
	}
	return element.NewComplex(job.ResourceType), nil
}

func jobs(inputs ...string) []Job {
	out := make([]Job, len(inputs))
	for i, in := range inputs {
		out[i] = Job{ID: strconv.Itoa(i), Input: []byte(in), ResourceType: "Patient"}
	}
	return out
}

func TestBatchKeepsOrder(t *testing.T) {
	for _, workers := range []int{1, 3, 0} {
		t.Run(strconv.Itoa(workers), func(t *testing.T) {
			conv := &fakeConverter{}
			res := NewBatch(conv, workers).Run(context.Background(), jobs("a", "bad", "c", "d", "e"))

			if res.TotalJobs != 5 || res.CompletedJobs != 5 || res.FailedJobs != 1 {
				t.Errorf("counts = %d/%d/%d; want 5/5/1", res.TotalJobs, res.CompletedJobs, res.FailedJobs)
			}
			for i, r := range res.Results {
				if r.ID != strconv.Itoa(i) {
					t.Errorf("Results[%d].ID = %q; want %d", i, r.ID, i)
				}
			}
			if !errors.Is(res.Results[1].Err, errBroken) || res.Results[1].Record != nil {
				t.Errorf("Results[1] = %+v; want errBroken and no record", res.Results[1])
			}
			if res.Results[0].Record == nil || res.Results[0].Outcome.Len() != 1 {
				t.Errorf("Results[0] = %+v; want a record and one issue", res.Results[0])
			}
			if got := res.IssueCount(); got != 4 {
				t.Errorf("IssueCount() = %d; want 4", got)
			}
			if !res.HasErrors() {
				t.Error("HasErrors() = false; want true")
			}
		})
	}
}

func TestBatchOutcomesAreIsolated(t *testing.T) {
	res := NewBatch(&fakeConverter{}, 4).Run(context.Background(), jobs("a", "b", "c", "d"))
	for i, r := range res.Results {
		if r.Outcome.Len() != 1 {
			t.Fatalf("Results[%d] has %d issues; want 1", i, r.Outcome.Len())
		}
		if want := "note " + strconv.Itoa(i); r.Outcome.At(0).Diagnostics != want {
			t.Errorf("Results[%d] issue = %q; want %q", i, r.Outcome.At(0).Diagnostics, want)
		}
	}
}

func TestBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conv := &fakeConverter{}
	res := NewBatch(conv, 2).Run(ctx, jobs("a", "b"))
	if conv.calls.Load() != 0 {
		t.Errorf("converter called %d times; want 0", conv.calls.Load())
	}
	if res.FailedJobs != 2 {
		t.Errorf("FailedJobs = %d; want 2", res.FailedJobs)
	}
}

func TestPoolCloseAndWait(t *testing.T) {
	p := NewPool(&fakeConverter{}, 2)
	for _, j := range jobs("a", "b", "bad") {
		if !p.Submit(j) {
			t.Fatalf("Submit(%s) = false", j.ID)
		}
	}
	res := p.CloseAndWait()

	if res.TotalJobs != 3 || res.CompletedJobs != 3 || res.FailedJobs != 1 {
		t.Errorf("counts = %d/%d/%d; want 3/3/1", res.TotalJobs, res.CompletedJobs, res.FailedJobs)
	}
	if p.Submit(Job{ID: "late"}) {
		t.Error("Submit after close = true")
	}
	if s := p.Stats(); s.Workers != 2 || s.Submitted != 3 || s.Completed != 3 || s.Busy != 0 {
		t.Errorf("Stats() = %+v", s)
	}
	if again := p.CloseAndWait(); len(again.Results) != 0 {
		t.Errorf("second CloseAndWait returned %d results", len(again.Results))
	}
}

func TestPoolResultsStream(t *testing.T) {
	p := NewPool(ConverterFunc(func(_ context.Context, job Job, _ issue.Reporter) (*element.Complex, error) {
		return element.NewComplex(job.ResourceType), nil
	}), 3)

	go func() {
		for _, j := range jobs("a", "b", "c", "d") {
			p.Submit(j)
		}
	}()

	seen := map[string]bool{}
	for len(seen) < 4 {
		r := <-p.Results()
		if r.Err != nil {
			t.Fatalf("job %s: %v", r.ID, r.Err)
		}
		seen[r.ID] = true
	}
	p.Close()
	p.Close()
}

func TestPoolCloseCancelsQueuedJobs(t *testing.T) {
	conv := &fakeConverter{delay: 50 * time.Millisecond}
	p := NewPool(conv, 1)
	p.TrySubmit(Job{ID: "0", Input: []byte("a")})
	p.TrySubmit(Job{ID: "1", Input: []byte("b")})

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if conv.calls.Load() > 2 {
		t.Errorf("converter called %d times; want at most 2", conv.calls.Load())
	}
}

func TestPoolSubmitBeyondBuffers(t *testing.T) {
	const n = 50
	p := NewPool(&fakeConverter{}, 1)

	done := make(chan *BatchResult)
	go func() {
		for i := 0; i < n; i++ {
			if !p.Submit(Job{ID: strconv.Itoa(i), Input: []byte("a"), ResourceType: "Patient"}) {
				t.Errorf("Submit(%d) = false", i)
			}
		}
		done <- p.CloseAndWait()
	}()

	select {
	case res := <-done:
		if res.TotalJobs != n || len(res.Results) != n || res.CompletedJobs != n {
			t.Errorf("counts = %d/%d/%d; want %d each", res.TotalJobs, len(res.Results), res.CompletedJobs, n)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Submit then CloseAndWait did not finish; stats=%+v", p.Stats())
	}
}

func TestPoolCloseAndWaitDuringSubmit(t *testing.T) {
	const n = 30
	p := NewPool(&fakeConverter{delay: time.Millisecond}, 2)

	submitted := make(chan int)
	go func() {
		ok := 0
		for i := 0; i < n; i++ {
			if p.Submit(Job{ID: strconv.Itoa(i), Input: []byte("a"), ResourceType: "Patient"}) {
				ok++
			}
		}
		submitted <- ok
	}()

	time.Sleep(5 * time.Millisecond)
	done := make(chan *BatchResult)
	go func() { done <- p.CloseAndWait() }()

	var res *BatchResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("CloseAndWait did not return; stats=%+v", p.Stats())
	}
	ok := <-submitted
	if len(res.Results) != ok {
		t.Errorf("got %d results; want one per accepted job (%d)", len(res.Results), ok)
	}
}
