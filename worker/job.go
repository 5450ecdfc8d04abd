package worker

import (
	"time"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
)

// Job is one document to convert.
type Job struct {
	// ID identifies the job in its result.
	ID string

	// Input is the raw FHIR JSON.
	Input []byte

	// ResourceType is the type of the target record.
	ResourceType string

	// Validate runs the validator after the merge.
	Validate bool
}

// JobResult is the outcome of one Job.
type JobResult struct {
	ID string

	// Record is the merged record, nil when Err is set.
	Record *element.Complex

	// Outcome holds the issues reported for this job only.
	Outcome *issue.Outcome

	// Err is the error that aborted the job.
	Err error

	Duration time.Duration
}

// HasErrors reports whether the job failed or produced error issues.
func (r *JobResult) HasErrors() bool {
	return r.Err != nil || (r.Outcome != nil && r.Outcome.HasErrors())
}

// BatchResult aggregates the results of several jobs.
type BatchResult struct {
	Results       []*JobResult
	TotalJobs     int
	CompletedJobs int
	FailedJobs    int
	TotalDuration time.Duration
}

// HasErrors reports whether any job failed or produced error issues.
func (b *BatchResult) HasErrors() bool {
	for _, r := range b.Results {
		if r != nil && r.HasErrors() {
			return true
		}
	}
	return false
}

// IssueCount returns the number of issues across all jobs.
func (b *BatchResult) IssueCount() int {
	n := 0
	for _, r := range b.Results {
		if r != nil && r.Outcome != nil {
			n += r.Outcome.Len()
		}
	}
	return n
}

func (b *BatchResult) add(r *JobResult) {
	b.CompletedJobs++
	if r.Err != nil {
		b.FailedJobs++
	}
	b.TotalDuration += r.Duration
}
