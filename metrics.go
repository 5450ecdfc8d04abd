package fhirjson

import (
	"sync/atomic"
	"time"

	"github.com/gofhir/fhirjson/pkg/issue"
)

// Metrics counts merges, prints and reported issues. All methods are safe
// for concurrent use.
type Metrics struct {
	mergesTotal  atomic.Uint64
	mergesFailed atomic.Uint64
	mergesFatal  atomic.Uint64
	printsTotal  atomic.Uint64
	printsFailed atomic.Uint64

	mergeTimeTotal atomic.Uint64
	mergeTimeMin   atomic.Uint64
	mergeTimeMax   atomic.Uint64

	conversionErrors   atomic.Uint64
	validationErrors   atomic.Uint64
	validationWarnings atomic.Uint64
}

// NewMetrics creates zeroed Metrics.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.mergeTimeMin.Store(^uint64(0))
	return m
}

// RecordMerge records one finished merge. err is its return value.
func (m *Metrics) RecordMerge(d time.Duration, err error) {
	m.mergesTotal.Add(1)
	if err != nil {
		m.mergesFailed.Add(1)
		if IsFatal(err) {
			m.mergesFatal.Add(1)
		}
	}

	ns := uint64(d.Nanoseconds()) //nolint:gosec // durations measured with time.Since are positive
	m.mergeTimeTotal.Add(ns)
	for {
		old := m.mergeTimeMin.Load()
		if ns >= old || m.mergeTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.mergeTimeMax.Load()
		if ns <= old || m.mergeTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordPrint records one print call.
func (m *Metrics) RecordPrint(err error) {
	m.printsTotal.Add(1)
	if err != nil {
		m.printsFailed.Add(1)
	}
}

// RecordIssue counts one reported issue by its reporter category.
func (m *Metrics) RecordIssue(t issue.Type, severity issue.Severity) {
	switch {
	case t == issue.TypeStructure:
		m.conversionErrors.Add(1)
	case severity == issue.SeverityError || severity == issue.SeverityFatal:
		m.validationErrors.Add(1)
	default:
		m.validationWarnings.Add(1)
	}
}

// MergesTotal returns the number of merges.
func (m *Metrics) MergesTotal() uint64 { return m.mergesTotal.Load() }

// MergesFailed returns the number of merges that returned an error.
func (m *Metrics) MergesFailed() uint64 { return m.mergesFailed.Load() }

// MergesFatal returns the number of merges stopped by a fatal error.
func (m *Metrics) MergesFatal() uint64 { return m.mergesFatal.Load() }

// AverageMergeTime returns the mean merge duration.
func (m *Metrics) AverageMergeTime() time.Duration {
	total := m.mergesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.mergeTimeTotal.Load() / total) //nolint:gosec // nanoseconds fit int64
}

// MinMergeTime returns the fastest merge.
func (m *Metrics) MinMergeTime() time.Duration {
	v := m.mergeTimeMin.Load()
	if v == ^uint64(0) {
		return 0
	}
	return time.Duration(v) //nolint:gosec // nanoseconds fit int64
}

// MaxMergeTime returns the slowest merge.
func (m *Metrics) MaxMergeTime() time.Duration {
	return time.Duration(m.mergeTimeMax.Load()) //nolint:gosec // nanoseconds fit int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	MergesTotal  uint64 `json:"merges_total"`
	MergesFailed uint64 `json:"merges_failed"`
	MergesFatal  uint64 `json:"merges_fatal"`
	PrintsTotal  uint64 `json:"prints_total"`
	PrintsFailed uint64 `json:"prints_failed"`

	AvgMergeTimeNs uint64 `json:"avg_merge_time_ns"`
	MinMergeTimeNs uint64 `json:"min_merge_time_ns"`
	MaxMergeTimeNs uint64 `json:"max_merge_time_ns"`

	ConversionErrors   uint64 `json:"conversion_errors"`
	ValidationErrors   uint64 `json:"validation_errors"`
	ValidationWarnings uint64 `json:"validation_warnings"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:          time.Now(),
		MergesTotal:        m.mergesTotal.Load(),
		MergesFailed:       m.mergesFailed.Load(),
		MergesFatal:        m.mergesFatal.Load(),
		PrintsTotal:        m.printsTotal.Load(),
		PrintsFailed:       m.printsFailed.Load(),
		AvgMergeTimeNs:     uint64(m.AverageMergeTime()), //nolint:gosec // positive
		MinMergeTimeNs:     uint64(m.MinMergeTime()),     //nolint:gosec // positive
		MaxMergeTimeNs:     m.mergeTimeMax.Load(),
		ConversionErrors:   m.conversionErrors.Load(),
		ValidationErrors:   m.validationErrors.Load(),
		ValidationWarnings: m.validationWarnings.Load(),
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.mergesTotal, &m.mergesFailed, &m.mergesFatal, &m.printsTotal, &m.printsFailed,
		&m.mergeTimeTotal, &m.mergeTimeMax,
		&m.conversionErrors, &m.validationErrors, &m.validationWarnings,
	} {
		c.Store(0)
	}
	m.mergeTimeMin.Store(^uint64(0))
}

// countingReporter forwards to next and records each call in m.
type countingReporter struct {
	next issue.Reporter
	m    *Metrics
}

func (r countingReporter) ReportConversionError(path string, err error) error {
	r.m.RecordIssue(issue.TypeStructure, issue.SeverityError)
	return r.next.ReportConversionError(path, err)
}

func (r countingReporter) ReportValidationError(path string, err error) error {
	r.m.RecordIssue(issue.TypeValue, issue.SeverityError)
	return r.next.ReportValidationError(path, err)
}

func (r countingReporter) ReportValidationWarning(path string, err error) error {
	r.m.RecordIssue(issue.TypeValue, issue.SeverityWarning)
	return r.next.ReportValidationWarning(path, err)
}
