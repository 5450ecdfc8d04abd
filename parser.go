package fhirjson

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofhir/fhirjson/pkg/element"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/merge"
	"github.com/gofhir/fhirjson/pkg/printer"
	"github.com/gofhir/fhirjson/pkg/sanitize"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/pkg/validation"
	"github.com/gofhir/fhirjson/worker"
)

// Parser merges and prints records with one configuration. It is safe for
// concurrent use; each call needs its own target and Reporter.
type Parser struct {
	opts    Options
	loc     *time.Location
	reg     *schema.Registry
	merger  *merge.Merger
	printer *printer.Printer
	log     *logger.Logger
}

// NewParser creates a Parser from DefaultOptions and opts.
func NewParser(opts ...Option) (*Parser, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	loc, err := loadLocation(o.Timezone)
	if err != nil {
		return nil, err
	}

	reg := o.Registry
	if reg == nil {
		reg = schema.R4()
	}
	log := o.Logger
	if log == nil {
		log = logger.Default()
	}

	v := o.Validator
	if v == nil {
		v = validation.New(reg, validation.Options{
			SkipConstraints:     o.SkipConstraints,
			ExpressionCacheSize: o.ExpressionCacheSize,
		}, log.Named("validation"))
	}

	return &Parser{
		opts:    *o,
		loc:     loc,
		reg:     reg,
		merger:  merge.New(reg, v, log.Named("merge")),
		printer: printer.New(reg),
		log:     log,
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultParser *Parser
)

// std returns the Parser behind the package-level functions.
func std() *Parser {
	defaultOnce.Do(func() {
		p, err := NewParser()
		if err != nil {
			panic(fmt.Sprintf("fhirjson: default parser: %v", err))
		}
		defaultParser = p
	})
	return defaultParser
}

var (
	zonesMu sync.RWMutex
	zones   = map[string]*time.Location{"": time.UTC, "UTC": time.UTC}
)

// loadLocation resolves an IANA zone name, caching the result.
func loadLocation(name string) (*time.Location, error) {
	zonesMu.RLock()
	loc, ok := zones[name]
	zonesMu.RUnlock()
	if ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("fhirjson: timezone %q: %w", name, err)
	}
	zonesMu.Lock()
	zones[name] = loc
	zonesMu.Unlock()
	return loc, nil
}

// Registry returns the schema tables of the parser.
func (p *Parser) Registry() *schema.Registry {
	return p.reg
}

// MergeInto merges raw into target using the parser's timezone, sanitizer
// and validation setting.
func (p *Parser) MergeInto(raw []byte, target *element.Complex, rep issue.Reporter) error {
	return p.merge(raw, target, p.loc, p.opts.Sanitizer, p.opts.Validate, rep)
}

// Unmarshal merges raw into a new record of resourceType and validates it.
func (p *Parser) Unmarshal(raw []byte, resourceType string, rep issue.Reporter) (*element.Complex, error) {
	return p.unmarshal(raw, resourceType, true, rep)
}

// UnmarshalWithoutValidating is Unmarshal without the validation pass.
func (p *Parser) UnmarshalWithoutValidating(raw []byte, resourceType string, rep issue.Reporter) (*element.Complex, error) {
	return p.unmarshal(raw, resourceType, false, rep)
}

func (p *Parser) unmarshal(raw []byte, resourceType string, validate bool, rep issue.Reporter) (*element.Complex, error) {
	rec := element.NewComplex(resourceType)
	if err := p.merge(raw, rec, p.loc, p.opts.Sanitizer, validate, rep); err != nil {
		return nil, err
	}
	return rec, nil
}

// Parse merges raw into a new record and collects the issues in a fresh
// Outcome. The Result is returned even when err is a reporter error, so the
// issues gathered so far stay available.
func (p *Parser) Parse(raw []byte, resourceType string) (*Result, error) {
	start := time.Now()
	res := &Result{Outcome: issue.NewOutcome()}
	rec := element.NewComplex(resourceType)
	err := p.merge(raw, rec, p.loc, p.opts.Sanitizer, p.opts.Validate, issue.NewOutcomeReporter(res.Outcome))
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	res.Record = rec
	return res, nil
}

func (p *Parser) merge(raw []byte, target *element.Complex, loc *time.Location, san sanitize.Sanitizer, validate bool, rep issue.Reporter) error {
	if rep == nil {
		rep = issue.Discard()
	}
	m := p.opts.Metrics
	if m == nil {
		return p.merger.MergeInto(raw, target, loc, san, validate, rep)
	}

	start := time.Now()
	err := p.merger.MergeInto(raw, target, loc, san, validate, countingReporter{next: rep, m: m})
	m.RecordMerge(time.Since(start), err)
	return err
}

// Convert runs one batch job. It implements worker.Converter.
func (p *Parser) Convert(_ context.Context, job worker.Job, rep issue.Reporter) (*element.Complex, error) {
	if job.ResourceType == "" {
		return nil, errors.New("fhirjson: job has no resource type")
	}
	rec := element.NewComplex(job.ResourceType)
	if err := p.merge(job.Input, rec, p.loc, p.opts.Sanitizer, job.Validate, rep); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParseBatch converts jobs on up to Options.Workers goroutines and returns
// the results in input order.
func (p *Parser) ParseBatch(ctx context.Context, jobs []worker.Job) *worker.BatchResult {
	res := worker.NewBatch(p, p.opts.Workers).Run(ctx, jobs)
	p.log.Debug("batch of %d: %d failed, %d issues", res.TotalJobs, res.FailedJobs, res.IssueCount())
	return res
}

// MergeInto merges raw into target.
//
// timezone names the zone for offset-less dates and times (UTC when empty).
// A nil sanitizer is PassThrough and a nil reporter discards issues. Only a
// *ParseError, a *SchemaMismatchError or an error returned by rep is
// returned; target is modified only on success.
func MergeInto(raw []byte, target *element.Complex, timezone string, san sanitize.Sanitizer, validate bool, rep issue.Reporter) error {
	loc, err := loadLocation(timezone)
	if err != nil {
		return err
	}
	return std().merge(raw, target, loc, san, validate, rep)
}

// Unmarshal merges raw into a new record of resourceType and validates it.
// opts customise the Parser used for this call.
func Unmarshal(raw []byte, resourceType string, rep issue.Reporter, opts ...Option) (*element.Complex, error) {
	p, err := parserFor(opts)
	if err != nil {
		return nil, err
	}
	return p.Unmarshal(raw, resourceType, rep)
}

// UnmarshalWithoutValidating is Unmarshal without the validation pass.
func UnmarshalWithoutValidating(raw []byte, resourceType string, rep issue.Reporter, opts ...Option) (*element.Complex, error) {
	p, err := parserFor(opts)
	if err != nil {
		return nil, err
	}
	return p.UnmarshalWithoutValidating(raw, resourceType, rep)
}

func parserFor(opts []Option) (*Parser, error) {
	if len(opts) == 0 {
		return std(), nil
	}
	return NewParser(opts...)
}
