package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirjson"
	"github.com/gofhir/fhirjson/pkg/issue"
	"github.com/gofhir/fhirjson/pkg/loader"
	"github.com/gofhir/fhirjson/pkg/location"
	"github.com/gofhir/fhirjson/pkg/logger"
	"github.com/gofhir/fhirjson/pkg/sanitize"
	"github.com/gofhir/fhirjson/pkg/schema"
	"github.com/gofhir/fhirjson/worker"
)

// InputFlags select the files and how they are read.
type InputFlags struct {
	Type       string   `help:"Resource type of every file. Read from each file when empty." short:"t"`
	Timezone   string   `help:"IANA zone for dates and times without an offset." name:"tz"`
	NoValidate bool     `help:"Skip the validation pass." name:"no-validate"`
	Sanitize   []string `help:"Input sanitizers to run, in order: ${sanitizers}." sep:","`
	Packages   []string `help:"FHIR packages supplying the schema: .tgz files, unpacked directories or name#version from the package cache." name:"package"`
	Workers    int      `help:"Number of files converted in parallel."`
	Files      []string `arg:"" help:"FHIR JSON files or glob patterns; - reads stdin."`
}

// ConvertCmd re-emits each file. Issues go to stderr.
type ConvertCmd struct {
	Input     InputFlags `embed:""`
	Pretty    bool       `help:"Indent the output by two spaces."`
	Analytics bool       `help:"Print the analytics shape."`
}

// CheckCmd prints one OperationOutcome per file.
type CheckCmd struct {
	Input  InputFlags `embed:""`
	Pretty bool       `help:"Indent the output by two spaces."`
}

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func osStreams() streams {
	return streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}
}

// Run implements the convert command.
func (c *ConvertCmd) Run(g *Globals) error {
	return c.run(context.Background(), g, osStreams())
}

func (c *ConvertCmd) run(ctx context.Context, g *Globals, s streams) error {
	sess, err := newSession(g, &c.Input, s)
	if err != nil {
		return err
	}
	pretty := c.Pretty || sess.cfg.Output.Pretty
	analytics := c.Analytics || sess.cfg.Output.Analytics

	inputs := sess.read(&c.Input)
	failed := false
	for i, r := range sess.convert(ctx, inputs) {
		report(s.err, r, sess.source(inputs[i].job.Input))
		if r.HasErrors() {
			failed = true
		}
		if r.Err != nil {
			continue
		}
		text, err := sess.parser.Print(r.Record, pretty, analytics)
		if err != nil {
			fmt.Fprintf(s.err, "%s: print: %v\n", r.ID, err)
			failed = true
			continue
		}
		fmt.Fprintln(s.out, text)
	}
	if failed {
		return errFindings
	}
	return nil
}

// Run implements the check command.
func (c *CheckCmd) Run(g *Globals) error {
	return c.run(context.Background(), g, osStreams())
}

func (c *CheckCmd) run(ctx context.Context, g *Globals, s streams) error {
	sess, err := newSession(g, &c.Input, s)
	if err != nil {
		return err
	}
	pretty := c.Pretty || sess.cfg.Output.Pretty

	failed := false
	for _, r := range sess.convert(ctx, sess.read(&c.Input)) {
		outcome := r.Outcome
		if outcome == nil {
			outcome = issue.NewOutcome()
		}
		if r.Err != nil {
			outcome.Append(fatalIssue(r.Err))
		}
		if outcome.HasErrors() {
			failed = true
		}

		var b []byte
		if pretty {
			b, err = outcome.PrettyJSON()
		} else {
			b, err = outcome.MarshalJSON()
		}
		if err != nil {
			return fmt.Errorf("%s: %w", r.ID, err)
		}
		fmt.Fprintln(s.out, string(b))
	}
	if failed {
		return errFindings
	}
	return nil
}

func fatalIssue(err error) issue.Issue {
	t := issue.TypeException
	if fhirjson.IsFatal(err) {
		t = issue.TypeStructure
	}
	return issue.Issue{Type: t, Severity: issue.SeverityFatal, Diagnostics: err.Error()}
}

type session struct {
	parser   *fhirjson.Parser
	cfg      *Config
	log      *logger.Logger
	san      sanitize.Sanitizer
	in       io.Reader
	validate bool
}

func newSession(g *Globals, in *InputFlags, s streams) (*session, error) {
	cfg, err := LoadConfig(g.Config)
	if err != nil {
		return nil, err
	}
	cfg.applyTo(in)

	levelName := g.LogLevel
	if levelName == "" {
		levelName = cfg.LogLevel
	}
	if levelName == "" {
		levelName = "warn"
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	log := logger.New(s.err, level).Named("fhirjson")

	san, err := sanitize.ByName(strings.Join(in.Sanitize, ","))
	if err != nil {
		return nil, err
	}

	opts := []fhirjson.Option{
		fhirjson.WithTimezone(in.Timezone),
		fhirjson.WithSanitizer(san),
		fhirjson.WithValidation(!in.NoValidate),
		fhirjson.WithConstraints(cfg.constraints()),
		fhirjson.WithWorkers(in.Workers),
		fhirjson.WithLogger(log),
	}
	if len(in.Packages) > 0 {
		reg, err := loadRegistry(in.Packages, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fhirjson.WithRegistry(reg))
	}

	p, err := fhirjson.NewParser(opts...)
	if err != nil {
		return nil, err
	}
	return &session{parser: p, cfg: cfg, log: log, san: san, in: s.in, validate: !in.NoValidate}, nil
}

// loadRegistry builds the schema tables from package archives, unpacked
// package directories or name#version references into the package cache.
func loadRegistry(refs []string, log *logger.Logger) (*schema.Registry, error) {
	l := loader.New("", log.Named("loader"))
	pkgs := make([]*loader.Package, 0, len(refs))
	for _, ref := range refs {
		var (
			pkg *loader.Package
			err error
		)
		switch {
		case strings.HasSuffix(ref, ".tgz"):
			pkg, err = l.LoadTgz(ref)
		case isDir(ref):
			pkg, err = l.LoadDir(ref)
		default:
			pkg, err = l.Load(loader.ParsePackageSpec(ref))
		}
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", ref, err)
		}
		log.Info("loaded %s: %d definitions, %d skipped, %d errors",
			pkg.Source, pkg.Stats.StructureDefinitions, pkg.Stats.Skipped, pkg.Stats.Errors)
		pkgs = append(pkgs, pkg)
	}

	reg, err := loader.Registry(pkgs...)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no resource or datatype definitions in %s", strings.Join(refs, ", "))
	}
	return reg, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// input is one file to convert, or the reason it could not be read.
type input struct {
	job worker.Job
	err error
}

func (s *session) read(flags *InputFlags) []input {
	var inputs []input
	add := func(name string, data []byte, err error) {
		if err != nil {
			inputs = append(inputs, input{job: worker.Job{ID: name}, err: err})
			return
		}
		typ := flags.Type
		if typ == "" {
			if typ, err = resourceTypeOf(s.san, data); err != nil {
				inputs = append(inputs, input{job: worker.Job{ID: name}, err: err})
				return
			}
		}
		inputs = append(inputs, input{job: worker.Job{ID: name, Input: data, ResourceType: typ, Validate: s.validate}})
	}

	for _, file := range flags.Files {
		if file == "-" {
			data, err := io.ReadAll(s.in)
			add("stdin", data, err)
			continue
		}
		matches, err := filepath.Glob(file)
		if err != nil {
			add(file, nil, fmt.Errorf("bad pattern: %w", err))
			continue
		}
		if len(matches) == 0 {
			add(file, nil, fmt.Errorf("no files match %s", file))
			continue
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			add(m, data, err)
		}
	}
	return inputs
}

// resourceTypeOf reads the resourceType member of a document after running
// it through san.
func resourceTypeOf(san sanitize.Sanitizer, data []byte) (string, error) {
	text, err := san.Sanitize(data)
	if err != nil {
		return "", fmt.Errorf("sanitize: %w", err)
	}
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(text, &probe); err != nil {
		return "", fmt.Errorf("read resourceType: %w", err)
	}
	if probe.ResourceType == "" {
		return "", errors.New("no resourceType; pass --type")
	}
	return probe.ResourceType, nil
}

// source returns data as the merger saw it, so reported positions match the
// sanitized text.
func (s *session) source(data []byte) []byte {
	text, err := s.san.Sanitize(data)
	if err != nil {
		return data
	}
	return text
}

// convert runs the readable inputs through the parser and returns one result
// per input in order.
func (s *session) convert(ctx context.Context, inputs []input) []*worker.JobResult {
	jobs := make([]worker.Job, 0, len(inputs))
	for _, in := range inputs {
		if in.err == nil {
			jobs = append(jobs, in.job)
		}
	}

	start := time.Now()
	batch := s.parser.ParseBatch(ctx, jobs)
	s.log.Info("converted %d file(s) in %s, %d failed", batch.TotalJobs, time.Since(start).Round(time.Microsecond), batch.FailedJobs)

	results := make([]*worker.JobResult, len(inputs))
	k := 0
	for i, in := range inputs {
		if in.err != nil {
			results[i] = &worker.JobResult{ID: in.job.ID, Outcome: issue.NewOutcome(), Err: in.err}
			continue
		}
		results[i] = batch.Results[k]
		k++
	}
	return results
}

// report writes the issues of one result to w. Paths found in src get their
// line and column.
func report(w io.Writer, r *worker.JobResult, src []byte) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s: FATAL %v\n", r.ID, r.Err)
		return
	}
	if r.Outcome == nil {
		return
	}
	for _, iss := range r.Outcome.Issues() {
		code := iss.Code
		if code == "" {
			code = string(iss.Type)
		}
		where := iss.Path
		if pos, ok := location.Find(src, iss.Path); ok {
			where += " (" + pos.String() + ")"
		}
		fmt.Fprintf(w, "%s: %s [%s] %s @ %s\n", r.ID, severityLabel(iss.Severity), code, iss.Diagnostics, where)
	}
}

func severityLabel(severity issue.Severity) string {
	switch severity {
	case issue.SeverityFatal:
		return "FATAL"
	case issue.SeverityError:
		return "ERROR"
	case issue.SeverityWarning:
		return "WARN "
	case issue.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}
