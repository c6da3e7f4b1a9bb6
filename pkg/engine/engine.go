package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"orgsync/pkg/apply"
	"orgsync/pkg/diff"
	"orgsync/pkg/model"
	"orgsync/pkg/provider"
	"orgsync/pkg/telemetry"
	"orgsync/pkg/validate"
)

// DefaultConcurrency is the number of organizations processed at once
const DefaultConcurrency = 4

const (
	modeValidate = "validate"
	modePlan     = "plan"
	modeApply    = "apply"
)

// Target is one organization of a batch
type Target struct {
	Org string
	// Desired is the configured state; nil when LoadErr is set
	Desired *model.Object
	// LoadErr is why the configuration could not be loaded. The target is
	// then reported invalid without contacting the platform.
	LoadErr     error
	Credentials provider.Credentials
}

// Engine runs validate, plan and apply over many organizations. Each
// organization is independent: a failure in one never stops the others.
type Engine struct {
	opener      Opener
	validator   *validate.Validator
	diffOpts    diff.Options
	base        zerolog.Logger
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	concurrency int
}

// Option configures an Engine
type Option func(*Engine)

// WithValidator replaces the validator with built-in rules only
func WithValidator(v *validate.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithDiffOptions sets how Plan compares write-only fields
func WithDiffOptions(opts diff.Options) Option {
	return func(e *Engine) { e.diffOpts = opts }
}

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.base = logger }
}

// WithMetrics records organization and patch outcomes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConcurrency bounds how many organizations are processed at once
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an engine opening sessions through opener
func New(opener Opener, opts ...Option) *Engine {
	e := &Engine{
		opener:      opener,
		validator:   validate.New(),
		base:        zerolog.Nop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = telemetry.Component(e.base, "engine")
	return e
}

// Validate checks every target's configuration without contacting the
// platform
func (e *Engine) Validate(ctx context.Context, targets []Target) *Report {
	return e.run(ctx, modeValidate, targets, func(ctx context.Context, _ *orgRun, t Target, res *Result) error {
		return e.prepare(ctx, t, res)
	})
}

// Plan computes the patches of every target without writing anything.
// Targets with ERROR findings are still planned but end as invalid.
func (e *Engine) Plan(ctx context.Context, targets []Target) *Report {
	return e.run(ctx, modePlan, targets, func(ctx context.Context, _ *orgRun, t Target, res *Result) error {
		invalid := e.prepare(ctx, t, res)
		var findingsErr *validate.Error
		if invalid != nil && !errors.As(invalid, &findingsErr) {
			return invalid
		}

		s, err := e.compare(ctx, t, res, e.diffOpts)
		if err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}
		return invalid
	})
}

// Apply plans every target and applies its patches. Targets with ERROR
// findings are not applied.
func (e *Engine) Apply(ctx context.Context, targets []Target, opts apply.Options) *Report {
	return e.run(ctx, modeApply, targets, func(ctx context.Context, r *orgRun, t Target, res *Result) error {
		s, err := e.plan(ctx, t, res, opts.Diff())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.Close(); cerr != nil {
				r.logger.Warn().Err(cerr).Msg("Failed to close session")
			}
		}()

		if len(res.Patches) == 0 {
			r.logger.Info().Msg("Organization is up to date")
			return nil
		}
		res.Outcomes = apply.New(s, r.base, e.metrics).Apply(ctx, t.Org, res.Patches, opts)
		return outcomeErr(res.Outcomes)
	})
}

// Fetch reads the live state of one organization
func (e *Engine) Fetch(ctx context.Context, org string, creds provider.Credentials) (*model.Object, []provider.Warning, error) {
	s, err := e.opener.Open(ctx, org, creds)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session for %s: %w", org, err)
	}
	defer s.Close()

	live, warnings, err := s.FetchLive(ctx)
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to fetch live state of %s: %w", org, err)
	}
	return live, warnings, nil
}

// orgRun carries the loggers of one organization's task. base has the run
// id only, for components that add their own fields.
type orgRun struct {
	logger zerolog.Logger
	base   zerolog.Logger
}

type orgFunc func(ctx context.Context, r *orgRun, t Target, res *Result) error

// run processes every target on a bounded number of goroutines and waits
// for all of them
func (e *Engine) run(ctx context.Context, mode string, targets []Target, fn orgFunc) *Report {
	runID := telemetry.NewRunID()
	base := telemetry.WithRun(e.base, runID)
	logger := telemetry.WithRun(e.logger, runID)
	logger.Info().Str("mode", mode).Int("organizations", len(targets)).Msg("Starting run")

	report := &Report{RunID: runID, Results: make([]*Result, len(targets))}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, t := range targets {
		res := &Result{Org: t.Org}
		report.Results[i] = res
		g.Go(func() error {
			r := &orgRun{logger: telemetry.WithOrg(logger, t.Org), base: base}
			e.process(ctx, r, mode, t, res, fn)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Str("mode", mode).
		Int("ok", report.Count(StatusOK)).
		Int("failed", report.Count(StatusFailed)).
		Int("incomplete", report.Count(StatusIncomplete)).
		Int("invalid", report.Count(StatusInvalid)).
		Msg("Run finished")
	return report
}

func (e *Engine) process(ctx context.Context, r *orgRun, mode string, t Target, res *Result, fn orgFunc) {
	ctx, span := telemetry.StartSpan(ctx, "engine."+mode, attribute.String("org", t.Org))
	start := time.Now()

	err := fn(ctx, r, t, res)
	res.Err = err
	res.Status = statusOf(err)
	telemetry.EndSpan(span, err)
	e.metrics.OrganizationDone(mode, string(res.Status))

	var event *zerolog.Event
	if err != nil {
		event = r.logger.Error().Err(err)
	} else {
		event = r.logger.Info()
	}
	event.
		Str("status", string(res.Status)).
		Int("patches", len(res.Patches)).
		Int("findings", len(res.Findings)).
		Int("warnings", len(res.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("Organization processed")
}

// prepare validates a target's configuration
func (e *Engine) prepare(ctx context.Context, t Target, res *Result) error {
	if t.LoadErr != nil {
		return t.LoadErr
	}
	if t.Desired == nil {
		return fmt.Errorf("no configuration loaded for %s", t.Org)
	}
	if key := t.Desired.Key(); key != "" && !strings.EqualFold(key, t.Org) {
		return &model.ConfigSchemaError{
			Type:    model.TypeOrganization,
			Path:    model.TypeOrganization + ".login",
			Message: fmt.Sprintf("configuration is for %s, not %s", key, t.Org),
		}
	}

	res.Findings = e.validator.Validate(ctx, t.Desired)
	return res.Findings.Err()
}

// plan validates, fetches and diffs one target. The returned session is
// open and owned by the caller.
func (e *Engine) plan(ctx context.Context, t Target, res *Result, opts diff.Options) (Session, error) {
	if err := e.prepare(ctx, t, res); err != nil {
		return nil, err
	}
	return e.compare(ctx, t, res, opts)
}

// compare fetches the live state of a target and diffs it against the
// desired tree
func (e *Engine) compare(ctx context.Context, t Target, res *Result, opts diff.Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Credentials == nil {
		return nil, fmt.Errorf("no credentials for %s", t.Org)
	}

	s, err := e.opener.Open(ctx, t.Org, t.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	live, warnings, err := s.FetchLive(ctx)
	res.Warnings = warnings
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to fetch live state: %w", err)
	}

	result, err := diff.Diff(t.Desired, live, opts)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to compare configuration with live state: %w", err)
	}
	res.Patches = result.Patches
	res.Findings = append(res.Findings, result.Findings...)
	return s, nil
}
